package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smallbiznis/logoforge/internal/auth"
	"github.com/smallbiznis/logoforge/internal/clock"
	"github.com/smallbiznis/logoforge/internal/config"
	"github.com/smallbiznis/logoforge/internal/entitlement/domain"
	"github.com/smallbiznis/logoforge/internal/entitlement/repository"
	"github.com/smallbiznis/logoforge/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, policy config.CreditsConfig) (domain.Service, *gorm.DB, *clock.FakeClock) {
	t.Helper()
	db := testutil.OpenDB(t)
	clk := clock.NewFakeClock(testNow)
	svc := NewService(Params{
		DB:      db,
		Log:     zap.NewNop(),
		Clock:   clk,
		Credits: config.NewStaticCreditsConfigHolder(policy),
		Repo:    repository.Provide(),
	})
	return svc, db, clk
}

func seedEntitlement(t *testing.T, db *gorm.DB, userID string, free, purchased int, lastReset time.Time) {
	t.Helper()
	err := db.Create(&domain.Entitlement{
		UserID:                   userID,
		FreeGenerationsLeft:      free,
		PurchasedGenerationsLeft: purchased,
		LastFreeReset:            lastReset,
		CreatedAt:                lastReset,
		UpdatedAt:                lastReset,
	}).Error
	if err != nil {
		t.Fatalf("seed entitlement: %v", err)
	}
}

func loadEntitlement(t *testing.T, db *gorm.DB, userID string) domain.Entitlement {
	t.Helper()
	var item domain.Entitlement
	if err := db.Where("user_id = ?", userID).First(&item).Error; err != nil {
		t.Fatalf("load entitlement: %v", err)
	}
	return item
}

func TestGetEntitlementProvisionsNewUser(t *testing.T) {
	svc, db, _ := newTestService(t, config.DefaultCreditsConfig())

	balance, err := svc.GetEntitlement(context.Background(), "user-new")
	require.NoError(t, err)
	assert.Equal(t, 10, balance.Free)
	assert.Equal(t, 0, balance.Purchased)
	assert.Equal(t, 10, balance.Total)
	assert.Equal(t, 10, balance.DailyLimit)
	assert.True(t, balance.LastFreeReset.Equal(testNow))

	// a second read does not re-provision
	_, err = svc.GetEntitlement(context.Background(), "user-new")
	require.NoError(t, err)
	assert.Equal(t, int64(1), testutil.Count(t, db, "SELECT COUNT(*) FROM user_entitlements WHERE user_id = ?", "user-new"))
}

func TestGetEntitlementRequiresUser(t *testing.T) {
	svc, _, _ := newTestService(t, config.DefaultCreditsConfig())
	_, err := svc.GetEntitlement(context.Background(), " ")
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)
}

func TestDebitSpendsFreeBeforePurchased(t *testing.T) {
	svc, db, _ := newTestService(t, config.DefaultCreditsConfig())
	seedEntitlement(t, db, "user-1", 1, 2, testNow)
	ctx := context.Background()

	want := []domain.CreditKind{domain.CreditKindFree, domain.CreditKindPurchased, domain.CreditKindPurchased}
	for i, kind := range want {
		got, err := svc.Debit(ctx, db, "user-1")
		if err != nil {
			t.Fatalf("debit %d: %v", i, err)
		}
		if got != kind {
			t.Fatalf("debit %d: expected %s, got %s", i, kind, got)
		}
	}

	_, err := svc.Debit(ctx, db, "user-1")
	if !errors.Is(err, domain.ErrOutOfCredits) {
		t.Fatalf("expected ErrOutOfCredits, got %v", err)
	}

	item := loadEntitlement(t, db, "user-1")
	assert.Equal(t, 0, item.FreeGenerationsLeft)
	assert.Equal(t, 0, item.PurchasedGenerationsLeft)
}

func TestDebitOutOfCreditsLeavesRowUnchanged(t *testing.T) {
	svc, db, clk := newTestService(t, config.DefaultCreditsConfig())
	seedEntitlement(t, db, "user-1", 0, 0, testNow)
	before := loadEntitlement(t, db, "user-1")

	clk.Advance(time.Minute)
	_, err := svc.Debit(context.Background(), db, "user-1")
	require.ErrorIs(t, err, domain.ErrOutOfCredits)

	after := loadEntitlement(t, db, "user-1")
	assert.Equal(t, before.FreeGenerationsLeft, after.FreeGenerationsLeft)
	assert.Equal(t, before.PurchasedGenerationsLeft, after.PurchasedGenerationsLeft)
	assert.True(t, before.UpdatedAt.Equal(after.UpdatedAt))
}

func TestGrantPackModes(t *testing.T) {
	tests := []struct {
		mode string
		want int
	}{
		{mode: config.GrantModeSet, want: 10},
		{mode: config.GrantModeAdd, want: 15},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			policy := config.DefaultCreditsConfig()
			policy.GrantMode = tt.mode
			svc, db, _ := newTestService(t, policy)
			seedEntitlement(t, db, "user-1", 3, 5, testNow)

			result, err := svc.GrantPack(context.Background(), nil, "user-1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.Purchased)
			assert.Equal(t, tt.mode, result.Mode)

			item := loadEntitlement(t, db, "user-1")
			assert.Equal(t, tt.want, item.PurchasedGenerationsLeft)
			assert.Equal(t, 3, item.FreeGenerationsLeft)
		})
	}
}

func TestGrantPackProvisionsMissingUser(t *testing.T) {
	svc, db, _ := newTestService(t, config.DefaultCreditsConfig())

	result, err := svc.GrantPack(context.Background(), nil, "user-buyer")
	require.NoError(t, err)
	assert.Equal(t, 10, result.Purchased)

	item := loadEntitlement(t, db, "user-buyer")
	assert.Equal(t, 10, item.FreeGenerationsLeft)
	assert.Equal(t, 10, item.PurchasedGenerationsLeft)
}

func TestResetFreeAllotments(t *testing.T) {
	policy := config.DefaultCreditsConfig()
	policy.FreeDailyLimit = 5
	svc, db, clk := newTestService(t, policy)

	seedEntitlement(t, db, "stale", 0, 2, testNow.Add(-25*time.Hour))
	seedEntitlement(t, db, "fresh", 1, 0, testNow.Add(-time.Hour))

	affected, err := svc.ResetFreeAllotments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	stale := loadEntitlement(t, db, "stale")
	assert.Equal(t, 5, stale.FreeGenerationsLeft)
	assert.Equal(t, 2, stale.PurchasedGenerationsLeft)
	assert.True(t, stale.LastFreeReset.Equal(testNow))

	fresh := loadEntitlement(t, db, "fresh")
	assert.Equal(t, 1, fresh.FreeGenerationsLeft)

	clk.Advance(24 * time.Hour)
	affected, err = svc.ResetFreeAllotments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), affected)
}
