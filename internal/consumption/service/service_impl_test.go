package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smallbiznis/logoforge/internal/auth"
	"github.com/smallbiznis/logoforge/internal/clock"
	"github.com/smallbiznis/logoforge/internal/config"
	"github.com/smallbiznis/logoforge/internal/consumption/domain"
	entitlementdomain "github.com/smallbiznis/logoforge/internal/entitlement/domain"
	entitlementrepo "github.com/smallbiznis/logoforge/internal/entitlement/repository"
	entitlementservice "github.com/smallbiznis/logoforge/internal/entitlement/service"
	generationrepo "github.com/smallbiznis/logoforge/internal/generation/repository"
	generationservice "github.com/smallbiznis/logoforge/internal/generation/service"
	"github.com/smallbiznis/logoforge/internal/inference"
	"github.com/smallbiznis/logoforge/internal/storage"
	"github.com/smallbiznis/logoforge/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeGenerator struct {
	calls atomic.Int64
	err   error
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (inference.Images, error) {
	f.calls.Add(1)
	if f.err != nil {
		return inference.Images{}, f.err
	}
	return inference.Images{Preview: []byte("preview:" + prompt), HighRes: []byte("hires:" + prompt)}, nil
}

type testEnv struct {
	db        *gorm.DB
	svc       domain.Service
	store     *storage.MemoryStore
	generator *fakeGenerator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithDB(t, testutil.OpenDB(t))
}

func newTestEnvWithDB(t *testing.T, db *gorm.DB) *testEnv {
	t.Helper()
	log := zap.NewNop()
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	credits := config.NewStaticCreditsConfigHolder(config.DefaultCreditsConfig())

	entitlementSvc := entitlementservice.NewService(entitlementservice.Params{
		DB:      db,
		Log:     log,
		Clock:   clk,
		Credits: credits,
		Repo:    entitlementrepo.Provide(),
	})
	generationSvc := generationservice.NewService(generationservice.Params{
		DB:    db,
		Log:   log,
		GenID: testutil.Node(t),
		Clock: clk,
		Repo:  generationrepo.Provide(),
	})

	store := storage.NewMemoryStore()
	store.BaseURL = "https://assets.test"
	generator := &fakeGenerator{}

	svc := NewService(Params{
		DB:             db,
		Log:            log,
		Credits:        credits,
		EntitlementSvc: entitlementSvc,
		GenerationSvc:  generationSvc,
		Generator:      generator,
		Store:          store,
	})
	return &testEnv{db: db, svc: svc, store: store, generator: generator}
}

func (e *testEnv) seed(t *testing.T, userID string, free, purchased int) {
	t.Helper()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	err := e.db.Create(&entitlementdomain.Entitlement{
		UserID:                   userID,
		FreeGenerationsLeft:      free,
		PurchasedGenerationsLeft: purchased,
		LastFreeReset:            now,
		CreatedAt:                now,
		UpdatedAt:                now,
	}).Error
	if err != nil {
		t.Fatalf("seed entitlement: %v", err)
	}
}

func (e *testEnv) counters(t *testing.T, userID string) (int, int) {
	t.Helper()
	var item entitlementdomain.Entitlement
	if err := e.db.Where("user_id = ?", userID).First(&item).Error; err != nil {
		t.Fatalf("load entitlement: %v", err)
	}
	return item.FreeGenerationsLeft, item.PurchasedGenerationsLeft
}

func TestTryConsumeNeverGoesNegative(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "user-1", 0, 1)
	ctx := context.Background()

	_, err := env.svc.TryConsume(ctx, "user-1")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := env.svc.TryConsume(ctx, "user-1")
		require.ErrorIs(t, err, entitlementdomain.ErrOutOfCredits)
	}

	free, purchased := env.counters(t, "user-1")
	assert.Equal(t, 0, free)
	assert.Equal(t, 0, purchased)
}

func TestTryConsumePriority(t *testing.T) {
	tests := []struct {
		name          string
		free          int
		purchased     int
		wantFree      bool
		wantFreeLeft  int
		wantPurchLeft int
	}{
		{name: "free available", free: 2, purchased: 3, wantFree: true, wantFreeLeft: 1, wantPurchLeft: 3},
		{name: "only purchased", free: 0, purchased: 3, wantFree: false, wantFreeLeft: 0, wantPurchLeft: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.seed(t, "user-1", tt.free, tt.purchased)

			grant, err := env.svc.TryConsume(context.Background(), "user-1")
			require.NoError(t, err)
			assert.Equal(t, tt.wantFree, grant.UsedFreeCredit)

			free, purchased := env.counters(t, "user-1")
			assert.Equal(t, tt.wantFreeLeft, free)
			assert.Equal(t, tt.wantPurchLeft, purchased)
		})
	}
}

func TestGenerateOutOfCreditsHasNoSideEffects(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "user-1", 0, 0)

	_, err := env.svc.Generate(context.Background(), domain.GenerateRequest{UserID: "user-1", Prompt: "a red fox"})
	if !errors.Is(err, entitlementdomain.ErrOutOfCredits) {
		t.Fatalf("expected ErrOutOfCredits, got %v", err)
	}

	assert.Equal(t, int64(0), env.generator.calls.Load())
	assert.Equal(t, 0, env.store.Len())
	assert.Equal(t, int64(0), testutil.Count(t, env.db, "SELECT COUNT(*) FROM generations"))
	free, purchased := env.counters(t, "user-1")
	assert.Equal(t, 0, free)
	assert.Equal(t, 0, purchased)
}

func TestGenerateRecordsGeneration(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "user-1", 1, 0)

	result, err := env.svc.Generate(context.Background(), domain.GenerateRequest{UserID: "user-1", Prompt: "Mountain bakery, rustic."})
	require.NoError(t, err)
	assert.True(t, result.UsedFreeCredit)
	assert.Equal(t, "/api/generations/"+result.GenerationID+"/download", result.DownloadURL)
	assert.True(t, strings.HasPrefix(result.PreviewURL, "https://assets.test/generations/user-1/"))

	var row struct {
		OwnerUserID      string
		IsFreeGeneration bool
		PreviewAssetID   string
		HighResAssetID   string
	}
	require.NoError(t, env.db.Raw(
		`SELECT owner_user_id, is_free_generation, preview_asset_id, high_res_asset_id FROM generations WHERE id = ?`,
		result.GenerationID,
	).Scan(&row).Error)
	assert.Equal(t, "user-1", row.OwnerUserID)
	assert.True(t, row.IsFreeGeneration)

	preview, ok := env.store.Object("generations/user-1/" + row.PreviewAssetID + ".png")
	require.True(t, ok)
	assert.Equal(t, "preview:Mountain bakery, rustic.", string(preview))
	_, ok = env.store.Object("generations/user-1/" + row.HighResAssetID + ".png")
	assert.True(t, ok)

	free, _ := env.counters(t, "user-1")
	assert.Equal(t, 0, free)
}

func TestGenerateRejectsInvalidPrompt(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "user-1", 1, 0)

	for _, prompt := range []string{"", "   ", "<script>", strings.Repeat("a", 257)} {
		_, err := env.svc.Generate(context.Background(), domain.GenerateRequest{UserID: "user-1", Prompt: prompt})
		assert.ErrorIs(t, err, domain.ErrInvalidPrompt, "prompt %q", prompt)
	}
	assert.Equal(t, int64(0), env.generator.calls.Load())

	_, err := env.svc.Generate(context.Background(), domain.GenerateRequest{Prompt: "ok"})
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)
}

func TestGenerateUpstreamFailureKeepsBalance(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "user-1", 1, 0)
	env.generator.err = errors.New("gpu on fire")

	_, err := env.svc.Generate(context.Background(), domain.GenerateRequest{UserID: "user-1", Prompt: "fox"})
	require.ErrorIs(t, err, domain.ErrUpstreamGenerationFailure)

	free, _ := env.counters(t, "user-1")
	assert.Equal(t, 1, free)
	assert.Equal(t, 0, env.store.Len())
}

func TestGenerateAssetFailureCleansUp(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "user-1", 1, 0)
	var puts atomic.Int64
	env.store.FailPut = func(key string) error {
		if puts.Add(1) == 2 {
			return errors.New("bucket unavailable")
		}
		return nil
	}

	_, err := env.svc.Generate(context.Background(), domain.GenerateRequest{UserID: "user-1", Prompt: "fox"})
	require.ErrorIs(t, err, domain.ErrAssetPersistenceFailure)

	free, _ := env.counters(t, "user-1")
	assert.Equal(t, 1, free)
	assert.Equal(t, 0, env.store.Len())
	assert.Equal(t, int64(0), testutil.Count(t, env.db, "SELECT COUNT(*) FROM generations"))
}

func TestConcurrentTryConsumeGrantsExactlyAvailable(t *testing.T) {
	const (
		credits   = 7
		consumers = 20
	)
	for name, open := range testutil.ConcurrentBackends() {
		t.Run(name, func(t *testing.T) {
			env := newTestEnvWithDB(t, open(t))
			env.seed(t, "user-1", 3, credits-3)

			var (
				wg      sync.WaitGroup
				start   = make(chan struct{})
				granted atomic.Int64
				denied  atomic.Int64
			)
			for i := 0; i < consumers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-start
					_, err := env.svc.TryConsume(context.Background(), "user-1")
					switch {
					case err == nil:
						granted.Add(1)
					case errors.Is(err, entitlementdomain.ErrOutOfCredits):
						denied.Add(1)
					default:
						t.Errorf("unexpected error: %v", err)
					}
				}()
			}
			close(start)
			wg.Wait()

			assert.Equal(t, int64(credits), granted.Load())
			assert.Equal(t, int64(consumers-credits), denied.Load())
			free, purchased := env.counters(t, "user-1")
			assert.Equal(t, 0, free)
			assert.Equal(t, 0, purchased)
		})
	}
}

func TestConcurrentGenerateWithSingleCredit(t *testing.T) {
	for name, open := range testutil.ConcurrentBackends() {
		t.Run(name, func(t *testing.T) {
			env := newTestEnvWithDB(t, open(t))
			env.seed(t, "user-1", 1, 0)

			var (
				wg      sync.WaitGroup
				start   = make(chan struct{})
				granted atomic.Int64
				denied  atomic.Int64
			)
			for i := 0; i < 2; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-start
					_, err := env.svc.Generate(context.Background(), domain.GenerateRequest{UserID: "user-1", Prompt: "twin request"})
					switch {
					case err == nil:
						granted.Add(1)
					case errors.Is(err, entitlementdomain.ErrOutOfCredits):
						denied.Add(1)
					default:
						t.Errorf("unexpected error: %v", err)
					}
				}()
			}
			close(start)
			wg.Wait()

			assert.Equal(t, int64(1), granted.Load())
			assert.Equal(t, int64(1), denied.Load())
			assert.Equal(t, int64(1), testutil.Count(t, env.db, "SELECT COUNT(*) FROM generations WHERE owner_user_id = ?", "user-1"))
			// the loser's uploads are removed
			assert.Equal(t, 2, env.store.Len())
			free, purchased := env.counters(t, "user-1")
			assert.Equal(t, 0, free)
			assert.Equal(t, 0, purchased)
		})
	}
}
