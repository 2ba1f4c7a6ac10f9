package service

import (
	"context"
	"testing"

	"github.com/smallbiznis/logoforge/internal/auth"
	"github.com/smallbiznis/logoforge/internal/generation/domain"
	"github.com/smallbiznis/logoforge/internal/generation/repository"
	"github.com/smallbiznis/logoforge/internal/testutil"
	"github.com/smallbiznis/logoforge/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (domain.Service, *gorm.DB) {
	t.Helper()
	db := testutil.OpenDB(t)
	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: testutil.Node(t),
		Repo:  repository.Provide(),
	})
	return svc, db
}

func createGeneration(t *testing.T, svc domain.Service, owner string) *domain.Generation {
	t.Helper()
	item, err := svc.Create(context.Background(), nil, domain.CreateRequest{
		OwnerUserID:      owner,
		IsFreeGeneration: true,
		PreviewAssetID:   "01HPREVIEW",
		HighResAssetID:   "01HHIRES",
		Prompt:           "Bakery, warm colors!",
	})
	require.NoError(t, err)
	return item
}

func TestCreateAndGet(t *testing.T) {
	svc, _ := newTestService(t)
	created := createGeneration(t, svc, "user-1")

	got, err := svc.Get(context.Background(), "user-1", created.ID.String())
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "Bakery, warm colors!", got.Prompt())
	assert.False(t, got.IsHighResPurchased)
	assert.Equal(t, "generations/user-1/01HPREVIEW.png", got.DownloadAssetKey())
}

func TestGetHidesOtherOwners(t *testing.T) {
	svc, _ := newTestService(t)
	created := createGeneration(t, svc, "user-1")

	_, err := svc.Get(context.Background(), "user-2", created.ID.String())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.Get(context.Background(), "user-1", "nope")
	assert.ErrorIs(t, err, domain.ErrInvalidID)

	_, err = svc.Get(context.Background(), "", created.ID.String())
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)
}

func TestMarkHighResPurchasedIsMonotonic(t *testing.T) {
	svc, db := newTestService(t)
	created := createGeneration(t, svc, "user-1")

	for i := 0; i < 2; i++ {
		item, err := svc.MarkHighResPurchased(context.Background(), nil, created.ID)
		require.NoError(t, err)
		assert.True(t, item.IsHighResPurchased)
	}

	got, err := svc.Get(context.Background(), "user-1", created.ID.String())
	require.NoError(t, err)
	assert.True(t, got.IsHighResPurchased)
	assert.Equal(t, "generations/user-1/01HHIRES.png", got.DownloadAssetKey())
	assert.Equal(t, int64(1), testutil.Count(t, db, "SELECT COUNT(*) FROM generations WHERE is_high_res_purchased = ?", true))

	_, err = svc.MarkHighResPurchased(context.Background(), nil, created.ID+1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListNewestFirstWithCursor(t *testing.T) {
	svc, _ := newTestService(t)
	var ids []string
	for i := 0; i < 3; i++ {
		ids = append(ids, createGeneration(t, svc, "user-1").ID.String())
	}
	createGeneration(t, svc, "user-2")

	first, err := svc.List(context.Background(), "user-1", pagination.Pagination{PageSize: 2})
	require.NoError(t, err)
	require.Len(t, first.Generations, 2)
	assert.True(t, first.HasMore)
	assert.Equal(t, ids[2], first.Generations[0].ID.String())
	assert.Equal(t, ids[1], first.Generations[1].ID.String())

	second, err := svc.List(context.Background(), "user-1", pagination.Pagination{PageSize: 2, PageToken: first.NextPageToken})
	require.NoError(t, err)
	require.Len(t, second.Generations, 1)
	assert.False(t, second.HasMore)
	assert.Equal(t, ids[0], second.Generations[0].ID.String())
}

func TestCreateRejectsReusedID(t *testing.T) {
	svc, _ := newTestService(t)
	created := createGeneration(t, svc, "user-1")

	_, err := svc.Create(context.Background(), nil, domain.CreateRequest{
		ID:             created.ID,
		OwnerUserID:    "user-1",
		PreviewAssetID: "01HOTHER",
		HighResAssetID: "01HOTHERHI",
		Prompt:         "owl",
	})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
}
