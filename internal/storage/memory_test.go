package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	store := NewMemoryStore()
	store.BaseURL = "http://assets.local"
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "generations/u/a.png", []byte("png"), "image/png"))
	ok, err := store.Exists(ctx, "generations/u/a.png")
	require.NoError(t, err)
	assert.True(t, ok)

	url, err := store.PresignGet(ctx, "generations/u/a.png", DefaultPresignTTL)
	require.NoError(t, err)
	assert.Equal(t, "http://assets.local/generations/u/a.png", url)

	require.NoError(t, store.Delete(ctx, "generations/u/a.png"))
	ok, _ = store.Exists(ctx, "generations/u/a.png")
	assert.False(t, ok)

	assert.ErrorIs(t, store.Put(ctx, "", []byte("x"), "image/png"), ErrInvalidObject)

	store.FailPut = func(string) error { return errors.New("boom") }
	assert.Error(t, store.Put(ctx, "k", []byte("x"), "image/png"))
}

func TestS3StoreWithoutClient(t *testing.T) {
	store := &S3Store{}
	ctx := context.Background()

	assert.ErrorIs(t, store.Put(ctx, "k", []byte("x"), "image/png"), ErrNotConfigured)
	_, err := store.Exists(ctx, "k")
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = store.PresignGet(ctx, "k", 0)
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.ErrorIs(t, store.EnsureBucket(ctx), ErrNotConfigured)
}
