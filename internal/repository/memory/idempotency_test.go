package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Epky/GA-Enterprice-sub001/internal/repository"
)

func TestIdempotencyStore_SetIfAbsent(t *testing.T) {
	ctx := context.Background()
	store := NewIdempotencyStore()

	_, err := store.Get(ctx, "key-1")
	require.ErrorIs(t, err, repository.ErrNotFound)

	stored, existing, err := store.SetIfAbsent(ctx, "key-1", "res-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, stored)
	assert.Equal(t, "res-1", existing)

	// второй запрос с тем же ключом получает первое значение
	stored, existing, err = store.SetIfAbsent(ctx, "key-1", "res-2", time.Minute)
	require.NoError(t, err)
	assert.False(t, stored)
	assert.Equal(t, "res-1", existing)

	value, err := store.Get(ctx, "key-1")
	require.NoError(t, err)
	assert.Equal(t, "res-1", value)
}

func TestIdempotencyStore_TTLExpiration(t *testing.T) {
	ctx := context.Background()
	store := NewIdempotencyStore()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	_, _, err := store.SetIfAbsent(ctx, "key-1", "res-1", 10*time.Second)
	require.NoError(t, err)

	now = now.Add(9 * time.Second)
	_, err = store.Get(ctx, "key-1")
	require.NoError(t, err)

	now = now.Add(time.Second)
	_, err = store.Get(ctx, "key-1")
	require.ErrorIs(t, err, repository.ErrNotFound)

	stored, _, err := store.SetIfAbsent(ctx, "key-1", "res-2", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, stored)
}
