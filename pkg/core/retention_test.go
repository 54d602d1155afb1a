package core_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	memekeeper "github.com/muika-lab/memekeeper/pkg/core"
	"github.com/muika-lab/memekeeper/pkg/storage"
)

func retentionConfig(maxMemes, minMemes int) *memekeeper.Config {
	cfg := memekeeper.DefaultConfig()
	cfg.MaxMemes = maxMemes
	cfg.MinMemes = minMemes
	cfg.Storage = memekeeper.StorageConfig{Provider: "sqlite", Config: map[string]interface{}{}}
	cfg.Blob = memekeeper.BlobConfig{Dir: "./blobs"}
	return cfg
}

func TestShouldSaveSeededDeterminism(t *testing.T) {
	cfg := retentionConfig(500, 10)
	cfg.SaveProbability = 0.5

	draw := func() []bool {
		ctrl := memekeeper.NewRetentionController(cfg, newFakeStore(), rand.NewSource(42), nil)
		out := make([]bool, 100)
		for i := range out {
			out[i] = ctrl.ShouldSave()
		}
		return out
	}

	assert.Equal(t, draw(), draw(), "same seed must reproduce the same decision sequence")
}

func TestShouldSaveBoundaryProbabilities(t *testing.T) {
	store := newFakeStore()

	cfg := retentionConfig(500, 0)
	cfg.SaveProbability = 0
	ctrl := memekeeper.NewRetentionController(cfg, store, rand.NewSource(1), nil)
	for i := 0; i < 1000; i++ {
		assert.False(t, ctrl.ShouldSave(), "probability 0 must never save")
	}

	cfg = retentionConfig(500, 0)
	cfg.SaveProbability = 1
	ctrl = memekeeper.NewRetentionController(cfg, store, rand.NewSource(1), nil)
	for i := 0; i < 1000; i++ {
		assert.True(t, ctrl.ShouldSave(), "probability 1 must always save")
	}
}

func TestShouldSendBelowMaturityFloor(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()

	// Even with probability 1, a store below MinMemes never sends.
	cfg := retentionConfig(500, 10)
	cfg.MemeProbability = 1
	ctrl := memekeeper.NewRetentionController(cfg, store, rand.NewSource(7), nil)

	for i := 0; i < 9; i++ {
		require.NoError(t, store.Insert(ctx, &storage.Meme{
			ID: int64(i + 1), Hash: fmt.Sprintf("h%d", i), Valid: true, CreatedAt: time.Now(),
		}))
		send, err := ctrl.ShouldSend(ctx)
		require.NoError(t, err)
		assert.False(t, send, "must not send with %d memes", i+1)
	}

	require.NoError(t, store.Insert(ctx, &storage.Meme{
		ID: 10, Hash: "h10", Valid: true, CreatedAt: time.Now(),
	}))
	send, err := ctrl.ShouldSend(ctx)
	require.NoError(t, err)
	assert.True(t, send, "at MinMemes with probability 1 the gate opens")
}

func TestShouldSendCountError(t *testing.T) {
	store := newFakeStore()
	store.countErr = errors.New("db gone")

	cfg := retentionConfig(500, 0)
	ctrl := memekeeper.NewRetentionController(cfg, store, rand.NewSource(7), nil)

	send, err := ctrl.ShouldSend(context.Background())
	assert.False(t, send)
	require.Error(t, err)

	var memeErr *memekeeper.MemeError
	require.ErrorAs(t, err, &memeErr)
	assert.Equal(t, "ShouldSend", memeErr.Op)
	assert.ErrorIs(t, err, memekeeper.ErrStorageOperation)
}

func TestAdmitInsertErrorIsStorageOperation(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.insertErr = errors.New("disk full")

	cfg := retentionConfig(500, 0)
	ctrl := memekeeper.NewRetentionController(cfg, store, rand.NewSource(7), nil)

	err := ctrl.Admit(ctx, &storage.Meme{ID: 1, Valid: true, CreatedAt: time.Now()})
	require.Error(t, err)
	assert.ErrorIs(t, err, memekeeper.ErrStorageOperation)

	var memeErr *memekeeper.MemeError
	require.ErrorAs(t, err, &memeErr)
	assert.Equal(t, "Admit", memeErr.Op)
}

func TestAdmitEnforcesCapacity(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()

	cfg := retentionConfig(3, 0)
	ctrl := memekeeper.NewRetentionController(cfg, store, rand.NewSource(7), nil)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		err := ctrl.Admit(ctx, &storage.Meme{
			ID:        int64(i + 1),
			Hash:      fmt.Sprintf("h%d", i),
			Valid:     true,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)

		count, err := store.Count(ctx)
		require.NoError(t, err)
		assert.LessOrEqual(t, count, 3, "count must never exceed capacity")
	}
}

func TestAdmitEvictsOldestFirst(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()

	cfg := retentionConfig(2, 0)
	ctrl := memekeeper.NewRetentionController(cfg, store, rand.NewSource(7), nil)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, ctrl.Admit(ctx, &storage.Meme{
			ID:        int64(i + 1),
			Hash:      fmt.Sprintf("h%d", i),
			Valid:     true,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	// Meme 1 was the oldest and must be the one evicted.
	_, err := store.Get(ctx, 1)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	for _, id := range []int64{2, 3} {
		_, err := store.Get(ctx, id)
		assert.NoError(t, err, "meme %d must survive", id)
	}
}

func TestAdmitEvictionTieBreaksOnID(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()

	cfg := retentionConfig(2, 0)
	ctrl := memekeeper.NewRetentionController(cfg, store, rand.NewSource(7), nil)

	// Identical timestamps: the smaller ID is the older admission.
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, ctrl.Admit(ctx, &storage.Meme{ID: 5, Hash: "a", Valid: true, CreatedAt: at}))
	require.NoError(t, ctrl.Admit(ctx, &storage.Meme{ID: 3, Hash: "b", Valid: true, CreatedAt: at}))
	require.NoError(t, ctrl.Admit(ctx, &storage.Meme{ID: 9, Hash: "c", Valid: true, CreatedAt: at.Add(time.Second)}))

	_, err := store.Get(ctx, 3)
	assert.ErrorIs(t, err, storage.ErrNotFound, "smallest ID among the oldest must go first")
	_, err = store.Get(ctx, 5)
	assert.NoError(t, err)
}

func TestConcurrentAdmitNeverExceedsCapacity(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()

	cfg := retentionConfig(5, 0)
	ctrl := memekeeper.NewRetentionController(cfg, store, rand.NewSource(7), nil)

	done := make(chan error, 20)
	for i := 0; i < 20; i++ {
		go func(i int) {
			done <- ctrl.Admit(ctx, &storage.Meme{
				ID:        int64(i + 1),
				Hash:      fmt.Sprintf("h%d", i),
				Valid:     true,
				CreatedAt: time.Now(),
			})
		}(i)
	}
	for i := 0; i < 20; i++ {
		require.NoError(t, <-done)
	}

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}
