package checkpoint

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RexRenatus/korean-flashcard-pipeline/internal/model"
	testdb "github.com/RexRenatus/korean-flashcard-pipeline/test/database"
)

func TestStore_SaveAndLoadRoundTrips(t *testing.T) {
	client := testdb.NewTestClient(t)
	store := New(client.DB())
	ctx := context.Background()

	cp := model.Checkpoint{
		CheckpointID:   "ckpt-1",
		BatchID:        "batch-1",
		Timestamp:      time.Now().UTC().Truncate(time.Second),
		ProcessedItems: []int{1, 2},
		PendingItems:   []int{3, 4},
		CurrentStage:   model.StageTwo,
	}
	require.NoError(t, store.Save(ctx, cp))

	loaded, ok, err := store.Load(ctx, "batch-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, cp.CheckpointID, loaded.CheckpointID)
	assert.Equal(t, []int{1, 2}, loaded.ProcessedItems)
	assert.Equal(t, model.StageTwo, loaded.CurrentStage)
}

func TestStore_LoadMissingBatchReturnsNotFound(t *testing.T) {
	client := testdb.NewTestClient(t)
	store := New(client.DB())

	_, ok, err := store.Load(context.Background(), "no-such-batch")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_SaveUpdatesLatestPointer(t *testing.T) {
	client := testdb.NewTestClient(t)
	store := New(client.DB())
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, model.Checkpoint{CheckpointID: "ckpt-1", BatchID: "batch-1"}))
	require.NoError(t, store.Save(ctx, model.Checkpoint{CheckpointID: "ckpt-2", BatchID: "batch-2"}))

	pointer, ok, err := store.Latest(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "ckpt-2", pointer.CheckpointID)
	assert.Equal(t, "batch-2", pointer.BatchID)
}

func TestStore_ResumeWithNoExplicitBatchUsesLatest(t *testing.T) {
	client := testdb.NewTestClient(t)
	store := New(client.DB())
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, model.Checkpoint{
		CheckpointID: "ckpt-1", BatchID: "batch-1", PendingItems: []int{5},
	}))

	resumed, ok, err := store.Resume(ctx, "")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "batch-1", resumed.BatchID)
	assert.Equal(t, []int{5}, resumed.PendingItems)
}

func TestStore_ResumeWithNoCheckpointsReturnsNotFound(t *testing.T) {
	client := testdb.NewTestClient(t)
	store := New(client.DB())

	_, ok, err := store.Resume(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, ok)
}
