package archive

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/hashdeck/hashdeck/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_RecordAndList(t *testing.T) {
	store := testStore(t)

	now := time.Now()
	require.NoError(t, store.Record(Summary{
		ID:          "s-old",
		Name:        "first run",
		StartedAt:   now.Add(-time.Hour),
		Duration:    3600,
		Recovered:   2,
		Total:       10,
		AvgHashrate: 500e6,
		AvgPower:    180.5,
		Status:      models.SessionStatusCompleted,
	}))
	require.NoError(t, store.Record(Summary{
		ID:        "s-new",
		Name:      "second run",
		StartedAt: now,
		Status:    models.SessionStatusStopped,
	}))

	sums, err := store.List(10)
	require.NoError(t, err)
	require.Len(t, sums, 2)

	// Newest first
	assert.Equal(t, "s-new", sums[0].ID)
	assert.Equal(t, models.SessionStatusStopped, sums[0].Status)

	assert.Equal(t, "s-old", sums[1].ID)
	assert.Equal(t, "first run", sums[1].Name)
	assert.Equal(t, 2, sums[1].Recovered)
	assert.Equal(t, 10, sums[1].Total)
	assert.Equal(t, 500e6, sums[1].AvgHashrate)
	assert.Equal(t, 180.5, sums[1].AvgPower)
}

func TestStore_ListHonorsLimit(t *testing.T) {
	store := testStore(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Record(Summary{
			ID:        string(rune('a' + i)),
			Name:      "run",
			StartedAt: time.Now().Add(time.Duration(i) * time.Minute),
			Status:    models.SessionStatusCompleted,
		}))
	}

	sums, err := store.List(3)
	require.NoError(t, err)
	assert.Len(t, sums, 3)
}

func TestStore_Prune(t *testing.T) {
	store := testStore(t)

	require.NoError(t, store.Record(Summary{
		ID:        "ancient",
		Name:      "run",
		StartedAt: time.Now().Add(-48 * time.Hour),
		Status:    models.SessionStatusCompleted,
	}))
	require.NoError(t, store.Record(Summary{
		ID:        "recent",
		Name:      "run",
		StartedAt: time.Now(),
		Status:    models.SessionStatusCompleted,
	}))

	removed, err := store.Prune(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	sums, err := store.List(10)
	require.NoError(t, err)
	require.Len(t, sums, 1)
	assert.Equal(t, "recent", sums[0].ID)
}

func TestStore_DuplicateIDIsRejected(t *testing.T) {
	store := testStore(t)

	sum := Summary{ID: "dup", Name: "run", StartedAt: time.Now(), Status: models.SessionStatusCompleted}
	require.NoError(t, store.Record(sum))
	assert.Error(t, store.Record(sum))
}
