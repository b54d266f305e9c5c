package trades

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"github.com/spectra/engine/internal/store"
	"github.com/stretchr/testify/require"
)

func tr(id string, ts int64) store.LiveTrade {
	return store.LiveTrade{ID: id, Timestamp: ts}
}

func TestMergeLatestWins(t *testing.T) {
	b := NewBuffer(10)

	fresh := b.Merge([]store.LiveTrade{tr("t1", 100)})
	require.Len(t, fresh, 1)

	fresh = b.Merge([]store.LiveTrade{tr("t1", 200)})
	require.Empty(t, fresh)

	got := b.Snapshot()
	require.Len(t, got, 1)
	require.Equal(t, int64(200), got[0].Timestamp)
}

func TestMergeDuplicateWithinBatch(t *testing.T) {
	b := NewBuffer(10)
	b.Merge([]store.LiveTrade{
		{ID: "a", Timestamp: 1, Price: 0.1},
		{ID: "b", Timestamp: 2},
		{ID: "a", Timestamp: 3, Price: 0.3},
	})

	got := b.Snapshot()
	require.Len(t, got, 2)
	require.Equal(t, "a", got[0].ID)
	require.InDelta(t, 0.3, got[0].Price, 1e-9)
}

func TestMergeSortedAndBounded(t *testing.T) {
	b := NewBuffer(3)
	b.Merge([]store.LiveTrade{tr("a", 10), tr("b", 30)})
	b.Merge([]store.LiveTrade{tr("c", 20), tr("d", 40), tr("e", 5)})

	got := b.Snapshot()
	ids := []string{got[0].ID, got[1].ID, got[2].ID}
	require.Equal(t, []string{"d", "b", "c"}, ids)
	require.Equal(t, 3, b.Len())
}

func TestMergeProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	b := NewBuffer(25)

	for round := 0; round < 200; round++ {
		batch := make([]store.LiveTrade, rng.Intn(8))
		for i := range batch {
			batch[i] = tr(fmt.Sprintf("t%d", rng.Intn(60)), rng.Int63n(1000))
		}
		b.Merge(batch)

		got := b.Snapshot()
		require.LessOrEqual(t, len(got), 25)
		require.True(t, sort.SliceIsSorted(got, func(i, j int) bool {
			return got[i].Timestamp > got[j].Timestamp
		}))

		seen := make(map[string]bool, len(got))
		for _, g := range got {
			require.False(t, seen[g.ID], "duplicate id %s", g.ID)
			seen[g.ID] = true
		}
	}
}

func TestMergeDoesNotModifyInputs(t *testing.T) {
	current := []store.LiveTrade{tr("a", 1), tr("b", 2)}
	incoming := []store.LiveTrade{tr("c", 3)}

	merged, fresh := Merge(current, incoming, 0)
	require.Len(t, merged, 3)
	require.Equal(t, incoming, fresh)
	require.Equal(t, []store.LiveTrade{tr("a", 1), tr("b", 2)}, current)
}
