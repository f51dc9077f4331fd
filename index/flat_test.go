package index_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/watchtower-nvr/core/embedding"
	"github.com/watchtower-nvr/core/index"
)

func vec(seed float32) embedding.Embedding {
	values := make([]float32, embedding.Dim)
	for i := range values {
		values[i] = seed + float32(i)*0.001
	}
	return embedding.MustFrom(values)
}

func TestFlatNearestFindsClosest(t *testing.T) {
	idx := index.NewFlat(0, nil)
	idx.Add("far", vec(10), time.Now())
	idx.Add("close", vec(1.0001), time.Now())

	got := idx.Nearest(vec(1), 1, 0.5)
	require.Len(t, got, 1)
	require.Equal(t, "close", got[0].IdentityID)
}

func TestFlatNearestRespectsMaxDistance(t *testing.T) {
	idx := index.NewFlat(0, nil)
	idx.Add("a", vec(1), time.Now())

	got := idx.Nearest(vec(-1), 1, 0.01)
	require.Empty(t, got)
}

func TestFlatNearestTieBreaksByFirstSeenThenID(t *testing.T) {
	idx := index.NewFlat(0, nil)
	same := vec(1)
	earlier := time.Now().Add(-time.Hour)
	later := time.Now()

	idx.Add("zz", same, earlier)
	idx.Add("aa", same, earlier)
	idx.Add("bb", same, later)

	got := idx.Nearest(same, 3, 2)
	require.Len(t, got, 3)
	require.Equal(t, "aa", got[0].IdentityID)
	require.Equal(t, "zz", got[1].IdentityID)
	require.Equal(t, "bb", got[2].IdentityID)
}

func TestFlatRemove(t *testing.T) {
	idx := index.NewFlat(0, nil)
	idx.Add("a", vec(1), time.Now())
	require.Equal(t, 1, idx.Len())
	idx.Remove("a")
	require.Equal(t, 0, idx.Len())
	require.Empty(t, idx.Nearest(vec(1), 1, 2))
}
