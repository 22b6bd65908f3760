package cluster

import (
	"math/rand"
	"testing"

	"github.com/gonum/matrix/mat64"
	"github.com/op/go-logging"
	"github.com/stretchr/testify/require"

	"github.com/cbglab/binclust/hmm"
	"github.com/cbglab/binclust/track"
)

func init() {
	logging.SetLevel(logging.ERROR, "cluster")
	logging.SetLevel(logging.ERROR, "hmm")
	logging.SetLevel(logging.ERROR, "track")
}

// blobTracks builds two arm tracks whose bins alternate between two
// well-separated feature blobs, repeated across two samples.
func blobTracks(seed int64) ([]*track.Track, []int) {
	rng := rand.New(rand.NewSource(seed))
	mk := func(nbins, blocksize int) (*mat64.Dense, []int) {
		X := mat64.NewDense(nbins, 4, nil)
		truth := make([]int, nbins)
		for i := 0; i < nbins; i++ {
			blob := (i / blocksize) % 2
			truth[i] = blob
			baf, rd := 0.5, 1.0
			if blob == 1 {
				baf, rd = 0.1, 2.5
			}
			for s := 0; s < 2; s++ {
				X.Set(i, 2*s, baf+0.01*rng.NormFloat64())
				X.Set(i, 2*s+1, rd+0.03*rng.NormFloat64())
			}
		}
		return X, truth
	}

	d1, t1 := mk(60, 20)
	d2, t2 := mk(40, 20)
	tracks := []*track.Track{
		{Label: "chr1_p", Data: d1},
		{Label: "chr1_q", Data: d2},
	}
	return tracks, append(t1, t2...)
}

func selectorConfig() Config {
	return Config{
		MinK:    2,
		MaxK:    5,
		Regime:  hmm.RegimeDiag,
		Decoder: hmm.DecodeMAP,
		Covar:   hmm.CovarDiag,
		Tau:     1e-5,
	}
}

func TestSelectTwoBlobs(t *testing.T) {
	tracks, truth := blobTracks(11)

	sel, err := Select(tracks, selectorConfig())
	require.NoError(t, err)
	require.Equal(t, 2, sel.BestK, "expected the two-blob structure to win")
	require.True(t, sel.BestScore > 0.5, "score %f too low", sel.BestScore)
	require.Len(t, sel.Labels, 100)

	// decoded labels must perfectly separate the two source blobs
	mapping := map[int]int{}
	for i, l := range sel.Labels {
		if prev, ok := mapping[truth[i]]; ok {
			require.Equal(t, prev, l, "blob split at bin %d", i)
		} else {
			mapping[truth[i]] = l
		}
	}
	require.NotEqual(t, mapping[0], mapping[1])

	// diagnostics retained for every scored candidate
	for k, r := range sel.Results {
		require.Equal(t, k, r.K)
		require.Len(t, r.Labels, 100)
	}
}

func TestSelectReproducible(t *testing.T) {
	tracks, _ := blobTracks(19)

	rand.Seed(101)
	a, err := Select(tracks, selectorConfig())
	require.NoError(t, err)

	rand.Seed(101)
	b, err := Select(tracks, selectorConfig())
	require.NoError(t, err)

	require.Equal(t, a.BestK, b.BestK)
	require.Equal(t, a.BestScore, b.BestScore)
	require.Equal(t, a.Labels, b.Labels)
	require.Len(t, b.Results, len(a.Results))
	for k, r := range a.Results {
		require.Equal(t, r.Score, b.Results[k].Score)
		require.Equal(t, r.Labels, b.Results[k].Labels)
	}
}

func TestSelectSkipsKOne(t *testing.T) {
	tracks, _ := blobTracks(13)
	cfg := selectorConfig()
	cfg.MinK = 1
	cfg.MaxK = 3

	sel, err := Select(tracks, cfg)
	require.NoError(t, err)
	require.NotContains(t, sel.Results, 1)
	require.True(t, sel.BestK >= 2)
}

func TestSelectBadRange(t *testing.T) {
	tracks, _ := blobTracks(17)
	cfg := selectorConfig()
	cfg.MinK = 4
	cfg.MaxK = 2
	_, err := Select(tracks, cfg)
	require.Error(t, err)
}

func TestSelectEmptyTracks(t *testing.T) {
	cfg := selectorConfig()
	_, err := Select([]*track.Track{{Label: "chr1_p"}}, cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "no tracks with nonzero dimension")
}
