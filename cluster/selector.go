// Package cluster selects the number of copy-number clusters by
// sweeping candidate hidden-state counts, scoring each decoded
// labeling with the silhouette coefficient, and postprocesses the
// winning labels into prevalence-ordered ids and segment summaries.
package cluster

import (
	"fmt"
	"sort"
	"sync"

	"github.com/op/go-logging"

	"github.com/cbglab/binclust/checkpoint"
	"github.com/cbglab/binclust/dist"
	"github.com/cbglab/binclust/hmm"
	"github.com/cbglab/binclust/track"
)

var log = logging.MustGetLogger("cluster")

// Config holds the sweep parameters.
type Config struct {
	MinK, MaxK int
	Regime     hmm.Regime
	Decoder    hmm.Decoder
	Covar      hmm.CovarType
	// Tau is the initial off-diagonal leak probability.
	Tau float64
	// Store, when non-nil, lets the sweep resume from checkpointed
	// per-K results.
	Store *checkpoint.SweepStore
}

// Result is the outcome of one candidate cluster count.
type Result struct {
	K       int
	Score   float64
	LogProb float64
	Labels  []int
	// Model is nil when the result was loaded from a checkpoint.
	Model *hmm.Model
}

// Selection is the winning candidate plus all per-K diagnostics.
type Selection struct {
	BestK     int
	BestScore float64
	Labels    []int
	Model     *hmm.Model
	Results   map[int]*Result
}

// Trivial returns the K=1 clustering: one label for every bin, with no
// model fitting and no scoring.
func Trivial(nbins int) []int {
	labels := make([]int, nbins)
	for i := range labels {
		labels[i] = 1
	}
	return labels
}

// Select sweeps K over [MinK, MaxK], training and decoding a
// constrained HMM for each candidate and scoring the labels by
// silhouette against a distance matrix computed once over the
// standardized observations. The maximum score wins; ties go to the
// smallest K regardless of completion order. K=1 candidates inside a
// sweep are skipped: a one-cluster silhouette is undefined. The result
// depends only on the inputs and the random generator seed, not on
// goroutine scheduling.
func Select(tracks []*track.Track, cfg Config) (*Selection, error) {
	if cfg.MinK < 1 || cfg.MaxK < cfg.MinK {
		return nil, fmt.Errorf("invalid cluster count range [%d, %d]", cfg.MinK, cfg.MaxK)
	}
	if cfg.Decoder != hmm.DecodeViterbi && cfg.Decoder != hmm.DecodeMAP {
		return nil, fmt.Errorf("unsupported decoding algorithm")
	}

	X, lengths, err := track.Concat(tracks)
	if err != nil {
		return nil, err
	}
	rows, _ := X.Dims()
	log.Infof("Clustering %d bins in %d sequences", rows, len(lengths))

	// The distance matrix is only for scoring, never for fitting,
	// and is shared read-only across every candidate K.
	D := dist.Pairwise(dist.Standardize(X))

	mcfg := hmm.Config{
		Regime: cfg.Regime,
		Covar:  cfg.Covar,
		Tau:    cfg.Tau,
	}

	sel := &Selection{Results: make(map[int]*Result)}
	var wg sync.WaitGroup
	var mut sync.Mutex

	for K := cfg.MinK; K <= cfg.MaxK; K++ {
		if K == 1 {
			log.Warning("model selection does not support comparing K=1 to K>1; K=1 will be ignored")
			continue
		}

		if cfg.Store != nil {
			r, err := cfg.Store.Load(K)
			if err != nil {
				return nil, err
			}
			if r != nil {
				mut.Lock()
				sel.Results[K] = &Result{K: K, Score: r.Score, LogProb: r.LogProb, Labels: r.Labels}
				mut.Unlock()
				continue
			}
		}

		model, err := hmm.New(K, mcfg)
		if err != nil {
			return nil, err
		}
		// seed the emissions here, in ascending-K order: kmeans draws
		// from the shared random generator, and seeding inside the
		// goroutines would make equally-seeded runs diverge
		if err := model.InitEmissions(X); err != nil {
			log.Errorf("K=%d: %v", K, err)
			continue
		}

		wg.Add(1)
		go func(K int, model *hmm.Model) {
			defer wg.Done()
			if err := model.Fit(X, lengths); err != nil {
				log.Errorf("K=%d: %v", K, err)
				return
			}
			labels, logprob, err := model.Decode(X, lengths, cfg.Decoder)
			if err != nil {
				log.Errorf("K=%d: %v", K, err)
				return
			}
			score, err := dist.Silhouette(D, labels)
			if err != nil {
				log.Warningf("K=%d: cannot score decoded labels: %v", K, err)
				return
			}
			log.Infof("K=%d: silhouette=%f logP=%f", K, score, logprob)

			r := &Result{K: K, Score: score, LogProb: logprob, Labels: labels, Model: model}
			mut.Lock()
			sel.Results[K] = r
			mut.Unlock()
			if cfg.Store != nil {
				err := cfg.Store.Save(&checkpoint.Result{K: K, Score: score, LogProb: logprob, Labels: labels})
				if err != nil {
					log.Warningf("K=%d: result will not be resumable: %v", K, err)
				}
			}
		}(K, model)
	}
	wg.Wait()

	// deterministic merge: ascending K, strictly greater score wins
	var ks []int
	for k := range sel.Results {
		ks = append(ks, k)
	}
	sort.Ints(ks)
	for _, k := range ks {
		r := sel.Results[k]
		if r.Score > sel.BestScore {
			sel.BestScore = r.Score
			sel.BestK = r.K
			sel.Labels = r.Labels
			sel.Model = r.Model
		}
	}
	if sel.BestK == 0 {
		return nil, fmt.Errorf("no candidate cluster count scored above zero")
	}
	return sel, nil
}
