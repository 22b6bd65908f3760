// Package hmm implements a multivariate Gaussian hidden Markov model
// with a constrained transition-matrix family, Baum-Welch training and
// Viterbi/posterior decoding over disjoint observation sequences.
package hmm

import (
	"fmt"
	"math"

	"github.com/gonum/matrix/mat64"
	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("hmm")

// Regime selects the constraint family for the transition matrix
// during training.
type Regime int

// Transition-matrix regimes.
const (
	// RegimeFixed keeps the initial transition matrix frozen.
	RegimeFixed Regime = iota
	// RegimeDiag learns a single self-transition probability d; all
	// off-diagonal mass is uniform, (1-d)/(K-1).
	RegimeDiag
	// RegimeFree learns the full transition matrix.
	RegimeFree
)

// ParseRegime returns a Regime from its string representation.
func ParseRegime(s string) (Regime, error) {
	switch s {
	case "fixed":
		return RegimeFixed, nil
	case "diag":
		return RegimeDiag, nil
	case "free":
		return RegimeFree, nil
	}
	return RegimeFixed, fmt.Errorf("unknown transition matrix regime: %s", s)
}

// Decoder selects the decoding algorithm.
type Decoder int

// Decoding algorithms.
const (
	DecodeViterbi Decoder = iota
	DecodeMAP
)

// ParseDecoder returns a Decoder from its string representation.
func ParseDecoder(s string) (Decoder, error) {
	switch s {
	case "viterbi":
		return DecodeViterbi, nil
	case "map":
		return DecodeMAP, nil
	}
	return DecodeViterbi, fmt.Errorf("unknown decoding algorithm: %s", s)
}

// CovarType selects the emission covariance structure.
type CovarType int

// Covariance types.
const (
	CovarDiag CovarType = iota
	CovarFull
)

// ParseCovarType returns a CovarType from its string representation.
func ParseCovarType(s string) (CovarType, error) {
	switch s {
	case "diag":
		return CovarDiag, nil
	case "full":
		return CovarFull, nil
	}
	return CovarDiag, fmt.Errorf("unknown covariance type: %s", s)
}

const (
	// diagTol keeps the learned self-transition probability away
	// from the degenerate values 0 and 1.
	diagTol = 1e-10
	// defaults matching the reference EM behavior
	defaultMaxIter  = 10
	defaultTol      = 1e-2
	defaultMinCovar = 1e-3
)

// Config holds training options for a model.
type Config struct {
	Regime Regime
	Covar  CovarType
	// Tau is the initial off-diagonal leak probability; the initial
	// self-transition probability is 1-Tau.
	Tau float64
	// MaxIter caps the number of EM iterations (default 10).
	MaxIter int
	// Tol is the log-likelihood gain convergence threshold (default 1e-2).
	Tol float64
	// MinCovar is the variance floor (default 1e-3).
	MinCovar float64
}

func (c *Config) fillDefaults() {
	if c.MaxIter == 0 {
		c.MaxIter = defaultMaxIter
	}
	if c.Tol == 0 {
		c.Tol = defaultTol
	}
	if c.MinCovar == 0 {
		c.MinCovar = defaultMinCovar
	}
}

// Model is a Gaussian HMM over K hidden states in a D-dimensional
// feature space.
type Model struct {
	K int
	D int

	cfg Config

	// Start is the start distribution, uniform at construction.
	Start []float64
	// Trans is the KxK transition matrix, rows summing to 1.
	Trans *mat64.Dense
	// Means is KxD, one mean vector per state.
	Means *mat64.Dense
	// Vars is KxD, per-state diagonal variances (CovarDiag).
	Vars *mat64.Dense
	// Covars holds per-state DxD covariance matrices (CovarFull).
	Covars []*mat64.Dense

	// cached per-state inverse covariances and log-determinants
	covInv    []*mat64.Dense
	covLogDet []float64

	initialized bool

	// History records the log-likelihood of every EM iteration.
	History []float64
}

// New creates a model with K states. The start distribution is uniform
// and the transition matrix is initialized from the constrained
// diagonal family with self-transition probability 1-Tau, for every
// regime.
func New(K int, cfg Config) (*Model, error) {
	if K < 1 {
		return nil, fmt.Errorf("number of hidden states must be positive, got %d", K)
	}
	if cfg.Tau <= 0 || cfg.Tau >= 1 {
		return nil, fmt.Errorf("tau must be in (0, 1), got %g", cfg.Tau)
	}
	if cfg.Covar != CovarDiag && cfg.Covar != CovarFull {
		return nil, fmt.Errorf("unsupported covariance type")
	}
	if cfg.Regime != RegimeFixed && cfg.Regime != RegimeDiag && cfg.Regime != RegimeFree {
		return nil, fmt.Errorf("unsupported transition matrix regime")
	}
	cfg.fillDefaults()

	m := &Model{K: K, cfg: cfg}
	m.Start = make([]float64, K)
	for i := range m.Start {
		m.Start[i] = 1 / float64(K)
	}
	m.Trans = DiagTransmat(1-cfg.Tau, K)
	return m, nil
}

// DiagTransmat builds the constrained-diagonal transition matrix
// d*I + ((1-d)/(K-1))*(J-I) for self-transition probability d.
func DiagTransmat(d float64, K int) *mat64.Dense {
	t := mat64.NewDense(K, K, nil)
	if K == 1 {
		t.Set(0, 0, 1)
		return t
	}
	offdiag := (1 - d) / float64(K-1)
	for i := 0; i < K; i++ {
		for j := 0; j < K; j++ {
			if i == j {
				t.Set(i, j, d)
			} else {
				t.Set(i, j, offdiag)
			}
		}
	}
	return t
}

// clipDiag keeps the diag scalar inside the open unit interval.
func clipDiag(d float64) float64 {
	return math.Min(math.Max(d, diagTol), 1-diagTol)
}

func checkLengths(rows int, lengths []int) error {
	if len(lengths) == 0 {
		return fmt.Errorf("no sequence lengths given")
	}
	total := 0
	for _, l := range lengths {
		if l <= 0 {
			return fmt.Errorf("sequence length must be positive, got %d", l)
		}
		total += l
	}
	if total != rows {
		return fmt.Errorf("sequence lengths sum to %d, matrix has %d rows", total, rows)
	}
	return nil
}
