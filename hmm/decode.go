package hmm

import (
	"fmt"
	"math"

	"github.com/gonum/matrix/mat64"
)

// Decode assigns one hidden-state label per observation row, jointly
// across all sequences while respecting their boundaries, and returns
// the total decoding score (log-probability of the Viterbi paths, or
// the summed maximum posteriors for MAP).
func (m *Model) Decode(X *mat64.Dense, lengths []int, alg Decoder) ([]int, float64, error) {
	if !m.initialized {
		return nil, 0, fmt.Errorf("model is not trained")
	}
	rows, cols := X.Dims()
	if err := checkLengths(rows, lengths); err != nil {
		return nil, 0, err
	}
	if cols != m.D {
		return nil, 0, fmt.Errorf("observation dimension %d, model dimension %d", cols, m.D)
	}
	if alg != DecodeViterbi && alg != DecodeMAP {
		return nil, 0, fmt.Errorf("unsupported decoding algorithm")
	}

	labels := make([]int, rows)
	lp := m.logParams()
	score := 0.0
	from := 0
	for _, T := range lengths {
		var s float64
		switch alg {
		case DecodeViterbi:
			s = m.viterbiSequence(X, from, T, lp, labels)
		case DecodeMAP:
			s = m.mapSequence(X, from, T, lp, labels)
		}
		score += s
		from += T
	}
	return labels, score, nil
}

// viterbiSequence fills labels[from:from+T] with the most probable
// state path of one sequence and returns its log-probability.
func (m *Model) viterbiSequence(X *mat64.Dense, from, T int, lp *logParams, labels []int) float64 {
	K := m.K
	framelp := make([]float64, T*K)
	m.frameLogProb(X, from, T, framelp)

	delta := make([]float64, T*K)
	ptr := make([]int, T*K)

	for k := 0; k < K; k++ {
		delta[k] = lp.start[k] + framelp[k]
	}
	for t := 1; t < T; t++ {
		for j := 0; j < K; j++ {
			best := math.Inf(-1)
			arg := 0
			for i := 0; i < K; i++ {
				if v := delta[(t-1)*K+i] + lp.trans[i*K+j]; v > best {
					best = v
					arg = i
				}
			}
			delta[t*K+j] = best + framelp[t*K+j]
			ptr[t*K+j] = arg
		}
	}

	best := math.Inf(-1)
	state := 0
	for k := 0; k < K; k++ {
		if v := delta[(T-1)*K+k]; v > best {
			best = v
			state = k
		}
	}
	for t := T - 1; t >= 0; t-- {
		labels[from+t] = state
		if t > 0 {
			state = ptr[t*K+state]
		}
	}
	return best
}

// mapSequence assigns each bin its maximum-posterior state and returns
// the sum of the winning posterior probabilities.
func (m *Model) mapSequence(X *mat64.Dense, from, T int, lp *logParams, labels []int) float64 {
	K := m.K
	lat := m.runLattices(X, from, T, lp)

	score := 0.0
	for t := 0; t < T; t++ {
		best := -1.0
		arg := 0
		for k := 0; k < K; k++ {
			if g := lat.gamma[t*K+k]; g > best {
				best = g
				arg = k
			}
		}
		labels[from+t] = arg
		score += best
	}
	return score
}

// FitAndDecode is the one-shot entry point: construct, train and
// decode a model in one call.
func FitAndDecode(X *mat64.Dense, lengths []int, K int, cfg Config, alg Decoder) ([]int, float64, *Model, error) {
	if alg != DecodeViterbi && alg != DecodeMAP {
		return nil, 0, nil, fmt.Errorf("unsupported decoding algorithm")
	}
	m, err := New(K, cfg)
	if err != nil {
		return nil, 0, nil, err
	}
	if err := m.Fit(X, lengths); err != nil {
		return nil, 0, nil, err
	}
	labels, score, err := m.Decode(X, lengths, alg)
	if err != nil {
		return nil, 0, nil, err
	}
	return labels, score, m, nil
}
