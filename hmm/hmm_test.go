package hmm

import (
	"math"
	"math/rand"
	"testing"

	"github.com/gonum/matrix/mat64"
	"github.com/op/go-logging"
)

const (
	// smallDiff is a threshold for testing
	// if the difference is larger an error is emitted
	smallDiff = 1e-8
	// fitDiff is a looser threshold for quantities after training
	fitDiff = 1e-6
)

func init() {
	// disable logging for tests
	logging.SetLevel(logging.ERROR, "hmm")
}

func testConfig() Config {
	return Config{Regime: RegimeDiag, Covar: CovarDiag, Tau: 1e-5}
}

func TestDiagTransmat(tst *testing.T) {
	for _, K := range []int{2, 3, 7} {
		A := DiagTransmat(0.9, K)
		off := math.NaN()
		for i := 0; i < K; i++ {
			sum := 0.0
			for j := 0; j < K; j++ {
				v := A.At(i, j)
				sum += v
				if i == j {
					if math.Abs(v-0.9) > smallDiff {
						tst.Error("Expected diagonal 0.9, got", v)
					}
				} else if math.IsNaN(off) {
					off = v
				} else if math.Abs(v-off) > smallDiff {
					tst.Error("Off-diagonal entries differ:", v, off)
				}
			}
			if math.Abs(sum-1) > smallDiff {
				tst.Error("Row sum is not 1:", sum)
			}
		}
	}
}

func TestNewValidation(tst *testing.T) {
	if _, err := New(0, testConfig()); err == nil {
		tst.Error("Expected error for K=0")
	}
	cfg := testConfig()
	cfg.Tau = 0
	if _, err := New(3, cfg); err == nil {
		tst.Error("Expected error for tau=0")
	}
	cfg = testConfig()
	cfg.Tau = 1.5
	if _, err := New(3, cfg); err == nil {
		tst.Error("Expected error for tau>1")
	}
	if _, err := ParseRegime("banana"); err == nil {
		tst.Error("Expected error for unknown regime")
	}
	if _, err := ParseDecoder("banana"); err == nil {
		tst.Error("Expected error for unknown decoder")
	}
	if _, err := ParseCovarType("banana"); err == nil {
		tst.Error("Expected error for unknown covariance type")
	}
}

// manual creates a small 2-state 1-dimensional model with fixed
// parameters, bypassing data initialization.
func manual() *Model {
	m, _ := New(2, testConfig())
	m.D = 1
	m.Start = []float64{0.6, 0.4}
	m.Trans = mat64.NewDense(2, 2, []float64{0.7, 0.3, 0.4, 0.6})
	m.Means = mat64.NewDense(2, 1, []float64{0, 3})
	m.Vars = mat64.NewDense(2, 1, []float64{1, 1})
	m.initialized = true
	return m
}

// bruteLogLik enumerates all state paths of a 1-dimensional sequence.
func bruteLogLik(m *Model, obs []float64) float64 {
	T := len(obs)
	npaths := 1
	for i := 0; i < T; i++ {
		npaths *= m.K
	}
	total := 0.0
	for p := 0; p < npaths; p++ {
		path := make([]int, T)
		v := p
		for t := 0; t < T; t++ {
			path[t] = v % m.K
			v /= m.K
		}
		prob := m.Start[path[0]] * math.Exp(m.logDensity([]float64{obs[0]}, path[0]))
		for t := 1; t < T; t++ {
			prob *= m.Trans.At(path[t-1], path[t]) * math.Exp(m.logDensity([]float64{obs[t]}, path[t]))
		}
		total += prob
	}
	return math.Log(total)
}

func TestForwardAgainstEnumeration(tst *testing.T) {
	m := manual()
	obs := []float64{0.1, 2.5, 3.2, -0.4}
	X := mat64.NewDense(len(obs), 1, obs)

	L, err := m.LogLik(X, []int{len(obs)})
	if err != nil {
		tst.Error("Error: ", err)
	}
	refL := bruteLogLik(m, obs)

	tst.Log("L=", L, ", Ref=", refL, ", diff=", math.Abs(L-refL))
	if math.IsNaN(L) || math.Abs(L-refL) > smallDiff {
		tst.Error("Expected ", refL, ", got", L)
	}
}

func TestSequenceIndependence(tst *testing.T) {
	m := manual()
	a := []float64{0.1, 2.5, 3.2}
	b := []float64{-0.4, 0.2}

	Xa := mat64.NewDense(len(a), 1, a)
	Xb := mat64.NewDense(len(b), 1, b)
	La, _ := m.LogLik(Xa, []int{len(a)})
	Lb, _ := m.LogLik(Xb, []int{len(b)})

	both := append(append([]float64{}, a...), b...)
	X := mat64.NewDense(len(both), 1, both)
	L, err := m.LogLik(X, []int{len(a), len(b)})
	if err != nil {
		tst.Error("Error: ", err)
	}

	tst.Log("L=", L, ", Ref=", La+Lb, ", diff=", math.Abs(L-La-Lb))
	if math.Abs(L-(La+Lb)) > smallDiff {
		tst.Error("Expected ", La+Lb, ", got", L)
	}
}

// blobs generates nbins observations alternating between two
// well-separated feature blobs in blocks of blocksize.
func blobs(rng *rand.Rand, nbins, dim, blocksize int) (*mat64.Dense, []int) {
	X := mat64.NewDense(nbins, dim, nil)
	truth := make([]int, nbins)
	for i := 0; i < nbins; i++ {
		blob := (i / blocksize) % 2
		truth[i] = blob
		for j := 0; j < dim; j++ {
			mean := 0.5
			if blob == 1 {
				mean = 3.5
			}
			X.Set(i, j, mean+0.05*rng.NormFloat64())
		}
	}
	return X, truth
}

func transInvariants(tst *testing.T, m *Model, diagFamily bool) {
	off := math.NaN()
	for i := 0; i < m.K; i++ {
		sum := 0.0
		for j := 0; j < m.K; j++ {
			v := m.Trans.At(i, j)
			if v < 0 {
				tst.Error("Negative transition probability:", v)
			}
			sum += v
			if diagFamily && i != j {
				if math.IsNaN(off) {
					off = v
				} else if math.Abs(v-off) > fitDiff {
					tst.Error("Diag family violated:", v, off)
				}
			}
		}
		if math.Abs(sum-1) > fitDiff {
			tst.Error("Row sum is not 1 after fitting:", sum)
		}
	}
}

func TestFitRegimes(tst *testing.T) {
	rng := rand.New(rand.NewSource(42))
	X, _ := blobs(rng, 120, 4, 30)

	for _, regime := range []Regime{RegimeFixed, RegimeDiag, RegimeFree} {
		cfg := testConfig()
		cfg.Regime = regime
		m, err := New(2, cfg)
		if err != nil {
			tst.Error("Error: ", err)
		}
		before := mat64.DenseCopyOf(m.Trans)

		if err := m.Fit(X, []int{60, 60}); err != nil {
			tst.Error("Error: ", err)
		}

		transInvariants(tst, m, regime == RegimeDiag || regime == RegimeFixed)

		if regime == RegimeFixed {
			for i := 0; i < 2; i++ {
				for j := 0; j < 2; j++ {
					if m.Trans.At(i, j) != before.At(i, j) {
						tst.Error("Fixed regime transition matrix changed")
					}
				}
			}
		}
		if len(m.History) == 0 {
			tst.Error("No EM iterations recorded")
		}
		for _, l := range m.History {
			if math.IsNaN(l) || math.IsInf(l, 0) {
				tst.Error("Non-finite log-likelihood during EM:", l)
			}
		}
	}
}

func TestFitDiagLearnsSelfTransition(tst *testing.T) {
	rng := rand.New(rand.NewSource(21))
	// blocks of 2 bins: about half of the transitions are
	// self-transitions, far from the sticky initialization
	X, _ := blobs(rng, 200, 4, 2)

	m, err := New(2, testConfig())
	if err != nil {
		tst.Error("Error: ", err)
	}
	init := m.Trans.At(0, 0)

	if err := m.Fit(X, []int{200}); err != nil {
		tst.Error("Error: ", err)
	}

	d := m.Trans.At(0, 0)
	tst.Log("d=", d, ", init=", init)
	if math.Abs(d-init) < fitDiff {
		tst.Error("Self-transition probability never moved from", init)
	}
	if math.Abs(d-0.5) > 0.15 {
		tst.Error("Expected self-transition near the empirical rate 0.5, got", d)
	}
	transInvariants(tst, m, true)
}

func TestDecodeSeparatesBlobs(tst *testing.T) {
	rng := rand.New(rand.NewSource(7))
	X, truth := blobs(rng, 120, 4, 30)

	for _, alg := range []Decoder{DecodeViterbi, DecodeMAP} {
		labels, _, _, err := FitAndDecode(X, []int{120}, 2, testConfig(), alg)
		if err != nil {
			tst.Error("Error: ", err)
		}
		if len(labels) != 120 {
			tst.Error("Expected 120 labels, got", len(labels))
		}
		// labels must induce the same partition as the truth,
		// up to renaming
		mapping := map[int]int{}
		for i, l := range labels {
			if prev, ok := mapping[truth[i]]; ok {
				if prev != l {
					tst.Error("Blob split across states at bin", i)
				}
			} else {
				mapping[truth[i]] = l
			}
		}
		if len(mapping) == 2 && mapping[0] == mapping[1] {
			tst.Error("Both blobs decoded to one state")
		}
	}
}

func TestFullCovariance(tst *testing.T) {
	rng := rand.New(rand.NewSource(3))
	X, _ := blobs(rng, 80, 2, 20)

	cfg := testConfig()
	cfg.Covar = CovarFull
	labels, _, m, err := FitAndDecode(X, []int{80}, 2, cfg, DecodeViterbi)
	if err != nil {
		tst.Error("Error: ", err)
	}
	if len(labels) != 80 {
		tst.Error("Expected 80 labels, got", len(labels))
	}
	for k := 0; k < 2; k++ {
		if mat64.Det(m.Covars[k]) <= 0 {
			tst.Error("Covariance not positive definite for state", k)
		}
	}
}

func TestDecodeErrors(tst *testing.T) {
	m, _ := New(2, testConfig())
	X := mat64.NewDense(4, 1, []float64{0, 1, 2, 3})
	if _, _, err := m.Decode(X, []int{4}, DecodeViterbi); err == nil {
		tst.Error("Expected error decoding an untrained model")
	}
	if err := m.Fit(X, []int{5}); err == nil {
		tst.Error("Expected error for inconsistent lengths")
	}
	if _, _, _, err := FitAndDecode(X, []int{4}, 2, testConfig(), Decoder(99)); err == nil {
		tst.Error("Expected error for unknown decoder")
	}
}
