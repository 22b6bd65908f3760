package hmm

import (
	"fmt"
	"math"
	"sync"

	"github.com/gonum/floats"
	"github.com/gonum/matrix/mat64"
)

// logParams caches the log-domain model parameters for one EM
// iteration; they are read-only during the E-step.
type logParams struct {
	start []float64
	trans []float64 // K*K, row major
}

func (m *Model) logParams() *logParams {
	lp := &logParams{
		start: make([]float64, m.K),
		trans: make([]float64, m.K*m.K),
	}
	for i := 0; i < m.K; i++ {
		lp.start[i] = math.Log(m.Start[i])
		for j := 0; j < m.K; j++ {
			lp.trans[i*m.K+j] = math.Log(m.Trans.At(i, j))
		}
	}
	return lp
}

// lattice holds the per-sequence E-step quantities.
type lattice struct {
	from, T int
	framelp []float64 // T*K per-state log-densities
	fwd     []float64 // T*K forward log-probabilities
	bwd     []float64 // T*K backward log-probabilities
	gamma   []float64 // T*K posterior state occupations
	loglik  float64
}

// suffStats accumulates the sufficient statistics of one EM iteration.
type suffStats struct {
	start   []float64
	post    []float64
	obs     *mat64.Dense
	obs2    *mat64.Dense   // diagonal covariance only
	obsObsT []*mat64.Dense // full covariance only
	xiSum   *mat64.Dense   // free regime only
	denoms  []float64      // diag regime only
}

func (m *Model) newSuffStats() *suffStats {
	st := &suffStats{
		start: make([]float64, m.K),
		post:  make([]float64, m.K),
		obs:   mat64.NewDense(m.K, m.D, nil),
	}
	switch m.cfg.Covar {
	case CovarDiag:
		st.obs2 = mat64.NewDense(m.K, m.D, nil)
	case CovarFull:
		st.obsObsT = make([]*mat64.Dense, m.K)
		for k := range st.obsObsT {
			st.obsObsT[k] = mat64.NewDense(m.D, m.D, nil)
		}
	}
	switch m.cfg.Regime {
	case RegimeFree:
		st.xiSum = mat64.NewDense(m.K, m.K, nil)
	case RegimeDiag:
		st.xiSum = mat64.NewDense(m.K, m.K, nil)
		st.denoms = make([]float64, m.K)
	}
	return st
}

func (st *suffStats) merge(o *suffStats) {
	floats.Add(st.start, o.start)
	floats.Add(st.post, o.post)
	st.obs.Add(st.obs, o.obs)
	if st.obs2 != nil {
		st.obs2.Add(st.obs2, o.obs2)
	}
	if st.obsObsT != nil {
		for k := range st.obsObsT {
			st.obsObsT[k].Add(st.obsObsT[k], o.obsObsT[k])
		}
	}
	if st.xiSum != nil {
		st.xiSum.Add(st.xiSum, o.xiSum)
	}
	if st.denoms != nil {
		floats.Add(st.denoms, o.denoms)
	}
}

// transitionStrategy is the regime-specific part of training. The
// three regimes share the E-step lattices and the emission M-step and
// differ only in what they accumulate and how they rebuild the
// transition matrix.
type transitionStrategy interface {
	accumulate(m *Model, st *suffStats, lat *lattice, lp *logParams)
	update(m *Model, st *suffStats)
}

func (m *Model) strategy() transitionStrategy {
	switch m.cfg.Regime {
	case RegimeFree:
		return freeTrans{}
	case RegimeDiag:
		return diagTrans{}
	default:
		return fixedTrans{}
	}
}

// fixedTrans never touches the transition matrix.
type fixedTrans struct{}

func (fixedTrans) accumulate(*Model, *suffStats, *lattice, *logParams) {}
func (fixedTrans) update(*Model, *suffStats)                          {}

// accumXi adds one sequence's posterior transition counts (xi).
func accumXi(K int, st *suffStats, lat *lattice, lp *logParams) {
	for t := 0; t < lat.T-1; t++ {
		for i := 0; i < K; i++ {
			lf := lat.fwd[t*K+i]
			for j := 0; j < K; j++ {
				v := lf + lp.trans[i*K+j] + lat.framelp[(t+1)*K+j] + lat.bwd[(t+1)*K+j] - lat.loglik
				st.xiSum.Set(i, j, st.xiSum.At(i, j)+math.Exp(v))
			}
		}
	}
}

// freeTrans accumulates the posterior transition counts and
// row-normalizes them into the new matrix.
type freeTrans struct{}

func (freeTrans) accumulate(m *Model, st *suffStats, lat *lattice, lp *logParams) {
	accumXi(m.K, st, lat, lp)
}

func (freeTrans) update(m *Model, st *suffStats) {
	for i := 0; i < m.K; i++ {
		row := 0.0
		for j := 0; j < m.K; j++ {
			row += st.xiSum.At(i, j)
		}
		if row <= 0 {
			continue
		}
		for j := 0; j < m.K; j++ {
			m.Trans.Set(i, j, st.xiSum.At(i, j)/row)
		}
	}
}

// diagTrans learns a single self-transition probability. It
// accumulates the posterior transition counts plus, per state, the
// total posterior mass of the combined forward+backward lattices.
type diagTrans struct{}

func (diagTrans) accumulate(m *Model, st *suffStats, lat *lattice, lp *logParams) {
	accumXi(m.K, st, lat, lp)
	K := m.K
	for t := 0; t < lat.T; t++ {
		for k := 0; k < K; k++ {
			st.denoms[k] += lat.gamma[t*K+k]
		}
	}
}

// update row-normalizes the transition counts into an unconstrained
// candidate matrix, then projects it onto the diag family: each row is
// weighted by its state's posterior mass and d is the diagonal share
// of the weighted total. Rows with no transition counts fall back to
// the current matrix.
func (diagTrans) update(m *Model, st *suffStats) {
	if m.K == 1 {
		return
	}
	num, denom := 0.0, 0.0
	for i := 0; i < m.K; i++ {
		row := 0.0
		for j := 0; j < m.K; j++ {
			row += st.xiSum.At(i, j)
		}
		w := st.denoms[i]
		for j := 0; j < m.K; j++ {
			p := m.Trans.At(i, j)
			if row > 0 {
				p = st.xiSum.At(i, j) / row
			}
			v := p * w
			denom += v
			if i == j {
				num += v
			}
		}
	}
	if denom <= 0 {
		return
	}
	d := clipDiag(num / denom)
	m.Trans = DiagTransmat(d, m.K)
}

// Fit trains the model on the concatenated observation matrix X with
// the given per-sequence lengths using Baum-Welch. Emission parameters
// are initialized from the data on the first call. Sequences never
// share transitions across their boundaries; each restarts from the
// start distribution. Training stops when the log-likelihood gain
// drops below Tol or after MaxIter iterations.
func (m *Model) Fit(X *mat64.Dense, lengths []int) error {
	rows, cols := X.Dims()
	if err := checkLengths(rows, lengths); err != nil {
		return err
	}
	if !m.initialized {
		if err := m.InitEmissions(X); err != nil {
			return err
		}
	}
	if m.D != cols {
		return fmt.Errorf("observation dimension %d, model dimension %d", cols, m.D)
	}

	strat := m.strategy()
	m.History = nil
	prev := math.Inf(-1)

	for iter := 1; iter <= m.cfg.MaxIter; iter++ {
		lp := m.logParams()
		stats := m.newSuffStats()
		loglik := 0.0

		var wg sync.WaitGroup
		var mut sync.Mutex
		from := 0
		for _, T := range lengths {
			wg.Add(1)
			go func(from, T int) {
				defer wg.Done()
				lat := m.runLattices(X, from, T, lp)
				local := m.newSuffStats()
				m.accumulate(local, lat, X)
				strat.accumulate(m, local, lat, lp)
				mut.Lock()
				stats.merge(local)
				loglik += lat.loglik
				mut.Unlock()
			}(from, T)
			from += T
		}
		wg.Wait()

		m.History = append(m.History, loglik)
		log.Debugf("EM iteration %d: logL=%f", iter, loglik)

		if err := m.mstep(stats, strat); err != nil {
			return err
		}
		if iter > 1 && loglik-prev < m.cfg.Tol {
			log.Debugf("EM converged after %d iterations", iter)
			break
		}
		prev = loglik
	}
	return nil
}

// runLattices computes the forward/backward lattices and posteriors
// for one sequence, in log domain throughout.
func (m *Model) runLattices(X *mat64.Dense, from, T int, lp *logParams) *lattice {
	K := m.K
	lat := &lattice{from: from, T: T}

	lat.framelp = make([]float64, T*K)
	m.frameLogProb(X, from, T, lat.framelp)

	lat.fwd = forward(lat.framelp, T, K, lp)
	lat.loglik = floats.LogSumExp(lat.fwd[(T-1)*K : T*K])
	lat.bwd = backward(lat.framelp, T, K, lp)

	// combine lattices additively and normalize each row by its
	// log-sum-exp across states
	lat.gamma = make([]float64, T*K)
	buf := make([]float64, K)
	for t := 0; t < T; t++ {
		for k := 0; k < K; k++ {
			buf[k] = lat.fwd[t*K+k] + lat.bwd[t*K+k]
		}
		norm := floats.LogSumExp(buf)
		for k := 0; k < K; k++ {
			lat.gamma[t*K+k] = math.Exp(buf[k] - norm)
		}
	}
	return lat
}

func forward(framelp []float64, T, K int, lp *logParams) []float64 {
	fwd := make([]float64, T*K)
	buf := make([]float64, K)
	for k := 0; k < K; k++ {
		fwd[k] = lp.start[k] + framelp[k]
	}
	for t := 1; t < T; t++ {
		for j := 0; j < K; j++ {
			for i := 0; i < K; i++ {
				buf[i] = fwd[(t-1)*K+i] + lp.trans[i*K+j]
			}
			fwd[t*K+j] = floats.LogSumExp(buf) + framelp[t*K+j]
		}
	}
	return fwd
}

func backward(framelp []float64, T, K int, lp *logParams) []float64 {
	bwd := make([]float64, T*K)
	buf := make([]float64, K)
	for t := T - 2; t >= 0; t-- {
		for i := 0; i < K; i++ {
			for j := 0; j < K; j++ {
				buf[j] = lp.trans[i*K+j] + framelp[(t+1)*K+j] + bwd[(t+1)*K+j]
			}
			bwd[t*K+i] = floats.LogSumExp(buf)
		}
	}
	return bwd
}

// accumulate adds one sequence's start and emission statistics.
func (m *Model) accumulate(st *suffStats, lat *lattice, X *mat64.Dense) {
	K := m.K
	for k := 0; k < K; k++ {
		st.start[k] += lat.gamma[k]
	}
	for t := 0; t < lat.T; t++ {
		row := X.RawRowView(lat.from + t)
		for k := 0; k < K; k++ {
			g := lat.gamma[t*K+k]
			st.post[k] += g
			for j := 0; j < m.D; j++ {
				st.obs.Set(k, j, st.obs.At(k, j)+g*row[j])
			}
			switch m.cfg.Covar {
			case CovarDiag:
				for j := 0; j < m.D; j++ {
					st.obs2.Set(k, j, st.obs2.At(k, j)+g*row[j]*row[j])
				}
			case CovarFull:
				ok := st.obsObsT[k]
				for a := 0; a < m.D; a++ {
					ga := g * row[a]
					for b := 0; b < m.D; b++ {
						ok.Set(a, b, ok.At(a, b)+ga*row[b])
					}
				}
			}
		}
	}
}

// LogLik returns the total log-likelihood of the observations under
// the current parameters, summed over sequences.
func (m *Model) LogLik(X *mat64.Dense, lengths []int) (float64, error) {
	if !m.initialized {
		return 0, fmt.Errorf("model is not trained")
	}
	rows, cols := X.Dims()
	if err := checkLengths(rows, lengths); err != nil {
		return 0, err
	}
	if cols != m.D {
		return 0, fmt.Errorf("observation dimension %d, model dimension %d", cols, m.D)
	}
	lp := m.logParams()
	total := 0.0
	from := 0
	for _, T := range lengths {
		framelp := make([]float64, T*m.K)
		m.frameLogProb(X, from, T, framelp)
		fwd := forward(framelp, T, m.K, lp)
		total += floats.LogSumExp(fwd[(T-1)*m.K : T*m.K])
		from += T
	}
	return total, nil
}

func (m *Model) mstep(stats *suffStats, strat transitionStrategy) error {
	total := floats.Sum(stats.start)
	if total > 0 {
		for i := range m.Start {
			m.Start[i] = stats.start[i] / total
		}
	}
	if err := m.updateEmissions(stats); err != nil {
		return err
	}
	strat.update(m, stats)
	return nil
}
