package hmm

import (
	"fmt"
	"math"

	"github.com/biogo/cluster/kmeans"
	"github.com/gonum/matrix/mat64"
)

const log2Pi = 1.8378770664093453

// rowSet adapts an observation matrix to the kmeans data interface.
type rowSet struct {
	X *mat64.Dense
}

func (r rowSet) Len() int {
	rows, _ := r.X.Dims()
	return rows
}

func (r rowSet) Values(i int) []float64 {
	return r.X.RawRowView(i)
}

// InitEmissions initializes the per-state means and covariances from
// the data: means from kmeans cluster centers, covariances from the
// pooled data covariance. Start probabilities and (for the fixed
// regime) the transition matrix are never data-initialized.
func (m *Model) InitEmissions(X *mat64.Dense) error {
	rows, cols := X.Dims()
	if rows < m.K {
		return fmt.Errorf("%d observations cannot initialize %d states", rows, m.K)
	}
	m.D = cols

	m.Means = mat64.NewDense(m.K, cols, nil)
	if err := m.seedMeans(X); err != nil {
		return err
	}

	// pooled data covariance, shared across states at initialization
	mean := make([]float64, cols)
	for i := 0; i < rows; i++ {
		row := X.RawRowView(i)
		for j := range mean {
			mean[j] += row[j]
		}
	}
	for j := range mean {
		mean[j] /= float64(rows)
	}

	switch m.cfg.Covar {
	case CovarDiag:
		m.Vars = mat64.NewDense(m.K, cols, nil)
		for j := 0; j < cols; j++ {
			v := 0.0
			for i := 0; i < rows; i++ {
				d := X.At(i, j) - mean[j]
				v += d * d
			}
			v = v/float64(rows) + m.cfg.MinCovar
			for k := 0; k < m.K; k++ {
				m.Vars.Set(k, j, v)
			}
		}
	case CovarFull:
		cv := mat64.NewDense(cols, cols, nil)
		for i := 0; i < rows; i++ {
			row := X.RawRowView(i)
			for a := 0; a < cols; a++ {
				da := row[a] - mean[a]
				for b := 0; b < cols; b++ {
					cv.Set(a, b, cv.At(a, b)+da*(row[b]-mean[b]))
				}
			}
		}
		for a := 0; a < cols; a++ {
			for b := 0; b < cols; b++ {
				v := cv.At(a, b) / float64(rows)
				if a == b {
					v += m.cfg.MinCovar
				}
				cv.Set(a, b, v)
			}
		}
		m.Covars = make([]*mat64.Dense, m.K)
		for k := 0; k < m.K; k++ {
			ck := mat64.NewDense(cols, cols, nil)
			ck.Copy(cv)
			m.Covars[k] = ck
		}
		if err := m.refreshCovarCache(); err != nil {
			return err
		}
	}

	m.initialized = true
	return nil
}

// seedMeans sets the state means to kmeans cluster centers. If kmeans
// cannot produce K centers (e.g. fewer distinct observations than
// states), the means fall back to evenly strided rows.
func (m *Model) seedMeans(X *mat64.Dense) error {
	rows, cols := X.Dims()

	km, err := kmeans.New(rowSet{X})
	if err == nil {
		km.Seed(m.K)
		km.Cluster()
		centers := km.Centers()
		if len(centers) == m.K {
			for k, c := range centers {
				m.Means.SetRow(k, c.V())
			}
			return nil
		}
		log.Warningf("kmeans produced %d centers for %d states, using strided rows", len(centers), m.K)
	} else {
		log.Warningf("kmeans initialization failed (%v), using strided rows", err)
	}

	stride := rows / m.K
	for k := 0; k < m.K; k++ {
		for j := 0; j < cols; j++ {
			m.Means.Set(k, j, X.At(k*stride, j))
		}
	}
	return nil
}

// refreshCovarCache recomputes per-state inverse covariances and
// log-determinants for the full-covariance density.
func (m *Model) refreshCovarCache() error {
	m.covInv = make([]*mat64.Dense, m.K)
	m.covLogDet = make([]float64, m.K)
	for k := 0; k < m.K; k++ {
		inv := mat64.NewDense(m.D, m.D, nil)
		if err := inv.Inverse(m.Covars[k]); err != nil {
			return fmt.Errorf("state %d covariance is singular: %v", k, err)
		}
		m.covInv[k] = inv
		det := mat64.Det(m.Covars[k])
		if det <= 0 {
			return fmt.Errorf("state %d covariance has non-positive determinant", k)
		}
		m.covLogDet[k] = math.Log(det)
	}
	return nil
}

// frameLogProb fills lp (T x K) with per-state Gaussian log-densities
// for the rows [from, from+T) of X.
func (m *Model) frameLogProb(X *mat64.Dense, from, T int, lp []float64) {
	for t := 0; t < T; t++ {
		row := X.RawRowView(from + t)
		for k := 0; k < m.K; k++ {
			lp[t*m.K+k] = m.logDensity(row, k)
		}
	}
}

func (m *Model) logDensity(x []float64, k int) float64 {
	switch m.cfg.Covar {
	case CovarFull:
		mu := m.Means.RawRowView(k)
		inv := m.covInv[k]
		quad := 0.0
		for a := 0; a < m.D; a++ {
			da := x[a] - mu[a]
			for b := 0; b < m.D; b++ {
				quad += da * inv.At(a, b) * (x[b] - mu[b])
			}
		}
		return -0.5 * (float64(m.D)*log2Pi + m.covLogDet[k] + quad)
	default:
		mu := m.Means.RawRowView(k)
		vr := m.Vars.RawRowView(k)
		s := 0.0
		for j := range x {
			d := x[j] - mu[j]
			s += log2Pi + math.Log(vr[j]) + d*d/vr[j]
		}
		return -0.5 * s
	}
}

// updateEmissions applies the Gaussian M-step from the accumulated
// sufficient statistics. Variances are floored at MinCovar.
func (m *Model) updateEmissions(stats *suffStats) error {
	for k := 0; k < m.K; k++ {
		post := stats.post[k]
		if post <= 0 {
			// state received no posterior mass; leave its emission alone
			continue
		}
		for j := 0; j < m.D; j++ {
			m.Means.Set(k, j, stats.obs.At(k, j)/post)
		}

		switch m.cfg.Covar {
		case CovarDiag:
			for j := 0; j < m.D; j++ {
				mu := m.Means.At(k, j)
				v := stats.obs2.At(k, j)/post - mu*mu + m.cfg.MinCovar
				if v < m.cfg.MinCovar {
					v = m.cfg.MinCovar
				}
				m.Vars.Set(k, j, v)
			}
		case CovarFull:
			for a := 0; a < m.D; a++ {
				for b := 0; b < m.D; b++ {
					v := stats.obsObsT[k].At(a, b)/post - m.Means.At(k, a)*m.Means.At(k, b)
					if a == b {
						v += m.cfg.MinCovar
					}
					m.Covars[k].Set(a, b, v)
				}
			}
		}
	}
	if m.cfg.Covar == CovarFull {
		return m.refreshCovarCache()
	}
	return nil
}
