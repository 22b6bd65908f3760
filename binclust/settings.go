package main

import (
	"github.com/cbglab/binclust/hmm"
)

// settings stores validated run parameters derived from the
// command-line arguments.
type settings struct {
	minK, maxK int
	regime     hmm.Regime
	decoder    hmm.Decoder
	covarType  hmm.CovarType
	tau        float64
	diploidBAF float64
}

// newSettings initializes settings from global variables (command-line
// arguments). Unsupported enum values are fatal before any fitting.
func newSettings() *settings {
	s := &settings{
		minK:       *minK,
		maxK:       *maxK,
		tau:        *tau,
		diploidBAF: *diploidBAF,
	}
	if *exactK > 0 {
		s.minK = *exactK
		s.maxK = *exactK
	}

	var err error
	if s.regime, err = hmm.ParseRegime(*transmat); err != nil {
		log.Fatal(err)
	}
	if s.decoder, err = hmm.ParseDecoder(*decoding); err != nil {
		log.Fatal(err)
	}
	if s.covarType, err = hmm.ParseCovarType(*covar); err != nil {
		log.Fatal(err)
	}
	return s
}
