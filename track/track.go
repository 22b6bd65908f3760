// Package track builds per-chromosome-arm observation sequences from a
// bin table. Each track holds, for every bin of one arm, the BAF and
// read-depth of every sample; the hidden Markov model never transitions
// across track boundaries.
package track

import (
	"fmt"
	"sort"

	"github.com/gonum/matrix/mat64"
	"github.com/op/go-logging"

	"github.com/cbglab/binclust/bintab"
)

var log = logging.MustGetLogger("track")

// Track is one contiguous chromosome arm: rows are bins in genomic
// order, columns are (BAF, RD) pairs in sample order.
type Track struct {
	// Label is "<chrom>_p" or "<chrom>_q".
	Label string
	Data  *mat64.Dense
}

// Bins returns the number of bins in the track.
func (t *Track) Bins() int {
	if t.Data == nil {
		return 0
	}
	r, _ := t.Data.Dims()
	return r
}

// Width returns the feature dimension (2 x samples).
func (t *Track) Width() int {
	if t.Data == nil {
		return 0
	}
	_, c := t.Data.Dims()
	return c
}

// Build groups the table into ordered arm tracks. Chromosomes are
// processed in sorted order, bins within a chromosome in start order.
// A chromosome with one internal coordinate gap is split into a "p" and
// a "q" arm; more than one gap, or samples disagreeing on bin counts or
// gap position, is a fatal input error.
func Build(table *bintab.Table) ([]*Track, []string, error) {
	table.Sort()
	samples := table.Samples()
	if len(samples) == 0 {
		return nil, nil, fmt.Errorf("bin table has no samples")
	}

	byChrom := make(map[string]map[string][]*bintab.Bin)
	var chroms []string
	for _, bin := range table.Bins {
		m, ok := byChrom[bin.Chrom]
		if !ok {
			m = make(map[string][]*bintab.Bin)
			byChrom[bin.Chrom] = m
			chroms = append(chroms, bin.Chrom)
		}
		m[bin.Sample] = append(m[bin.Sample], bin)
	}
	sort.Strings(chroms)

	var tracks []*Track
	for _, chrom := range chroms {
		perSample := byChrom[chrom]

		nbins := -1
		gap := -1 // first bin index of the q arm, -1 for no gap
		for _, sample := range samples {
			bins, ok := perSample[sample]
			if !ok {
				return nil, nil, fmt.Errorf("chromosome %s: sample %s has no bins", chrom, sample)
			}
			if nbins == -1 {
				nbins = len(bins)
			} else if len(bins) != nbins {
				return nil, nil, fmt.Errorf("chromosome %s: sample %s has %d bins, expected %d",
					chrom, sample, len(bins), nbins)
			}
			g, err := findGap(chrom, bins)
			if err != nil {
				return nil, nil, err
			}
			if sample == samples[0] {
				gap = g
			} else if g != gap {
				return nil, nil, fmt.Errorf("chromosome %s: sample %s gap position %d differs from %d",
					chrom, sample, g, gap)
			}
		}

		if gap < 0 {
			tracks = append(tracks, stack(chrom+"_p", samples, perSample, 0, nbins))
		} else {
			tracks = append(tracks,
				stack(chrom+"_p", samples, perSample, 0, gap),
				stack(chrom+"_q", samples, perSample, gap, nbins))
		}
	}

	log.Infof("Built %d arm tracks for %d samples", len(tracks), len(samples))
	return tracks, samples, nil
}

// findGap returns the index of the first bin after the single internal
// coordinate gap, or -1 when the bins are contiguous.
func findGap(chrom string, bins []*bintab.Bin) (int, error) {
	gap := -1
	for i := 0; i+1 < len(bins); i++ {
		if bins[i+1].Start > bins[i].End {
			if gap >= 0 {
				return 0, fmt.Errorf("chromosome %s has more than one gap between bins", chrom)
			}
			gap = i + 1
		}
	}
	return gap, nil
}

// stack builds the track matrix for bins [from, to) of one arm.
func stack(label string, samples []string, perSample map[string][]*bintab.Bin, from, to int) *Track {
	nbins := to - from
	if nbins <= 0 {
		return &Track{Label: label}
	}
	data := mat64.NewDense(nbins, 2*len(samples), nil)
	for s, sample := range samples {
		bins := perSample[sample]
		for i := 0; i < nbins; i++ {
			data.Set(i, 2*s, bins[from+i].BAF)
			data.Set(i, 2*s+1, bins[from+i].RD)
		}
	}
	return &Track{Label: label, Data: data}
}

// Concat stacks all non-degenerate tracks into one observation matrix
// and records each track's bin count in lengths. Tracks with zero bins
// or zero feature width are skipped.
func Concat(tracks []*Track) (*mat64.Dense, []int, error) {
	var kept []*Track
	for _, t := range tracks {
		if t.Bins() > 0 && t.Width() > 0 {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		return nil, nil, fmt.Errorf("no tracks with nonzero dimension")
	}

	width := kept[0].Width()
	total := 0
	for _, t := range kept {
		if t.Width() != width {
			return nil, nil, fmt.Errorf("track %s has width %d, expected %d", t.Label, t.Width(), width)
		}
		total += t.Bins()
	}

	X := mat64.NewDense(total, width, nil)
	lengths := make([]int, len(kept))
	row := 0
	for i, t := range kept {
		lengths[i] = t.Bins()
		for r := 0; r < t.Bins(); r++ {
			X.SetRow(row, t.Data.RawRowView(r))
			row++
		}
	}
	return X, lengths, nil
}
