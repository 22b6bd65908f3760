package cluster

import (
	"fmt"

	"github.com/cbglab/binclust/bintab"
)

// CheckLabels verifies that every genomic position carries the same
// cluster label across all samples. The table must be sorted, so the
// nSamples rows of one position are consecutive.
func CheckLabels(t *bintab.Table, nSamples int) error {
	if !t.Clustered {
		return fmt.Errorf("bin table has no cluster assignments")
	}
	if nSamples < 1 || len(t.Bins)%nSamples != 0 {
		return fmt.Errorf("%d bins not divisible by %d samples", len(t.Bins), nSamples)
	}
	for i := 0; i < len(t.Bins); i += nSamples {
		first := t.Bins[i]
		for j := 1; j < nSamples; j++ {
			bin := t.Bins[i+j]
			if bin.Chrom != first.Chrom || bin.Start != first.Start || bin.End != first.End {
				return fmt.Errorf("bin %s:%d-%d not aligned across samples",
					first.Chrom, first.Start, first.End)
			}
			if bin.Cluster != first.Cluster {
				return fmt.Errorf("bin %s:%d-%d has label %d in %s but %d in %s",
					first.Chrom, first.Start, first.End,
					first.Cluster, first.Sample, bin.Cluster, bin.Sample)
			}
		}
	}
	return nil
}
