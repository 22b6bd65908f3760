package cluster

import (
	"fmt"
	"sort"

	"github.com/cbglab/binclust/bintab"
)

type segKey struct {
	cluster int
	sample  string
}

// Segments aggregates the clustered bin table by (cluster, sample):
// bin count, mean read-depth, summed SNPs, mean coverage and the
// allele totals a = sum of min(alpha, beta), b = sum of max. The
// derived BAF a/(a+b) collapses to exactly 0.5 when its deviation from
// 0.5 is within balancedThreshold. A group with zero total allele
// depth is a fatal data error.
func Segments(t *bintab.Table, balancedThreshold float64) ([]bintab.Segment, error) {
	if !t.Clustered {
		return nil, fmt.Errorf("bin table has no cluster assignments")
	}

	groups := make(map[segKey][]*bintab.Bin)
	var keys []segKey
	for _, bin := range t.Bins {
		k := segKey{bin.Cluster, bin.Sample}
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], bin)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].cluster != keys[j].cluster {
			return keys[i].cluster < keys[j].cluster
		}
		return keys[i].sample < keys[j].sample
	})

	segments := make([]bintab.Segment, 0, len(keys))
	for _, k := range keys {
		bins := groups[k]
		seg := bintab.Segment{Cluster: k.cluster, Sample: k.sample, NBins: len(bins)}
		for _, bin := range bins {
			seg.RD += bin.RD
			seg.Snps += bin.Snps
			seg.Cov += bin.Cov
			if bin.Alpha < bin.Beta {
				seg.Alpha += bin.Alpha
				seg.Beta += bin.Beta
			} else {
				seg.Alpha += bin.Beta
				seg.Beta += bin.Alpha
			}
		}
		seg.RD /= float64(len(bins))
		seg.Cov /= float64(len(bins))

		depth := seg.Alpha + seg.Beta
		if depth == 0 {
			return nil, fmt.Errorf("cluster %d sample %s has zero informative SNPs", k.cluster, k.sample)
		}
		baf := float64(seg.Alpha) / float64(depth)
		if diff := 0.5 - baf; diff <= balancedThreshold && diff >= -balancedThreshold {
			baf = 0.5
		}
		seg.BAF = baf
		segments = append(segments, seg)
	}
	return segments, nil
}
