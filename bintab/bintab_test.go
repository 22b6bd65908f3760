package bintab

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleBB = `#CHR	START	END	SAMPLE	RD	#SNPS	COV	ALPHA	BETA	BAF
chr1	0	100	tumor1	1.5	12	30.5	40	60	0.4
chr1	0	100	tumor2	0.9	12	28.1	55	45	0.55
chr1	100	200	tumor1	1.4	8	31	48	52	0.48
chr1	100	200	tumor2	1.1	8	29	50	50	0.5
`

func TestReadSortSamples(t *testing.T) {
	table, err := Read(strings.NewReader(sampleBB))
	require.NoError(t, err)
	require.Len(t, table.Bins, 4)
	require.Equal(t, []string{"tumor1", "tumor2"}, table.Samples())
	require.Equal(t, 2, table.NPositions())

	bin := table.Bins[1]
	require.Equal(t, "chr1", bin.Chrom)
	require.Equal(t, 0, bin.Start)
	require.Equal(t, 100, bin.End)
	require.Equal(t, "tumor2", bin.Sample)
	require.InDelta(t, 0.9, bin.RD, 1e-12)
	require.Equal(t, 12, bin.Snps)
	require.Equal(t, 55, bin.Alpha)
	require.Equal(t, 45, bin.Beta)
	require.InDelta(t, 0.55, bin.BAF, 1e-12)
}

func TestReadErrors(t *testing.T) {
	_, err := Read(strings.NewReader(""))
	require.Error(t, err)

	_, err = Read(strings.NewReader("#CHR\tSTART\n"))
	require.Error(t, err)

	bad := strings.Replace(sampleBB, "1.5", "x", 1)
	_, err = Read(strings.NewReader(bad))
	require.Error(t, err)
	require.Contains(t, err.Error(), "line 2")
}

func TestSetClustersAndWrite(t *testing.T) {
	table, err := Read(strings.NewReader(sampleBB))
	require.NoError(t, err)
	table.Sort()

	require.Error(t, table.SetClusters([]int{1}, 2))
	require.NoError(t, table.SetClusters([]int{2, 1}, 2))
	require.Equal(t, 2, table.Bins[0].Cluster)
	require.Equal(t, 2, table.Bins[1].Cluster)
	require.Equal(t, 1, table.Bins[2].Cluster)
	require.Equal(t, 1, table.Bins[3].Cluster)

	var buf bytes.Buffer
	require.NoError(t, table.WriteBins(&buf))
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 5)
	require.True(t, strings.HasSuffix(lines[0], "\tCLUSTER"))
	require.True(t, strings.HasSuffix(lines[1], "\t2"))
	require.True(t, strings.HasSuffix(lines[4], "\t1"))
}

func TestWriteSegments(t *testing.T) {
	segs := []Segment{
		{Cluster: 1, Sample: "tumor1", NBins: 10, RD: 1.25, Snps: 100, Cov: 30, Alpha: 400, Beta: 420, BAF: 0.5},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteSegments(&buf, segs))
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	require.Equal(t, "#ID\tSAMPLE\t#BINS\tRD\t#SNPS\tCOV\tALPHA\tBETA\tBAF", lines[0])
	require.Equal(t, "1\ttumor1\t10\t1.25\t100\t30\t400\t420\t0.5", lines[1])
}
