// Package bintab provides reading, writing and in-memory representation
// of the combined bin table (BB file) and the segment summary table.
package bintab

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// Header columns of a BB file, in the required order.
var binColumns = []string{
	"#CHR", "START", "END", "SAMPLE", "RD", "#SNPS", "COV", "ALPHA", "BETA", "BAF",
}

// Header columns of the segment summary table.
var segColumns = []string{
	"#ID", "SAMPLE", "#BINS", "RD", "#SNPS", "COV", "ALPHA", "BETA", "BAF",
}

// Bin is a single genomic interval for a single sample. Bins are never
// mutated after reading; the cluster id is the only field assigned later.
type Bin struct {
	Chrom  string
	Start  int
	End    int
	Sample string
	RD     float64
	Snps   int
	Cov    float64
	Alpha  int
	Beta   int
	BAF    float64

	// Cluster is assigned after model selection (1-based).
	Cluster int
}

// Table is an ordered collection of bins.
type Table struct {
	Bins []*Bin
	// Clustered is true once SetClusters has assigned cluster ids.
	Clustered bool
}

// Read parses a tab-delimited BB file. The header line is required and
// must list exactly the expected columns.
func Read(r io.Reader) (*Table, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("empty bin table")
	}
	header := strings.Split(strings.TrimRight(scanner.Text(), "\r\n"), "\t")
	if len(header) != len(binColumns) {
		return nil, fmt.Errorf("bin table header has %d columns, expected %d",
			len(header), len(binColumns))
	}
	for i, name := range binColumns {
		if header[i] != name {
			return nil, fmt.Errorf("bin table column %d is %q, expected %q",
				i+1, header[i], name)
		}
	}

	t := &Table{}
	lineno := 1
	for scanner.Scan() {
		lineno++
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != len(binColumns) {
			return nil, fmt.Errorf("line %d: %d fields, expected %d",
				lineno, len(fields), len(binColumns))
		}
		bin, err := parseBin(fields)
		if err != nil {
			return nil, fmt.Errorf("line %d: %v", lineno, err)
		}
		t.Bins = append(t.Bins, bin)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(t.Bins) == 0 {
		return nil, fmt.Errorf("bin table has no rows")
	}
	return t, nil
}

func parseBin(fields []string) (*Bin, error) {
	bin := &Bin{Chrom: fields[0], Sample: fields[3]}
	var err error
	if bin.Start, err = strconv.Atoi(fields[1]); err != nil {
		return nil, fmt.Errorf("bad START %q", fields[1])
	}
	if bin.End, err = strconv.Atoi(fields[2]); err != nil {
		return nil, fmt.Errorf("bad END %q", fields[2])
	}
	if bin.RD, err = strconv.ParseFloat(fields[4], 64); err != nil {
		return nil, fmt.Errorf("bad RD %q", fields[4])
	}
	if bin.Snps, err = strconv.Atoi(fields[5]); err != nil {
		return nil, fmt.Errorf("bad #SNPS %q", fields[5])
	}
	if bin.Cov, err = strconv.ParseFloat(fields[6], 64); err != nil {
		return nil, fmt.Errorf("bad COV %q", fields[6])
	}
	if bin.Alpha, err = strconv.Atoi(fields[7]); err != nil {
		return nil, fmt.Errorf("bad ALPHA %q", fields[7])
	}
	if bin.Beta, err = strconv.Atoi(fields[8]); err != nil {
		return nil, fmt.Errorf("bad BETA %q", fields[8])
	}
	if bin.BAF, err = strconv.ParseFloat(fields[9], 64); err != nil {
		return nil, fmt.Errorf("bad BAF %q", fields[9])
	}
	return bin, nil
}

// Sort orders bins by chromosome, start position and sample. This is the
// canonical order assumed by SetClusters and by the sequence builder.
func (t *Table) Sort() {
	sort.SliceStable(t.Bins, func(i, j int) bool {
		a, b := t.Bins[i], t.Bins[j]
		if a.Chrom != b.Chrom {
			return a.Chrom < b.Chrom
		}
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		return a.Sample < b.Sample
	})
}

// Samples returns the sample names in first-seen order.
func (t *Table) Samples() []string {
	seen := make(map[string]bool)
	var samples []string
	for _, bin := range t.Bins {
		if !seen[bin.Sample] {
			seen[bin.Sample] = true
			samples = append(samples, bin.Sample)
		}
	}
	return samples
}

// NPositions returns the number of distinct genomic positions, i.e. the
// number of rows divided by the number of samples.
func (t *Table) NPositions() int {
	n := len(t.Samples())
	if n == 0 {
		return 0
	}
	return len(t.Bins) / n
}

// SetClusters assigns one label per genomic position, repeated across the
// nSamples rows of that position. The table must be sorted.
func (t *Table) SetClusters(labels []int, nSamples int) error {
	if len(labels)*nSamples != len(t.Bins) {
		return fmt.Errorf("%d labels for %d samples cannot cover %d bins",
			len(labels), nSamples, len(t.Bins))
	}
	for i, bin := range t.Bins {
		bin.Cluster = labels[i/nSamples]
	}
	t.Clustered = true
	return nil
}

// WriteBins writes the table in BB format, with the CLUSTER column
// appended when clusters have been assigned.
func (t *Table) WriteBins(w io.Writer) error {
	bw := bufio.NewWriter(w)
	cols := binColumns
	if t.Clustered {
		cols = append(append([]string{}, binColumns...), "CLUSTER")
	}
	if _, err := bw.WriteString(strings.Join(cols, "\t") + "\n"); err != nil {
		return err
	}
	for _, bin := range t.Bins {
		fields := []string{
			bin.Chrom,
			strconv.Itoa(bin.Start),
			strconv.Itoa(bin.End),
			bin.Sample,
			formatFloat(bin.RD),
			strconv.Itoa(bin.Snps),
			formatFloat(bin.Cov),
			strconv.Itoa(bin.Alpha),
			strconv.Itoa(bin.Beta),
			formatFloat(bin.BAF),
		}
		if t.Clustered {
			fields = append(fields, strconv.Itoa(bin.Cluster))
		}
		if _, err := bw.WriteString(strings.Join(fields, "\t") + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Segment is an aggregate over one (cluster, sample) pair.
type Segment struct {
	Cluster int
	Sample  string
	NBins   int
	RD      float64
	Snps    int
	Cov     float64
	Alpha   int
	Beta    int
	BAF     float64
}

// WriteSegments writes the segment summary table.
func WriteSegments(w io.Writer, segments []Segment) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(strings.Join(segColumns, "\t") + "\n"); err != nil {
		return err
	}
	for _, s := range segments {
		fields := []string{
			strconv.Itoa(s.Cluster),
			s.Sample,
			strconv.Itoa(s.NBins),
			formatFloat(s.RD),
			strconv.Itoa(s.Snps),
			formatFloat(s.Cov),
			strconv.Itoa(s.Alpha),
			strconv.Itoa(s.Beta),
			formatFloat(s.BAF),
		}
		if _, err := bw.WriteString(strings.Join(fields, "\t") + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
