package main

import (
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/cbglab/binclust/cluster"
)

// plotScores writes a silhouette-score-vs-K diagnostic plot.
func plotScores(sel *cluster.Selection, fn string) error {
	p, err := plot.New()
	if err != nil {
		return err
	}
	p.Title.Text = "Model selection"
	p.X.Label.Text = "K"
	p.Y.Label.Text = "silhouette score"

	var ks []int
	for k := range sel.Results {
		ks = append(ks, k)
	}
	sort.Ints(ks)

	pts := make(plotter.XYs, len(ks))
	for i, k := range ks {
		pts[i].X = float64(k)
		pts[i].Y = sel.Results[k].Score
	}

	if err := plotutil.AddLinePoints(p, "silhouette", pts); err != nil {
		return err
	}
	return p.Save(4*vg.Inch, 4*vg.Inch, fn)
}
