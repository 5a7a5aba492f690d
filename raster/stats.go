package raster

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// MedianWhere returns the median of the grid over the pixels selected by sel,
// skipping no-data values. ok is false if no pixel was selected.
func MedianWhere(g *Grid, sel func(i int) bool) (median float64, ok bool) {
	vals := make([]float64, 0, 1024)
	for i, v := range g.Data {
		if !math.IsNaN(v) && sel(i) {
			vals = append(vals, v)
		}
	}
	if len(vals) == 0 {
		return math.NaN(), false
	}
	sort.Float64s(vals)
	return stat.Quantile(0.5, stat.Empirical, vals, nil), true
}

// MeanStdWhere returns mean, standard deviation and the number of pixels
// selected by sel, skipping no-data values.
func MeanStdWhere(g *Grid, sel func(i int) bool) (mean, std float64, n int) {
	vals := make([]float64, 0, 1024)
	for i, v := range g.Data {
		if !math.IsNaN(v) && sel(i) {
			vals = append(vals, v)
		}
	}
	if len(vals) == 0 {
		return math.NaN(), math.NaN(), 0
	}
	mean, std = stat.MeanStdDev(vals, nil)
	if len(vals) == 1 {
		std = 0
	}
	return mean, std, len(vals)
}
