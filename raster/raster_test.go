package raster

import (
	"math"
	"testing"
)

var ref = GeoRef{Width: 2, Height: 3, Transform: [6]float64{0, 20, 0, 0, 0, -20}, CRS: "EPSG:32622"}

func TestGeoRefEqual(t *testing.T) {
	if !ref.Equal(ref) {
		t.Error("georef not equal to itself")
	}
	other := ref
	other.Transform[1] = 10
	if ref.Equal(other) {
		t.Error("georefs with different transforms compare equal")
	}
	other = ref
	other.CRS = "EPSG:32623"
	if ref.Equal(other) {
		t.Error("georefs with different CRS compare equal")
	}
	if ref.Pixels() != 6 {
		t.Errorf("pixels: got %d, want 6", ref.Pixels())
	}
}

func TestGrid(t *testing.T) {
	g := New(ref)
	if g.ValidCount() != 0 {
		t.Errorf("new grid has %d valid pixels", g.ValidCount())
	}
	g.Data[2] = 1.5
	if !g.Valid(2) || g.Valid(3) {
		t.Error("valid flags wrong")
	}
	if g.ValidCount() != 1 {
		t.Errorf("valid count: got %d, want 1", g.ValidCount())
	}

	c := g.Clone()
	c.Data[2] = 9
	if g.Data[2] != 1.5 {
		t.Error("clone shares backing data")
	}

	if _, err := FromData(ref, make([]float64, 5)); err == nil {
		t.Error("FromData accepted wrong length")
	}
}

func TestCloudMask(t *testing.T) {
	prob := Full(ref, 0)
	prob.Data[0] = 50 // exactly at the threshold: clear
	prob.Data[1] = 51 // above: cloudy
	prob.Data[2] = math.NaN()
	m := CloudMask(prob, 50)
	if m.Data[0] {
		t.Error("pixel at the threshold flagged cloudy")
	}
	if !m.Data[1] {
		t.Error("pixel above the threshold not flagged")
	}
	if m.Data[2] {
		t.Error("no-data pixel flagged cloudy")
	}
	if m.Count() != 1 {
		t.Errorf("count: got %d, want 1", m.Count())
	}
	if got := m.Fraction(); math.Abs(got-100.0/6) > 1e-12 {
		t.Errorf("fraction: got %f", got)
	}
}

func TestMedianWhere(t *testing.T) {
	g, _ := FromData(ref, []float64{1, 2, 3, 4, math.NaN(), 100})
	sel := func(i int) bool { return i < 5 }
	med, ok := MedianWhere(g, sel)
	if !ok {
		t.Fatal("no median")
	}
	// the median is an actual element of the selection
	if med != 2 {
		t.Errorf("median: got %f, want 2", med)
	}

	if _, ok := MedianWhere(New(ref), sel); ok {
		t.Error("median of no-data grid")
	}
}

func TestMeanStdWhere(t *testing.T) {
	g, _ := FromData(ref, []float64{2, 4, 6, math.NaN(), 0, 0})
	mean, std, n := MeanStdWhere(g, func(i int) bool { return i < 4 })
	if n != 3 {
		t.Fatalf("n: got %d, want 3", n)
	}
	if mean != 4 {
		t.Errorf("mean: got %f, want 4", mean)
	}
	if std != 2 {
		t.Errorf("std: got %f, want 2", std)
	}

	_, std, n = MeanStdWhere(g, func(i int) bool { return i == 0 })
	if n != 1 || std != 0 {
		t.Errorf("single element: n=%d std=%f", n, std)
	}
}
