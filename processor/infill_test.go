package processor

import (
	"errors"
	"math"
	"testing"

	"github.com/fsn1995/RemoteIceSurfaceAnalyser/raster"
)

func TestMedianFill(t *testing.T) {
	ref := raster.GeoRef{Width: 5, Height: 1}
	g, _ := raster.FromData(ref, []float64{1, 2, 3, 4, math.NaN()})
	ice := fullIce(ref)
	cloud := raster.NewMask(ref)
	cloud.Data[4] = true

	n, err := MedianFiller{}.Fill(g, cloud, ice)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expecting 1 filled pixel, got %d", n)
	}
	// median of {1,2,3,4} (empirical) substitutes the cloudy pixel
	if math.IsNaN(g.Data[4]) {
		t.Error("cloudy pixel not filled")
	}
	if g.Data[4] != 2 {
		t.Errorf("expecting median 2, got %f", g.Data[4])
	}
}

func TestMedianFillLeavesClearPixels(t *testing.T) {
	ref := raster.GeoRef{Width: 4, Height: 1}
	g, _ := raster.FromData(ref, []float64{10, 20, 30, 40})
	ice := fullIce(ref)
	cloud := raster.NewMask(ref)
	cloud.Data[1] = true

	if _, err := (MedianFiller{}).Fill(g, cloud, ice); err != nil {
		t.Fatal(err)
	}
	if g.Data[0] != 10 || g.Data[2] != 30 || g.Data[3] != 40 {
		t.Errorf("clear pixels modified: %v", g.Data)
	}
}

func TestMedianFillFullyObscured(t *testing.T) {
	ref := raster.GeoRef{Width: 3, Height: 1}
	g, _ := raster.FromData(ref, []float64{1, 2, 3})
	ice := fullIce(ref)
	cloud := fullIce(ref) // everything cloudy

	_, err := MedianFiller{}.Fill(g, cloud, ice)
	if !errors.As(err, &ErrFullyObscured{}) {
		t.Fatalf("expecting ErrFullyObscured, got %v", err)
	}
}

func TestMedianFillIgnoresNonIce(t *testing.T) {
	ref := raster.GeoRef{Width: 4, Height: 1}
	g, _ := raster.FromData(ref, []float64{100, 1, 3, 0})
	ice := raster.NewMask(ref)
	ice.Data[1], ice.Data[2], ice.Data[3] = true, true, true
	cloud := raster.NewMask(ref)
	cloud.Data[3] = true

	if _, err := (MedianFiller{}).Fill(g, cloud, ice); err != nil {
		t.Fatal(err)
	}
	// the non-ice pixel value 100 must not contribute to the median of {1,3}
	if g.Data[3] != 1 {
		t.Errorf("expecting 1, got %f", g.Data[3])
	}
	if g.Data[0] != 100 {
		t.Errorf("non-ice pixel modified: %f", g.Data[0])
	}
}
