package processor

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/fsn1995/RemoteIceSurfaceAnalyser/common"
	"github.com/fsn1995/RemoteIceSurfaceAnalyser/interface/ingestion"
	"github.com/fsn1995/RemoteIceSurfaceAnalyser/raster"
)

var testRef = raster.GeoRef{Width: 10, Height: 10, Transform: [6]float64{500000, 20, 0, 7500000, 0, -20}, CRS: "EPSG:32622"}

// testBandSet builds a band set with constant reflectance everywhere.
func testBandSet(ref raster.GeoRef, reflectance float64) *ingestion.BandSet {
	bs := &ingestion.BandSet{
		Tile:      "22WEV",
		Date:      time.Date(2017, 6, 5, 0, 0, 0, 0, time.UTC),
		Ref:       ref,
		Bands:     map[common.Band]*raster.Grid{},
		CloudProb: raster.Full(ref, 0),
	}
	for _, band := range common.Bands() {
		bs.Bands[band] = raster.Full(ref, reflectance)
	}
	return bs
}

func fullIce(ref raster.GeoRef) *raster.Mask {
	m := raster.NewMask(ref)
	for i := range m.Data {
		m.Data[i] = true
	}
	return m
}

func TestQualityRejectsInsufficientIceArea(t *testing.T) {
	bs := testBandSet(testRef, 0.5)
	ice := fullIce(testRef)
	cloud := raster.NewMask(testRef)

	// invalidate 65 of 100 ice pixels: usable fraction 35%
	for i := 0; i < 65; i++ {
		bs.Bands[common.B02].Data[i] = math.NaN()
	}

	report := AssessQuality(bs, cloud, ice)
	if report.UsableFraction != 35 {
		t.Fatalf("expecting 35%% usable, got %f", report.UsableFraction)
	}

	err := report.Admit(40, 100)
	var rejected ErrRejected
	if !errors.As(err, &rejected) {
		t.Fatalf("expecting ErrRejected, got %v", err)
	}
	if rejected.Reason != common.ReasonInsufficientIceArea {
		t.Errorf("expecting insufficient_ice_area, got %s", rejected.Reason)
	}
}

func TestQualityRejectsExcessCloud(t *testing.T) {
	bs := testBandSet(testRef, 0.5)
	ice := fullIce(testRef)
	cloud := raster.NewMask(testRef)
	for i := 0; i < 30; i++ {
		cloud.Data[i] = true
	}

	report := AssessQuality(bs, cloud, ice)
	if report.CloudFraction != 30 {
		t.Fatalf("expecting 30%% cloud, got %f", report.CloudFraction)
	}
	if report.UsableFraction != 70 {
		t.Fatalf("expecting 70%% usable, got %f", report.UsableFraction)
	}

	err := report.Admit(40, 20)
	var rejected ErrRejected
	if !errors.As(err, &rejected) {
		t.Fatalf("expecting ErrRejected, got %v", err)
	}
	if rejected.Reason != common.ReasonExcessCloud {
		t.Errorf("expecting excess_cloud, got %s", rejected.Reason)
	}
}

func TestQualityAdmits(t *testing.T) {
	bs := testBandSet(testRef, 0.5)
	report := AssessQuality(bs, raster.NewMask(testRef), fullIce(testRef))
	if report.UsableFraction != 100 || report.CloudFraction != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if err := report.Admit(40, 20); err != nil {
		t.Errorf("expecting admission, got %v", err)
	}
}

func TestQualityUsableRelativeToIceMask(t *testing.T) {
	bs := testBandSet(testRef, 0.5)
	ice := raster.NewMask(testRef)
	// 4 ice pixels, one of them cloudy: 75% usable
	ice.Data[0], ice.Data[1], ice.Data[2], ice.Data[3] = true, true, true, true
	cloud := raster.NewMask(testRef)
	cloud.Data[0] = true

	report := AssessQuality(bs, cloud, ice)
	if report.UsableFraction != 75 {
		t.Errorf("expecting 75%% usable, got %f", report.UsableFraction)
	}
	if report.CloudFraction != 1 {
		t.Errorf("expecting 1%% cloud, got %f", report.CloudFraction)
	}
}
