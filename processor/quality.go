package processor

import (
	"fmt"

	"github.com/fsn1995/RemoteIceSurfaceAnalyser/common"
	"github.com/fsn1995/RemoteIceSurfaceAnalyser/interface/ingestion"
	"github.com/fsn1995/RemoteIceSurfaceAnalyser/raster"
)

// QualityReport holds the admission metrics of one date.
type QualityReport struct {
	// UsableFraction is the percentage of ice pixels that are clear and
	// spectrally valid in every band.
	UsableFraction float64
	// CloudFraction is the percentage of all pixels flagged cloudy.
	CloudFraction float64
}

// ErrRejected is returned by the quality gate when a date is not admitted.
// A rejected date is permanently excluded from the run.
type ErrRejected struct {
	Reason common.Reason
	Report QualityReport
}

func (e ErrRejected) Error() string {
	return fmt.Sprintf("rejected (%s): %.1f%% usable ice, %.1f%% cloud", e.Reason, e.Report.UsableFraction, e.Report.CloudFraction)
}

// AssessQuality computes the admission metrics of a band set.
func AssessQuality(bs *ingestion.BandSet, cloud, ice *raster.Mask) QualityReport {
	iceCount, usable := 0, 0
	for i, isIce := range ice.Data {
		if !isIce {
			continue
		}
		iceCount++
		if cloud.Data[i] {
			continue
		}
		if _, ok := bs.Vector(i); ok {
			usable++
		}
	}
	report := QualityReport{CloudFraction: cloud.Fraction()}
	if iceCount > 0 {
		report.UsableFraction = float64(usable) / float64(iceCount) * 100
	}
	return report
}

// Admit applies the configured thresholds. It returns an ErrRejected with
// the first violated bound (ice area, then cloud cover), or nil.
func (r QualityReport) Admit(minArea, cloudCoverThresh float64) error {
	if r.UsableFraction < minArea {
		return ErrRejected{Reason: common.ReasonInsufficientIceArea, Report: r}
	}
	if r.CloudFraction > cloudCoverThresh {
		return ErrRejected{Reason: common.ReasonExcessCloud, Report: r}
	}
	return nil
}
