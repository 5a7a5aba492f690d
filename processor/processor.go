// Package processor implements the per-date unit of work: quality gate,
// pixel classification and parameter retrieval, and spatial infill of
// cloud-masked pixels. Units are independent and run concurrently; the ice
// mask and the parameter table are shared read-only.
package processor

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fsn1995/RemoteIceSurfaceAnalyser/classifier"
	"github.com/fsn1995/RemoteIceSurfaceAnalyser/common"
	"github.com/fsn1995/RemoteIceSurfaceAnalyser/interface/ingestion"
	"github.com/fsn1995/RemoteIceSurfaceAnalyser/lut"
	"github.com/fsn1995/RemoteIceSurfaceAnalyser/raster"
	"github.com/fsn1995/RemoteIceSurfaceAnalyser/service/log"
)

// Options are the per-date processing settings.
type Options struct {
	// MinArea is the minimum percentage of ice pixels that must be usable.
	MinArea float64
	// CloudCoverThresh is the maximum percentage of cloudy pixels.
	CloudCoverThresh float64
	// CloudProbThreshold is the probability (percent) above which a pixel
	// is considered cloudy.
	CloudProbThreshold float64
	// RetrieveParams enables the parameter-table retrieval.
	RetrieveParams bool
	// Workers bounds the retrieval parallelism (0 = NumCPU).
	Workers int
}

// Validate checks the option ranges.
func (o Options) Validate() error {
	if o.MinArea < 0 || o.MinArea > 100 {
		return fmt.Errorf("minArea %f out of range [0, 100]", o.MinArea)
	}
	if o.CloudCoverThresh < 0 || o.CloudCoverThresh > 100 {
		return fmt.Errorf("cloudCoverThresh %f out of range [0, 100]", o.CloudCoverThresh)
	}
	if o.CloudProbThreshold < 0 || o.CloudProbThreshold > 100 {
		return fmt.Errorf("cloudProbThreshold %f out of range [0, 100]", o.CloudProbThreshold)
	}
	return nil
}

// Processor turns a band set into an observed bundle.
type Processor struct {
	Classifier classifier.Classifier
	Table      *lut.Table
	Filler     Filler
	Opts       Options
}

// New creates a processor with the default median filler.
func New(clf classifier.Classifier, table *lut.Table, opts Options) *Processor {
	return &Processor{Classifier: clf, Table: table, Filler: MedianFiller{}, Opts: opts}
}

// ProcessDate processes one admitted acquisition into an observed bundle.
// It returns ErrRejected when the date does not pass the quality gate.
func (p *Processor) ProcessDate(ctx context.Context, bs *ingestion.BandSet, ice *raster.Mask) (*common.Bundle, error) {
	if err := bs.Validate(); err != nil {
		return nil, err
	}
	if len(ice.Data) != bs.Ref.Pixels() {
		return nil, fmt.Errorf("ProcessDate[%s/%s]: ice mask has %d pixels, band set %d",
			bs.Tile, bs.Date.Format("20060102"), len(ice.Data), bs.Ref.Pixels())
	}

	cloud := raster.CloudMask(bs.CloudProb, p.Opts.CloudProbThreshold)

	// Quality gate
	report := AssessQuality(bs, cloud, ice)
	if err := report.Admit(p.Opts.MinArea, p.Opts.CloudCoverThresh); err != nil {
		return nil, err
	}
	log.Logger(ctx).Sugar().Debugf("admitted %s/%s: %.1f%% usable ice, %.1f%% cloud",
		bs.Tile, bs.Date.Format("20060102"), report.UsableFraction, report.CloudFraction)

	// Classification and retrieval
	vars, err := p.classify(ctx, bs, cloud, ice)
	if err != nil {
		return nil, fmt.Errorf("ProcessDate[%s/%s].%w", bs.Tile, bs.Date.Format("20060102"), err)
	}

	// Spatial infill of cloudy ice pixels, per variable
	bundle := &common.Bundle{
		Tile:     bs.Tile,
		Date:     common.Day(bs.Date),
		Source:   common.StatusOBSERVED,
		Ref:      bs.Ref,
		Vars:     vars,
		Obscured: map[common.Variable]bool{},
	}
	for v, g := range vars {
		_, err := p.Filler.Fill(g, cloud, ice)
		if err != nil {
			if errors.As(err, &ErrFullyObscured{}) {
				// the variable stays no-data on cloud pixels; not fatal
				bundle.Obscured[v] = true
				log.Logger(ctx).Warn("variable fully obscured",
					zap.String("tile", bs.Tile), zap.String("date", bs.Date.Format("20060102")), zap.String("variable", string(v)))
				continue
			}
			return nil, fmt.Errorf("ProcessDate[%s/%s].infill(%s): %w", bs.Tile, bs.Date.Format("20060102"), v, err)
		}
	}

	bundle.Infilled = raster.NewMask(bs.Ref)
	infilled := 0
	iceCount := 0
	for i := range ice.Data {
		if ice.Data[i] {
			iceCount++
			if cloud.Data[i] {
				bundle.Infilled.Data[i] = true
				infilled++
			}
		}
	}
	bundle.Attrs = common.DateAttrs{
		UsableFraction: report.UsableFraction,
		CloudFraction:  report.CloudFraction,
	}
	if iceCount > 0 {
		bundle.Attrs.InfillFraction = float64(infilled) / float64(iceCount) * 100
	}
	return bundle, nil
}
