// Package ingestion defines the collaborator that supplies calibrated band
// rasters to the core. Acquisition, atmospheric correction and network retry
// management happen behind this interface; the core only distinguishes a
// date that is unavailable, corrupt or ambiguous.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fsn1995/RemoteIceSurfaceAnalyser/common"
	"github.com/fsn1995/RemoteIceSurfaceAnalyser/raster"
)

// BandSet is the calibrated input of one (tile, date): the reflectance
// grids of all bands plus the cloud probability layer. All grids share
// the same georeferencing.
type BandSet struct {
	Tile string
	Date time.Time
	Ref  raster.GeoRef

	// Bands holds reflectance (0..1). Spectrally invalid pixels are no-data.
	Bands map[common.Band]*raster.Grid

	// CloudProb holds the cloud probability in percent (0..100).
	CloudProb *raster.Grid
}

// Vector returns the reflectance vector of pixel i and whether every band
// holds a valid value there.
func (bs *BandSet) Vector(i int) ([common.NBands]float64, bool) {
	var v [common.NBands]float64
	for b, band := range common.Bands() {
		g := bs.Bands[band]
		if g == nil || !g.Valid(i) {
			return v, false
		}
		v[b] = g.Data[i]
	}
	return v, true
}

// Validate checks the per-date invariant: all bands and the cloud layer
// present, sharing the band set georeferencing.
func (bs *BandSet) Validate() error {
	for _, band := range common.Bands() {
		g, ok := bs.Bands[band]
		if !ok {
			return fmt.Errorf("band set %s/%s: missing band %s", bs.Tile, bs.Date.Format("20060102"), band)
		}
		if !g.Ref.Equal(bs.Ref) {
			return fmt.Errorf("band set %s/%s: band %s georeferencing %s differs from %s",
				bs.Tile, bs.Date.Format("20060102"), band, g.Ref, bs.Ref)
		}
	}
	if bs.CloudProb == nil {
		return fmt.Errorf("band set %s/%s: missing cloud layer", bs.Tile, bs.Date.Format("20060102"))
	}
	if !bs.CloudProb.Ref.Equal(bs.Ref) {
		return fmt.Errorf("band set %s/%s: cloud layer georeferencing differs", bs.Tile, bs.Date.Format("20060102"))
	}
	return nil
}

// Provider supplies exactly one band set per (tile, date), or a typed error.
type Provider interface {
	// AcquireBandSet returns the band set of the given acquisition.
	// May return ErrUnavailable, ErrCorrupt or ErrAmbiguous.
	AcquireBandSet(ctx context.Context, tile string, date time.Time) (*BandSet, error)
	// IceMask returns the static analysis mask of the tile.
	IceMask(ctx context.Context, tile string) (*raster.Mask, error)
}

// ErrUnavailable signals that the date has no retrievable acquisition.
type ErrUnavailable struct {
	Tile string
	Date time.Time
}

func (e ErrUnavailable) Error() string {
	return fmt.Sprintf("no acquisition available for %s/%s", e.Tile, e.Date.Format("20060102"))
}

// ErrCorrupt signals that data is present for the date but invalid.
type ErrCorrupt struct {
	Tile   string
	Date   time.Time
	Detail string
}

func (e ErrCorrupt) Error() string {
	return fmt.Sprintf("corrupt acquisition for %s/%s: %s", e.Tile, e.Date.Format("20060102"), e.Detail)
}

// ErrAmbiguous signals that more than one raster set matches the
// (tile, date). The provider never silently picks one.
type ErrAmbiguous struct {
	Tile       string
	Date       time.Time
	Candidates []string
}

func (e ErrAmbiguous) Error() string {
	return fmt.Sprintf("%d raster sets match %s/%s: %v", len(e.Candidates), e.Tile, e.Date.Format("20060102"), e.Candidates)
}

// Reason maps a provider error to the audit reason recorded for the date.
func Reason(err error) common.Reason {
	var (
		unavailable ErrUnavailable
		ambiguous   ErrAmbiguous
		corrupt     ErrCorrupt
	)
	switch {
	case errors.As(err, &unavailable):
		return common.ReasonUnavailable
	case errors.As(err, &ambiguous):
		return common.ReasonAmbiguous
	case errors.As(err, &corrupt):
		return common.ReasonCorrupt
	}
	return common.ReasonNone
}
