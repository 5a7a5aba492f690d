// Package dataset merges the per-date bundles of a tile run into a single
// temporal series and derives its summary records and output artifacts.
package dataset

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/fsn1995/RemoteIceSurfaceAnalyser/common"
	"github.com/fsn1995/RemoteIceSurfaceAnalyser/raster"
)

// ErrInconsistentGeoref is returned by Merge when a bundle does not share
// the georeferencing of the dataset.
type ErrInconsistentGeoref struct {
	Got, Want raster.GeoRef
}

func (e ErrInconsistentGeoref) Error() string {
	return fmt.Sprintf("georeferencing %s differs from dataset %s", e.Got, e.Want)
}

// ErrDuplicateDate is returned by Merge when a different bundle already
// holds the date.
type ErrDuplicateDate struct {
	Date time.Time
}

func (e ErrDuplicateDate) Error() string {
	return fmt.Sprintf("date %s already merged with different content", e.Date.Format("20060102"))
}

// TileDataset is the merged temporal series of one tile, sorted by date,
// at most one bundle per day, all bundles sharing one georeferencing.
type TileDataset struct {
	Tile    string
	Ref     raster.GeoRef
	Bundles []*common.Bundle
}

// New creates an empty dataset. The georeferencing is fixed by the first
// merged bundle.
func New(tile string) *TileDataset {
	return &TileDataset{Tile: tile}
}

// Merge inserts a bundle into the series, keeping it sorted by date.
// Merging a value-identical bundle twice is a no-op; a different bundle on
// an occupied date is an ErrDuplicateDate, and a bundle with a different
// georeferencing an ErrInconsistentGeoref.
func (d *TileDataset) Merge(b *common.Bundle) error {
	if err := b.Validate(); err != nil {
		return fmt.Errorf("Merge.%w", err)
	}
	if b.Tile != d.Tile {
		return fmt.Errorf("Merge: bundle tile %s does not belong to dataset %s", b.Tile, d.Tile)
	}
	if len(d.Bundles) == 0 {
		d.Ref = b.Ref
	} else if !b.Ref.Equal(d.Ref) {
		return fmt.Errorf("Merge.%w", ErrInconsistentGeoref{Got: b.Ref, Want: d.Ref})
	}

	day := common.Day(b.Date)
	i := sort.Search(len(d.Bundles), func(i int) bool {
		return !common.Day(d.Bundles[i].Date).Before(day)
	})
	if i < len(d.Bundles) && common.Day(d.Bundles[i].Date).Equal(day) {
		if sameBundle(d.Bundles[i], b) {
			return nil
		}
		return fmt.Errorf("Merge.%w", ErrDuplicateDate{Date: day})
	}
	d.Bundles = append(d.Bundles, nil)
	copy(d.Bundles[i+1:], d.Bundles[i:])
	d.Bundles[i] = b
	return nil
}

// Len returns the number of dates in the series.
func (d *TileDataset) Len() int { return len(d.Bundles) }

// Dates returns the days of the series in order.
func (d *TileDataset) Dates() []time.Time {
	dates := make([]time.Time, len(d.Bundles))
	for i, b := range d.Bundles {
		dates[i] = common.Day(b.Date)
	}
	return dates
}

// At returns the bundle of the given day, or nil.
func (d *TileDataset) At(date time.Time) *common.Bundle {
	day := common.Day(date)
	for _, b := range d.Bundles {
		if common.Day(b.Date).Equal(day) {
			return b
		}
	}
	return nil
}

// Variables returns the variables populated across the series, in
// canonical order.
func (d *TileDataset) Variables() []common.Variable {
	var vars []common.Variable
	for _, v := range common.Variables() {
		for _, b := range d.Bundles {
			if _, ok := b.Vars[v]; ok {
				vars = append(vars, v)
				break
			}
		}
	}
	return vars
}

func sameBundle(a, b *common.Bundle) bool {
	if a == b {
		return true
	}
	if a.Source != b.Source || a.Attrs != b.Attrs || len(a.Vars) != len(b.Vars) {
		return false
	}
	for v, ag := range a.Vars {
		bg, ok := b.Vars[v]
		if !ok || !sameData(ag.Data, bg.Data) {
			return false
		}
	}
	return true
}

// sameData compares pixel values, treating no-data as equal to no-data.
func sameData(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] && !(math.IsNaN(a[i]) && math.IsNaN(b[i])) {
			return false
		}
	}
	return true
}
