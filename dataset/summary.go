package dataset

import (
	"time"

	"github.com/fsn1995/RemoteIceSurfaceAnalyser/common"
	"github.com/fsn1995/RemoteIceSurfaceAnalyser/raster"
)

// SummaryRecord condenses one variable of one date into series-level
// statistics.
type SummaryRecord struct {
	Date          time.Time       `json:"date"`
	Source        common.Status   `json:"source"`
	Variable      common.Variable `json:"variable"`
	Mean          float64         `json:"mean"`
	Std           float64         `json:"std"`
	ValidFraction float64         `json:"valid_fraction"` // percent of pixels holding a value
}

// ClassSummary gives the footprint of one surface class on one date:
// pixel count and the albedo statistics over that class.
type ClassSummary struct {
	Date       time.Time     `json:"date"`
	Source     common.Status `json:"source"`
	Class      common.Class  `json:"class"`
	Name       string        `json:"name"`
	Count      int           `json:"count"`
	AlbedoMean float64       `json:"albedo_mean,omitempty"`
	AlbedoStd  float64       `json:"albedo_std,omitempty"`
}

// Summaries derives one record per (date, continuous variable) of the
// series.
func (d *TileDataset) Summaries() []SummaryRecord {
	var records []SummaryRecord
	for _, b := range d.Bundles {
		for _, v := range common.Variables() {
			if !v.Continuous() {
				continue
			}
			g, ok := b.Vars[v]
			if !ok {
				continue
			}
			mean, std, n := raster.MeanStdWhere(g, func(int) bool { return true })
			records = append(records, SummaryRecord{
				Date:          common.Day(b.Date),
				Source:        b.Source,
				Variable:      v,
				Mean:          mean,
				Std:           std,
				ValidFraction: 100 * float64(n) / float64(len(g.Data)),
			})
		}
	}
	return records
}

// ClassSummaries derives per-class pixel counts and albedo statistics for
// every date carrying a classified grid.
func (d *TileDataset) ClassSummaries() []ClassSummary {
	var records []ClassSummary
	for _, b := range d.Bundles {
		cg, ok := b.Vars[common.VarClass]
		if !ok {
			continue
		}
		albedo := b.Vars[common.VarAlbedo]
		for _, c := range common.Classes() {
			sel := func(i int) bool { return cg.Data[i] == float64(c) }
			n := 0
			for i := range cg.Data {
				if cg.Valid(i) && sel(i) {
					n++
				}
			}
			r := ClassSummary{
				Date:   common.Day(b.Date),
				Source: b.Source,
				Class:  c,
				Name:   c.String(),
				Count:  n,
			}
			if albedo != nil && n > 0 {
				r.AlbedoMean, r.AlbedoStd, _ = raster.MeanStdWhere(albedo, sel)
			}
			records = append(records, r)
		}
	}
	return records
}
