// Package temporal detects dates missing from a tile series and synthesizes
// them by pixelwise linear interpolation between the nearest observed
// anchors. It only runs once every per-date unit of the window has
// finished: the nearest future anchor of a gap is unknowable before that.
package temporal

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/fsn1995/RemoteIceSurfaceAnalyser/common"
	"github.com/fsn1995/RemoteIceSurfaceAnalyser/raster"
	"github.com/fsn1995/RemoteIceSurfaceAnalyser/service/log"
)

// Window is the processing window of a run: every date from Start to End
// at the configured cadence is expected in the output series.
type Window struct {
	Start       time.Time
	End         time.Time
	CadenceDays int
}

// Validate checks the window bounds and cadence.
func (w Window) Validate() error {
	if w.CadenceDays <= 0 {
		return fmt.Errorf("cadence %d days: must be positive", w.CadenceDays)
	}
	if common.Day(w.End).Before(common.Day(w.Start)) {
		return fmt.Errorf("window end %s before start %s", w.End.Format("20060102"), w.Start.Format("20060102"))
	}
	return nil
}

// ExpectedDates returns every date of the window at the cadence.
func (w Window) ExpectedDates() []time.Time {
	var dates []time.Time
	end := common.Day(w.End)
	for d := common.Day(w.Start); !d.After(end); d = d.AddDate(0, 0, w.CadenceDays) {
		dates = append(dates, d)
	}
	return dates
}

// Skipped records an expected date that could not be synthesized.
type Skipped struct {
	Date   time.Time
	Reason common.Reason
}

// Synthesize fills the gaps of the window: every expected date absent from
// the observed series gets a bundle interpolated between its nearest
// observed anchors. Dates before the first or after the last observed date
// are never synthesized (no extrapolation); they are returned as skipped.
func Synthesize(ctx context.Context, observed []*common.Bundle, w Window) ([]*common.Bundle, []Skipped, error) {
	if err := w.Validate(); err != nil {
		return nil, nil, err
	}

	byDay := make(map[time.Time]*common.Bundle, len(observed))
	days := make([]time.Time, 0, len(observed))
	for _, b := range observed {
		day := common.Day(b.Date)
		if _, ok := byDay[day]; ok {
			return nil, nil, fmt.Errorf("temporal: duplicate observed date %s", day.Format("20060102"))
		}
		byDay[day] = b
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	var synthesized []*common.Bundle
	var skipped []Skipped
	for _, day := range w.ExpectedDates() {
		if _, ok := byDay[day]; ok {
			continue // Observed
		}
		past, future, ok := anchors(days, day)
		if !ok {
			skipped = append(skipped, Skipped{Date: day, Reason: common.ReasonUnsynthesizable})
			continue
		}
		pb, fb := byDay[past], byDay[future]
		if !pb.Ref.Equal(fb.Ref) {
			skipped = append(skipped, Skipped{Date: day, Reason: common.ReasonInconsistentGeoreference})
			continue
		}
		b := lerpBundle(pb, fb, day)
		log.Logger(ctx).Sugar().Debugf("synthesized %s/%s between %s and %s",
			b.Tile, day.Format("20060102"), past.Format("20060102"), future.Format("20060102"))
		synthesized = append(synthesized, b)
	}
	return synthesized, skipped, nil
}

// anchors returns the nearest observed days strictly before and strictly
// after day. ok is false if either side has none.
func anchors(days []time.Time, day time.Time) (past, future time.Time, ok bool) {
	i := sort.Search(len(days), func(i int) bool { return !days[i].Before(day) })
	if i == 0 || i == len(days) {
		return past, future, false
	}
	// days[i] is the first day >= day; day itself is not observed
	return days[i-1], days[i], true
}

// lerpBundle synthesizes a bundle at day from two anchor bundles.
// Continuous variables interpolate linearly per pixel; the nominal class
// label takes the nearer anchor (ties to past). Pixels infilled in exactly
// one anchor are flagged suspect: their synthesis mixes true-sky and
// substituted values and may be physically unrealistic.
func lerpBundle(past, future *common.Bundle, day time.Time) *common.Bundle {
	t0 := common.Day(past.Date)
	t1 := common.Day(future.Date)
	f := day.Sub(t0).Hours() / t1.Sub(t0).Hours()
	nearerPast := day.Sub(t0) <= t1.Sub(day)

	b := &common.Bundle{
		Tile:     past.Tile,
		Date:     day,
		Source:   common.StatusSYNTHESIZED,
		Ref:      past.Ref,
		Vars:     map[common.Variable]*raster.Grid{},
		Obscured: map[common.Variable]bool{},
	}
	for v, pg := range past.Vars {
		fg, ok := future.Vars[v]
		if !ok {
			continue
		}
		g := raster.New(b.Ref)
		if v.Continuous() {
			for i := range g.Data {
				a, c := pg.Data[i], fg.Data[i]
				if math.IsNaN(a) || math.IsNaN(c) {
					continue
				}
				g.Data[i] = a + (c-a)*f
			}
		} else {
			src := pg
			if !nearerPast {
				src = fg
			}
			copy(g.Data, src.Data)
		}
		b.Vars[v] = g
		b.Obscured[v] = past.Obscured[v] && future.Obscured[v]
	}

	b.Suspect = raster.NewMask(b.Ref)
	if past.Infilled != nil && future.Infilled != nil {
		for i := range b.Suspect.Data {
			b.Suspect.Data[i] = past.Infilled.Data[i] != future.Infilled.Data[i]
		}
	}
	return b
}
