package dataset

import (
	"fmt"
	"math"

	"github.com/fsn1995/RemoteIceSurfaceAnalyser/common"
	"github.com/fsn1995/RemoteIceSurfaceAnalyser/raster"
)

// Downsample aggregates the series into consecutive buckets of the given
// length in days, anchored on the first date. Continuous variables average
// pixelwise over the bucket members; the nominal class takes the first
// bundle of the bucket. A bucket containing any synthesized member is
// itself Synthesized.
func (d *TileDataset) Downsample(days int) (*TileDataset, error) {
	if days <= 0 {
		return nil, fmt.Errorf("Downsample: bucket length %d days: must be positive", days)
	}
	out := New(d.Tile)
	if len(d.Bundles) == 0 {
		return out, nil
	}

	start := common.Day(d.Bundles[0].Date)
	var buckets [][]*common.Bundle
	for _, b := range d.Bundles {
		i := int(common.Day(b.Date).Sub(start).Hours()/24) / days
		for len(buckets) <= i {
			buckets = append(buckets, nil)
		}
		buckets[i] = append(buckets[i], b)
	}

	for i, members := range buckets {
		if len(members) == 0 {
			continue
		}
		b := aggregate(members)
		b.Date = start.AddDate(0, 0, i*days)
		if err := out.Merge(b); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func aggregate(members []*common.Bundle) *common.Bundle {
	first := members[0]
	b := &common.Bundle{
		Tile:     first.Tile,
		Source:   common.StatusOBSERVED,
		Ref:      first.Ref,
		Vars:     map[common.Variable]*raster.Grid{},
		Obscured: map[common.Variable]bool{},
		Infilled: raster.NewMask(first.Ref),
		Suspect:  raster.NewMask(first.Ref),
	}
	for _, m := range members {
		if m.Source == common.StatusSYNTHESIZED {
			b.Source = common.StatusSYNTHESIZED
		}
		orInto(b.Infilled, m.Infilled)
		orInto(b.Suspect, m.Suspect)
	}

	// A variable may be absent from some members of the bucket.
	vars := map[common.Variable]bool{}
	for _, m := range members {
		for v := range m.Vars {
			vars[v] = true
		}
	}

	for v := range vars {
		if !v.Continuous() {
			for _, m := range members {
				if g, ok := m.Vars[v]; ok {
					b.Vars[v] = g.Clone()
					b.Vars[v].Ref = b.Ref
					break
				}
			}
			continue
		}
		g := raster.New(b.Ref)
		for i := range g.Data {
			sum, n := 0.0, 0
			for _, m := range members {
				mg, ok := m.Vars[v]
				if !ok {
					continue
				}
				if x := mg.Data[i]; !math.IsNaN(x) {
					sum += x
					n++
				}
			}
			if n > 0 {
				g.Data[i] = sum / float64(n)
			}
		}
		b.Vars[v] = g
	}
	return b
}

func orInto(dst, src *raster.Mask) {
	if src == nil {
		return
	}
	for i := range dst.Data {
		dst.Data[i] = dst.Data[i] || src.Data[i]
	}
}
