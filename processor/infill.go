package processor

import (
	"fmt"

	"github.com/fsn1995/RemoteIceSurfaceAnalyser/raster"
)

// Filler infills the cloud-masked pixels of a single raster. It returns the
// number of pixels filled. Callers depend only on this interface, so the
// substitution policy can be swapped for a true spatial interpolator.
type Filler interface {
	Fill(g *raster.Grid, cloud, ice *raster.Mask) (int, error)
}

// ErrFullyObscured is returned when every ice pixel of the raster is
// cloud-masked: there is nothing to infill from.
type ErrFullyObscured struct{}

func (e ErrFullyObscured) Error() string {
	return "fully obscured: no clear ice pixel to infill from"
}

// MedianFiller replaces every cloudy ice pixel with the scalar median of
// the clear ice pixels of the same raster. True 2-D interpolation would be
// preferable but is prohibitive at full tile resolution; the median is the
// adopted accuracy/cost trade-off.
type MedianFiller struct{}

// Fill implements Filler.
func (MedianFiller) Fill(g *raster.Grid, cloud, ice *raster.Mask) (int, error) {
	if len(cloud.Data) != len(g.Data) || len(ice.Data) != len(g.Data) {
		return 0, fmt.Errorf("fill: mask length does not match grid %s", g.Ref)
	}
	median, ok := raster.MedianWhere(g, func(i int) bool {
		return ice.Data[i] && !cloud.Data[i]
	})
	if !ok {
		return 0, ErrFullyObscured{}
	}
	filled := 0
	for i := range g.Data {
		if ice.Data[i] && cloud.Data[i] {
			g.Data[i] = median
			filled++
		}
	}
	return filled, nil
}
