package common

import (
	"fmt"
	"time"

	"github.com/fsn1995/RemoteIceSurfaceAnalyser/raster"
)

// Bundle holds the output rasters of one date of a tile series, with their
// provenance. A bundle is produced exactly once, either by the per-date
// processor (Observed) or by the temporal infill engine (Synthesized).
type Bundle struct {
	Tile   string
	Date   time.Time
	Source Status // StatusOBSERVED or StatusSYNTHESIZED
	Ref    raster.GeoRef

	Vars map[Variable]*raster.Grid

	// Obscured marks variables that could not be spatially infilled
	// (fully_obscured): the grid carries no-data on cloud pixels.
	Obscured map[Variable]bool

	// Infilled marks the pixels whose values were substituted by the
	// spatial infill engine (cloudy ice pixels) rather than observed.
	Infilled *raster.Mask

	// Suspect marks pixels of a synthesized bundle whose anchors disagree
	// in infill provenance: one anchor observed the sky, the other was
	// infilled. Values there may be physically unrealistic.
	Suspect *raster.Mask

	Attrs DateAttrs
}

// Validate checks the internal invariant of the bundle: every raster
// shares the bundle georeferencing.
func (b *Bundle) Validate() error {
	if len(b.Vars) == 0 {
		return fmt.Errorf("bundle %s/%s: no variables", b.Tile, b.Date.Format("20060102"))
	}
	for v, g := range b.Vars {
		if !g.Ref.Equal(b.Ref) {
			return fmt.Errorf("bundle %s/%s: variable %s georeferencing %s differs from bundle %s",
				b.Tile, b.Date.Format("20060102"), v, g.Ref, b.Ref)
		}
	}
	if b.Infilled != nil && !b.Infilled.Ref.Equal(b.Ref) {
		return fmt.Errorf("bundle %s/%s: infill mask georeferencing differs", b.Tile, b.Date.Format("20060102"))
	}
	if b.Suspect != nil && !b.Suspect.Ref.Equal(b.Ref) {
		return fmt.Errorf("bundle %s/%s: suspect mask georeferencing differs", b.Tile, b.Date.Format("20060102"))
	}
	return nil
}
