package raster

import "fmt"

// GeoRef carries the georeferencing of a tile raster: pixel dimensions,
// GDAL-style affine transform and coordinate reference system.
// Every raster of a tile series must carry an equal GeoRef.
type GeoRef struct {
	Width     int        `json:"width"`
	Height    int        `json:"height"`
	Transform [6]float64 `json:"transform"` // x0, dx, rx, y0, ry, dy
	CRS       string     `json:"crs"`       // e.g. "EPSG:32622"
}

// Pixels returns the number of pixels of the grid.
func (g GeoRef) Pixels() int {
	return g.Width * g.Height
}

// Equal returns true if the two georeferencings are strictly identical.
func (g GeoRef) Equal(o GeoRef) bool {
	return g == o
}

func (g GeoRef) String() string {
	return fmt.Sprintf("%dx%d %s", g.Width, g.Height, g.CRS)
}
