package raster

import (
	"fmt"
	"math"
)

// Grid is a 2-D numeric raster over a georeferenced tile.
// Values are stored row-major. No-data is NaN.
type Grid struct {
	Ref  GeoRef
	Data []float64
}

// New creates a grid filled with no-data.
func New(ref GeoRef) *Grid {
	g := &Grid{Ref: ref, Data: make([]float64, ref.Pixels())}
	for i := range g.Data {
		g.Data[i] = math.NaN()
	}
	return g
}

// Full creates a grid filled with a constant value.
func Full(ref GeoRef, v float64) *Grid {
	g := &Grid{Ref: ref, Data: make([]float64, ref.Pixels())}
	for i := range g.Data {
		g.Data[i] = v
	}
	return g
}

// FromData wraps a row-major slice into a grid.
func FromData(ref GeoRef, data []float64) (*Grid, error) {
	if len(data) != ref.Pixels() {
		return nil, fmt.Errorf("grid data length %d does not match %s", len(data), ref)
	}
	return &Grid{Ref: ref, Data: data}, nil
}

// Clone returns a deep copy of the grid.
func (g *Grid) Clone() *Grid {
	c := &Grid{Ref: g.Ref, Data: make([]float64, len(g.Data))}
	copy(c.Data, g.Data)
	return c
}

// Valid returns true if the pixel holds a value.
func (g *Grid) Valid(i int) bool {
	return !math.IsNaN(g.Data[i])
}

// ValidCount returns the number of pixels holding a value.
func (g *Grid) ValidCount() int {
	n := 0
	for _, v := range g.Data {
		if !math.IsNaN(v) {
			n++
		}
	}
	return n
}
