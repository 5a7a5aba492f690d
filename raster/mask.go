package raster

// Mask is a 2-D boolean raster over a georeferenced tile.
type Mask struct {
	Ref  GeoRef
	Data []bool
}

// NewMask creates an all-false mask.
func NewMask(ref GeoRef) *Mask {
	return &Mask{Ref: ref, Data: make([]bool, ref.Pixels())}
}

// Count returns the number of set pixels.
func (m *Mask) Count() int {
	n := 0
	for _, v := range m.Data {
		if v {
			n++
		}
	}
	return n
}

// Fraction returns the set pixels as a percentage of all pixels.
func (m *Mask) Fraction() float64 {
	if len(m.Data) == 0 {
		return 0
	}
	return float64(m.Count()) / float64(len(m.Data)) * 100
}

// Clone returns a deep copy of the mask.
func (m *Mask) Clone() *Mask {
	c := &Mask{Ref: m.Ref, Data: make([]bool, len(m.Data))}
	copy(c.Data, m.Data)
	return c
}

// CloudMask derives a boolean cloud mask from a cloud probability grid.
// A pixel is cloudy iff its probability (percent) exceeds the threshold.
func CloudMask(prob *Grid, threshold float64) *Mask {
	m := NewMask(prob.Ref)
	for i, p := range prob.Data {
		m.Data[i] = prob.Valid(i) && p > threshold
	}
	return m
}
