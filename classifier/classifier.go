// Package classifier defines the trained surface classifier consumed by the
// pipeline. The model is a pre-built artifact: the core never trains or
// validates it, it only applies it as a pure function of the reflectance
// vector.
package classifier

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/fsn1995/RemoteIceSurfaceAnalyser/common"
)

// Classifier maps a pixel reflectance vector to a surface class.
// Implementations must be safe for concurrent use.
type Classifier interface {
	Classify(v [common.NBands]float64) common.Class
}

// Func adapts a plain function to the Classifier interface.
type Func func(v [common.NBands]float64) common.Class

func (f Func) Classify(v [common.NBands]float64) common.Class { return f(v) }

// Centroid is one labelled reference spectrum of a nearest-centroid model.
type Centroid struct {
	Class       common.Class           `json:"class"`
	Reflectance [common.NBands]float64 `json:"reflectance"`
}

// NearestCentroid classifies a pixel by the L1-nearest labelled centroid.
// Centroids are derived offline from field spectroscopy training data.
type NearestCentroid struct {
	centroids []Centroid
}

// NewNearestCentroid builds a model from labelled centroids.
func NewNearestCentroid(centroids []Centroid) (*NearestCentroid, error) {
	if len(centroids) == 0 {
		return nil, fmt.Errorf("classifier: no centroids")
	}
	m := &NearestCentroid{centroids: make([]Centroid, len(centroids))}
	copy(m.centroids, centroids)
	return m, nil
}

// LoadFile reads a nearest-centroid model from a JSON array of centroids.
func LoadFile(path string) (*NearestCentroid, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("classifier.LoadFile: %w", err)
	}
	var centroids []Centroid
	if err := json.Unmarshal(b, &centroids); err != nil {
		return nil, fmt.Errorf("classifier.LoadFile: %w", err)
	}
	return NewNearestCentroid(centroids)
}

// Classify implements Classifier.
func (m *NearestCentroid) Classify(v [common.NBands]float64) common.Class {
	best := common.ClassNone
	bestDist := math.Inf(1)
	for _, c := range m.centroids {
		d := 0.0
		for b := 0; b < common.NBands; b++ {
			d += math.Abs(c.Reflectance[b] - v[b])
		}
		if d < bestDist {
			best, bestDist = c.Class, d
		}
	}
	return best
}
