// Package lut holds the precomputed parameter table mapping simulated
// reflectance vectors to physical ice surface parameters. The table is
// built offline, loaded once at startup and shared read-only by every
// retrieval worker.
package lut

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/fsn1995/RemoteIceSurfaceAnalyser/common"
)

// Row is one simulation of the radiative transfer model.
type Row struct {
	Reflectance [common.NBands]float64 `json:"reflectance"`
	GrainSize   float64                `json:"grain_size_um"`
	Density     float64                `json:"density_kgm3"`
	Impurity    float64                `json:"impurity_ppb"`
}

// Table is an immutable, ordered collection of simulated rows.
type Table struct {
	rows []Row
}

// New builds a table from rows, preserving their order.
func New(rows []Row) (*Table, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("lut: empty table")
	}
	t := &Table{rows: make([]Row, len(rows))}
	copy(t.rows, rows)
	return t, nil
}

// Load reads a table from a JSON array of rows.
func Load(r io.Reader) (*Table, error) {
	var rows []Row
	if err := json.NewDecoder(r).Decode(&rows); err != nil {
		return nil, fmt.Errorf("lut.Load: %w", err)
	}
	return New(rows)
}

// LoadFile reads a table from a JSON file.
func LoadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("lut.LoadFile: %w", err)
	}
	defer f.Close()
	return Load(f)
}

func (t *Table) Len() int { return len(t.rows) }

func (t *Table) Row(i int) Row { return t.rows[i] }

// Nearest returns the index of the row whose reflectance vector has the
// minimum L1 distance to v, and that distance. Ties resolve to the first
// row in table order, so retrieval is deterministic.
func (t *Table) Nearest(v [common.NBands]float64) (int, float64) {
	best, bestDist := 0, math.Inf(1)
	for i := range t.rows {
		d := 0.0
		for b := 0; b < common.NBands; b++ {
			d += math.Abs(t.rows[i].Reflectance[b] - v[b])
			if d >= bestDist {
				break
			}
		}
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	return best, bestDist
}

// NearestBatch retrieves the nearest row for every vector, chunking the
// work across nWorkers goroutines. This is the dominant per-date cost:
// the distance loop runs over flat slices, not per-pixel callbacks.
func (t *Table) NearestBatch(ctx context.Context, vectors [][common.NBands]float64, nWorkers int) ([]int, error) {
	if nWorkers <= 0 {
		nWorkers = runtime.NumCPU()
	}
	out := make([]int, len(vectors))
	chunk := (len(vectors) + nWorkers - 1) / nWorkers
	if chunk == 0 {
		return out, nil
	}

	wg, ctx := errgroup.WithContext(ctx)
	for lo := 0; lo < len(vectors); lo += chunk {
		lo, hi := lo, lo+chunk
		if hi > len(vectors) {
			hi = len(vectors)
		}
		wg.Go(func() error {
			for i := lo; i < hi; i++ {
				if i%4096 == 0 && ctx.Err() != nil {
					return ctx.Err()
				}
				out[i], _ = t.Nearest(vectors[i])
			}
			return nil
		})
	}
	if err := wg.Wait(); err != nil {
		return nil, fmt.Errorf("lut.NearestBatch: %w", err)
	}
	return out, nil
}
