package processor

import (
	"context"
	"fmt"

	"github.com/fsn1995/RemoteIceSurfaceAnalyser/classifier"
	"github.com/fsn1995/RemoteIceSurfaceAnalyser/common"
	"github.com/fsn1995/RemoteIceSurfaceAnalyser/interface/ingestion"
	"github.com/fsn1995/RemoteIceSurfaceAnalyser/raster"
)

// classify maps every usable pixel to a surface class and a broadband
// albedo, and, when retrieval is enabled, to the physical parameters of
// its nearest parameter-table row. Pixels outside the ice mask, cloudy
// pixels and invalid vectors keep no-data.
func (p *Processor) classify(ctx context.Context, bs *ingestion.BandSet, cloud, ice *raster.Mask) (map[common.Variable]*raster.Grid, error) {
	vars := map[common.Variable]*raster.Grid{
		common.VarClass:  raster.New(bs.Ref),
		common.VarAlbedo: raster.New(bs.Ref),
	}

	// Candidate pixels and their reflectance vectors, flat for batching.
	indices := make([]int, 0, bs.Ref.Pixels()/4)
	vectors := make([][common.NBands]float64, 0, bs.Ref.Pixels()/4)
	for i := range ice.Data {
		if !ice.Data[i] || cloud.Data[i] {
			continue
		}
		v, ok := bs.Vector(i)
		if !ok {
			continue // invalid pixel: skipped, never fatal
		}
		indices = append(indices, i)
		vectors = append(vectors, v)
	}

	classGrid, albedoGrid := vars[common.VarClass], vars[common.VarAlbedo]
	for k, i := range indices {
		classGrid.Data[i] = float64(p.Classifier.Classify(vectors[k]))
		albedoGrid.Data[i] = classifier.BroadbandAlbedo(vectors[k])
	}

	if p.Opts.RetrieveParams && p.Table != nil {
		grain := raster.New(bs.Ref)
		density := raster.New(bs.Ref)
		impurity := raster.New(bs.Ref)

		rows, err := p.Table.NearestBatch(ctx, vectors, p.Opts.Workers)
		if err != nil {
			return nil, fmt.Errorf("classify.retrieve: %w", err)
		}
		for k, i := range indices {
			row := p.Table.Row(rows[k])
			grain.Data[i] = row.GrainSize
			density.Data[i] = row.Density
			impurity.Data[i] = row.Impurity
		}
		vars[common.VarGrain] = grain
		vars[common.VarDensity] = density
		vars[common.VarImpurity] = impurity
	}
	return vars, nil
}
