package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/image/tiff"

	"github.com/fsn1995/RemoteIceSurfaceAnalyser/common"
	"github.com/fsn1995/RemoteIceSurfaceAnalyser/raster"
	"github.com/fsn1995/RemoteIceSurfaceAnalyser/service/log"
)

// Local reads band sets from a directory of Gray16 TIFF files produced by
// the external ingestion service. Band values are L2A digital numbers
// (reflectance x 10000, 0 = no data); the cloud layer holds probability
// percent. Georeferencing comes from a JSON sidecar per date.
type Local struct {
	Dir string
}

// NewLocal creates a provider rooted at dir.
func NewLocal(dir string) *Local {
	return &Local{Dir: dir}
}

// AcquireBandSet implements Provider.
func (l *Local) AcquireBandSet(ctx context.Context, tile string, date time.Time) (*BandSet, error) {
	// Resolve every layer first: a date with no file at all is unavailable,
	// a date with only part of its layers is corrupt.
	paths := make(map[common.Band]string, common.NBands)
	var missing []string
	for _, band := range common.Bands() {
		path, err := l.resolve(tile, date, common.BandFileName(tile, date, band))
		switch {
		case err == nil:
			paths[band] = path
		case errors.As(err, &ErrUnavailable{}):
			missing = append(missing, band.String())
		default:
			return nil, err
		}
	}
	cldPath, err := l.resolve(tile, date, common.CloudFileName(tile, date))
	switch {
	case err == nil:
	case errors.As(err, &ErrUnavailable{}):
		missing = append(missing, "CLD")
	default:
		return nil, err
	}
	if len(missing) == common.NBands+1 {
		return nil, ErrUnavailable{Tile: tile, Date: date}
	}
	if len(missing) > 0 {
		return nil, ErrCorrupt{Tile: tile, Date: date, Detail: fmt.Sprintf("missing layers %v", missing)}
	}

	ref, err := l.readGeoRef(tile, date)
	if err != nil {
		return nil, err
	}

	bs := &BandSet{
		Tile:  tile,
		Date:  common.Day(date),
		Ref:   ref,
		Bands: map[common.Band]*raster.Grid{},
	}
	for band, path := range paths {
		g, err := l.readGrid(path, ref, true)
		if err != nil {
			return nil, ErrCorrupt{Tile: tile, Date: date, Detail: fmt.Sprintf("band %s: %v", band, err)}
		}
		bs.Bands[band] = g
	}
	if bs.CloudProb, err = l.readGrid(cldPath, ref, false); err != nil {
		return nil, ErrCorrupt{Tile: tile, Date: date, Detail: fmt.Sprintf("cloud layer: %v", err)}
	}

	if err := bs.Validate(); err != nil {
		return nil, ErrCorrupt{Tile: tile, Date: date, Detail: err.Error()}
	}
	log.Logger(ctx).Sugar().Debugf("acquired band set %s/%s", tile, date.Format("20060102"))
	return bs, nil
}

// IceMask implements Provider. Any non-zero pixel is ice.
func (l *Local) IceMask(ctx context.Context, tile string) (*raster.Mask, error) {
	img, err := l.readImage(filepath.Join(l.Dir, common.IceMaskFileName(tile)))
	if err != nil {
		return nil, fmt.Errorf("Local.IceMask[%s]: %w", tile, err)
	}
	bounds := img.Bounds()
	m := raster.NewMask(raster.GeoRef{Width: bounds.Dx(), Height: bounds.Dy()})
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, _, _, _ := img.At(x, y).RGBA()
			m.Data[(y-bounds.Min.Y)*bounds.Dx()+(x-bounds.Min.X)] = r != 0
		}
	}
	return m, nil
}

// resolve finds exactly one file for the constructed name. Zero matches is
// unavailable, more than one is ambiguous: a multi-match is never tolerated.
func (l *Local) resolve(tile string, date time.Time, name string) (string, error) {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	matches, err := filepath.Glob(filepath.Join(l.Dir, base+".*"))
	if err != nil {
		return "", ErrCorrupt{Tile: tile, Date: date, Detail: err.Error()}
	}
	var candidates []string
	for _, m := range matches {
		switch strings.ToLower(filepath.Ext(m)) {
		case ".tif", ".tiff":
			candidates = append(candidates, m)
		}
	}
	switch len(candidates) {
	case 0:
		return "", ErrUnavailable{Tile: tile, Date: date}
	case 1:
		return candidates[0], nil
	}
	return "", ErrAmbiguous{Tile: tile, Date: date, Candidates: candidates}
}

func (l *Local) readGeoRef(tile string, date time.Time) (raster.GeoRef, error) {
	b, err := os.ReadFile(filepath.Join(l.Dir, common.GeoRefFileName(tile, date)))
	if err != nil {
		return raster.GeoRef{}, ErrCorrupt{Tile: tile, Date: date, Detail: err.Error()}
	}
	var ref raster.GeoRef
	if err := json.Unmarshal(b, &ref); err != nil {
		return raster.GeoRef{}, ErrCorrupt{Tile: tile, Date: date, Detail: fmt.Sprintf("georef sidecar: %v", err)}
	}
	return ref, nil
}

func (l *Local) readImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return tiff.Decode(f)
}

// readGrid decodes a Gray16 TIFF into a grid. With scale set, digital
// numbers are converted to reflectance and 0 becomes no-data.
func (l *Local) readGrid(path string, ref raster.GeoRef, scale bool) (*raster.Grid, error) {
	img, err := l.readImage(path)
	if err != nil {
		return nil, err
	}
	bounds := img.Bounds()
	if bounds.Dx() != ref.Width || bounds.Dy() != ref.Height {
		return nil, fmt.Errorf("raster is %dx%d, georeferencing says %dx%d", bounds.Dx(), bounds.Dy(), ref.Width, ref.Height)
	}
	g := raster.New(ref)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, _, _, _ := img.At(x, y).RGBA()
			dn := float64(r)
			i := (y-bounds.Min.Y)*bounds.Dx() + (x - bounds.Min.X)
			if scale {
				if dn == 0 {
					g.Data[i] = math.NaN()
				} else {
					g.Data[i] = dn * common.ReflectanceScale
				}
			} else {
				g.Data[i] = dn
			}
		}
	}
	return g, nil
}
