package dataset

import (
	"bufio"
	"bytes"
	"compress/flate"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/fsn1995/RemoteIceSurfaceAnalyser/common"
	"github.com/fsn1995/RemoteIceSurfaceAnalyser/raster"
)

const (
	artifactMagic   = "risa-tile"
	artifactVersion = 1
)

// header is the self-describing JSON preamble of a tile artifact. The body
// that follows holds one flate-compressed plane of little-endian float64
// per (date, variable), in header order, each prefixed with its compressed
// length. No-data is encoded as the fill value.
type header struct {
	Magic     string            `json:"magic"`
	Version   int               `json:"version"`
	Tile      string            `json:"tile"`
	Width     int               `json:"width"`
	Height    int               `json:"height"`
	Transform [6]float64        `json:"transform"`
	CRS       string            `json:"crs"`
	Fill      float64           `json:"fill"`
	Legend    map[string]string `json:"legend"`
	Variables []common.Variable `json:"variables"`
	Dates     []dateHeader      `json:"dates"`
}

type dateHeader struct {
	Date   string           `json:"date"`
	Source common.Status    `json:"source"`
	Attrs  common.DateAttrs `json:"attrs"`
}

// Encode writes the dataset as a self-describing artifact.
func (d *TileDataset) Encode(w io.Writer) error {
	vars := d.Variables()
	h := header{
		Magic:     artifactMagic,
		Version:   artifactVersion,
		Tile:      d.Tile,
		Width:     d.Ref.Width,
		Height:    d.Ref.Height,
		Transform: d.Ref.Transform,
		CRS:       d.Ref.CRS,
		Fill:      common.NoData,
		Legend:    common.ClassLegend(),
		Variables: vars,
	}
	for _, b := range d.Bundles {
		h.Dates = append(h.Dates, dateHeader{
			Date:   common.Day(b.Date).Format("2006-01-02"),
			Source: b.Source,
			Attrs:  b.Attrs,
		})
	}
	if err := json.NewEncoder(w).Encode(h); err != nil {
		return fmt.Errorf("Encode.header.%w", err)
	}

	plane := make([]byte, 8*d.Ref.Pixels())
	for _, b := range d.Bundles {
		for _, v := range vars {
			fillPlane(plane, b.Vars[v], d.Ref.Pixels())
			if err := writeBlock(w, plane); err != nil {
				return fmt.Errorf("Encode[%s/%s].%w", b.Date.Format("20060102"), v, err)
			}
		}
	}
	return nil
}

func fillPlane(dst []byte, g *raster.Grid, pixels int) {
	for i := 0; i < pixels; i++ {
		x := float64(common.NoData)
		if g != nil && !math.IsNaN(g.Data[i]) {
			x = g.Data[i]
		}
		binary.LittleEndian.PutUint64(dst[8*i:], math.Float64bits(x))
	}
}

func writeBlock(w io.Writer, plane []byte) error {
	var buf bytes.Buffer
	zw, err := flate.NewWriter(&buf, flate.BestSpeed)
	if err != nil {
		return err
	}
	if _, err := zw.Write(plane); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(buf.Len())); err != nil {
		return err
	}
	_, err = w.Write(buf.Bytes())
	return err
}

// Decode reads an artifact back into a dataset. Masks and per-variable
// obscuration are not part of the artifact and come back empty.
func Decode(r io.Reader) (*TileDataset, error) {
	br := bufio.NewReader(r)
	line, err := br.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("Decode.header.%w", err)
	}
	var h header
	if err := json.Unmarshal(line, &h); err != nil {
		return nil, fmt.Errorf("Decode.header.%w", err)
	}
	if h.Magic != artifactMagic || h.Version != artifactVersion {
		return nil, fmt.Errorf("Decode: not a tile artifact (magic %q version %d)", h.Magic, h.Version)
	}

	ref := raster.GeoRef{Width: h.Width, Height: h.Height, Transform: h.Transform, CRS: h.CRS}
	d := New(h.Tile)
	for _, dh := range h.Dates {
		date, err := time.Parse("2006-01-02", dh.Date)
		if err != nil {
			return nil, fmt.Errorf("Decode.date.%w", err)
		}
		b := &common.Bundle{
			Tile:     h.Tile,
			Date:     date,
			Source:   dh.Source,
			Ref:      ref,
			Vars:     map[common.Variable]*raster.Grid{},
			Obscured: map[common.Variable]bool{},
			Attrs:    dh.Attrs,
		}
		for _, v := range h.Variables {
			g, err := readBlock(br, ref, h.Fill)
			if err != nil {
				return nil, fmt.Errorf("Decode[%s/%s].%w", dh.Date, v, err)
			}
			b.Vars[v] = g
		}
		if err := d.Merge(b); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func readBlock(r io.Reader, ref raster.GeoRef, fill float64) (*raster.Grid, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	zr := flate.NewReader(io.LimitReader(r, int64(n)))
	defer zr.Close()
	plane := make([]byte, 8*ref.Pixels())
	if _, err := io.ReadFull(zr, plane); err != nil {
		return nil, err
	}
	g := raster.New(ref)
	for i := range g.Data {
		x := math.Float64frombits(binary.LittleEndian.Uint64(plane[8*i:]))
		if x != fill {
			g.Data[i] = x
		}
	}
	return g, nil
}

// summaryFile is the JSON sidecar written next to the tile artifact.
type summaryFile struct {
	Tile    string          `json:"tile"`
	Records []SummaryRecord `json:"records"`
	Classes []ClassSummary  `json:"classes"`
}

// WriteArtifacts writes the tile artifact and its summary sidecar into dir
// and returns the written paths. Upload and retention are the caller's
// concern.
func WriteArtifacts(dir string, d *TileDataset) (tilePath, summaryPath string, err error) {
	tilePath = filepath.Join(dir, d.Tile+"_dataset.bin")
	f, err := os.Create(tilePath)
	if err != nil {
		return "", "", fmt.Errorf("WriteArtifacts.%w", err)
	}
	bw := bufio.NewWriter(f)
	if err := d.Encode(bw); err != nil {
		f.Close()
		return "", "", err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return "", "", fmt.Errorf("WriteArtifacts.%w", err)
	}
	if err := f.Close(); err != nil {
		return "", "", fmt.Errorf("WriteArtifacts.%w", err)
	}

	summaryPath = filepath.Join(dir, d.Tile+"_summary.json")
	body, err := json.MarshalIndent(summaryFile{
		Tile:    d.Tile,
		Records: d.Summaries(),
		Classes: d.ClassSummaries(),
	}, "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("WriteArtifacts.%w", err)
	}
	if err := os.WriteFile(summaryPath, body, 0644); err != nil {
		return "", "", fmt.Errorf("WriteArtifacts.%w", err)
	}
	return tilePath, summaryPath, nil
}
