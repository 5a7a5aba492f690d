package common

import (
	"fmt"
	"time"
)

// Band identifies one of the Sentinel-2 20m spectral bands used by the
// classifier and the parameter retrieval.
type Band int

const (
	B02 Band = iota // blue
	B03             // green
	B04             // red
	B05             // red edge 1
	B06             // red edge 2
	B07             // red edge 3
	B8A             // narrow NIR
	B11             // SWIR 1
	B12             // SWIR 2
)

// NBands is the length of a pixel reflectance vector.
const NBands = 9

var bandNames = [NBands]string{"B02", "B03", "B04", "B05", "B06", "B07", "B8A", "B11", "B12"}

func (b Band) String() string {
	if b < 0 || int(b) >= NBands {
		return fmt.Sprintf("Band(%d)", int(b))
	}
	return bandNames[b]
}

// Bands returns all bands in vector order.
func Bands() [NBands]Band {
	return [NBands]Band{B02, B03, B04, B05, B06, B07, B8A, B11, B12}
}

// ReflectanceScale converts Sentinel-2 L2A digital numbers to reflectance.
const ReflectanceScale = 1.0 / 10000.0

// BandFileName returns the name of the raster file for a (tile, date, band).
// The identifiers are structured: names are always built, never parsed back.
func BandFileName(tile string, date time.Time, band Band) string {
	return fmt.Sprintf("%s_%s_%s.tif", tile, date.Format("20060102"), band)
}

// CloudFileName returns the name of the cloud probability raster for a (tile, date).
func CloudFileName(tile string, date time.Time) string {
	return fmt.Sprintf("%s_%s_CLD.tif", tile, date.Format("20060102"))
}

// IceMaskFileName returns the name of the static ice mask raster of a tile.
func IceMaskFileName(tile string) string {
	return fmt.Sprintf("%s_icemask.tif", tile)
}

// GeoRefFileName returns the name of the georeferencing sidecar of a (tile, date).
func GeoRefFileName(tile string, date time.Time) string {
	return fmt.Sprintf("%s_%s_georef.json", tile, date.Format("20060102"))
}
