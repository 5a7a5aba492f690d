package classifier

import "github.com/fsn1995/RemoteIceSurfaceAnalyser/common"

// BroadbandAlbedo converts a narrowband reflectance vector to broadband
// albedo after Knap et al. (1999) / Liang (2002):
//
//	a = 0.356 B03 + 0.130 B05 + 0.373 B8A + 0.085 B11 + 0.072 B12 - 0.0018
func BroadbandAlbedo(v [common.NBands]float64) float64 {
	return 0.356*v[common.B03] + 0.13*v[common.B05] + 0.373*v[common.B8A] +
		0.085*v[common.B11] + 0.072*v[common.B12] - 0.0018
}
