package common

// Reason qualifies why a date left the nominal processing path.
// Reasons are recorded with the date status and reported in the run audit.
type Reason string

const (
	ReasonNone Reason = ""

	// Admission: rejected by the quality gate.
	ReasonInsufficientIceArea Reason = "insufficient_ice_area"
	ReasonExcessCloud         Reason = "excess_cloud"

	// Data: the ingestion collaborator could not supply a usable band set.
	ReasonUnavailable Reason = "unavailable"
	ReasonCorrupt     Reason = "corrupt"
	ReasonAmbiguous   Reason = "ambiguous"

	// Invariant: rasters within the series disagree on shape/transform/CRS.
	ReasonInconsistentGeoreference Reason = "inconsistent_georeference"

	// Obscuration: no clear ice pixel left to infill from.
	ReasonFullyObscured Reason = "fully_obscured"

	// Boundary: a missing date with no valid past or future anchor.
	ReasonUnsynthesizable Reason = "unsynthesizable"
)
