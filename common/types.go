package common

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

const ResultTypeDate = "date"

// Variable names one of the per-date output rasters.
type Variable string

const (
	VarClass    Variable = "classified"
	VarAlbedo   Variable = "albedo"
	VarGrain    Variable = "grain_size"
	VarDensity  Variable = "density"
	VarImpurity Variable = "impurity"
)

// Variables returns all variables in canonical order.
// Parameter variables are only populated when retrieval is enabled.
func Variables() []Variable {
	return []Variable{VarClass, VarAlbedo, VarGrain, VarDensity, VarImpurity}
}

// Continuous returns false for nominal variables that must not be
// linearly interpolated in time.
func (v Variable) Continuous() bool {
	return v != VarClass
}

// DateAttrs are the quality and processing metrics of one (tile, date) unit.
type DateAttrs struct {
	UsableFraction float64 `json:"usable_fraction"` // % of ice pixels clear and spectrally valid
	CloudFraction  float64 `json:"cloud_fraction"`  // % of all pixels flagged cloudy
	InfillFraction float64 `json:"infill_fraction"` // % of ice pixels spatially infilled
}

// TileJob is the payload of a tile-processing job: one tile, one window.
type TileJob struct {
	Tile  string    `json:"tile"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Result is the event payload published after each per-date unit.
type Result struct {
	Type    string    `json:"type"` // date (ResultTypeDate)
	RunID   string    `json:"run_id"`
	Tile    string    `json:"tile"`
	Date    time.Time `json:"date"`
	Status  Status    `json:"status"`
	Reason  Reason    `json:"reason,omitempty"`
	Message string    `json:"message,omitempty"`
}

// AuditEntry records one terminal decision of the run for a (tile, date).
type AuditEntry struct {
	Tile    string    `json:"tile"`
	Date    time.Time `json:"date"`
	Status  Status    `json:"status"`
	Reason  Reason    `json:"reason,omitempty"`
	Message string    `json:"message,omitempty"`
}

// Value implements the driver.Value interface
func (a DateAttrs) Value() (driver.Value, error) {
	return json.Marshal(a)
}

// Scan implements the sql.Scanner interface.
func (a *DateAttrs) Scan(value interface{}) error {
	if value == nil {
		*a = DateAttrs{}
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(b, &a)
}

// Day truncates a timestamp to its UTC acquisition day.
// All dates of a series are compared at day resolution.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
