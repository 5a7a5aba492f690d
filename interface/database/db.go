package db

import (
	"context"
	"fmt"
	"time"

	"github.com/fsn1995/RemoteIceSurfaceAnalyser/common"
)

// Run is one tile-processing run: one tile, one window, one owner.
type Run struct {
	ID      string        `json:"id"`
	Tile    string        `json:"tile"`
	Start   time.Time     `json:"start"`
	End     time.Time     `json:"end"`
	Status  common.Status `json:"status"`
	Message string        `json:"message,omitempty"`
}

// Date is the persisted state of one (run, date) unit.
type Date struct {
	ID      int              `json:"id"`
	RunID   string           `json:"run_id"`
	Date    time.Time        `json:"date"`
	Status  common.Status    `json:"status"`
	Reason  common.Reason    `json:"reason,omitempty"`
	Message string           `json:"message,omitempty"`
	Attrs   common.DateAttrs `json:"attrs"`
}

type ErrAlreadyExists struct {
	Type, ID string
}

func (e ErrAlreadyExists) Error() string {
	return fmt.Sprintf("%s already exists: %s", e.Type, e.ID)
}

type ErrNotFound struct {
	Type, ID string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Type, e.ID)
}

// StatusCount counts the dates of a run per status.
type StatusCount struct {
	New, Pending, Observed, Rejected, Failed, Synthesized int64
}

// Set the number of occurences for a given status
func (s *StatusCount) Set(status common.Status, nb int64) {
	switch status {
	case common.StatusNEW:
		s.New = nb
	case common.StatusPENDING:
		s.Pending = nb
	case common.StatusOBSERVED:
		s.Observed = nb
	case common.StatusREJECTED:
		s.Rejected = nb
	case common.StatusFAILED:
		s.Failed = nb
	case common.StatusSYNTHESIZED:
		s.Synthesized = nb
	}
}

// RunBackend persists runs and their per-date states for audit and for the
// status API. Every date row is written by exactly one worker.
type RunBackend interface {
	// CreateRun stores a new run, may return ErrAlreadyExists
	CreateRun(ctx context.Context, run Run) error
	// UpdateRun updates status & message (if != nil), may return ErrNotFound
	UpdateRun(ctx context.Context, id string, status common.Status, message *string) error
	// Run returns the run with the given id, may return ErrNotFound
	Run(ctx context.Context, id string) (Run, error)
	// Runs lists the runs of a tile (all tiles if tile == "")
	Runs(ctx context.Context, tile string) ([]Run, error)

	// CreateDate stores a new (run, date) unit, returning its id
	CreateDate(ctx context.Context, date Date) (int, error)
	// UpdateDate updates the unit status, reason, message and attrs, may return ErrNotFound
	UpdateDate(ctx context.Context, runID string, day time.Time, status common.Status, reason common.Reason, message string, attrs common.DateAttrs) error
	// Dates lists the units of a run, optionally filtered by status
	Dates(ctx context.Context, runID string, status string) ([]Date, error)
	// DatesStatus counts the units of the run per status
	DatesStatus(ctx context.Context, runID string) (StatusCount, error)
}
