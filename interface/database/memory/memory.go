// Package memory implements the run backend in process memory. It backs
// tests and runs without a database connection.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fsn1995/RemoteIceSurfaceAnalyser/common"
	db "github.com/fsn1995/RemoteIceSurfaceAnalyser/interface/database"
)

// Backend implements db.RunBackend
type Backend struct {
	mu     sync.Mutex
	runs   map[string]db.Run
	dates  map[string][]db.Date
	nextID int
}

// New creates an empty in-memory backend.
func New() *Backend {
	return &Backend{runs: map[string]db.Run{}, dates: map[string][]db.Date{}, nextID: 1}
}

// CreateRun implements RunBackend
func (b *Backend) CreateRun(ctx context.Context, run db.Run) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.runs[run.ID]; ok {
		return db.ErrAlreadyExists{Type: "run", ID: run.ID}
	}
	b.runs[run.ID] = run
	return nil
}

// UpdateRun implements RunBackend
func (b *Backend) UpdateRun(ctx context.Context, id string, status common.Status, message *string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	run, ok := b.runs[id]
	if !ok {
		return db.ErrNotFound{Type: "run", ID: id}
	}
	run.Status = status
	if message != nil {
		run.Message = *message
	}
	b.runs[id] = run
	return nil
}

// Run implements RunBackend
func (b *Backend) Run(ctx context.Context, id string) (db.Run, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	run, ok := b.runs[id]
	if !ok {
		return db.Run{}, db.ErrNotFound{Type: "run", ID: id}
	}
	return run, nil
}

// Runs implements RunBackend
func (b *Backend) Runs(ctx context.Context, tile string) ([]db.Run, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	runs := make([]db.Run, 0, len(b.runs))
	for _, run := range b.runs {
		if tile == "" || run.Tile == tile {
			runs = append(runs, run)
		}
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].Start.Before(runs[j].Start) })
	return runs, nil
}

// CreateDate implements RunBackend
func (b *Backend) CreateDate(ctx context.Context, date db.Date) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.runs[date.RunID]; !ok {
		return 0, db.ErrNotFound{Type: "run", ID: date.RunID}
	}
	for _, d := range b.dates[date.RunID] {
		if d.Date.Equal(date.Date) {
			return 0, db.ErrAlreadyExists{Type: "date", ID: fmt.Sprintf("%s/%s", date.RunID, date.Date.Format("20060102"))}
		}
	}
	date.ID = b.nextID
	b.nextID++
	b.dates[date.RunID] = append(b.dates[date.RunID], date)
	return date.ID, nil
}

// UpdateDate implements RunBackend
func (b *Backend) UpdateDate(ctx context.Context, runID string, day time.Time, status common.Status, reason common.Reason, message string, attrs common.DateAttrs) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, d := range b.dates[runID] {
		if d.Date.Equal(day) {
			d.Status, d.Reason, d.Message, d.Attrs = status, reason, message, attrs
			b.dates[runID][i] = d
			return nil
		}
	}
	return db.ErrNotFound{Type: "date", ID: fmt.Sprintf("%s/%s", runID, day.Format("20060102"))}
}

// Dates implements RunBackend
func (b *Backend) Dates(ctx context.Context, runID string, status string) ([]db.Date, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	dates := make([]db.Date, 0)
	for _, d := range b.dates[runID] {
		if status == "" || d.Status.String() == status {
			dates = append(dates, d)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Date.Before(dates[j].Date) })
	return dates, nil
}

// DatesStatus implements RunBackend
func (b *Backend) DatesStatus(ctx context.Context, runID string) (db.StatusCount, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var count db.StatusCount
	tally := map[common.Status]int64{}
	for _, d := range b.dates[runID] {
		tally[d.Status]++
	}
	for status, nb := range tally {
		count.Set(status, nb)
	}
	return count, nil
}
