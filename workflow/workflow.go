// Package workflow orchestrates a tile run: per-date processing on a
// bounded worker pool, temporal infill once every date has settled, and
// the merge into the tile dataset. Run state is owned by the run, never
// global, and every date row has a single writer.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/airbusgeo/geocube/interface/messaging"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/fsn1995/RemoteIceSurfaceAnalyser/classifier"
	"github.com/fsn1995/RemoteIceSurfaceAnalyser/common"
	"github.com/fsn1995/RemoteIceSurfaceAnalyser/dataset"
	db "github.com/fsn1995/RemoteIceSurfaceAnalyser/interface/database"
	"github.com/fsn1995/RemoteIceSurfaceAnalyser/interface/ingestion"
	"github.com/fsn1995/RemoteIceSurfaceAnalyser/lut"
	"github.com/fsn1995/RemoteIceSurfaceAnalyser/processor"
	"github.com/fsn1995/RemoteIceSurfaceAnalyser/raster"
	"github.com/fsn1995/RemoteIceSurfaceAnalyser/service"
	"github.com/fsn1995/RemoteIceSurfaceAnalyser/service/log"
	"github.com/fsn1995/RemoteIceSurfaceAnalyser/temporal"
)

// Config are the settings of one tile run.
type Config struct {
	// MinArea is the minimum percentage of ice pixels that must be usable.
	MinArea float64
	// CloudCoverThresh is the maximum percentage of cloudy pixels.
	CloudCoverThresh float64
	// CloudProbThreshold is the probability (percent) above which a pixel
	// is considered cloudy.
	CloudProbThreshold float64
	// RetrieveParams enables the parameter-table retrieval.
	RetrieveParams bool
	// CadenceDays is the expected interval between dates of the series.
	CadenceDays int
	// TemporalInfill enables the synthesis of missing dates.
	TemporalInfill bool
	// DownsampleDays aggregates the series into buckets of that many days
	// (<=1: no downsampling).
	DownsampleDays int
	// Workers bounds the per-date concurrency (0 = NumCPU).
	Workers int
	// OutDir is where tile artifacts are written ("": no artifacts).
	OutDir string
}

func (c Config) options() processor.Options {
	return processor.Options{
		MinArea:            c.MinArea,
		CloudCoverThresh:   c.CloudCoverThresh,
		CloudProbThreshold: c.CloudProbThreshold,
		RetrieveParams:     c.RetrieveParams,
		Workers:            c.Workers,
	}
}

// Validate checks the configuration up front. An invalid configuration is
// a run-level failure: no date is processed.
func (c Config) Validate() error {
	if err := c.options().Validate(); err != nil {
		return err
	}
	if c.CadenceDays <= 0 {
		return fmt.Errorf("cadenceDays %d: must be positive", c.CadenceDays)
	}
	if c.DownsampleDays < 0 {
		return fmt.Errorf("downsampleDays %d: must not be negative", c.DownsampleDays)
	}
	return nil
}

// Audit collects the terminal decisions of a run. A date may appear in
// more than one list: a rejected date that was later synthesized keeps its
// rejection entry.
type Audit struct {
	Accepted    []common.AuditEntry `json:"accepted"`
	Rejected    []common.AuditEntry `json:"rejected"`
	Failed      []common.AuditEntry `json:"failed"`
	Synthesized []common.AuditEntry `json:"synthesized"`
}

type Workflow struct {
	db.RunBackend
	provider   ingestion.Provider
	classifier classifier.Classifier
	table      *lut.Table
	events     messaging.Publisher // may be nil

	mu   sync.Mutex
	runs map[string]*runState
}

func NewWorkflow(backend db.RunBackend, provider ingestion.Provider, clf classifier.Classifier, table *lut.Table, events messaging.Publisher) *Workflow {
	return &Workflow{
		RunBackend: backend,
		provider:   provider,
		classifier: clf,
		table:      table,
		events:     events,
		runs:       map[string]*runState{},
	}
}

// Audit returns a copy of the audit of a run, or nil if the run is not
// known to this instance (audits live with the run, not in the database).
func (wf *Workflow) Audit(runID string) *Audit {
	wf.mu.Lock()
	st := wf.runs[runID]
	wf.mu.Unlock()
	if st == nil {
		return nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	audit := st.audit
	return &audit
}

// ProcessTile runs one tile job end to end and returns the run id and the
// merged dataset. Per-date errors are recorded on the date and do not
// abort the run; only series-wide preconditions (invalid config, no ice
// mask, empty window) fail it.
func (wf *Workflow) ProcessTile(ctx context.Context, job common.TileJob, cfg Config) (string, *dataset.TileDataset, error) {
	if err := cfg.Validate(); err != nil {
		return "", nil, service.MakeFatal(fmt.Errorf("ProcessTile: %w", err))
	}
	window := temporal.Window{Start: job.Start, End: job.End, CadenceDays: cfg.CadenceDays}
	if err := window.Validate(); err != nil {
		return "", nil, service.MakeFatal(fmt.Errorf("ProcessTile: %w", err))
	}

	run := db.Run{
		ID:     uuid.New().String(),
		Tile:   job.Tile,
		Start:  common.Day(job.Start),
		End:    common.Day(job.End),
		Status: common.StatusPENDING,
	}
	if err := wf.CreateRun(ctx, run); err != nil {
		return "", nil, fmt.Errorf("ProcessTile.%w", err)
	}
	st := &runState{wf: wf, run: run, cfg: cfg, bundles: map[time.Time]*common.Bundle{}}
	wf.mu.Lock()
	wf.runs[run.ID] = st
	wf.mu.Unlock()

	ds, err := wf.processRun(log.With(ctx, "run", run.ID, "tile", job.Tile), st, window)
	final, message := common.StatusDONE, ""
	if err != nil {
		final, message = common.StatusFAILED, err.Error()
	}
	if uerr := wf.UpdateRun(ctx, run.ID, final, &message); uerr != nil {
		log.Logger(ctx).Sugar().Errorf("update run %s: %v", run.ID, uerr)
	}
	return run.ID, ds, err
}

func (wf *Workflow) processRun(ctx context.Context, st *runState, window temporal.Window) (*dataset.TileDataset, error) {
	lg := log.Logger(ctx).Sugar()

	ice, err := wf.provider.IceMask(ctx, st.run.Tile)
	if err != nil {
		return nil, service.MakeFatal(fmt.Errorf("ice mask for %s: %w", st.run.Tile, err))
	}

	dates := window.ExpectedDates()
	for _, day := range dates {
		if _, err := wf.CreateDate(ctx, db.Date{RunID: st.run.ID, Date: day, Status: common.StatusNEW}); err != nil {
			return nil, fmt.Errorf("create date %s: %w", day.Format("20060102"), err)
		}
	}
	lg.Infof("processing %d dates (%s to %s)", len(dates),
		dates[0].Format("20060102"), dates[len(dates)-1].Format("20060102"))

	proc := processor.New(wf.classifier, wf.table, st.cfg.options())
	g, gctx := errgroup.WithContext(ctx)
	if st.cfg.Workers > 0 {
		g.SetLimit(st.cfg.Workers)
	}
	for _, day := range dates {
		day := day
		g.Go(func() error {
			wf.processDate(gctx, st, proc, ice, day)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Barrier passed: every date is terminal, gaps are known.
	// The earliest observed date fixes the georeferencing of the run; a
	// later date that disagrees fails on its own and becomes a gap.
	observed := st.observed()
	if len(observed) > 0 {
		ref := observed[0].Ref
		kept := observed[:0]
		for _, b := range observed {
			if b.Ref.Equal(ref) {
				kept = append(kept, b)
				continue
			}
			st.record(ctx, b.Date, common.StatusFAILED, common.ReasonInconsistentGeoreference,
				fmt.Sprintf("georeferencing differs from %s", observed[0].Date.Format("20060102")), b.Attrs)
			st.drop(b.Date)
		}
		observed = kept
	}
	if st.cfg.TemporalInfill {
		synthesized, skipped, err := temporal.Synthesize(ctx, observed, window)
		if err != nil {
			return nil, fmt.Errorf("temporal infill: %w", err)
		}
		for _, b := range synthesized {
			st.record(ctx, b.Date, common.StatusSYNTHESIZED, common.ReasonNone, "", b.Attrs)
			st.put(b)
		}
		for _, s := range skipped {
			st.skip(ctx, s)
		}
	}

	ds := dataset.New(st.run.Tile)
	for _, b := range st.all() {
		if err := ds.Merge(b); err != nil {
			return nil, err
		}
	}
	if st.cfg.DownsampleDays > 1 {
		if ds, err = ds.Downsample(st.cfg.DownsampleDays); err != nil {
			return nil, err
		}
	}
	if st.cfg.OutDir != "" && ds.Len() > 0 {
		tilePath, summaryPath, err := dataset.WriteArtifacts(st.cfg.OutDir, ds)
		if err != nil {
			return nil, err
		}
		lg.Infof("wrote %s and %s", tilePath, summaryPath)
	}
	lg.Infof("run finished: %d dates in series", ds.Len())
	return ds, nil
}

// processDate runs one per-date unit. Failures stay on the date.
func (wf *Workflow) processDate(ctx context.Context, st *runState, proc *processor.Processor, ice *raster.Mask, day time.Time) {
	if ctx.Err() != nil {
		return
	}
	lg := log.Logger(ctx).Sugar()
	if err := wf.UpdateDate(ctx, st.run.ID, day, common.StatusPENDING, common.ReasonNone, "", common.DateAttrs{}); err != nil {
		lg.Errorf("date %s: %v", day.Format("20060102"), err)
	}

	bs, err := wf.provider.AcquireBandSet(ctx, st.run.Tile, day)
	if err != nil {
		st.record(ctx, day, common.StatusFAILED, ingestion.Reason(err), err.Error(), common.DateAttrs{})
		return
	}

	bundle, err := proc.ProcessDate(ctx, bs, ice)
	if err != nil {
		var rejected processor.ErrRejected
		if errors.As(err, &rejected) {
			st.record(ctx, day, common.StatusREJECTED, rejected.Reason, "", common.DateAttrs{
				UsableFraction: rejected.Report.UsableFraction,
				CloudFraction:  rejected.Report.CloudFraction,
			})
			return
		}
		st.record(ctx, day, common.StatusFAILED, common.ReasonNone, err.Error(), common.DateAttrs{})
		return
	}
	st.record(ctx, day, common.StatusOBSERVED, common.ReasonNone, "", bundle.Attrs)
	st.put(bundle)
}

// runState is the in-memory state of one run. The mutex guards the bundle
// collection and the audit; each date is written by exactly one worker.
type runState struct {
	wf  *Workflow
	run db.Run
	cfg Config

	mu      sync.Mutex
	bundles map[time.Time]*common.Bundle
	audit   Audit
}

// record persists the terminal status of a date, appends the audit entry
// and publishes the result event.
func (st *runState) record(ctx context.Context, day time.Time, status common.Status, reason common.Reason, message string, attrs common.DateAttrs) {
	lg := log.Logger(ctx).Sugar()
	day = common.Day(day)
	if err := st.wf.UpdateDate(ctx, st.run.ID, day, status, reason, message, attrs); err != nil {
		lg.Errorf("date %s: %v", day.Format("20060102"), err)
	}
	entry := common.AuditEntry{Tile: st.run.Tile, Date: day, Status: status, Reason: reason, Message: message}

	st.mu.Lock()
	switch status {
	case common.StatusOBSERVED:
		st.audit.Accepted = append(st.audit.Accepted, entry)
	case common.StatusREJECTED:
		st.audit.Rejected = append(st.audit.Rejected, entry)
	case common.StatusFAILED:
		st.audit.Failed = append(st.audit.Failed, entry)
	case common.StatusSYNTHESIZED:
		st.audit.Synthesized = append(st.audit.Synthesized, entry)
	}
	st.mu.Unlock()

	lg.Infof("date %s: %s %s", day.Format("20060102"), status, reason)
	st.publish(ctx, entry)
}

// skip records a gap that could not be synthesized. The date keeps its
// per-date status (a rejection stays a rejection); only the audit shows
// that the series has no value there.
func (st *runState) skip(ctx context.Context, s temporal.Skipped) {
	entry := common.AuditEntry{Tile: st.run.Tile, Date: s.Date, Status: common.StatusFAILED, Reason: s.Reason}
	st.mu.Lock()
	st.audit.Failed = append(st.audit.Failed, entry)
	st.mu.Unlock()
	log.Logger(ctx).Sugar().Infof("date %s: not synthesized (%s)", s.Date.Format("20060102"), s.Reason)
	st.publish(ctx, entry)
}

func (st *runState) publish(ctx context.Context, entry common.AuditEntry) {
	if st.wf.events == nil {
		return
	}
	payload, err := json.Marshal(common.Result{
		Type:    common.ResultTypeDate,
		RunID:   st.run.ID,
		Tile:    entry.Tile,
		Date:    entry.Date,
		Status:  entry.Status,
		Reason:  entry.Reason,
		Message: entry.Message,
	})
	if err == nil {
		err = st.wf.events.Publish(ctx, payload)
	}
	if err != nil {
		log.Logger(ctx).Sugar().Warnf("publish result %s: %v", entry.Date.Format("20060102"), err)
	}
}

// put stores a bundle in the run collection, exactly once per date.
func (st *runState) put(b *common.Bundle) {
	day := common.Day(b.Date)
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.bundles[day]; ok {
		panic(fmt.Sprintf("bundle %s/%s written twice", b.Tile, day.Format("20060102")))
	}
	st.bundles[day] = b
}

// drop removes a date from the run collection after its bundle turned out
// to be unusable for the series.
func (st *runState) drop(day time.Time) {
	st.mu.Lock()
	delete(st.bundles, common.Day(day))
	st.mu.Unlock()
}

func (st *runState) observed() []*common.Bundle {
	st.mu.Lock()
	defer st.mu.Unlock()
	var out []*common.Bundle
	for _, b := range st.bundles {
		if b.Source == common.StatusOBSERVED {
			out = append(out, b)
		}
	}
	sortBundles(out)
	return out
}

func (st *runState) all() []*common.Bundle {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]*common.Bundle, 0, len(st.bundles))
	for _, b := range st.bundles {
		out = append(out, b)
	}
	sortBundles(out)
	return out
}

func sortBundles(bundles []*common.Bundle) {
	sort.Slice(bundles, func(i, j int) bool { return bundles[i].Date.Before(bundles[j].Date) })
}
