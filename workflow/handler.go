package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	db "github.com/fsn1995/RemoteIceSurfaceAnalyser/interface/database"
	"github.com/fsn1995/RemoteIceSurfaceAnalyser/service/log"
)

func (wf *Workflow) NewHandler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/runs", wf.ListRunsHandler).Methods("GET")
	r.HandleFunc("/runs/{run}", wf.GetRunHandler).Methods("GET")
	r.HandleFunc("/runs/{run}/dates", wf.ListDatesHandler).Methods("GET")
	r.HandleFunc("/runs/{run}/dates/{status}", wf.ListDatesHandler).Methods("GET")
	r.HandleFunc("/runs/{run}/status", wf.GetRunStatusHandler).Methods("GET")
	r.HandleFunc("/runs/{run}/audit", wf.GetAuditHandler).Methods("GET")
	return r
}

// ListRunsHandler lists the runs, optionally filtered by ?tile=
func (wf *Workflow) ListRunsHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	runs, err := wf.Runs(ctx, req.URL.Query().Get("tile"))
	if err != nil {
		log.Logger(ctx).Sugar().Warnf("wf.runs: %v", err)
		w.WriteHeader(500)
		fmt.Fprintf(w, "%v", err)
		return
	}
	json.NewEncoder(w).Encode(runs)
}

// GetRunHandler retrieves a run
func (wf *Workflow) GetRunHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	run, err := wf.Run(ctx, mux.Vars(req)["run"])
	if errors.As(err, &db.ErrNotFound{}) {
		w.WriteHeader(404)
		return
	}
	if err != nil {
		log.Logger(ctx).Sugar().Warnf("wf.run: %v", err)
		w.WriteHeader(500)
		fmt.Fprintf(w, "%v", err)
		return
	}
	json.NewEncoder(w).Encode(run)
}

// ListDatesHandler lists the dates of the run.
// If status is provided, filter only the dates with the given status.
func (wf *Workflow) ListDatesHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	dates, err := wf.Dates(ctx, mux.Vars(req)["run"], mux.Vars(req)["status"])
	if errors.As(err, &db.ErrNotFound{}) {
		w.WriteHeader(404)
		return
	}
	if err != nil {
		log.Logger(ctx).Sugar().Warnf("wf.dates: %v", err)
		w.WriteHeader(500)
		fmt.Fprintf(w, "%v", err)
		return
	}
	json.NewEncoder(w).Encode(dates)
}

// GetRunStatusHandler counts the dates of the run per status
func (wf *Workflow) GetRunStatusHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	id := mux.Vars(req)["run"]
	if _, err := wf.Run(ctx, id); errors.As(err, &db.ErrNotFound{}) {
		w.WriteHeader(404)
		return
	}
	counts, err := wf.DatesStatus(ctx, id)
	if err != nil {
		log.Logger(ctx).Sugar().Warnf("wf.datesstatus: %v", err)
		w.WriteHeader(500)
		fmt.Fprintf(w, "%v", err)
		return
	}
	w.WriteHeader(200)
	fmt.Fprintf(w, "Dates:\n  new:         %d\n  pending:     %d\n  observed:    %d\n  rejected:    %d\n  failed:      %d\n  synthesized: %d\n  Total:       %d\n",
		counts.New, counts.Pending, counts.Observed, counts.Rejected, counts.Failed, counts.Synthesized,
		counts.New+counts.Pending+counts.Observed+counts.Rejected+counts.Failed+counts.Synthesized)
}

// GetAuditHandler returns the audit lists of the run. Audits live with the
// workflow instance that ran the tile.
func (wf *Workflow) GetAuditHandler(w http.ResponseWriter, req *http.Request) {
	audit := wf.Audit(mux.Vars(req)["run"])
	if audit == nil {
		w.WriteHeader(404)
		return
	}
	json.NewEncoder(w).Encode(audit)
}
