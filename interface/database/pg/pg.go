package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/fsn1995/RemoteIceSurfaceAnalyser/common"
	db "github.com/fsn1995/RemoteIceSurfaceAnalyser/interface/database"
)

// Backend implements RunBackend using Postgres
type Backend struct {
	*sql.DB
}

/* http://www.postgresql.org/docs/9.3/static/errcodes-appendix.html */
const (
	noError             = "00000"
	foreignKeyViolation = "23503"
	uniqueViolation     = "23505"

	notPqError = "X"
)

func pqErrorCode(err error) pq.ErrorCode {
	if err == nil {
		return noError
	}
	var pqerr *pq.Error
	if errors.As(err, &pqerr) {
		return pqerr.Code
	}
	return notPqError
}

// New creates a new backend using Postgres
func New(ctx context.Context, dbConnection string) (*Backend, error) {
	pgdb, err := sql.Open("postgres", dbConnection)
	if err != nil {
		return nil, fmt.Errorf("sql.open: %w", err)
	}
	return &Backend{pgdb}, nil
}

// CreateRun implements RunBackend
func (b *Backend) CreateRun(ctx context.Context, run db.Run) error {
	_, err := b.ExecContext(ctx,
		"insert into run(id, tile, start_date, end_date, status) values($1, $2, $3, $4, $5)",
		run.ID, run.Tile, run.Start, run.End, run.Status)
	switch pqErrorCode(err) {
	case noError:
		return nil
	case uniqueViolation:
		return db.ErrAlreadyExists{Type: "run", ID: run.ID}
	default:
		return fmt.Errorf("CreateRun.exec: %w", err)
	}
}

// UpdateRun implements RunBackend
func (b *Backend) UpdateRun(ctx context.Context, id string, status common.Status, message *string) error {
	var (
		res sql.Result
		err error
	)
	if message == nil {
		res, err = b.ExecContext(ctx, "update run set status=$2 where id=$1", id, status)
	} else {
		res, err = b.ExecContext(ctx, "update run set status=$2, message=$3 where id=$1", id, status, *message)
	}
	if err != nil {
		return fmt.Errorf("UpdateRun.exec: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return db.ErrNotFound{Type: "run", ID: id}
	}
	return nil
}

// Run implements RunBackend
func (b *Backend) Run(ctx context.Context, id string) (db.Run, error) {
	var run db.Run
	err := b.QueryRowContext(ctx,
		"select id, tile, start_date, end_date, status, coalesce(message, '') from run where id=$1", id).
		Scan(&run.ID, &run.Tile, &run.Start, &run.End, &run.Status, &run.Message)
	switch {
	case err == sql.ErrNoRows:
		return run, db.ErrNotFound{Type: "run", ID: id}
	case err != nil:
		return run, fmt.Errorf("Run.scan: %w", err)
	}
	return run, nil
}

// Runs implements RunBackend
func (b *Backend) Runs(ctx context.Context, tile string) ([]db.Run, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if tile == "" {
		rows, err = b.QueryContext(ctx, "select id, tile, start_date, end_date, status, coalesce(message, '') from run order by start_date")
	} else {
		rows, err = b.QueryContext(ctx, "select id, tile, start_date, end_date, status, coalesce(message, '') from run where tile=$1 order by start_date", tile)
	}
	if err != nil {
		return nil, fmt.Errorf("Runs.query: %w", err)
	}
	defer rows.Close()
	runs := make([]db.Run, 0)
	for rows.Next() {
		var run db.Run
		if err := rows.Scan(&run.ID, &run.Tile, &run.Start, &run.End, &run.Status, &run.Message); err != nil {
			return nil, fmt.Errorf("Runs.scan: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Runs.rows: %w", err)
	}
	return runs, nil
}

// CreateDate implements RunBackend
func (b *Backend) CreateDate(ctx context.Context, date db.Date) (int, error) {
	var id int
	err := b.QueryRowContext(ctx,
		"insert into run_date(run_id, date, status, reason, message, attrs) values($1, $2, $3, $4, $5, $6) returning id",
		date.RunID, date.Date, date.Status, string(date.Reason), date.Message, date.Attrs).Scan(&id)
	switch pqErrorCode(err) {
	case noError:
		return id, nil
	case uniqueViolation:
		return 0, db.ErrAlreadyExists{Type: "date", ID: fmt.Sprintf("%s/%s", date.RunID, date.Date.Format("20060102"))}
	case foreignKeyViolation:
		return 0, db.ErrNotFound{Type: "run", ID: date.RunID}
	default:
		return 0, fmt.Errorf("CreateDate.exec: %w", err)
	}
}

// UpdateDate implements RunBackend
func (b *Backend) UpdateDate(ctx context.Context, runID string, day time.Time, status common.Status, reason common.Reason, message string, attrs common.DateAttrs) error {
	res, err := b.ExecContext(ctx,
		"update run_date set status=$3, reason=$4, message=$5, attrs=$6 where run_id=$1 and date=$2",
		runID, day, status, string(reason), message, attrs)
	if err != nil {
		return fmt.Errorf("UpdateDate.exec: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return db.ErrNotFound{Type: "date", ID: fmt.Sprintf("%s/%s", runID, day.Format("20060102"))}
	}
	return nil
}

// Dates implements RunBackend
func (b *Backend) Dates(ctx context.Context, runID string, status string) ([]db.Date, error) {
	query := "select id, run_id, date, status, reason, coalesce(message, ''), attrs from run_date where run_id=$1"
	args := []interface{}{runID}
	if status != "" {
		query += " and status=$2"
		args = append(args, status)
	}
	query += " order by date"

	rows, err := b.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("Dates.query: %w", err)
	}
	defer rows.Close()
	dates := make([]db.Date, 0)
	for rows.Next() {
		var d db.Date
		var reason string
		if err := rows.Scan(&d.ID, &d.RunID, &d.Date, &d.Status, &reason, &d.Message, &d.Attrs); err != nil {
			return nil, fmt.Errorf("Dates.scan: %w", err)
		}
		d.Reason = common.Reason(reason)
		d.Date = d.Date.UTC()
		dates = append(dates, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Dates.rows: %w", err)
	}
	return dates, nil
}

// DatesStatus implements RunBackend
func (b *Backend) DatesStatus(ctx context.Context, runID string) (db.StatusCount, error) {
	rows, err := b.QueryContext(ctx, "select status, count(*) from run_date where run_id=$1 group by status", runID)
	if err != nil {
		return db.StatusCount{}, fmt.Errorf("DatesStatus.query: %w", err)
	}
	defer rows.Close()
	var count db.StatusCount
	for rows.Next() {
		var status common.Status
		var nb int64
		if err := rows.Scan(&status, &nb); err != nil {
			return count, fmt.Errorf("DatesStatus.scan: %w", err)
		}
		count.Set(status, nb)
	}
	if err := rows.Err(); err != nil {
		return count, fmt.Errorf("DatesStatus.rows: %w", err)
	}
	return count, nil
}
