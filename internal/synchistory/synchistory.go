// Package synchistory records a purely observational audit log of sync
// runs against Postgres: one row per run, inserted at start and updated
// once at completion or failure. Nothing in the catalog read or write path depends on this log
// existing.
package synchistory

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is a sync run's lifecycle state.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Run is one upstream-sync or reindex attempt.
type Run struct {
	ID            uuid.UUID
	Trigger       string // "manual", "scheduled"
	Status        Status
	PackagesAdded int
	PackagesTotal int
	ErrorMessage  *string
	StartedAt     time.Time
	FinishedAt    *time.Time
	UpdatedAt     time.Time
}

// Repository persists Runs to the sync_runs table.
type Repository struct {
	db *sql.DB
}

// NewRepository wraps an already-connected database handle.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Start inserts a new running row and returns it with its assigned id and
// timestamps.
func (r *Repository) Start(trigger string) (*Run, error) {
	run := &Run{ID: uuid.New(), Trigger: trigger, Status: StatusRunning}
	query := `INSERT INTO sync_runs (id, trigger, status) VALUES ($1, $2, $3)
		RETURNING started_at, updated_at`
	err := r.db.QueryRow(query, run.ID, run.Trigger, run.Status).Scan(&run.StartedAt, &run.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("synchistory: start run: %w", err)
	}
	return run, nil
}

// Complete marks a run finished successfully with the packages it added
// out of the total it considered.
func (r *Repository) Complete(id uuid.UUID, added, total int) error {
	query := `UPDATE sync_runs SET status = $1, packages_added = $2, packages_total = $3,
		finished_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP WHERE id = $4`
	_, err := r.db.Exec(query, StatusCompleted, added, total, id)
	if err != nil {
		return fmt.Errorf("synchistory: complete run %s: %w", id, err)
	}
	return nil
}

// Fail marks a run finished with an error.
func (r *Repository) Fail(id uuid.UUID, cause error) error {
	msg := cause.Error()
	query := `UPDATE sync_runs SET status = $1, error_message = $2,
		finished_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP WHERE id = $3`
	_, err := r.db.Exec(query, StatusFailed, msg, id)
	if err != nil {
		return fmt.Errorf("synchistory: fail run %s: %w", id, err)
	}
	return nil
}

// GetByID fetches one run.
func (r *Repository) GetByID(id uuid.UUID) (*Run, error) {
	run := &Run{}
	query := `SELECT id, trigger, status, packages_added, packages_total, error_message,
		started_at, finished_at, updated_at FROM sync_runs WHERE id = $1`
	err := r.db.QueryRow(query, id).Scan(&run.ID, &run.Trigger, &run.Status, &run.PackagesAdded,
		&run.PackagesTotal, &run.ErrorMessage, &run.StartedAt, &run.FinishedAt, &run.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("synchistory: run %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("synchistory: get run %s: %w", id, err)
	}
	return run, nil
}

// ListRecent returns the most recently started runs, newest first.
func (r *Repository) ListRecent(limit int) ([]*Run, error) {
	query := `SELECT id, trigger, status, packages_added, packages_total, error_message,
		started_at, finished_at, updated_at FROM sync_runs ORDER BY started_at DESC LIMIT $1`
	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("synchistory: list recent: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run := &Run{}
		if err := rows.Scan(&run.ID, &run.Trigger, &run.Status, &run.PackagesAdded, &run.PackagesTotal,
			&run.ErrorMessage, &run.StartedAt, &run.FinishedAt, &run.UpdatedAt); err != nil {
			return nil, fmt.Errorf("synchistory: scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
