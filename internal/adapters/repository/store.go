// Package repository persists batches and their match results.
package repository

import (
	"context"
	"time"

	"github.com/okian/matchbench/internal/domain/model"
)

// Batch describes one benchmark run.
type Batch struct {
	ID        string
	Mode      string
	Entrants  int
	Maps      int
	Jobs      int
	StartedAt time.Time
}

// Record is one stored match result.
type Record struct {
	BatchID     string
	JobID       string
	Seq         int
	Map         string
	TeamA       string
	TeamB       string
	Home        int
	Away        int
	Swapped     bool
	Repetition  int
	SeedA       int64
	SeedB       int64
	Winner      string // "A", "B" or empty for a failed job
	Error       string
	Duration    time.Duration
	StderrBytes int
	Attempts    int
	FinishedAt  time.Time
}

// NewRecord flattens a result for storage.
func NewRecord(batchID string, res model.Result) Record { //nolint:gocritic // hugeParam: Result is passed by value
	m := res.Job.Matchup
	r := Record{
		BatchID:     batchID,
		JobID:       res.Job.ID,
		Seq:         res.Job.Seq,
		Map:         m.Map,
		TeamA:       m.A.Name,
		TeamB:       m.B.Name,
		Home:        m.Home,
		Away:        m.Away,
		Swapped:     m.Swapped,
		Repetition:  m.Repetition,
		SeedA:       m.SeedA,
		SeedB:       m.SeedB,
		Duration:    res.Duration,
		StderrBytes: res.StderrBytes,
		Attempts:    res.Attempts,
		FinishedAt:  res.FinishedAt,
	}
	if res.Err != nil {
		r.Error = res.Err.Error()
	} else {
		r.Winner = res.Winner.String()
	}
	return r
}

// Store provides write access for the draining loop and read access for reports.
type Store interface {
	// CreateBatch registers a new batch.
	CreateBatch(ctx context.Context, b Batch) error

	// SaveResult stores one result of a batch.
	SaveResult(ctx context.Context, r Record) error

	// Batch returns a registered batch or ErrNotFound.
	Batch(ctx context.Context, id string) (Batch, error)

	// Results returns the stored results of a batch in job order.
	Results(ctx context.Context, batchID string) ([]Record, error)

	// Close releases the store.
	Close() error
}
