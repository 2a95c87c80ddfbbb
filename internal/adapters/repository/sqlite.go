package repository

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/okian/matchbench/pkg/logger"
	"github.com/okian/matchbench/pkg/metrics"
)

//go:embed *.sql
var sqlDir embed.FS

// SQLiteStore persists batches in a sqlite database file.
//
// Reads and writes use separate connection pools; the write pool holds a
// single connection.
type SQLiteStore struct {
	read  *sql.DB
	write *sql.DB

	// Statements are loaded from the embedded *.sql files. select-*
	// files become queries on read, everything else a command on write.
	queries  map[string]*sql.Stmt
	commands map[string]*sql.Stmt

	pragmas []string
	logger  logger.Logger
}

// OpenSQLite opens (creating if needed) the database at file.
func OpenSQLite(ctx context.Context, file string, opts ...Option) (*SQLiteStore, error) {
	s := &SQLiteStore{
		queries:  make(map[string]*sql.Stmt),
		commands: make(map[string]*sql.Stmt),
		pragmas: []string{
			"journal_mode = WAL",
			"synchronous = normal",
			"temp_store = memory",
			"foreign_keys = on",
			"busy_timeout = 5000",
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("repository")
	}

	var err error
	if s.read, err = sql.Open("sqlite3", file); err != nil {
		return nil, fmt.Errorf("open %s: %w", file, err)
	}
	s.read.SetConnMaxLifetime(0)
	s.read.SetMaxIdleConns(1)

	if s.write, err = sql.Open("sqlite3", file); err != nil {
		_ = s.read.Close()
		return nil, fmt.Errorf("open %s: %w", file, err)
	}
	s.write.SetConnMaxLifetime(0)
	s.write.SetMaxIdleConns(1)
	s.write.SetMaxOpenConns(1)

	if err := s.init(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init(ctx context.Context) error {
	for _, pragma := range s.pragmas {
		s.logger.Debug(ctx, "run pragma", logger.String("pragma", pragma))
		if _, err := s.write.ExecContext(ctx, "PRAGMA "+pragma+";"); err != nil {
			return fmt.Errorf("pragma %s: %w", pragma, err)
		}
	}

	entries, err := sqlDir.ReadDir(".")
	if err != nil {
		return err
	}
	// create-* files run first so that statements can be prepared against the schema.
	for _, pass := range []bool{true, false} {
		for _, entry := range entries {
			if !entry.Type().IsRegular() {
				continue
			}
			base := path.Base(entry.Name())
			if strings.HasPrefix(base, "create-") != pass {
				continue
			}
			data, err := fs.ReadFile(sqlDir, entry.Name())
			if err != nil {
				return err
			}

			name := strings.TrimSuffix(base, ".sql")
			switch {
			case pass:
				_, err = s.write.ExecContext(ctx, string(data))
			case strings.HasPrefix(name, "select-"):
				s.queries[name], err = s.read.PrepareContext(ctx, string(data))
			default:
				s.commands[name], err = s.write.PrepareContext(ctx, string(data))
			}
			if err != nil {
				return fmt.Errorf("%s: %w", entry.Name(), err)
			}
		}
	}
	return nil
}

// CreateBatch registers a new batch. A reused ID returns ErrConflict.
func (s *SQLiteStore) CreateBatch(ctx context.Context, b Batch) error {
	_, err := s.commands["insert-batch"].ExecContext(ctx,
		b.ID, b.Mode, b.Entrants, b.Maps, b.Jobs, b.StartedAt.UnixMilli())
	if err != nil {
		metrics.RecordRepositoryError()
		return s.wrap("batch "+b.ID, err)
	}
	return nil
}

// SaveResult stores one result. An unknown batch returns ErrNotFound and a stored job ErrConflict.
func (s *SQLiteStore) SaveResult(ctx context.Context, r Record) error { //nolint:gocritic // hugeParam: Record is passed by value
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryWriteLatency(float64(time.Since(start).Milliseconds()))
	}()

	_, err := s.commands["insert-result"].ExecContext(ctx,
		r.JobID, r.BatchID, r.Seq, r.Map, r.TeamA, r.TeamB, r.Home, r.Away, r.Swapped,
		r.Repetition, r.SeedA, r.SeedB, r.Winner, r.Error, r.Duration.Milliseconds(),
		r.StderrBytes, r.Attempts, r.FinishedAt.UnixMilli())
	if err != nil {
		metrics.RecordRepositoryError()
		return s.wrap("job "+r.JobID, err)
	}
	return nil
}

// Batch returns a registered batch or ErrNotFound.
func (s *SQLiteStore) Batch(ctx context.Context, id string) (Batch, error) {
	var (
		b       Batch
		started int64
	)
	err := s.queries["select-batch"].QueryRowContext(ctx, id).Scan(
		&b.ID, &b.Mode, &b.Entrants, &b.Maps, &b.Jobs, &started)
	if errors.Is(err, sql.ErrNoRows) {
		return Batch{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Batch{}, err
	}
	b.StartedAt = time.UnixMilli(started)
	return b, nil
}

// Results returns the stored results of a batch ordered by job sequence.
func (s *SQLiteStore) Results(ctx context.Context, batchID string) ([]Record, error) {
	if _, err := s.Batch(ctx, batchID); err != nil {
		return nil, err
	}

	rows, err := s.queries["select-results"].QueryContext(ctx, batchID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Record
	for rows.Next() {
		var (
			r                  Record
			durationMS, finish int64
		)
		err := rows.Scan(&r.JobID, &r.BatchID, &r.Seq, &r.Map, &r.TeamA, &r.TeamB,
			&r.Home, &r.Away, &r.Swapped, &r.Repetition, &r.SeedA, &r.SeedB,
			&r.Winner, &r.Error, &durationMS, &r.StderrBytes, &r.Attempts, &finish)
		if err != nil {
			return nil, err
		}
		r.Duration = time.Duration(durationMS) * time.Millisecond
		r.FinishedAt = time.UnixMilli(finish)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close optimizes and closes the database.
func (s *SQLiteStore) Close() error {
	var errs []error
	if s.write != nil {
		if _, err := s.write.Exec("PRAGMA optimize;"); err != nil {
			s.logger.Warn(context.Background(), "optimize failed", logger.Error(err))
		}
	}
	for _, stmt := range s.queries {
		errs = append(errs, stmt.Close())
	}
	for _, stmt := range s.commands {
		errs = append(errs, stmt.Close())
	}
	if s.read != nil {
		errs = append(errs, s.read.Close())
	}
	if s.write != nil {
		errs = append(errs, s.write.Close())
	}
	return errors.Join(errs...)
}

// wrap maps constraint violations to ErrConflict and missing batches to ErrNotFound.
func (s *SQLiteStore) wrap(what string, err error) error {
	var serr sqlite3.Error
	if errors.As(err, &serr) && serr.Code == sqlite3.ErrConstraint {
		if serr.ExtendedCode == sqlite3.ErrConstraintForeignKey {
			return fmt.Errorf("%w: %s: %w", ErrNotFound, what, err)
		}
		return fmt.Errorf("%w: %s: %w", ErrConflict, what, err)
	}
	return fmt.Errorf("%s: %w", what, err)
}
