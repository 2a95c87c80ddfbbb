// Package service runs one benchmark batch end to end: it prepares the
// workspace, plans the tournament, schedules every match and folds the
// results into the win tensors.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/matchbench/internal/adapters/mq/queue"
	"github.com/okian/matchbench/internal/adapters/mq/worker"
	"github.com/okian/matchbench/internal/adapters/process"
	"github.com/okian/matchbench/internal/adapters/repository"
	"github.com/okian/matchbench/internal/adapters/workspace"
	"github.com/okian/matchbench/internal/config"
	"github.com/okian/matchbench/internal/domain/dedupe"
	"github.com/okian/matchbench/internal/domain/match"
	"github.com/okian/matchbench/internal/domain/model"
	"github.com/okian/matchbench/internal/domain/scoring"
	"github.com/okian/matchbench/internal/domain/tournament"
	"github.com/okian/matchbench/pkg/logger"
	"github.com/okian/matchbench/pkg/metrics"
)

// progressSteps is how many progress lines a batch logs at most.
const progressSteps = 20

// Workspace prepares player sources before a batch.
type Workspace interface {
	// Checkout copies a package at a commit under a generated name and returns that name.
	Checkout(ctx context.Context, pkg, commit string) (string, error)
	// Build compiles every player once.
	Build(ctx context.Context) error
}

// Outcome is what a batch produced.
type Outcome struct {
	BatchID string
	Plan    *tournament.Plan
	Table   scoring.Table
}

// Service runs benchmark batches.
type Service struct {
	cfg       *config.Config
	launcher  worker.Launcher
	workspace Workspace
	store     repository.Store
	logger    logger.Logger

	mu         sync.RWMutex
	batchID    string
	mode       tournament.Mode
	total      int
	done       int
	failed     int
	duplicates int
	startedAt  time.Time
	queue      *queue.InMemoryQueue
	pool       *worker.Pool
	seen       dedupe.Deduper
}

// New constructs a Service for cfg. Collaborators that are not supplied
// through options default to real processes, a git workspace rooted at
// cfg.WorkDir and an in-memory result store.
func New(cfg *config.Config, opts ...Option) *Service {
	s := &Service{cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.launcher == nil {
		s.launcher = processLauncher(process.NewLauncher())
	}
	if s.workspace == nil {
		s.workspace = workspace.New(cfg.WorkDir,
			workspace.WithSourceRoot(cfg.SourceRoot),
			workspace.WithPrefix(cfg.BenchmarkPrefix),
			workspace.WithBuildCommand(cfg.BuildCommand),
		)
	}
	if s.store == nil {
		s.store = repository.NewMemoryStore()
	}
	return s
}

// processLauncher adapts the os/exec launcher to the pool.
func processLauncher(l *process.Launcher) worker.Launcher {
	return worker.LauncherFunc(func(ctx context.Context, inv model.Invocation) (worker.Handle, error) {
		h, err := l.Launch(ctx, inv)
		if err != nil {
			return nil, err
		}
		return h, nil
	})
}

// Store returns the store results are written to.
func (s *Service) Store() repository.Store {
	return s.store
}

// Run executes one batch. When ctx is cancelled the running matches are
// killed and the outcome gathered so far is returned with ErrCancelled.
func (s *Service) Run(ctx context.Context) (*Outcome, error) {
	competitors, references, err := s.prepare(ctx)
	if err != nil {
		return nil, err
	}

	plan, err := s.plan(competitors, references)
	if err != nil {
		return nil, err
	}

	builder, err := match.NewBuilder(s.cfg.MatchCommand,
		match.WithDir(s.cfg.WorkDir),
		match.WithSourceRoot(s.cfg.SourceRoot),
		match.WithBuildRoot(s.cfg.BuildRoot),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPlan, err)
	}
	jobs, err := plan.Jobs(builder.BuildMatchup)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPlan, err)
	}

	batch := repository.Batch{
		ID:        uuid.NewString(),
		Mode:      string(plan.Mode),
		Entrants:  len(plan.Entrants),
		Maps:      len(plan.Maps),
		Jobs:      len(jobs),
		StartedAt: time.Now(),
	}
	if err := s.store.CreateBatch(ctx, batch); err != nil {
		return nil, fmt.Errorf("create batch: %w", err)
	}

	q := queue.NewInMemoryQueue(queue.WithCapacity(len(jobs)))
	for i := range jobs {
		if err := q.Enqueue(ctx, jobs[i]); err != nil {
			return nil, fmt.Errorf("enqueue job %d: %w", jobs[i].Seq, err)
		}
	}
	_ = q.Close()

	pool := worker.NewPool(s.launcher,
		worker.WithMaxParallel(s.cfg.MaxParallel),
		worker.WithPollInterval(s.cfg.PollInterval()),
		worker.WithLaunchRetries(s.cfg.LaunchRetries),
		worker.WithMatchTimeout(s.cfg.MatchTimeout()),
		worker.WithStderrThreshold(s.cfg.StderrThreshold),
		worker.WithLogger(s.logger.Named("pool")),
	)

	s.mu.Lock()
	s.batchID = batch.ID
	s.mode = plan.Mode
	s.total = len(jobs)
	s.done, s.failed, s.duplicates = 0, 0, 0
	s.startedAt = batch.StartedAt
	s.queue = q
	s.pool = pool
	s.seen = dedupe.NewInMemoryDeduper(dedupe.WithExpected(len(jobs)))
	s.mu.Unlock()

	s.logger.Info(ctx, "running matches",
		logger.String("batch", batch.ID),
		logger.String("mode", string(plan.Mode)),
		logger.Int("entrants", len(plan.Entrants)),
		logger.Int("maps", len(plan.Maps)),
		logger.Int("jobs", len(jobs)),
		logger.Int("max_parallel", s.cfg.MaxParallel),
	)

	agg := scoring.NewAggregator(len(plan.Entrants), len(plan.Maps))
	s.drain(ctx, batch.ID, pool.Run(ctx, q), agg)

	outcome := &Outcome{
		BatchID: batch.ID,
		Plan:    plan,
		Table:   agg.Snapshot(plan.Entrants, plan.Maps).WithChallengers(plan.Challengers()),
	}

	elapsed := time.Since(batch.StartedAt)
	if ctx.Err() != nil {
		s.logger.Warn(ctx, "batch stopped early",
			logger.String("batch", batch.ID),
			logger.Int("recorded", agg.Recorded()),
			logger.Int("failed", agg.Failures()),
			logger.Int("jobs", len(jobs)),
		)
		return outcome, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
	}

	s.logger.Info(ctx, "batch finished",
		logger.String("batch", batch.ID),
		logger.Int("recorded", agg.Recorded()),
		logger.Int("failed", agg.Failures()),
		logger.Duration("elapsed", elapsed),
	)
	return outcome, nil
}

// prepare checks out the reference roster and builds every player.
func (s *Service) prepare(ctx context.Context) (competitors, references []model.Competitor, err error) {
	competitors = make([]model.Competitor, 0, len(s.cfg.Latest))
	for _, c := range s.cfg.Latest {
		competitors = append(competitors, model.Competitor{Name: c.Name, Params: c.Params})
	}

	if len(s.cfg.References) > 0 {
		s.logger.Info(ctx, "checking out reference players", logger.Int("references", len(s.cfg.References)))
	}
	for _, ref := range s.cfg.References {
		name, err := s.workspace.Checkout(ctx, ref.Package, ref.Commit)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", ErrPrepare, err)
		}
		references = append(references, model.Competitor{Name: name, Params: ref.Params})
	}

	if s.cfg.SkipBuild {
		s.logger.Info(ctx, "skipping build")
		return competitors, references, nil
	}
	s.logger.Info(ctx, "building packages")
	if err := s.workspace.Build(ctx); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrPrepare, err)
	}
	return competitors, references, nil
}

func (s *Service) plan(competitors, references []model.Competitor) (*tournament.Plan, error) {
	var (
		plan *tournament.Plan
		err  error
	)
	if len(references) > 0 {
		plan, err = tournament.Gauntlet(competitors, references, s.cfg.Maps, s.cfg.RunsPerMatchup)
	} else {
		plan, err = tournament.RoundRobin(competitors, s.cfg.Maps, s.cfg.RunsPerMatchup)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPlan, err)
	}
	return plan, nil
}

// drain is the single consumer of the pool's results. It owns the aggregator.
func (s *Service) drain(ctx context.Context, batchID string, results <-chan model.Result, agg *scoring.Aggregator) {
	seen := s.seen
	step := s.total / progressSteps
	if step < 1 {
		step = 1
	}

	for res := range results {
		if seen.SeenAndRecord(ctx, res.Job.ID) {
			metrics.RecordDuplicateResult()
			s.mu.Lock()
			s.duplicates++
			s.mu.Unlock()
			s.logger.Warn(ctx, "duplicate result dropped", logger.String("job", res.Job.ID))
			continue
		}

		failed := !res.OK()
		if !failed {
			if err := agg.Record(res.Job.Matchup, res.Winner); err != nil {
				s.logger.Error(ctx, "result does not fit the tournament", logger.String("job", res.Job.ID), logger.Error(err))
				res.Err = err
				failed = true
			} else {
				metrics.RecordTensorUpdate()
			}
		}
		if failed {
			agg.RecordFailure()
		}

		s.save(ctx, batchID, res)

		s.mu.Lock()
		s.done++
		if failed {
			s.failed++
		}
		done, total := s.done, s.total
		s.mu.Unlock()

		if done%step == 0 || done == total {
			s.logger.Info(ctx, "progress",
				logger.Int("done", done),
				logger.Int("total", total),
				logger.Int("failed", agg.Failures()),
			)
		}
	}
}

// save persists a result. A store failure is logged and does not stop the batch.
func (s *Service) save(ctx context.Context, batchID string, res model.Result) { //nolint:gocritic // hugeParam: Result is passed by value
	// The store outlives a cancelled batch; results already gathered are kept.
	err := s.store.SaveResult(context.WithoutCancel(ctx), repository.NewRecord(batchID, res))
	if err == nil {
		return
	}
	s.logger.Error(ctx, "failed to store result", logger.String("job", res.Job.ID), logger.Error(err))
	if errors.Is(err, repository.ErrConflict) {
		metrics.RecordErrorByComponent("repository", "conflict")
	}
}

// GetStats returns batch progress for the status endpoint.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"batch_id":     s.batchID,
		"mode":         string(s.mode),
		"total":        s.total,
		"done":         s.done,
		"failed":       s.failed,
		"duplicates":   s.duplicates,
		"max_parallel": s.cfg.MaxParallel,
	}
	if !s.startedAt.IsZero() {
		stats["elapsed_sec"] = time.Since(s.startedAt).Seconds()
	}
	if s.queue != nil {
		stats["pending"] = s.queue.Len()
	}
	if s.pool != nil {
		stats["pool"] = s.pool.Stats()
	}
	if s.seen != nil {
		stats["unique_results"] = s.seen.Size()
	}
	return stats
}
