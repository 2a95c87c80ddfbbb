// Package worker schedules match processes with bounded concurrency.
//
// A single control goroutine owns the set of running matches. Each pass it
// sweeps every running match without blocking, admits pending jobs into freed
// slots and, when nothing finished, waits a bounded time on the oldest match
// before rotating it to the back of the running set.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/okian/matchbench/internal/adapters/mq/queue"
	"github.com/okian/matchbench/internal/domain/match"
	"github.com/okian/matchbench/internal/domain/model"
	"github.com/okian/matchbench/pkg/logger"
	"github.com/okian/matchbench/pkg/metrics"
)

// Default scheduler configuration constants.
const (
	defaultMaxParallel     = 8
	defaultPollInterval    = time.Second
	defaultLaunchRetries   = 2
	defaultStderrThreshold = 213
)

// Handle is a running match process.
type Handle interface {
	// Poll waits at most wait for the match to finish. Still running is
	// reported as false, not as an error.
	Poll(wait time.Duration) (model.Output, bool)
	// Kill stops the match.
	Kill() error
}

// Launcher starts match processes.
type Launcher interface {
	Launch(ctx context.Context, inv model.Invocation) (Handle, error)
}

// LauncherFunc adapts a function to Launcher.
type LauncherFunc func(ctx context.Context, inv model.Invocation) (Handle, error)

// Launch calls f.
func (f LauncherFunc) Launch(ctx context.Context, inv model.Invocation) (Handle, error) {
	return f(ctx, inv)
}

// Queue defines how the pool receives jobs.
type Queue interface {
	TryDequeue() (model.Job, bool)
	Dequeue(ctx context.Context) (model.Job, error)
	Cap() int
}

// Stats is a point-in-time view of the pool counters.
type Stats struct {
	Running   int64 `json:"running"`
	Started   int64 `json:"started"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Requeued  int64 `json:"requeued"`
}

// Pool runs match jobs with at most maxParallel processes at a time.
type Pool struct {
	launcher        Launcher
	maxParallel     int
	pollInterval    time.Duration
	launchRetries   int
	matchTimeout    time.Duration
	stderrThreshold int
	parse           func([]byte) (model.Side, error)

	running   atomic.Int64
	started   atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	requeued  atomic.Int64

	logger logger.Logger
}

// slot is a job occupying one unit of concurrency.
type slot struct {
	job      model.Job
	handle   Handle
	started  time.Time
	attempts int
}

// NewPool creates a pool that starts matches with launcher.
func NewPool(launcher Launcher, opts ...Option) *Pool {
	p := &Pool{
		launcher:        launcher,
		maxParallel:     defaultMaxParallel,
		pollInterval:    defaultPollInterval,
		launchRetries:   defaultLaunchRetries,
		stderrThreshold: defaultStderrThreshold,
		parse:           match.ParseWinner,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logger.Get().Named("pool")
	}

	metrics.UpdatePoolCapacity(p.maxParallel)
	metrics.UpdatePoolRunning(0)
	return p
}

// Running returns the number of match processes currently running.
func (p *Pool) Running() int {
	return int(p.running.Load())
}

// Stats returns the pool counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Running:   p.running.Load(),
		Started:   p.started.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Requeued:  p.requeued.Load(),
	}
}

// Run consumes q until it is closed and drained, delivering one result per
// job in completion order. The returned channel is buffered to the queue
// capacity and closed when the batch is done or ctx is cancelled. On
// cancellation running matches are killed and no result is synthesized for them.
func (p *Pool) Run(ctx context.Context, q Queue) <-chan model.Result {
	size := q.Cap()
	if size < p.maxParallel {
		size = p.maxParallel
	}
	out := make(chan model.Result, size)
	go p.loop(ctx, q, out)
	return out
}

func (p *Pool) loop(ctx context.Context, q Queue, out chan<- model.Result) {
	defer close(out)

	var (
		running         = make([]*slot, 0, p.maxParallel)
		drained         bool
		launchFailures  int
		systemicWarning bool
	)
	defer func() {
		for _, s := range running {
			if err := s.handle.Kill(); err != nil {
				p.logger.Warn(ctx, "failed to kill match", logger.String("job", s.job.ID), logger.Error(err))
			}
		}
		p.setRunning(0)
	}()

	for {
		if ctx.Err() != nil {
			p.logger.Warn(ctx, "batch cancelled", logger.Int("killed", len(running)))
			return
		}

		// Sweep: collect every finished match without blocking.
		finished := 0
		keep := running[:0]
		for _, s := range running {
			if output, done := s.handle.Poll(0); done {
				p.emit(ctx, out, p.complete(ctx, s, output))
				finished++
				continue
			}
			if p.expired(s) {
				p.emit(ctx, out, p.timeout(ctx, s))
				finished++
				continue
			}
			keep = append(keep, s)
		}
		running = keep
		p.setRunning(len(running))

		// Admit pending jobs into free slots.
		for !drained && len(running) < p.maxParallel {
			job, ok := q.TryDequeue()
			if !ok {
				if len(running) > 0 {
					break
				}
				var err error
				job, err = q.Dequeue(ctx)
				if err != nil {
					if errors.Is(err, queue.ErrClosed) {
						drained = true
					}
					break
				}
			}

			s, err := p.launch(ctx, job)
			if errors.Is(err, ErrStopped) {
				break
			}
			if err != nil {
				launchFailures++
				if launchFailures >= p.maxParallel && !systemicWarning {
					systemicWarning = true
					p.logger.Error(ctx, "every recent launch failed, is the match program built?",
						logger.Int("consecutive_failures", launchFailures),
						logger.String("command", job.Invocation.String()),
					)
				}
				p.emit(ctx, out, p.launchFailed(ctx, job, err))
				continue
			}
			launchFailures = 0
			running = append(running, s)
			p.setRunning(len(running))
		}

		if drained && len(running) == 0 {
			p.logger.Debug(ctx, "batch drained", logger.Int64("completed", p.completed.Load()), logger.Int64("failed", p.failed.Load()))
			return
		}

		// Nothing finished this pass: wait on the oldest match, then rotate it.
		if finished == 0 && len(running) > 0 {
			head := running[0]
			if output, done := head.handle.Poll(p.pollInterval); done {
				running = running[1:]
				p.emit(ctx, out, p.complete(ctx, head, output))
			} else {
				running = append(running[1:], head)
				p.requeued.Add(1)
				metrics.RecordPollRequeue()
			}
			p.setRunning(len(running))
		}
	}
}

func (p *Pool) setRunning(n int) {
	p.running.Store(int64(n))
	metrics.UpdatePoolRunning(n)
}

// launch starts a job, retrying failed launches.
func (p *Pool) launch(ctx context.Context, job model.Job) (*slot, error) { //nolint:gocritic // hugeParam: Job is immutable and passed by value
	var lastErr error
	for attempt := 1; attempt <= p.launchRetries+1; attempt++ {
		h, err := p.launcher.Launch(ctx, job.Invocation)
		if err == nil {
			p.started.Add(1)
			metrics.RecordJobStarted()
			p.logger.Debug(ctx, "match started",
				logger.String("job", job.ID),
				logger.String("map", job.Matchup.Map),
				logger.String("team_a", job.Matchup.A.Name),
				logger.String("team_b", job.Matchup.B.Name),
			)
			return &slot{job: job, handle: h, started: time.Now(), attempts: attempt}, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrStopped, ctx.Err())
		}
		lastErr = err
		if attempt <= p.launchRetries {
			metrics.RecordLaunchRetry()
			p.logger.Warn(ctx, "match launch failed, retrying",
				logger.String("job", job.ID),
				logger.Int("attempt", attempt),
				logger.Error(err),
			)
		}
	}
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrProcessLaunch, p.launchRetries+1, lastErr)
}

func (p *Pool) expired(s *slot) bool {
	return p.matchTimeout > 0 && time.Since(s.started) > p.matchTimeout
}

// complete turns a finished process into a result.
func (p *Pool) complete(ctx context.Context, s *slot, output model.Output) model.Result {
	res := model.Result{
		Job:         s.job,
		Duration:    time.Since(s.started),
		StderrBytes: len(output.Stderr),
		Attempts:    s.attempts,
		FinishedAt:  time.Now(),
	}

	if len(output.Stderr) > p.stderrThreshold {
		metrics.RecordStderrWarning()
		p.logger.Warn(ctx, "long error stream, is the match running correctly?",
			logger.String("job", s.job.ID),
			logger.Int("stderr_bytes", len(output.Stderr)),
			logger.String("reproduce", s.job.Invocation.String()),
		)
	}
	if match.ChattyTranscript(output.Stdout) {
		metrics.RecordChattyTranscript()
		p.logger.Warn(ctx, "long transcript, is a robot printing to stdout?",
			logger.String("job", s.job.ID),
			logger.String("reproduce", s.job.Invocation.String()),
		)
	}

	side, err := p.parse(output.Stdout)
	if err != nil {
		res.Err = err
		p.failed.Add(1)
		metrics.RecordJobFailed("malformed_output")
		p.logger.Warn(ctx, "match output has no winner",
			logger.String("job", s.job.ID),
			logger.Int("exit_code", output.ExitCode),
			logger.String("reproduce", s.job.Invocation.String()),
			logger.Error(err),
		)
		return res
	}

	res.Winner = side
	p.completed.Add(1)
	metrics.RecordJobCompleted(res.Duration.Seconds())
	return res
}

func (p *Pool) timeout(ctx context.Context, s *slot) model.Result {
	if err := s.handle.Kill(); err != nil {
		p.logger.Warn(ctx, "failed to kill match", logger.String("job", s.job.ID), logger.Error(err))
	}
	elapsed := time.Since(s.started)
	p.failed.Add(1)
	metrics.RecordJobFailed("timeout")
	p.logger.Warn(ctx, "match timed out",
		logger.String("job", s.job.ID),
		logger.Duration("elapsed", elapsed),
		logger.String("reproduce", s.job.Invocation.String()),
	)
	return model.Result{
		Job:        s.job,
		Err:        fmt.Errorf("%w after %s", ErrMatchTimeout, elapsed.Round(time.Millisecond)),
		Duration:   elapsed,
		Attempts:   s.attempts,
		FinishedAt: time.Now(),
	}
}

func (p *Pool) launchFailed(ctx context.Context, job model.Job, err error) model.Result { //nolint:gocritic // hugeParam: Job is immutable and passed by value
	p.failed.Add(1)
	metrics.RecordJobFailed("launch")
	metrics.RecordErrorByComponent("pool", "launch")
	p.logger.Error(ctx, "match could not be launched",
		logger.String("job", job.ID),
		logger.String("command", job.Invocation.String()),
		logger.Error(err),
	)
	return model.Result{
		Job:        job,
		Err:        err,
		Attempts:   p.launchRetries + 1,
		FinishedAt: time.Now(),
	}
}

// emit delivers a result unless the batch is being cancelled.
func (p *Pool) emit(ctx context.Context, out chan<- model.Result, res model.Result) { //nolint:gocritic // hugeParam: Result is passed by value for channel semantics
	select {
	case out <- res:
	case <-ctx.Done():
	}
}
