package worker_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	queue "github.com/okian/matchbench/internal/adapters/mq/queue"
	worker "github.com/okian/matchbench/internal/adapters/mq/worker"
	"github.com/okian/matchbench/internal/domain/match"
	model "github.com/okian/matchbench/internal/domain/model"
	logging "github.com/okian/matchbench/pkg/logger"
)

func TestMain(m *testing.M) {
	_ = logging.Init(logging.WithOutput(io.Discard))
	os.Exit(m.Run())
}

const winA = "[server] alpha (A) wins (round 1500)\n"

// script describes how a fake match behaves. Jobs are keyed by Invocation.Path.
type script struct {
	duration   time.Duration
	stdout     string
	stderr     string
	launchErrs int // number of launches that fail before one succeeds; -1 fails forever
}

// fakeLauncher runs scripted matches in virtual processes and records timings.
type fakeLauncher struct {
	mu       sync.Mutex
	scripts  map[string]*script
	launches map[string]int
	starts   map[string]time.Time
	ends     map[string]time.Time
	killed   map[string]bool
	current  int
	peak     int
}

func newFakeLauncher() *fakeLauncher {
	return &fakeLauncher{
		scripts:  map[string]*script{},
		launches: map[string]int{},
		starts:   map[string]time.Time{},
		ends:     map[string]time.Time{},
		killed:   map[string]bool{},
	}
}

func (f *fakeLauncher) Launch(_ context.Context, inv model.Invocation) (worker.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := inv.Path
	sc := f.scripts[name]
	f.launches[name]++
	if sc.launchErrs < 0 || f.launches[name] <= sc.launchErrs {
		return nil, fmt.Errorf("exec %s: no such file", name)
	}

	f.current++
	if f.current > f.peak {
		f.peak = f.current
	}
	now := time.Now()
	f.starts[name] = now
	return &fakeHandle{f: f, name: name, sc: sc, deadline: now.Add(sc.duration)}, nil
}

func (f *fakeLauncher) release(name string, killed bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current--
	f.ends[name] = time.Now()
	f.killed[name] = killed
}

type fakeHandle struct {
	f        *fakeLauncher
	name     string
	sc       *script
	deadline time.Time
	once     sync.Once
	killed   bool
}

func (h *fakeHandle) Poll(wait time.Duration) (model.Output, bool) {
	if h.killed {
		return model.Output{ExitCode: -1}, true
	}
	remaining := time.Until(h.deadline)
	if remaining > 0 {
		if wait < remaining {
			if wait > 0 {
				time.Sleep(wait)
			}
			return model.Output{}, false
		}
		time.Sleep(remaining)
	}
	h.once.Do(func() { h.f.release(h.name, false) })
	return model.Output{Stdout: []byte(h.sc.stdout), Stderr: []byte(h.sc.stderr)}, true
}

func (h *fakeHandle) Kill() error {
	h.killed = true
	h.once.Do(func() { h.f.release(h.name, true) })
	return nil
}

func (f *fakeLauncher) add(name string, sc script) model.Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[name] = &sc
	return model.Job{ID: "job-" + name, Invocation: model.Invocation{Path: name}}
}

func (f *fakeLauncher) snapshot(name string) (launches int, start, end time.Time, killed bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.launches[name], f.starts[name], f.ends[name], f.killed[name]
}

func (f *fakeLauncher) maxConcurrent() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peak
}

func fill(jobs ...model.Job) *queue.InMemoryQueue {
	q := queue.NewInMemoryQueue(queue.WithCapacity(len(jobs) + 1))
	for _, j := range jobs {
		if err := q.Enqueue(context.Background(), j); err != nil {
			panic(err)
		}
	}
	_ = q.Close()
	return q
}

func collect(results <-chan model.Result) map[string]model.Result {
	out := map[string]model.Result{}
	for r := range results {
		if _, dup := out[r.Job.ID]; dup {
			panic("duplicate result for " + r.Job.ID)
		}
		out[r.Job.ID] = r
	}
	return out
}

func TestPoolAdmission(t *testing.T) {
	// The batch runs once; every leaf below inspects the same run.
	f := newFakeLauncher()
	durations := []time.Duration{
		100 * time.Millisecond,
		100 * time.Millisecond,
		5 * time.Second,
		100 * time.Millisecond,
		100 * time.Millisecond,
	}
	jobs := make([]model.Job, len(durations))
	for i, d := range durations {
		jobs[i] = f.add(fmt.Sprintf("j%d", i+1), script{duration: d, stdout: winA})
	}

	pool := worker.NewPool(f, worker.WithMaxParallel(2), worker.WithPollInterval(50*time.Millisecond))
	results := collect(pool.Run(context.Background(), fill(jobs...)))

	convey.Convey("Given five jobs where the third is slow and two slots", t, func() {
		convey.Convey("Then every job completes exactly once", func() {
			convey.So(len(results), convey.ShouldEqual, 5)
			for _, j := range jobs {
				convey.So(results[j.ID].Err, convey.ShouldBeNil)
				convey.So(results[j.ID].Winner, convey.ShouldEqual, model.SideA)
				convey.So(results[j.ID].Attempts, convey.ShouldEqual, 1)
			}
		})

		convey.Convey("Then jobs four and five start before job three ends", func() {
			_, _, end3, _ := f.snapshot("j3")
			_, start4, _, _ := f.snapshot("j4")
			_, start5, _, _ := f.snapshot("j5")
			convey.So(start4.Before(end3), convey.ShouldBeTrue)
			convey.So(start5.Before(end3), convey.ShouldBeTrue)
		})

		convey.Convey("Then never more than two matches run at once", func() {
			convey.So(f.maxConcurrent(), convey.ShouldEqual, 2)
			convey.So(pool.Running(), convey.ShouldEqual, 0)
		})

		convey.Convey("Then the counters reflect the batch", func() {
			stats := pool.Stats()
			convey.So(stats.Started, convey.ShouldEqual, 5)
			convey.So(stats.Completed, convey.ShouldEqual, 5)
			convey.So(stats.Failed, convey.ShouldEqual, 0)
			convey.So(stats.Requeued, convey.ShouldBeGreaterThan, 0)
		})
	})
}

func TestPoolBound(t *testing.T) {
	convey.Convey("Given more jobs than slots", t, func() {
		f := newFakeLauncher()
		var jobs []model.Job
		for i := 0; i < 12; i++ {
			jobs = append(jobs, f.add(fmt.Sprintf("j%02d", i), script{
				duration: time.Duration(10+(i%4)*15) * time.Millisecond,
				stdout:   winA,
			}))
		}

		pool := worker.NewPool(f, worker.WithMaxParallel(3), worker.WithPollInterval(20*time.Millisecond))
		results := collect(pool.Run(context.Background(), fill(jobs...)))

		convey.Convey("Then the bound holds and all results arrive", func() {
			convey.So(len(results), convey.ShouldEqual, 12)
			convey.So(f.maxConcurrent(), convey.ShouldBeLessThanOrEqualTo, 3)
		})
	})

	convey.Convey("Given an empty closed queue", t, func() {
		pool := worker.NewPool(newFakeLauncher())
		results := collect(pool.Run(context.Background(), fill()))

		convey.Convey("Then the batch ends immediately", func() {
			convey.So(len(results), convey.ShouldEqual, 0)
		})
	})
}

func TestPoolFailures(t *testing.T) {
	convey.Convey("Given a match that prints no winner", t, func() {
		f := newFakeLauncher()
		bad := f.add("bad", script{duration: 10 * time.Millisecond, stdout: "BUILD FAILED\n", stderr: string(make([]byte, 500))})
		good := f.add("good", script{duration: 10 * time.Millisecond, stdout: winA})

		pool := worker.NewPool(f, worker.WithPollInterval(10*time.Millisecond))
		results := collect(pool.Run(context.Background(), fill(bad, good)))

		convey.Convey("Then it fails without a retry and the batch continues", func() {
			convey.So(errors.Is(results[bad.ID].Err, match.ErrMalformedOutput), convey.ShouldBeTrue)
			convey.So(results[bad.ID].StderrBytes, convey.ShouldEqual, 500)
			launches, _, _, _ := f.snapshot("bad")
			convey.So(launches, convey.ShouldEqual, 1)
			convey.So(results[good.ID].Err, convey.ShouldBeNil)
		})
	})

	convey.Convey("Given a match that can never be launched", t, func() {
		f := newFakeLauncher()
		broken := f.add("broken", script{launchErrs: -1})
		good := f.add("good", script{duration: 10 * time.Millisecond, stdout: winA})

		pool := worker.NewPool(f, worker.WithLaunchRetries(2), worker.WithPollInterval(10*time.Millisecond))
		results := collect(pool.Run(context.Background(), fill(broken, good)))

		convey.Convey("Then it is retried and then reported as a launch failure", func() {
			convey.So(errors.Is(results[broken.ID].Err, worker.ErrProcessLaunch), convey.ShouldBeTrue)
			convey.So(results[broken.ID].Attempts, convey.ShouldEqual, 3)
			launches, _, _, _ := f.snapshot("broken")
			convey.So(launches, convey.ShouldEqual, 3)
			convey.So(results[good.ID].Err, convey.ShouldBeNil)
			convey.So(pool.Stats().Failed, convey.ShouldEqual, 1)
		})
	})

	convey.Convey("Given a match whose first launch fails", t, func() {
		f := newFakeLauncher()
		flaky := f.add("flaky", script{launchErrs: 1, duration: 10 * time.Millisecond, stdout: "[server] beta (B) wins\n"})

		pool := worker.NewPool(f, worker.WithPollInterval(10*time.Millisecond))
		results := collect(pool.Run(context.Background(), fill(flaky)))

		convey.Convey("Then the retry succeeds", func() {
			convey.So(results[flaky.ID].Err, convey.ShouldBeNil)
			convey.So(results[flaky.ID].Winner, convey.ShouldEqual, model.SideB)
			convey.So(results[flaky.ID].Attempts, convey.ShouldEqual, 2)
		})
	})

	convey.Convey("Given a match that runs past the timeout", t, func() {
		f := newFakeLauncher()
		slow := f.add("slow", script{duration: 10 * time.Second, stdout: winA})

		pool := worker.NewPool(f,
			worker.WithMatchTimeout(100*time.Millisecond),
			worker.WithPollInterval(20*time.Millisecond),
		)
		results := collect(pool.Run(context.Background(), fill(slow)))

		convey.Convey("Then it is killed and reported as timed out", func() {
			convey.So(errors.Is(results[slow.ID].Err, worker.ErrMatchTimeout), convey.ShouldBeTrue)
			_, _, _, killed := f.snapshot("slow")
			convey.So(killed, convey.ShouldBeTrue)
		})
	})
}

func TestPoolCancellation(t *testing.T) {
	convey.Convey("Given a batch of long matches", t, func() {
		f := newFakeLauncher()
		a := f.add("a", script{duration: 10 * time.Second, stdout: winA})
		b := f.add("b", script{duration: 10 * time.Second, stdout: winA})
		c := f.add("c", script{duration: 10 * time.Second, stdout: winA})

		ctx, cancel := context.WithCancel(context.Background())
		pool := worker.NewPool(f, worker.WithMaxParallel(2), worker.WithPollInterval(20*time.Millisecond))
		results := pool.Run(ctx, fill(a, b, c))

		time.Sleep(100 * time.Millisecond)
		cancel()

		got := collect(results)

		convey.Convey("Then running matches are killed and nothing is synthesized", func() {
			convey.So(len(got), convey.ShouldEqual, 0)
			_, _, _, killedA := f.snapshot("a")
			_, _, _, killedB := f.snapshot("b")
			launchesC, _, _, _ := f.snapshot("c")
			convey.So(killedA, convey.ShouldBeTrue)
			convey.So(killedB, convey.ShouldBeTrue)
			convey.So(launchesC, convey.ShouldEqual, 0)
			convey.So(pool.Running(), convey.ShouldEqual, 0)
		})
	})
}
