// Package pool runs remote operations on a fixed number of workers and
// bounds the time a caller waits for each of them.
package pool

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/semaphore"

	"code.dogecoin.org/airdrop/internal/log"
	"code.dogecoin.org/airdrop/internal/metric"
	"code.dogecoin.org/airdrop/internal/spec"
)

// DefaultWorkers is the worker cap used when none is configured.
const DefaultWorkers = 20

// Kind is the terminal state of an attempt.
type Kind int

const (
	Succeeded Kind = iota
	TimedOut
	RemoteError
	Cancelled // the run itself was cancelled
)

func (k Kind) String() string {
	switch k {
	case Succeeded:
		return "succeeded"
	case TimedOut:
		return "timeout"
	case RemoteError:
		return "remote-error"
	case Cancelled:
		return "cancelled"
	}
	return "unknown"
}

// Outcome is the result of one attempt as seen by the driver.
type Outcome struct {
	Kind    Kind
	Err     error // nil on success
	Elapsed time.Duration
}

func (o Outcome) OK() bool {
	return o.Kind == Succeeded
}

// Task is one remote operation submitted to the pool.
type Task struct {
	Stage   string // spec.StageConnect or spec.StageFund
	Target  string // node or peer id
	Address string
	Timeout time.Duration
	Op      func(ctx context.Context) error
}

// Pool is a bounded set of workers shared by all stages of one run.
type Pool struct {
	ctx     context.Context
	sem     *semaphore.Weighted
	wg      sync.WaitGroup
	clock   clock.Clock
	journal spec.Journal // optional
	runID   string
}

// New creates a pool whose operations are cancelled when ctx is done.
func New(ctx context.Context, workers int) *Pool {
	if workers < 1 {
		workers = DefaultWorkers
	}
	return &Pool{
		ctx:   ctx,
		sem:   semaphore.NewWeighted(int64(workers)),
		clock: clock.New(),
	}
}

// WithJournal records every finished attempt under runID.
func (p *Pool) WithJournal(journal spec.Journal, runID string) *Pool {
	p.journal = journal
	p.runID = runID
	return p
}

// WithClock replaces the wall clock (tests).
func (p *Pool) WithClock(c clock.Clock) *Pool {
	p.clock = c
	return p
}

// Do submits the task and blocks until it finishes or its timeout expires.
// Waiting for a free worker counts against the timeout. An operation that
// ignores its context keeps its worker until it returns; Do does not wait
// for it.
func (p *Pool) Do(task Task) Outcome {
	start := p.clock.Now()
	out := p.do(task)
	out.Elapsed = p.clock.Since(start)
	p.record(task, start, out)
	return out
}

func (p *Pool) do(task Task) Outcome {
	if p.ctx.Err() != nil {
		return Outcome{Kind: Cancelled, Err: p.ctx.Err()}
	}
	ctx, cancel := context.WithTimeout(p.ctx, task.Timeout)
	if err := p.sem.Acquire(ctx, 1); err != nil {
		cancel()
		return p.expired(err)
	}
	done := make(chan error, 1)
	p.wg.Add(1)
	metric.InFlight.Inc()
	go func() {
		defer p.wg.Done()
		defer metric.InFlight.Dec()
		defer p.sem.Release(1)
		defer cancel()
		done <- task.Op(ctx)
	}()
	select {
	case err := <-done:
		return p.result(err)
	case <-ctx.Done():
		// the operation may have finished just as the context ended.
		select {
		case err := <-done:
			return p.result(err)
		default:
		}
		return p.expired(ctx.Err())
	}
}

func (p *Pool) result(err error) Outcome {
	if err == nil {
		return Outcome{Kind: Succeeded}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Outcome{Kind: TimedOut, Err: err}
	}
	if errors.Is(err, context.Canceled) && p.ctx.Err() != nil {
		return Outcome{Kind: Cancelled, Err: err}
	}
	return Outcome{Kind: RemoteError, Err: err}
}

func (p *Pool) expired(err error) Outcome {
	if p.ctx.Err() != nil {
		return Outcome{Kind: Cancelled, Err: p.ctx.Err()}
	}
	return Outcome{Kind: TimedOut, Err: err}
}

func (p *Pool) record(task Task, start time.Time, out Outcome) {
	metric.Attempts.WithLabelValues(task.Stage, out.Kind.String()).Inc()
	metric.ObserveDuration(metric.AttemptDuration, out.Elapsed, task.Stage)
	if p.journal == nil {
		return
	}
	attempt := spec.Attempt{
		RunID:     p.runID,
		Stage:     task.Stage,
		Target:    task.Target,
		Address:   task.Address,
		Outcome:   out.Kind.String(),
		StartedAt: start,
		Elapsed:   out.Elapsed,
	}
	if out.Err != nil {
		attempt.Error = out.Err.Error()
	}
	if err := p.journal.RecordAttempt(attempt); err != nil {
		log.Warnw("[pool] cannot record attempt", "target", task.Target, "err", err)
	}
}

// Close waits for every in-flight operation to return.
func (p *Pool) Close() {
	p.wg.Wait()
}
