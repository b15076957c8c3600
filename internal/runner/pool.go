// Package runner executes independent replicates on a bounded worker pool
// and streams their logs to sinks as they complete.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/talgya/outbreak/internal/engine"
	"github.com/talgya/outbreak/internal/entropy"
	"github.com/talgya/outbreak/internal/events"
)

// ErrPanic wraps a panic raised inside a replicate.
var ErrPanic = errors.New("replicate panicked")

// Result is one finished replicate. Err is set when the replicate stopped on
// a protocol error; Log and Summary are still valid then.
type Result struct {
	Replicate int
	Summary   engine.Summary
	Log       *events.Log
	Elapsed   time.Duration
	Err       error
}

// Sink receives finished replicates. Write is called from a single
// goroutine, in completion order.
type Sink interface {
	Write(res *Result) error
}

// Pool runs Replicates copies of Setup, at most Jobs at a time. Replicate i
// draws from entropy.ForReplicate(Setup.Seed, i).
type Pool struct {
	Setup      engine.Setup
	Registry   *engine.Registry
	Replicates int
	Jobs       int
	Sinks      []Sink

	// Progress is how often progress is logged; zero means every second.
	Progress time.Duration
}

// Run executes the replicates and returns their summaries ordered by
// replicate. The first replicate or sink error stops new replicates from
// starting; those already running finish and are delivered.
func (p *Pool) Run(ctx context.Context) ([]engine.Summary, error) {
	if p.Replicates <= 0 {
		return nil, nil
	}
	jobs := p.Jobs
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}
	jobs = min(jobs, p.Replicates)

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	g, gctx := errgroup.WithContext(ctx)

	ids := make(chan int)
	results := make(chan *Result)

	// ── Producer ──
	g.Go(func() error {
		defer close(ids)
		for i := 0; i < p.Replicates; i++ {
			select {
			case ids <- i:
			case <-gctx.Done():
				return nil
			}
		}
		return nil
	})

	// ── Workers ──
	var workers sync.WaitGroup
	for range jobs {
		workers.Add(1)
		g.Go(func() error {
			defer workers.Done()
			for id := range ids {
				if gctx.Err() != nil {
					return nil
				}
				res := p.replicate(id)
				results <- res
				if res.Err != nil {
					return res.Err
				}
			}
			return nil
		})
	}
	go func() {
		workers.Wait()
		close(results)
	}()

	// ── Consumer ──
	var summaries []engine.Summary
	var sinkErr error
	done := 0
	progress := rate.Sometimes{Interval: p.progressInterval()}
	started := time.Now()

	for res := range results {
		summaries = append(summaries, res.Summary)
		done++
		if sinkErr == nil {
			for _, s := range p.Sinks {
				if err := s.Write(res); err != nil {
					sinkErr = fmt.Errorf("sink: %w", err)
					cancel(sinkErr)
					break
				}
			}
		}
		progress.Do(func() {
			slog.Info("progress",
				"done", done,
				"total", p.Replicates,
				"elapsed", time.Since(started).Round(time.Millisecond),
			)
		})
	}

	err := g.Wait()
	if err == nil {
		err = sinkErr
	}
	if err == nil && ctx.Err() != nil {
		err = context.Cause(ctx)
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Replicate < summaries[j].Replicate
	})
	slog.Debug("pool finished", "replicates", len(summaries), "elapsed", time.Since(started), "error", err)
	return summaries, err
}

func (p *Pool) progressInterval() time.Duration {
	if p.Progress > 0 {
		return p.Progress
	}
	return time.Second
}

// replicate builds and runs a single replicate, turning panics into errors.
func (p *Pool) replicate(id int) (res *Result) {
	start := time.Now()
	setup := p.Setup
	setup.Replicate = id
	res = &Result{
		Replicate: id,
		Summary:   engine.Summary{Replicate: id, Seed: setup.Seed},
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("replicate panicked", "replicate", id, "panic", r, "stack", string(debug.Stack()))
			res.Err = fmt.Errorf("%w: replicate %d: %v", ErrPanic, id, r)
			if res.Log == nil {
				res.Log = events.NewLog(id)
			}
		}
		res.Elapsed = time.Since(start)
	}()

	sim, err := engine.NewSimulation(setup, p.Registry, entropy.ForReplicate(setup.Seed, id))
	if err != nil {
		res.Log = events.NewLog(id)
		res.Err = fmt.Errorf("replicate %d: %w", id, err)
		return res
	}
	res.Log = sim.Log
	res.Summary, res.Err = sim.Run()
	return res
}
