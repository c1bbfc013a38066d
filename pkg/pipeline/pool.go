package pipeline

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/LuckyLaurence/InSAR-Pipeline/pkg/pairs"
	"github.com/LuckyLaurence/InSAR-Pipeline/pkg/resources"
	"github.com/LuckyLaurence/InSAR-Pipeline/pkg/sandbox"
)

// Pool fans a pair list out over a fixed number of workers. Each worker
// pulls the next unstarted unit as soon as it finishes its current one,
// so slot reuse is immediate rather than batched.
type Pool struct {
	exec    *Executor
	workers int
	limiter *rate.Limiter
	log     *zap.Logger
}

// NewPool creates a pool. workers below 1 is treated as 1. limit > 0
// paces unit launches at that many starts per second, smoothing the
// burst of staging I/O when a large list kicks off; limit <= 0 disables
// pacing.
func NewPool(exec *Executor, workers int, limit float64, log *zap.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	var limiter *rate.Limiter
	if limit > 0 {
		limiter = rate.NewLimiter(rate.Limit(limit), 1)
	}
	return &Pool{exec: exec, workers: workers, limiter: limiter, log: log}
}

// RunAll processes every pair and returns one result per input, in
// input order. A failed unit releases its worker slot and never
// disturbs its siblings; the pool always drains the full list.
// Cancelling ctx stops launching new units; units already running fail
// through their own context handling.
func (p *Pool) RunAll(ctx context.Context, list []pairs.Pair, shared *resources.Shared) []TaskResult {
	results := make([]TaskResult, len(list))
	tasks := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < p.workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := range tasks {
				res := p.exec.Execute(ctx, list[i], shared)
				res.Index = i
				results[i] = res
			}
		}(w)
	}

	p.log.Info("pool started",
		zap.Int("workers", p.workers),
		zap.Int("units", len(list)))

	dispatched := len(list)
dispatch:
	for i := range list {
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				dispatched = i
				break
			}
		}
		select {
		case tasks <- i:
		case <-ctx.Done():
			dispatched = i
			break dispatch
		}
	}
	close(tasks)
	wg.Wait()

	if dispatched < len(list) {
		p.fillCancelled(results, list, dispatched, ctx.Err())
	}
	return results
}

// fillCancelled marks every never-dispatched unit failed so the result
// slice stays complete even on early shutdown. Called only after the
// workers have drained, so no slot is written concurrently.
func (p *Pool) fillCancelled(results []TaskResult, list []pairs.Pair, from int, cause error) {
	for i := from; i < len(list); i++ {
		results[i] = TaskResult{
			Index:   i,
			PairID:  sandbox.DirName(list[i]),
			Status:  StatusFailed,
			Message: "not started: " + cause.Error(),
		}
	}
	p.log.Warn("pool interrupted", zap.Int("first_unstarted", from), zap.Error(cause))
}

// Summary aggregates a result slice for the end-of-run report.
type Summary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Summarize tallies results.
func Summarize(results []TaskResult) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		if r.Succeeded() {
			s.Succeeded++
		} else {
			s.Failed++
		}
	}
	return s
}
