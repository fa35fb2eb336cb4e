// Package worker drains the execution queue with a fixed number of
// goroutines.
package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/michaelbrown/rustplay/internal/executor"
	"github.com/michaelbrown/rustplay/internal/metrics"
	"github.com/michaelbrown/rustplay/internal/queue"
)

// Executor is the part of *executor.Executor a worker needs.
type Executor interface {
	Execute(ctx context.Context, req executor.Request) *executor.Result
}

type Worker struct {
	id       int
	executor Executor
	manager  *queue.Manager
	logger   *zerolog.Logger
}

func NewWorker(id int, exec Executor, manager *queue.Manager, logger *zerolog.Logger) *Worker {
	return &Worker{
		id:       id,
		executor: exec,
		manager:  manager,
		logger:   logger,
	}
}

func (w *Worker) Start(ctx context.Context) {
	w.logger.Debug().Int("worker_id", w.id).Msg("worker started")
	for {
		select {
		case job := <-w.manager.NextJob():
			w.manager.UpdateQueueMetric()
			metrics.ActiveWorkers.Inc()
			w.processJob(job)
			metrics.ActiveWorkers.Dec()
		case <-ctx.Done():
			w.logger.Debug().Int("worker_id", w.id).Msg("worker stopping")
			return
		}
	}
}

func (w *Worker) processJob(job *queue.Job) {
	if err := job.Ctx.Err(); err != nil {
		w.logger.Debug().Int("worker_id", w.id).Str("job_id", job.ID).Msg("job abandoned before start")
		job.Result <- &executor.Result{
			Outcome:  executor.OutcomeCanceled,
			Response: executor.Response{Error: fmt.Sprintf("Request canceled: %v", err)},
		}
		return
	}

	startTime := time.Now()
	result := w.execute(job)
	duration := time.Since(startTime)

	metrics.ExecutionsTotal.WithLabelValues(string(result.Outcome)).Inc()
	metrics.ExecutionDuration.WithLabelValues("total").Observe(float64(duration.Milliseconds()))
	if result.CompileDuration > 0 {
		metrics.ExecutionDuration.WithLabelValues("compile").Observe(float64(result.CompileDuration.Milliseconds()))
	}
	if result.RunDuration > 0 {
		metrics.ExecutionDuration.WithLabelValues("run").Observe(float64(result.RunDuration.Milliseconds()))
	}

	job.Result <- result
}

// execute runs the job, turning a panic into an infrastructure failure so
// the worker survives and the caller still gets an answer.
func (w *Worker) execute(job *queue.Job) (result *executor.Result) {
	defer func() {
		if rec := recover(); rec != nil {
			metrics.WorkerPanics.Inc()
			w.logger.Error().
				Int("worker_id", w.id).
				Str("job_id", job.ID).
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("execution panicked")
			result = &executor.Result{
				Outcome:  executor.OutcomeInternal,
				Response: executor.Response{Error: "Internal error during execution"},
			}
		}
	}()
	return w.executor.Execute(job.Ctx, job.Request)
}

// Pool is a fixed set of workers sharing one queue.
type Pool struct {
	workers []*Worker
	wg      sync.WaitGroup
}

// NewPool creates n workers draining manager.
func NewPool(n int, exec Executor, manager *queue.Manager, logger *zerolog.Logger) *Pool {
	p := &Pool{}
	for i := 0; i < n; i++ {
		p.workers = append(p.workers, NewWorker(i+1, exec, manager, logger))
	}
	return p
}

// Start launches every worker. They stop when ctx is done.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		p.wg.Add(1)
		go func(w *Worker) {
			defer p.wg.Done()
			w.Start(ctx)
		}(w)
	}
}

// Wait blocks until every worker has returned.
func (p *Pool) Wait() { p.wg.Wait() }

// Size is the number of workers.
func (p *Pool) Size() int { return len(p.workers) }
