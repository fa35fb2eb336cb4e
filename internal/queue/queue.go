// Package queue holds pending executions between the transport layer and
// the worker pool.
package queue

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/michaelbrown/rustplay/internal/executor"
	"github.com/michaelbrown/rustplay/internal/metrics"
)

// ErrQueueFull is returned by Submit when no slot is free.
var ErrQueueFull = errors.New("execution queue is full")

// Job is one queued execution. Result receives exactly one value.
type Job struct {
	ID      string
	Request executor.Request
	Result  chan *executor.Result
	Ctx     context.Context
}

// NewJob creates a Job bound to ctx.
func NewJob(ctx context.Context, req executor.Request) *Job {
	return &Job{
		ID:      uuid.NewString(),
		Request: req,
		Result:  make(chan *executor.Result, 1),
		Ctx:     ctx,
	}
}

// Wait blocks until the job has a result or ctx is done.
func (j *Job) Wait(ctx context.Context) (*executor.Result, error) {
	select {
	case r := <-j.Result:
		return r, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type Manager struct {
	jobQueue chan *Job
}

func NewManager(capacity int) *Manager {
	return &Manager{
		jobQueue: make(chan *Job, capacity),
	}
}

// Submit enqueues job without blocking.
func (m *Manager) Submit(job *Job) error {
	select {
	case m.jobQueue <- job:
		m.UpdateQueueMetric()
		return nil
	default:
		metrics.QueueRejections.Inc()
		return ErrQueueFull
	}
}

func (m *Manager) NextJob() <-chan *Job {
	return m.jobQueue
}

// Len is the number of jobs waiting for a worker.
func (m *Manager) Len() int { return len(m.jobQueue) }

// Cap is the queue capacity.
func (m *Manager) Cap() int { return cap(m.jobQueue) }

func (m *Manager) UpdateQueueMetric() {
	metrics.QueueDepth.Set(float64(len(m.jobQueue)))
}
