package utils

import (
	"context"
	"sync"
	"time"

	"github.com/dmrolfs/weatherzone/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// Task is a unit of work submitted to a WorkerPool.
type Task interface {
	Process(ctx context.Context) error
}

// WorkerPool runs submitted tasks on a fixed set of goroutines. Task errors
// are reported on Errors; a full error channel drops the error after counting
// it, so a pool keeps draining even when nobody is reading.
type WorkerPool struct {
	numWorkers int
	tasks      chan Task
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	errors     chan error
	metrics    *poolMetrics
}

type poolMetrics struct {
	activeWorkers  prometheus.Gauge
	queuedTasks    prometheus.Gauge
	processedTasks prometheus.Counter
	taskErrors     prometheus.Counter
	processingTime prometheus.Observer
}

func newPoolMetrics(name string) *poolMetrics {
	return &poolMetrics{
		activeWorkers:  metrics.WorkerPoolGauges.WithLabelValues(name, "active_workers"),
		queuedTasks:    metrics.WorkerPoolGauges.WithLabelValues(name, "queued_tasks"),
		processedTasks: metrics.WorkerPoolCounters.WithLabelValues(name, "processed_tasks"),
		taskErrors:     metrics.WorkerPoolCounters.WithLabelValues(name, "task_errors"),
		processingTime: metrics.WorkerPoolHistograms.WithLabelValues(name),
	}
}

// NewWorkerPool builds a pool of numWorkers workers. name labels the pool's
// metrics. The task queue is buffered at twice the worker count.
func NewWorkerPool(name string, numWorkers int) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		numWorkers: numWorkers,
		tasks:      make(chan Task, numWorkers*2),
		ctx:        ctx,
		cancel:     cancel,
		errors:     make(chan error, numWorkers),
		metrics:    newPoolMetrics(name),
	}
}

// Start launches the workers.
func (p *WorkerPool) Start() {
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker()
		p.metrics.activeWorkers.Inc()
	}
}

// Stop cancels in-flight tasks, waits for workers to exit, and closes the
// error channel.
func (p *WorkerPool) Stop() {
	p.cancel()
	close(p.tasks)
	p.wg.Wait()
	close(p.errors)
	p.metrics.activeWorkers.Set(0)
}

// Submit enqueues task, blocking while the queue is full. Returns the pool
// context's error once the pool is stopped.
func (p *WorkerPool) Submit(task Task) error {
	select {
	case <-p.ctx.Done():
		return p.ctx.Err()
	default:
	}
	select {
	case p.tasks <- task:
		p.metrics.queuedTasks.Inc()
		return nil
	case <-p.ctx.Done():
		return p.ctx.Err()
	}
}

// Errors returns the channel task failures are reported on.
func (p *WorkerPool) Errors() <-chan error {
	return p.errors
}

func (p *WorkerPool) worker() {
	defer func() {
		p.wg.Done()
		p.metrics.activeWorkers.Dec()
	}()

	for {
		select {
		case task, ok := <-p.tasks:
			if !ok {
				return
			}
			p.metrics.queuedTasks.Dec()
			start := time.Now()

			if err := task.Process(p.ctx); err != nil {
				p.metrics.taskErrors.Inc()
				select {
				case p.errors <- err:
				default:
				}
			}

			p.metrics.processedTasks.Inc()
			p.metrics.processingTime.Observe(time.Since(start).Seconds())

		case <-p.ctx.Done():
			return
		}
	}
}
