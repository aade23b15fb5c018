package events

import (
	"context"

	weathererrors "github.com/dmrolfs/weatherzone/pkg/errors"
	"github.com/dmrolfs/weatherzone/pkg/metrics"
	"go.uber.org/zap"
)

// commandRequest is a relayed command plus the channel its result is
// delivered on.
type commandRequest[C any] struct {
	envelope CommandEnvelope[C]
	result   chan<- error
}

// CommandRelay serializes command dispatch into a single aggregate type
// through a bounded channel, so commands that arrive concurrently (from the
// HTTP surface, the scheduler, and saga-driven subscribers alike) execute
// one at a time in arrival order without the caller needing its own lock.
type CommandRelay[C any] struct {
	aggregateType string
	queue         chan commandRequest[C]
	done          chan struct{}
	log           *zap.Logger
	execute       func(ctx context.Context, aggregateID string, cmd C, metadata map[string]string) error
}

// NewCommandRelay constructs a relay of the given queue depth that invokes
// execute for every relayed command, in arrival order.
func NewCommandRelay[C any](aggregateType string, queueDepth int, execute func(ctx context.Context, aggregateID string, cmd C, metadata map[string]string) error, log *zap.Logger) *CommandRelay[C] {
	if queueDepth <= 0 {
		queueDepth = 64
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &CommandRelay[C]{
		aggregateType: aggregateType,
		queue:         make(chan commandRequest[C], queueDepth),
		done:          make(chan struct{}),
		log:           log,
		execute:       execute,
	}
}

// Run drains the relay's queue until ctx is cancelled, then marks the relay
// closed so producers stop enqueueing. Callers start exactly one Run
// goroutine per relay.
func (r *CommandRelay[C]) Run(ctx context.Context) {
	defer close(r.done)
	for {
		select {
		case req := <-r.queue:
			metrics.RelayQueueDepth.WithLabelValues(r.aggregateType).Set(float64(len(r.queue)))
			err := r.execute(ctx, req.envelope.TargetID, req.envelope.Payload, req.envelope.Metadata)
			if err != nil {
				r.log.Warn("relayed command failed",
					zap.String("aggregate_type", r.aggregateType),
					zap.String("target_id", req.envelope.TargetID),
					zap.Error(err))
			}
			if req.result != nil {
				req.result <- err
			}
		case <-ctx.Done():
			return
		}
	}
}

// Submit enqueues a command and blocks until it has executed (or ctx is
// cancelled), returning the execution error. Submitting against a relay
// whose Run loop has exited returns ErrChannelClosed.
func (r *CommandRelay[C]) Submit(ctx context.Context, targetID string, cmd C, metadata map[string]string) error {
	result := make(chan error, 1)
	req := commandRequest[C]{envelope: NewCommandEnvelope(targetID, cmd, metadata), result: result}

	select {
	case r.queue <- req:
		metrics.RelayQueueDepth.WithLabelValues(r.aggregateType).Set(float64(len(r.queue)))
	case <-r.done:
		return weathererrors.ErrChannelClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-result:
		return err
	case <-r.done:
		return weathererrors.ErrChannelClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SubmitAsync enqueues a command without waiting for it to execute. Its
// error, if any, is only visible via logging and metrics.
func (r *CommandRelay[C]) SubmitAsync(ctx context.Context, targetID string, cmd C, metadata map[string]string) error {
	req := commandRequest[C]{envelope: NewCommandEnvelope(targetID, cmd, metadata)}
	select {
	case r.queue <- req:
		metrics.RelayQueueDepth.WithLabelValues(r.aggregateType).Set(float64(len(r.queue)))
		return nil
	case <-r.done:
		return weathererrors.ErrChannelClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}
