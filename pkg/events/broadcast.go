package events

import (
	"context"
	"sync"

	"github.com/dmrolfs/weatherzone/pkg/metrics"
	"go.uber.org/zap"
)

// EventBroadcastQuery is a Query that fans every dispatched batch out to a
// set of bounded, lossy broadcast channels, one per subscriber. A slow
// subscriber never backpressures the commit path: when its channel is full
// the oldest queued batch is dropped and the subscriber's next receive
// reports Lagged(n).
type EventBroadcastQuery[E any] struct {
	publisherID string
	log         *zap.Logger

	mu          sync.Mutex
	subscribers map[int]*broadcastSubscription[E]
	nextID      int
	bufferSize  int
}

type broadcastSubscription[E any] struct {
	ch     chan broadcastBatch[E]
	lagged int
}

type broadcastBatch[E any] struct {
	aggregateID string
	events      []EventEnvelope[E]
}

// Lagged indicates a subscriber missed n batches because its channel filled
// before it could keep up; it should resynchronize from the event store.
type Lagged struct {
	N int
}

func (l Lagged) Error() string { return "broadcast subscriber lagged" }

// NewEventBroadcastQuery constructs a broadcast fan-out point identified by
// publisherID (typically the aggregate type), with each subscriber channel
// holding up to bufferSize pending batches.
func NewEventBroadcastQuery[E any](publisherID string, bufferSize int, log *zap.Logger) *EventBroadcastQuery[E] {
	if bufferSize <= 0 {
		bufferSize = 16
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &EventBroadcastQuery[E]{
		publisherID: publisherID,
		log:         log,
		subscribers: make(map[int]*broadcastSubscription[E]),
		bufferSize:  bufferSize,
	}
}

// Subscribe registers a new subscriber and returns a handle used to receive
// batches and to unsubscribe.
func (b *EventBroadcastQuery[E]) Subscribe() *BroadcastHandle[E] {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	sub := &broadcastSubscription[E]{ch: make(chan broadcastBatch[E], b.bufferSize)}
	b.subscribers[id] = sub
	return &BroadcastHandle[E]{query: b, id: id}
}

func (b *EventBroadcastQuery[E]) unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subscribers[id]; ok {
		close(sub.ch)
		delete(b.subscribers, id)
	}
}

// Dispatch implements Query: it publishes the batch to every subscriber,
// dropping the oldest queued batch for any subscriber whose channel is full.
func (b *EventBroadcastQuery[E]) Dispatch(_ context.Context, aggregateID string, evts []EventEnvelope[E]) error {
	batch := broadcastBatch[E]{aggregateID: aggregateID, events: evts}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subscribers {
		select {
		case sub.ch <- batch:
		default:
			select {
			case <-sub.ch:
				sub.lagged++
				metrics.BroadcastLaggedTotal.WithLabelValues(b.publisherID).Inc()
			default:
			}
			select {
			case sub.ch <- batch:
			default:
				b.log.Warn("broadcast subscriber channel still full after drop", zap.String("publisher", b.publisherID))
			}
		}
	}
	return nil
}

// BroadcastHandle is a subscriber's view of an EventBroadcastQuery.
type BroadcastHandle[E any] struct {
	query *EventBroadcastQuery[E]
	id    int
}

// Recv blocks until the next batch arrives or ctx is cancelled. If the
// subscriber fell behind since the previous Recv, it returns Lagged instead
// of a batch; the caller should resynchronize and call Recv again.
func (h *BroadcastHandle[E]) Recv(ctx context.Context) (string, []EventEnvelope[E], error) {
	h.query.mu.Lock()
	sub, ok := h.query.subscribers[h.id]
	if !ok {
		h.query.mu.Unlock()
		return "", nil, context.Canceled
	}
	if sub.lagged > 0 {
		n := sub.lagged
		sub.lagged = 0
		h.query.mu.Unlock()
		return "", nil, Lagged{N: n}
	}
	h.query.mu.Unlock()

	select {
	case batch, open := <-sub.ch:
		if !open {
			return "", nil, context.Canceled
		}
		return batch.aggregateID, batch.events, nil
	case <-ctx.Done():
		return "", nil, ctx.Err()
	}
}

// Close unsubscribes this handle from its EventBroadcastQuery.
func (h *BroadcastHandle[E]) Close() {
	h.query.unsubscribe(h.id)
}

// EventSubscriber drives a long-lived goroutine that receives batches from a
// BroadcastHandle and converts them into a downstream action, typically
// issuing a command against a different aggregate. Convert errors are logged
// and the subscriber keeps running.
type EventSubscriber[E any] struct {
	handle  *BroadcastHandle[E]
	convert func(ctx context.Context, aggregateID string, evts []EventEnvelope[E]) error
	log     *zap.Logger
}

// NewEventSubscriber wires a subscriber to query, invoking convert for every
// received batch (or logging and continuing on Lagged).
func NewEventSubscriber[E any](query *EventBroadcastQuery[E], convert func(ctx context.Context, aggregateID string, evts []EventEnvelope[E]) error, log *zap.Logger) *EventSubscriber[E] {
	if log == nil {
		log = zap.NewNop()
	}
	return &EventSubscriber[E]{handle: query.Subscribe(), convert: convert, log: log}
}

// Run blocks, processing batches until ctx is cancelled or the handle is closed.
func (s *EventSubscriber[E]) Run(ctx context.Context) {
	defer s.handle.Close()
	for {
		aggregateID, evts, err := s.handle.Recv(ctx)
		if err != nil {
			var lagged Lagged
			if ok := asLagged(err, &lagged); ok {
				s.log.Warn("event subscriber lagged", zap.Int("missed_batches", lagged.N))
				continue
			}
			return
		}
		if convErr := s.convert(ctx, aggregateID, evts); convErr != nil {
			s.log.Warn("event subscriber convert failed", zap.String("aggregate_id", aggregateID), zap.Error(convErr))
		}
	}
}

func asLagged(err error, target *Lagged) bool {
	l, ok := err.(Lagged)
	if ok {
		*target = l
	}
	return ok
}
