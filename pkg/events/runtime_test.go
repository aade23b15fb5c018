package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	weathererrors "github.com/dmrolfs/weatherzone/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// counterState/counterCmd/counterEvent model a trivial aggregate: Increment
// bumps a counter, Reset zeroes it, and a negative result is rejected.
type counterState struct {
	value int
}

type counterCmd struct {
	kind  string // "increment" or "reset"
	delta int
}

type counterEvent struct {
	kind  string
	delta int
}

type counterAggregate struct{}

func (counterAggregate) AggregateType() string { return "counter" }

func (counterAggregate) Apply(s counterState, e counterEvent) counterState {
	switch e.kind {
	case "incremented":
		s.value += e.delta
	case "reset":
		s.value = 0
	}
	return s
}

func (counterAggregate) Handle(_ context.Context, s counterState, c counterCmd) ([]counterEvent, error) {
	switch c.kind {
	case "increment":
		if s.value+c.delta < 0 {
			return nil, errors.New("rejected: would go negative")
		}
		return []counterEvent{{kind: "incremented", delta: c.delta}}, nil
	case "reset":
		if s.value == 0 {
			return nil, nil
		}
		return []counterEvent{{kind: "reset"}}, nil
	default:
		return nil, fmt.Errorf("unknown command %q", c.kind)
	}
}

type counterCodec struct{}

func (counterCodec) Encode(e counterEvent) (StoredEvent, error) {
	return StoredEvent{EventType: e.kind, EventVersion: "v1", Payload: []byte(fmt.Sprintf("%d", e.delta))}, nil
}

func (counterCodec) Decode(p PersistedEvent) (counterEvent, error) {
	var delta int
	fmt.Sscanf(string(p.Payload), "%d", &delta)
	return counterEvent{kind: p.EventType, delta: delta}, nil
}

// memStore is a minimal in-memory EventStore used only for these tests.
type memStore struct {
	mu   sync.Mutex
	rows map[string][]PersistedEvent
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[string][]PersistedEvent)}
}

func (m *memStore) key(aggregateType, aggregateID string) string {
	return aggregateType + "/" + aggregateID
}

func (m *memStore) Append(_ context.Context, aggregateType, aggregateID string, expectedSeq int64, evts []StoredEvent, metadata map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := m.key(aggregateType, aggregateID)
	existing := m.rows[k]
	if int64(len(existing)) != expectedSeq {
		return weathererrors.ErrAggregateConflict
	}
	for i, e := range evts {
		existing = append(existing, PersistedEvent{
			AggregateType: aggregateType,
			AggregateID:   aggregateID,
			Sequence:      expectedSeq + int64(i) + 1,
			EventType:     e.EventType,
			EventVersion:  e.EventVersion,
			Payload:       e.Payload,
			Metadata:      metadata,
			RecordedAt:    time.Now(),
		})
	}
	m.rows[k] = existing
	return nil
}

func (m *memStore) Load(_ context.Context, aggregateType, aggregateID string) ([]PersistedEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PersistedEvent(nil), m.rows[m.key(aggregateType, aggregateID)]...), nil
}

func TestRuntime_ExecuteAppendsAndApplies(t *testing.T) {
	store := newMemStore()
	rt := NewRuntime[counterState, counterCmd, counterEvent](counterAggregate{}, store, counterCodec{}, nil, 0)

	ctx := context.Background()
	_, err := rt.Execute(ctx, "c1", counterCmd{kind: "increment", delta: 5})
	require.NoError(t, err)

	state, err := rt.Load(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 5, state.value)

	_, err = rt.Execute(ctx, "c1", counterCmd{kind: "increment", delta: 3})
	require.NoError(t, err)
	state, err = rt.Load(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 8, state.value)
}

func TestRuntime_RejectedCommandDoesNotAppend(t *testing.T) {
	store := newMemStore()
	rt := NewRuntime[counterState, counterCmd, counterEvent](counterAggregate{}, store, counterCodec{}, nil, 0)

	ctx := context.Background()
	_, err := rt.Execute(ctx, "c1", counterCmd{kind: "increment", delta: -1})
	require.Error(t, err)

	rows, err := store.Load(ctx, "counter", "c1")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRuntime_DispatchesToRegisteredQueries(t *testing.T) {
	store := newMemStore()
	rt := NewRuntime[counterState, counterCmd, counterEvent](counterAggregate{}, store, counterCodec{}, nil, 0)

	var received []EventEnvelope[counterEvent]
	rt.AddQuery(queryFunc[counterEvent](func(_ context.Context, _ string, evts []EventEnvelope[counterEvent]) error {
		received = append(received, evts...)
		return nil
	}))

	ctx := context.Background()
	_, err := rt.Execute(ctx, "c1", counterCmd{kind: "increment", delta: 2})
	require.NoError(t, err)

	require.Len(t, received, 1)
	assert.Equal(t, "incremented", received[0].Payload.kind)
	assert.Equal(t, "c1", received[0].PublisherID)
}

// flakyStore conflicts on the first conflictCount Appends, then delegates.
type flakyStore struct {
	*memStore
	mu            sync.Mutex
	conflictCount int
}

func (f *flakyStore) Append(ctx context.Context, aggregateType, aggregateID string, expectedSeq int64, evts []StoredEvent, metadata map[string]string) error {
	f.mu.Lock()
	if f.conflictCount > 0 {
		f.conflictCount--
		f.mu.Unlock()
		return weathererrors.ErrAggregateConflict
	}
	f.mu.Unlock()
	return f.memStore.Append(ctx, aggregateType, aggregateID, expectedSeq, evts, metadata)
}

func TestRuntime_RetriesOnConflict(t *testing.T) {
	store := &flakyStore{memStore: newMemStore(), conflictCount: 2}
	rt := NewRuntime[counterState, counterCmd, counterEvent](counterAggregate{}, store, counterCodec{}, nil, 3)

	ctx := context.Background()
	_, err := rt.Execute(ctx, "c1", counterCmd{kind: "increment", delta: 4})
	require.NoError(t, err, "two conflicts fit inside three attempts")

	state, err := rt.Load(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 4, state.value)
}

func TestRuntime_ConflictExhaustionSurfaces(t *testing.T) {
	store := &flakyStore{memStore: newMemStore(), conflictCount: 100}
	rt := NewRuntime[counterState, counterCmd, counterEvent](counterAggregate{}, store, counterCodec{}, nil, 3)

	_, err := rt.Execute(context.Background(), "c1", counterCmd{kind: "increment", delta: 1})
	assert.ErrorIs(t, err, weathererrors.ErrAggregateConflict)
}

// brokenStore fails every Append with a non-conflict error.
type brokenStore struct {
	*memStore
}

func (b *brokenStore) Append(context.Context, string, string, int64, []StoredEvent, map[string]string) error {
	return errors.New("disk on fire")
}

func TestRuntime_NonConflictAppendErrorIsNotRetried(t *testing.T) {
	store := &brokenStore{memStore: newMemStore()}
	rt := NewRuntime[counterState, counterCmd, counterEvent](counterAggregate{}, store, counterCodec{}, nil, 3)

	_, err := rt.Execute(context.Background(), "c1", counterCmd{kind: "increment", delta: 1})
	require.Error(t, err)
	assert.NotErrorIs(t, err, weathererrors.ErrAggregateConflict)
}

type queryFunc[E any] func(ctx context.Context, aggregateID string, evts []EventEnvelope[E]) error

func (f queryFunc[E]) Dispatch(ctx context.Context, aggregateID string, evts []EventEnvelope[E]) error {
	return f(ctx, aggregateID, evts)
}

func TestBroadcastQuery_FanOutAndLag(t *testing.T) {
	bq := NewEventBroadcastQuery[counterEvent]("counter", 1, nil)
	handle := bq.Subscribe()
	defer handle.Close()

	ctx := context.Background()
	require.NoError(t, bq.Dispatch(ctx, "c1", []EventEnvelope[counterEvent]{NewEventEnvelope("c1", counterEvent{kind: "incremented", delta: 1}, nil)}))
	require.NoError(t, bq.Dispatch(ctx, "c1", []EventEnvelope[counterEvent]{NewEventEnvelope("c1", counterEvent{kind: "incremented", delta: 2}, nil)}))
	require.NoError(t, bq.Dispatch(ctx, "c1", []EventEnvelope[counterEvent]{NewEventEnvelope("c1", counterEvent{kind: "incremented", delta: 3}, nil)}))

	recvCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	_, _, err := handle.Recv(recvCtx)
	var lagged Lagged
	require.Error(t, err)
	require.ErrorAs(t, err, &lagged)
	assert.GreaterOrEqual(t, lagged.N, 1)
}

func TestEventSubscriber_ConvertsBatches(t *testing.T) {
	bq := NewEventBroadcastQuery[counterEvent]("counter", 4, nil)

	var mu sync.Mutex
	var seen []string
	sub := NewEventSubscriber[counterEvent](bq, func(_ context.Context, aggregateID string, _ []EventEnvelope[counterEvent]) error {
		mu.Lock()
		seen = append(seen, aggregateID)
		mu.Unlock()
		return nil
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go sub.Run(ctx)

	require.NoError(t, bq.Dispatch(context.Background(), "c1", []EventEnvelope[counterEvent]{NewEventEnvelope("c1", counterEvent{kind: "incremented"}, nil)}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
}

func TestCommandRelay_SubmitAfterShutdown(t *testing.T) {
	relay := NewCommandRelay[counterCmd]("counter", 2, func(context.Context, string, counterCmd, map[string]string) error {
		return nil
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		relay.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	err := relay.Submit(context.Background(), "c1", counterCmd{kind: "increment", delta: 1}, nil)
	assert.ErrorIs(t, err, weathererrors.ErrChannelClosed)
}

func TestCommandRelay_SerializesExecution(t *testing.T) {
	store := newMemStore()
	rt := NewRuntime[counterState, counterCmd, counterEvent](counterAggregate{}, store, counterCodec{}, nil, 0)

	relay := NewCommandRelay[counterCmd]("counter", 8, func(ctx context.Context, aggregateID string, cmd counterCmd, metadata map[string]string) error {
		_, err := rt.ExecuteWithMetadata(ctx, aggregateID, cmd, metadata)
		return err
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go relay.Run(ctx)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := relay.Submit(ctx, "c1", counterCmd{kind: "increment", delta: 1}, nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	state, err := rt.Load(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 10, state.value)
}
