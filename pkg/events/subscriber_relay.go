package events

import (
	"context"

	"go.uber.org/zap"
)

// AdminKind discriminates a SubscriberRelay admin message.
type AdminKind int

const (
	AdminAdd AdminKind = iota
	AdminRemove
)

// AdminMessage adds or removes a subscriber id from a SubscriberRelay's
// publisher→subscriber map.
type AdminMessage struct {
	Kind         AdminKind
	SubscriberID string
	PublisherIDs []string // used by AdminAdd only
}

// SubscriberRelay is the publisher-filtered cousin of EventSubscriber: it
// holds a map of publisher id to the set of subscriber ids interested in
// that publisher's events, maintained exclusively by its own goroutine (no
// lock), and on every broadcast batch converts the envelope into zero or
// more commands per matching subscriber, submitting them into an outbound
// CommandRelay addressed at that subscriber id.
//
// P is the upstream (publisher) event type, S the downstream command type.
type SubscriberRelay[P any, S any] struct {
	handle  *BroadcastHandle[P]
	relay   *CommandRelay[S]
	convert func(envelope EventEnvelope[P]) []S
	log     *zap.Logger

	admin                chan AdminMessage
	publisherSubscribers map[string]map[string]struct{}
}

// NewSubscriberRelay wires a SubscriberRelay consuming from query and
// submitting converted commands into relay. convert must be pure and
// synchronous.
func NewSubscriberRelay[P any, S any](query *EventBroadcastQuery[P], relay *CommandRelay[S], convert func(envelope EventEnvelope[P]) []S, log *zap.Logger) *SubscriberRelay[P, S] {
	if log == nil {
		log = zap.NewNop()
	}
	return &SubscriberRelay[P, S]{
		handle:               query.Subscribe(),
		relay:                relay,
		convert:              convert,
		log:                  log,
		admin:                make(chan AdminMessage, 16),
		publisherSubscribers: make(map[string]map[string]struct{}),
	}
}

// Admin returns the channel used to register or deregister subscriber
// interest in a publisher id (e.g. a saga registering itself against the
// zones it was started with).
func (s *SubscriberRelay[P, S]) Admin() chan<- AdminMessage { return s.admin }

// Run processes admin messages and broadcast batches until ctx is cancelled.
func (s *SubscriberRelay[P, S]) Run(ctx context.Context) {
	defer s.handle.Close()

	type received struct {
		publisherID string
		evts        []EventEnvelope[P]
		err         error
	}
	recvCh := make(chan received)
	go func() {
		for {
			publisherID, evts, err := s.handle.Recv(ctx)
			select {
			case recvCh <- received{publisherID: publisherID, evts: evts, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				if _, ok := err.(Lagged); !ok {
					return
				}
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case msg := <-s.admin:
			s.applyAdmin(msg)

		case r := <-recvCh:
			if r.err != nil {
				if lagged, ok := r.err.(Lagged); ok {
					s.log.Warn("subscriber relay lagged", zap.Int("missed_batches", lagged.N))
					continue
				}
				return
			}
			s.dispatchToSubscribers(ctx, r.publisherID, r.evts)
		}
	}
}

func (s *SubscriberRelay[P, S]) applyAdmin(msg AdminMessage) {
	switch msg.Kind {
	case AdminAdd:
		for _, pub := range msg.PublisherIDs {
			if s.publisherSubscribers[pub] == nil {
				s.publisherSubscribers[pub] = make(map[string]struct{})
			}
			s.publisherSubscribers[pub][msg.SubscriberID] = struct{}{}
		}
	case AdminRemove:
		for _, subs := range s.publisherSubscribers {
			delete(subs, msg.SubscriberID)
		}
	}
}

func (s *SubscriberRelay[P, S]) dispatchToSubscribers(ctx context.Context, publisherID string, evts []EventEnvelope[P]) {
	subscribers := s.publisherSubscribers[publisherID]
	if len(subscribers) == 0 {
		return
	}
	for _, envelope := range evts {
		commands := s.convert(envelope)
		for subscriberID := range subscribers {
			for _, cmd := range commands {
				if err := s.relay.SubmitAsync(ctx, subscriberID, cmd, envelope.Metadata); err != nil {
					s.log.Warn("subscriber relay submit failed", zap.String("subscriber_id", subscriberID), zap.Error(err))
				}
			}
		}
	}
}
