package saga

import (
	"fmt"

	"github.com/dmrolfs/weatherzone/pkg/events"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type wireEvent struct {
	SagaID string         `json:"saga_id,omitempty"`
	Zones  []string       `json:"zones,omitempty"`
	Zone   string         `json:"zone,omitempty"`
	Status LocationStatus `json:"status,omitempty"`
}

// Codec implements events.Codec[Event] for the UpdateLocations saga.
type Codec struct{}

func (Codec) Encode(e Event) (events.StoredEvent, error) {
	payload, err := json.Marshal(wireEvent{SagaID: e.SagaID, Zones: e.Zones, Zone: e.Zone, Status: e.Status})
	if err != nil {
		return events.StoredEvent{}, err
	}
	return events.StoredEvent{EventType: e.Kind.String(), EventVersion: "v1", Payload: payload}, nil
}

func (Codec) Decode(p events.PersistedEvent) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(p.Payload, &w); err != nil {
		return Event{}, err
	}
	kind, err := parseEventKind(p.EventType)
	if err != nil {
		return Event{}, err
	}
	return Event{Kind: kind, SagaID: w.SagaID, Zones: w.Zones, Zone: w.Zone, Status: w.Status}, nil
}

func parseEventKind(eventType string) (EventKind, error) {
	switch eventType {
	case "started":
		return EvtStarted, nil
	case "location_updated":
		return EvtLocationUpdated, nil
	case "completed":
		return EvtCompleted, nil
	case "failed":
		return EvtFailed, nil
	default:
		return 0, fmt.Errorf("saga: unknown event type %q", eventType)
	}
}
