package registrar

import (
	"fmt"

	"github.com/dmrolfs/weatherzone/pkg/events"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type wireEvent struct {
	ZoneCode string `json:"zone_code,omitempty"`
}

// Codec implements events.Codec[Event] for the Registrar aggregate.
type Codec struct{}

func (Codec) Encode(e Event) (events.StoredEvent, error) {
	payload, err := json.Marshal(wireEvent{ZoneCode: e.ZoneCode})
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
	return Event{Kind: kind, ZoneCode: w.ZoneCode}, nil
}

func parseEventKind(eventType string) (EventKind, error) {
	switch eventType {
	case "forecast_zone_added":
		return EvtForecastZoneAdded, nil
	case "forecast_zone_forgotten":
		return EvtForecastZoneForgotten, nil
	case "all_forecast_zones_forgotten":
		return EvtAllForecastZonesForgotten, nil
	default:
		return 0, fmt.Errorf("registrar: unknown event type %q", eventType)
	}
}
