package zone

import (
	"fmt"

	"github.com/dmrolfs/weatherzone/pkg/events"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// wireEvent is the self-describing JSON shape persisted for every
// LocationZone event, keyed by event_type + event_version.
type wireEvent struct {
	ZoneType Type          `json:"zone_type,omitempty"`
	ZoneID   string        `json:"zone_id,omitempty"`
	Weather  *WeatherFrame `json:"weather,omitempty"`
	Forecast *ZoneForecast `json:"forecast,omitempty"`
	Alert    *Alert        `json:"alert,omitempty"`
}

// Codec implements events.Codec[Event] for LocationZone, matching the
// stable event_type names fixed in the view/event-store contract.
type Codec struct{}

func (Codec) Encode(e Event) (events.StoredEvent, error) {
	payload, err := json.Marshal(wireEvent{
		ZoneType: e.ZoneType,
		ZoneID:   e.ZoneID,
		Weather:  e.Weather,
		Forecast: e.Forecast,
		Alert:    e.Alert,
	})
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
	return Event{
		Kind:     kind,
		ZoneType: w.ZoneType,
		ZoneID:   w.ZoneID,
		Weather:  w.Weather,
		Forecast: w.Forecast,
		Alert:    w.Alert,
	}, nil
}

func parseEventKind(eventType string) (EventKind, error) {
	switch eventType {
	case "zone_set":
		return EvtZoneSet, nil
	case "observation_added":
		return EvtObservationAdded, nil
	case "forecast_updated":
		return EvtForecastUpdated, nil
	case "alert_activated":
		return EvtAlertActivated, nil
	case "alert_deactivated":
		return EvtAlertDeactivated, nil
	default:
		return 0, fmt.Errorf("zone: unknown event type %q", eventType)
	}
}
