package bus

import (
	"github.com/dmrolfs/weatherzone/internal/model/saga"
	"github.com/dmrolfs/weatherzone/internal/model/zone"
	"github.com/dmrolfs/weatherzone/pkg/events"
)

// ZoneEventConvert implements the pure Convert function described for the
// LocationZone→UpdateLocations subscriber: it turns one zone event into the
// saga command(s) that record its corresponding step.
func ZoneEventConvert(envelope events.EventEnvelope[zone.Event]) []saga.Command {
	zoneCode := envelope.PublisherID
	switch envelope.Payload.Kind {
	case zone.EvtObservationAdded:
		return []saga.Command{saga.NoteLocationObservationUpdated(zoneCode)}
	case zone.EvtForecastUpdated:
		return []saga.Command{saga.NoteLocationForecastUpdated(zoneCode)}
	case zone.EvtAlertActivated, zone.EvtAlertDeactivated:
		return []saga.Command{saga.NoteLocationAlertStatusUpdated(zoneCode)}
	default:
		return nil
	}
}

// SagaSubscriberAdmin lets the saga aggregate's Services register a new run
// as a subscriber of its own zones' LocationZone events, without the saga
// package importing pkg/events directly.
type SagaSubscriberAdmin struct {
	relay *events.SubscriberRelay[zone.Event, saga.Command]
}

// NewSagaSubscriberAdmin wraps relay for saga.Services consumption.
func NewSagaSubscriberAdmin(relay *events.SubscriberRelay[zone.Event, saga.Command]) *SagaSubscriberAdmin {
	return &SagaSubscriberAdmin{relay: relay}
}

// AddSubscriber implements saga.Services.
func (a *SagaSubscriberAdmin) AddSubscriber(sagaID string, zones []string) {
	a.relay.Admin() <- events.AdminMessage{Kind: events.AdminAdd, SubscriberID: sagaID, PublisherIDs: zones}
}
