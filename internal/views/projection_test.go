package views

import (
	"testing"

	"github.com/dmrolfs/weatherzone/internal/model/saga"
	"github.com/dmrolfs/weatherzone/internal/model/zone"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyZoneEventFoldsSnapshot(t *testing.T) {
	var view WeatherView

	applyZoneEvent(&view, zone.Event{Kind: zone.EvtZoneSet, ZoneType: zone.Forecast, ZoneID: "WAZ558"})
	assert.Equal(t, zone.Forecast, view.ZoneType)

	frame := &zone.WeatherFrame{}
	applyZoneEvent(&view, zone.Event{Kind: zone.EvtObservationAdded, Weather: frame})
	assert.Same(t, frame, view.Weather)

	fc := &zone.ZoneForecast{ZoneCode: "WAZ558"}
	applyZoneEvent(&view, zone.Event{Kind: zone.EvtForecastUpdated, Forecast: fc})
	assert.Same(t, fc, view.Forecast)

	applyZoneEvent(&view, zone.Event{Kind: zone.EvtAlertActivated})
	assert.True(t, view.ActiveAlert)
	applyZoneEvent(&view, zone.Event{Kind: zone.EvtAlertDeactivated})
	assert.False(t, view.ActiveAlert)

	// Alert flips never clobber the rest of the snapshot.
	assert.Same(t, frame, view.Weather)
	assert.Same(t, fc, view.Forecast)
}

func TestApplySagaEventTracksRunLifecycle(t *testing.T) {
	var view UpdateLocationsView

	applySagaEvent(&view, saga.Event{Kind: saga.EvtStarted, SagaID: "sid", Zones: []string{"WAZ558", "MDC031"}})
	assert.Equal(t, "active", view.Status)
	require.Len(t, view.Statuses, 2)

	applySagaEvent(&view, saga.Event{Kind: saga.EvtLocationUpdated, Zone: "WAZ558", Status: saga.LocationStatus{Bitmask: saga.StepObservation}})
	assert.Equal(t, saga.StepObservation, view.Statuses["WAZ558"].Bitmask)

	applySagaEvent(&view, saga.Event{Kind: saga.EvtCompleted})
	assert.Equal(t, "completed", view.Status)
}

func TestApplySagaEventFailedRun(t *testing.T) {
	var view UpdateLocationsView

	applySagaEvent(&view, saga.Event{Kind: saga.EvtStarted, SagaID: "sid", Zones: []string{"MDC031"}})
	applySagaEvent(&view, saga.Event{Kind: saga.EvtLocationUpdated, Zone: "MDC031", Status: saga.LocationStatus{Terminal: true, Completion: saga.Failed}})
	applySagaEvent(&view, saga.Event{Kind: saga.EvtFailed})

	assert.Equal(t, "failed", view.Status)
	assert.True(t, view.Statuses["MDC031"].Terminal)
}

func TestUpdateLocationsViewID(t *testing.T) {
	assert.Equal(t, "update_locations_view:sid-1", UpdateLocationsViewID("sid-1"))
}
