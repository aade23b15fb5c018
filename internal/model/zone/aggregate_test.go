package zone

import (
	"context"
	"errors"
	"testing"

	weathererrors "github.com/dmrolfs/weatherzone/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	observeErr  error
	forecastErr error
}

func (s stubProvider) ZoneObservation(_ context.Context, zoneID string) (WeatherFrame, error) {
	if s.observeErr != nil {
		return WeatherFrame{}, s.observeErr
	}
	return WeatherFrame{}, nil
}

func (s stubProvider) ZoneForecast(_ context.Context, _ Type, zoneID string) (ZoneForecast, error) {
	if s.forecastErr != nil {
		return ZoneForecast{}, s.forecastErr
	}
	return ZoneForecast{ZoneCode: zoneID}, nil
}

func newAggregate(p Provider) Aggregate {
	return New(Services{Provider: p})
}

func TestHandle_QuiescentAcceptsWatchZone(t *testing.T) {
	agg := newAggregate(stubProvider{})
	evts, err := agg.Handle(context.Background(), State{}, WatchZone(Public, "WAZ558"))
	require.NoError(t, err)
	require.Len(t, evts, 1)
	assert.Equal(t, EvtZoneSet, evts[0].Kind)
	assert.Equal(t, "WAZ558", evts[0].ZoneID)
}

func TestHandle_QuiescentRejectsOtherCommands(t *testing.T) {
	agg := newAggregate(stubProvider{})
	_, err := agg.Handle(context.Background(), State{}, Observe())
	assert.ErrorIs(t, err, weathererrors.ErrRejectedCommand)
}

func TestHandle_ActiveRejectsWatchZone(t *testing.T) {
	agg := newAggregate(stubProvider{})
	active := agg.Apply(State{}, Event{Kind: EvtZoneSet, ZoneID: "WAZ558"})
	_, err := agg.Handle(context.Background(), active, WatchZone(Public, "WAZ558"))
	assert.ErrorIs(t, err, weathererrors.ErrRejectedCommand)
}

func TestHandle_ObserveAndForecast(t *testing.T) {
	agg := newAggregate(stubProvider{})
	active := agg.Apply(State{}, Event{Kind: EvtZoneSet, ZoneID: "WAZ558"})

	evts, err := agg.Handle(context.Background(), active, Observe())
	require.NoError(t, err)
	require.Len(t, evts, 1)
	assert.Equal(t, EvtObservationAdded, evts[0].Kind)

	evts, err = agg.Handle(context.Background(), active, ForecastCmd())
	require.NoError(t, err)
	require.Len(t, evts, 1)
	assert.Equal(t, EvtForecastUpdated, evts[0].Kind)
}

func TestHandle_ProviderFailurePropagates(t *testing.T) {
	agg := newAggregate(stubProvider{observeErr: errors.New("upstream down")})
	active := agg.Apply(State{}, Event{Kind: EvtZoneSet, ZoneID: "WAZ558"})

	_, err := agg.Handle(context.Background(), active, Observe())
	assert.ErrorIs(t, err, weathererrors.ErrProvider)
}

func TestHandle_AlertFlipIdempotence(t *testing.T) {
	agg := newAggregate(stubProvider{})
	active := agg.Apply(State{}, Event{Kind: EvtZoneSet, ZoneID: "WAZ558"})

	alert := &Alert{ID: "X"}
	evts, err := agg.Handle(context.Background(), active, NoteAlert(alert))
	require.NoError(t, err)
	require.Len(t, evts, 1)
	assert.Equal(t, EvtAlertActivated, evts[0].Kind)
	active = agg.Apply(active, evts[0])

	evts, err = agg.Handle(context.Background(), active, NoteAlert(alert))
	require.NoError(t, err)
	assert.Empty(t, evts)

	evts, err = agg.Handle(context.Background(), active, NoteAlert(nil))
	require.NoError(t, err)
	require.Len(t, evts, 1)
	assert.Equal(t, EvtAlertDeactivated, evts[0].Kind)
	active = agg.Apply(active, evts[0])

	evts, err = agg.Handle(context.Background(), active, NoteAlert(nil))
	require.NoError(t, err)
	assert.Empty(t, evts)
}

func TestApply_ReplayDeterminism(t *testing.T) {
	agg := newAggregate(stubProvider{})
	events := []Event{
		{Kind: EvtZoneSet, ZoneID: "WAZ558", ZoneType: County},
		{Kind: EvtObservationAdded, Weather: &WeatherFrame{}},
		{Kind: EvtAlertActivated, Alert: &Alert{ID: "X"}},
	}

	var s1, s2 State
	for _, e := range events {
		s1 = agg.Apply(s1, e)
	}
	for _, e := range events {
		s2 = agg.Apply(s2, e)
	}
	assert.Equal(t, s1, s2)
	assert.True(t, s1.ActiveAlert)
}
