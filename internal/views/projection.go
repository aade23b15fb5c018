// Package views' projection queries are the per-aggregate events.Query[E]
// implementations registered on each Runtime (see pkg/events.Runtime.AddQuery):
// they are the read-side counterpart to TracingQuery, folding committed
// events into the WeatherView, MonitoredZonesView, and UpdateLocationsView
// read models a moment after they are applied to the write-side aggregate.
package views

import (
	"context"
	"errors"

	"github.com/dmrolfs/weatherzone/internal/model/registrar"
	"github.com/dmrolfs/weatherzone/internal/model/saga"
	"github.com/dmrolfs/weatherzone/internal/model/zone"
	"github.com/dmrolfs/weatherzone/pkg/events"
	weathererrors "github.com/dmrolfs/weatherzone/pkg/errors"
	"github.com/dmrolfs/weatherzone/pkg/metrics"
	"go.uber.org/zap"
)

const maxProjectionRetries = 3

// WeatherProjection folds LocationZone events into WeatherView rows, one per
// zone code (the LocationZone aggregate id).
type WeatherProjection struct {
	repo *CachedRepository
	log  *zap.Logger
}

// NewWeatherProjection constructs a WeatherProjection writing through repo.
func NewWeatherProjection(repo *CachedRepository, log *zap.Logger) *WeatherProjection {
	if log == nil {
		log = zap.NewNop()
	}
	return &WeatherProjection{repo: repo, log: log}
}

// Dispatch implements events.Query[zone.Event].
func (p *WeatherProjection) Dispatch(ctx context.Context, aggregateID string, evts []events.EventEnvelope[zone.Event]) error {
	for attempt := 0; attempt < maxProjectionRetries; attempt++ {
		var view WeatherView
		version, err := p.loadOrZero(ctx, aggregateID, &view)
		if err != nil {
			p.log.Warn("weather view load failed", zap.String("zone_code", aggregateID), zap.Error(err))
			return nil
		}
		view.ZoneCode = aggregateID
		for _, envelope := range evts {
			applyZoneEvent(&view, envelope.Payload)
		}
		if err := p.repo.Save(ctx, WeatherViewName, aggregateID, version, view); err != nil {
			if errors.Is(err, weathererrors.ErrAggregateConflict) {
				continue
			}
			p.log.Warn("weather view save failed", zap.String("zone_code", aggregateID), zap.Error(err))
			return nil
		}
		return nil
	}
	p.log.Warn("weather view projection exhausted retries", zap.String("zone_code", aggregateID))
	return nil
}

func (p *WeatherProjection) loadOrZero(ctx context.Context, zoneCode string, out *WeatherView) (int64, error) {
	if err := p.repo.Load(ctx, WeatherViewName, zoneCode, out); err != nil {
		if errors.Is(err, weathererrors.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return p.repo.Version(ctx, WeatherViewName, zoneCode)
}

func applyZoneEvent(view *WeatherView, e zone.Event) {
	switch e.Kind {
	case zone.EvtZoneSet:
		view.ZoneType = e.ZoneType
	case zone.EvtObservationAdded:
		view.Weather = e.Weather
	case zone.EvtForecastUpdated:
		view.Forecast = e.Forecast
	case zone.EvtAlertActivated:
		view.ActiveAlert = true
	case zone.EvtAlertDeactivated:
		view.ActiveAlert = false
	}
}

// MonitoredZonesProjection folds Registrar events into the singleton
// MonitoredZonesView.
type MonitoredZonesProjection struct {
	repo *CachedRepository
	log  *zap.Logger
}

// NewMonitoredZonesProjection constructs a MonitoredZonesProjection writing
// through repo.
func NewMonitoredZonesProjection(repo *CachedRepository, log *zap.Logger) *MonitoredZonesProjection {
	if log == nil {
		log = zap.NewNop()
	}
	return &MonitoredZonesProjection{repo: repo, log: log}
}

// Dispatch implements events.Query[registrar.Event].
func (p *MonitoredZonesProjection) Dispatch(ctx context.Context, aggregateID string, evts []events.EventEnvelope[registrar.Event]) error {
	for attempt := 0; attempt < maxProjectionRetries; attempt++ {
		var view MonitoredZonesView
		version, err := p.loadOrZero(ctx, &view)
		if err != nil {
			p.log.Warn("monitored zones view load failed", zap.Error(err))
			return nil
		}
		codes := make(map[string]struct{}, len(view.Codes))
		for _, c := range view.Codes {
			codes[c] = struct{}{}
		}
		for _, envelope := range evts {
			switch envelope.Payload.Kind {
			case registrar.EvtForecastZoneAdded:
				codes[envelope.Payload.ZoneCode] = struct{}{}
			case registrar.EvtForecastZoneForgotten:
				delete(codes, envelope.Payload.ZoneCode)
			case registrar.EvtAllForecastZonesForgotten:
				codes = make(map[string]struct{})
			}
		}
		view.Codes = view.Codes[:0]
		for c := range codes {
			view.Codes = append(view.Codes, c)
		}
		if err := p.repo.Save(ctx, MonitoredZonesViewName, registrar.SingletonID, version, view); err != nil {
			if errors.Is(err, weathererrors.ErrAggregateConflict) {
				continue
			}
			p.log.Warn("monitored zones view save failed", zap.Error(err))
			return nil
		}
		return nil
	}
	p.log.Warn("monitored zones view projection exhausted retries")
	return nil
}

func (p *MonitoredZonesProjection) loadOrZero(ctx context.Context, out *MonitoredZonesView) (int64, error) {
	if err := p.repo.Load(ctx, MonitoredZonesViewName, registrar.SingletonID, out); err != nil {
		if errors.Is(err, weathererrors.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return p.repo.Version(ctx, MonitoredZonesViewName, registrar.SingletonID)
}

// UpdateLocationsProjection folds UpdateLocations saga events into a
// per-run UpdateLocationsView, keyed by saga id.
type UpdateLocationsProjection struct {
	repo *CachedRepository
	log  *zap.Logger
}

// NewUpdateLocationsProjection constructs an UpdateLocationsProjection
// writing through repo.
func NewUpdateLocationsProjection(repo *CachedRepository, log *zap.Logger) *UpdateLocationsProjection {
	if log == nil {
		log = zap.NewNop()
	}
	return &UpdateLocationsProjection{repo: repo, log: log}
}

// Dispatch implements events.Query[saga.Event].
func (p *UpdateLocationsProjection) Dispatch(ctx context.Context, aggregateID string, evts []events.EventEnvelope[saga.Event]) error {
	// Terminal outcomes are counted here, outside the retry loop, so a view
	// conflict never double-counts a completion.
	for _, envelope := range evts {
		switch envelope.Payload.Kind {
		case saga.EvtCompleted:
			metrics.SagaCompletionsTotal.WithLabelValues("completed").Inc()
		case saga.EvtFailed:
			metrics.SagaCompletionsTotal.WithLabelValues("failed").Inc()
		}
	}

	viewID := UpdateLocationsViewID(aggregateID)
	for attempt := 0; attempt < maxProjectionRetries; attempt++ {
		var view UpdateLocationsView
		version, err := p.loadOrZero(ctx, viewID, &view)
		if err != nil {
			p.log.Warn("update locations view load failed", zap.String("saga_id", aggregateID), zap.Error(err))
			return nil
		}
		view.SagaID = aggregateID
		if view.Statuses == nil {
			view.Statuses = make(map[string]saga.LocationStatus)
		}
		if view.Status == "" {
			view.Status = "active"
		}
		for _, envelope := range evts {
			applySagaEvent(&view, envelope.Payload)
		}
		if err := p.repo.Save(ctx, UpdateLocationsViewNamePrefix, viewID, version, view); err != nil {
			if errors.Is(err, weathererrors.ErrAggregateConflict) {
				continue
			}
			p.log.Warn("update locations view save failed", zap.String("saga_id", aggregateID), zap.Error(err))
			return nil
		}
		return nil
	}
	p.log.Warn("update locations view projection exhausted retries", zap.String("saga_id", aggregateID))
	return nil
}

func (p *UpdateLocationsProjection) loadOrZero(ctx context.Context, viewID string, out *UpdateLocationsView) (int64, error) {
	if err := p.repo.Load(ctx, UpdateLocationsViewNamePrefix, viewID, out); err != nil {
		if errors.Is(err, weathererrors.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return p.repo.Version(ctx, UpdateLocationsViewNamePrefix, viewID)
}

func applySagaEvent(view *UpdateLocationsView, e saga.Event) {
	switch e.Kind {
	case saga.EvtStarted:
		view.Statuses = make(map[string]saga.LocationStatus, len(e.Zones))
		for _, z := range e.Zones {
			view.Statuses[z] = saga.LocationStatus{}
		}
		view.Status = "active"
	case saga.EvtLocationUpdated:
		view.Statuses[e.Zone] = e.Status
	case saga.EvtCompleted:
		view.Status = "completed"
	case saga.EvtFailed:
		view.Status = "failed"
	}
}
