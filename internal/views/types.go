// Package views implements the read-side projections consumed by the HTTP
// surface: WeatherView (per-zone weather snapshot), MonitoredZonesView (the
// registrar's current zone set), and UpdateLocationsView (a saga run's
// per-zone progress), each backed by Postgres and fronted by a Redis
// read-through cache.
package views

import (
	"github.com/dmrolfs/weatherzone/internal/model/saga"
	"github.com/dmrolfs/weatherzone/internal/model/zone"
)

// WeatherView is the per-zone read model, keyed by zone code.
type WeatherView struct {
	ZoneCode    string             `json:"zone_code"`
	ZoneType    zone.Type          `json:"zone_type"`
	Weather     *zone.WeatherFrame `json:"weather,omitempty"`
	Forecast    *zone.ZoneForecast `json:"forecast,omitempty"`
	ActiveAlert bool               `json:"active_alert"`
}

// MonitoredZonesView is the registrar's read model: the current set of
// monitored zone codes.
type MonitoredZonesView struct {
	Codes []string `json:"codes"`
}

// UpdateLocationsView is one UpdateLocations saga run's read model: its
// per-zone step progress and, once the run is finished, its terminal result.
type UpdateLocationsView struct {
	SagaID   string                         `json:"saga_id"`
	Status   string                         `json:"status"` // "active" | "completed" | "failed"
	Statuses map[string]saga.LocationStatus `json:"statuses"`
}

const (
	WeatherViewName               = "weather_view"
	MonitoredZonesViewName        = "monitored_zones_view"
	UpdateLocationsViewNamePrefix = "update_locations_view"
)

// UpdateLocationsViewID builds the view id an UpdateLocationsView is keyed
// by: the view name prefix plus the saga id, so it shares the generic view
// store's (view_type, view_id) keyspace with the other views.
func UpdateLocationsViewID(sagaID string) string {
	return UpdateLocationsViewNamePrefix + ":" + sagaID
}
