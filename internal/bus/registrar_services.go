package bus

import (
	"context"

	"github.com/dmrolfs/weatherzone/internal/model/saga"
	"github.com/dmrolfs/weatherzone/internal/model/zone"
	"github.com/dmrolfs/weatherzone/pkg/events"
	"github.com/dmrolfs/weatherzone/pkg/utils"
)

// RegistrarServices implements registrar.Services: it issues WatchZone
// commands into the LocationZone relay and, on UpdateWeather, mints a new
// saga id and starts the UpdateLocations saga with the requested zones.
type RegistrarServices struct {
	zoneRelay *events.CommandRelay[zone.Command]
	sagaRelay *events.CommandRelay[saga.Command]
	zoneType  zone.Type
}

// NewRegistrarServices constructs a RegistrarServices. zoneType is applied
// to every zone this Registrar starts monitoring.
func NewRegistrarServices(zoneRelay *events.CommandRelay[zone.Command], sagaRelay *events.CommandRelay[saga.Command], zoneType zone.Type) *RegistrarServices {
	return &RegistrarServices{zoneRelay: zoneRelay, sagaRelay: sagaRelay, zoneType: zoneType}
}

// InitializeForecastZone implements registrar.Services.
func (s *RegistrarServices) InitializeForecastZone(ctx context.Context, zoneCode string) error {
	return s.zoneRelay.Submit(ctx, zoneCode, zone.WatchZone(s.zoneType, zoneCode), nil)
}

// UpdateWeather implements registrar.Services.
func (s *RegistrarServices) UpdateWeather(ctx context.Context, zoneCodes []string) (string, error) {
	if len(zoneCodes) == 0 {
		return "", nil
	}
	sagaID := utils.NewUUIDOrDefault()
	metadata := map[string]string{events.CorrelationKey: sagaID}
	if err := s.sagaRelay.Submit(ctx, sagaID, saga.UpdateLocations(sagaID, zoneCodes), metadata); err != nil {
		return "", err
	}
	return sagaID, nil
}
