// Package registrar implements the Registrar aggregate: a process-wide
// singleton tracking the set of forecast zone codes currently monitored, and
// the entry point for triggering an UpdateWeather cycle.
package registrar

import (
	"context"

	weathererrors "github.com/dmrolfs/weatherzone/pkg/errors"
)

// SingletonID is the fixed, well-known aggregate id every Registrar command
// targets. There is exactly one Registrar instance per deployment.
const SingletonID = "<singleton>"

// State is the Registrar's set of currently monitored zone codes.
type State struct {
	LocationCodes map[string]struct{}
}

func (s State) contains(code string) bool {
	if s.LocationCodes == nil {
		return false
	}
	_, ok := s.LocationCodes[code]
	return ok
}

// Codes returns the monitored zone codes as a sorted-free slice; callers
// that need a stable order should sort it.
func (s State) Codes() []string {
	out := make([]string, 0, len(s.LocationCodes))
	for c := range s.LocationCodes {
		out = append(out, c)
	}
	return out
}

type CommandKind int

const (
	CmdMonitorForecastZone CommandKind = iota
	CmdForgetForecastZone
	CmdClearZoneMonitoring
	CmdUpdateWeather
)

type Command struct {
	Kind     CommandKind
	ZoneCode string
	// SagaIDOut, if non-nil, receives the id of the saga UpdateWeather
	// starts. Only CmdUpdateWeather populates it; the HTTP adapter uses it
	// to return the saga id synchronously to the caller.
	SagaIDOut *string
}

func MonitorForecastZone(zoneCode string) Command {
	return Command{Kind: CmdMonitorForecastZone, ZoneCode: zoneCode}
}

func ForgetForecastZone(zoneCode string) Command {
	return Command{Kind: CmdForgetForecastZone, ZoneCode: zoneCode}
}

func ClearZoneMonitoring() Command { return Command{Kind: CmdClearZoneMonitoring} }

// UpdateWeather builds the UpdateWeather command. If out is non-nil, Handle
// sets *out to the id of the saga run it started.
func UpdateWeather(out *string) Command { return Command{Kind: CmdUpdateWeather, SagaIDOut: out} }

// CommandName implements events.CommandNamer.
func (c Command) CommandName() string {
	switch c.Kind {
	case CmdMonitorForecastZone:
		return "monitor_forecast_zone"
	case CmdForgetForecastZone:
		return "forget_forecast_zone"
	case CmdClearZoneMonitoring:
		return "clear_zone_monitoring"
	case CmdUpdateWeather:
		return "update_weather"
	default:
		return "unknown"
	}
}

type EventKind int

const (
	EvtForecastZoneAdded EventKind = iota
	EvtForecastZoneForgotten
	EvtAllForecastZonesForgotten
)

func (k EventKind) String() string {
	switch k {
	case EvtForecastZoneAdded:
		return "forecast_zone_added"
	case EvtForecastZoneForgotten:
		return "forecast_zone_forgotten"
	case EvtAllForecastZonesForgotten:
		return "all_forecast_zones_forgotten"
	default:
		return "unknown"
	}
}

type Event struct {
	Kind     EventKind
	ZoneCode string
}

// Services bundles the Registrar's injected side-effecting capabilities.
type Services interface {
	// InitializeForecastZone issues a WatchZone command to the LocationZone
	// aggregate for the given code.
	InitializeForecastZone(ctx context.Context, zoneCode string) error
	// UpdateWeather generates a saga id and executes UpdateLocations against
	// the UpdateLocations saga for the given zone codes, returning the
	// generated saga id.
	UpdateWeather(ctx context.Context, zoneCodes []string) (string, error)
}

// Aggregate implements events.Aggregate[State, Command, Event].
type Aggregate struct {
	Services Services
}

func New(services Services) Aggregate { return Aggregate{Services: services} }

func (Aggregate) AggregateType() string { return "registrar" }

func (Aggregate) Apply(s State, e Event) State {
	if s.LocationCodes == nil {
		s.LocationCodes = make(map[string]struct{})
	}
	switch e.Kind {
	case EvtForecastZoneAdded:
		s.LocationCodes[e.ZoneCode] = struct{}{}
	case EvtForecastZoneForgotten:
		delete(s.LocationCodes, e.ZoneCode)
	case EvtAllForecastZonesForgotten:
		s.LocationCodes = make(map[string]struct{})
	}
	return s
}

// Handle validates cmd against s. Side effects (InitializeForecastZone,
// UpdateWeather) are invoked here, after the guard passes but before
// returning; they are idempotent-assumed, matching the saga's
// self-repairing design.
func (a Aggregate) Handle(ctx context.Context, s State, cmd Command) ([]Event, error) {
	switch cmd.Kind {
	case CmdMonitorForecastZone:
		if s.contains(cmd.ZoneCode) {
			return nil, weathererrors.ErrZoneAlreadyMonitored
		}
		if a.Services != nil {
			if err := a.Services.InitializeForecastZone(ctx, cmd.ZoneCode); err != nil {
				return nil, err
			}
		}
		return []Event{{Kind: EvtForecastZoneAdded, ZoneCode: cmd.ZoneCode}}, nil

	case CmdForgetForecastZone:
		if !s.contains(cmd.ZoneCode) {
			return nil, nil
		}
		return []Event{{Kind: EvtForecastZoneForgotten, ZoneCode: cmd.ZoneCode}}, nil

	case CmdClearZoneMonitoring:
		if len(s.LocationCodes) == 0 {
			return nil, nil
		}
		return []Event{{Kind: EvtAllForecastZonesForgotten}}, nil

	case CmdUpdateWeather:
		if a.Services != nil {
			sagaID, err := a.Services.UpdateWeather(ctx, s.Codes())
			if err != nil {
				return nil, err
			}
			if cmd.SagaIDOut != nil {
				*cmd.SagaIDOut = sagaID
			}
		}
		return nil, nil

	default:
		return nil, weathererrors.ErrRejectedCommand
	}
}
