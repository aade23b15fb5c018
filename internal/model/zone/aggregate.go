package zone

import (
	"context"

	weathererrors "github.com/dmrolfs/weatherzone/pkg/errors"
)

// Kind discriminates the two shapes of LocationZone state.
type Kind int

const (
	Quiescent Kind = iota
	Active
)

// State is the LocationZone aggregate's sum-type state. Quiescent carries no
// fields; Active carries the zone's identity and latest weather snapshot.
type State struct {
	Kind Kind

	ZoneType    Type
	ZoneID      string
	Weather     *WeatherFrame
	ZForecast   *ZoneForecast
	ActiveAlert bool
}

// Command is the closed set of commands a LocationZone accepts.
type Command struct {
	Kind     CommandKind
	ZoneType Type
	ZoneID   string
	Alert    *Alert // set for NoteAlert; nil clears the alert
}

type CommandKind int

const (
	CmdWatchZone CommandKind = iota
	CmdObserve
	CmdForecast
	CmdNoteAlert
)

func WatchZone(zoneType Type, zoneID string) Command {
	return Command{Kind: CmdWatchZone, ZoneType: zoneType, ZoneID: zoneID}
}

func Observe() Command { return Command{Kind: CmdObserve} }

func ForecastCmd() Command { return Command{Kind: CmdForecast} }

func NoteAlert(alert *Alert) Command { return Command{Kind: CmdNoteAlert, Alert: alert} }

// CommandName implements events.CommandNamer.
func (c Command) CommandName() string {
	switch c.Kind {
	case CmdWatchZone:
		return "watch_zone"
	case CmdObserve:
		return "observe"
	case CmdForecast:
		return "forecast"
	case CmdNoteAlert:
		return "note_alert"
	default:
		return "unknown"
	}
}

// Event is the closed set of events a LocationZone emits.
type Event struct {
	Kind     EventKind
	ZoneType Type
	ZoneID   string
	Weather  *WeatherFrame
	Forecast *ZoneForecast
	Alert    *Alert
}

type EventKind int

const (
	EvtZoneSet EventKind = iota
	EvtObservationAdded
	EvtForecastUpdated
	EvtAlertActivated
	EvtAlertDeactivated
)

func (k EventKind) String() string {
	switch k {
	case EvtZoneSet:
		return "zone_set"
	case EvtObservationAdded:
		return "observation_added"
	case EvtForecastUpdated:
		return "forecast_updated"
	case EvtAlertActivated:
		return "alert_activated"
	case EvtAlertDeactivated:
		return "alert_deactivated"
	default:
		return "unknown"
	}
}

// Provider is the capability a LocationZone's Handle needs to satisfy
// Observe/Forecast commands. The production implementation lives in
// internal/weather; tests supply a stub.
type Provider interface {
	ZoneObservation(ctx context.Context, zoneID string) (WeatherFrame, error)
	ZoneForecast(ctx context.Context, zoneType Type, zoneID string) (ZoneForecast, error)
}

// Services bundles a LocationZone's injected capabilities.
type Services struct {
	Provider Provider
}

// Aggregate implements events.Aggregate[State, Command, Event].
type Aggregate struct {
	Services Services
}

func New(services Services) Aggregate { return Aggregate{Services: services} }

func (Aggregate) AggregateType() string { return "location_zone" }

// Apply advances state given one committed event. It never errors: by the
// time an event reaches Apply it has already been validated by Handle.
func (Aggregate) Apply(s State, e Event) State {
	switch e.Kind {
	case EvtZoneSet:
		s.Kind = Active
		s.ZoneType = e.ZoneType
		s.ZoneID = e.ZoneID
	case EvtObservationAdded:
		s.Weather = e.Weather
	case EvtForecastUpdated:
		s.ZForecast = e.Forecast
	case EvtAlertActivated:
		s.ActiveAlert = true
	case EvtAlertDeactivated:
		s.ActiveAlert = false
	}
	return s
}

// Handle validates cmd against the current state and proposes events without
// mutating state.
func (a Aggregate) Handle(ctx context.Context, s State, cmd Command) ([]Event, error) {
	switch s.Kind {
	case Quiescent:
		if cmd.Kind != CmdWatchZone {
			return nil, weathererrors.ErrRejectedCommand
		}
		return []Event{{Kind: EvtZoneSet, ZoneType: cmd.ZoneType, ZoneID: cmd.ZoneID}}, nil

	case Active:
		switch cmd.Kind {
		case CmdWatchZone:
			return nil, weathererrors.ErrRejectedCommand

		case CmdObserve:
			frame, err := a.Services.Provider.ZoneObservation(ctx, s.ZoneID)
			if err != nil {
				return nil, weathererrors.ErrProvider
			}
			return []Event{{Kind: EvtObservationAdded, Weather: &frame}}, nil

		case CmdForecast:
			fc, err := a.Services.Provider.ZoneForecast(ctx, s.ZoneType, s.ZoneID)
			if err != nil {
				return nil, weathererrors.ErrProvider
			}
			return []Event{{Kind: EvtForecastUpdated, Forecast: &fc}}, nil

		case CmdNoteAlert:
			if cmd.Alert != nil {
				if s.ActiveAlert {
					return nil, nil
				}
				return []Event{{Kind: EvtAlertActivated, Alert: cmd.Alert}}, nil
			}
			if s.ActiveAlert {
				return []Event{{Kind: EvtAlertDeactivated}}, nil
			}
			return nil, nil

		default:
			return nil, weathererrors.ErrRejectedCommand
		}

	default:
		return nil, weathererrors.ErrRejectedCommand
	}
}
