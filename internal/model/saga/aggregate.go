// Package saga implements the UpdateLocations saga: the per-run state
// machine that drives parallel per-zone weather updates and detects terminal
// success or failure across every zone in the run.
package saga

import (
	"context"

	weathererrors "github.com/dmrolfs/weatherzone/pkg/errors"
)

type Kind int

const (
	Quiescent Kind = iota
	Active
	Finished
)

// StepBitmask is a subset of {Observation, Forecast, Alert} tracking
// per-zone progress inside a saga run.
type StepBitmask uint8

const (
	StepObservation StepBitmask = 1 << iota
	StepForecast
	StepAlert

	AllSteps = StepObservation | StepForecast | StepAlert
)

type CompletionStatus int

const (
	Succeeded CompletionStatus = iota
	Failed
)

// LocationStatus tracks one zone's progress: the step bitmask while the zone
// is in flight, or its completion outcome once Terminal is set. Terminal
// never reverts.
type LocationStatus struct {
	Terminal   bool             `json:"terminal"`
	Bitmask    StepBitmask      `json:"bitmask,omitempty"`
	Completion CompletionStatus `json:"completion,omitempty"`
}

// State is the UpdateLocations saga's sum-type state.
type State struct {
	Kind             Kind
	SagaID           string
	LocationStatuses map[string]LocationStatus
}

// anyOtherZoneActive reports whether any zone other than exclude is still
// outstanding. A zone counts as done once it is Terminal or has every step
// bit set; completion accounting treats both the same.
func (s State) anyOtherZoneActive(exclude string) bool {
	for zone, status := range s.LocationStatuses {
		if zone == exclude {
			continue
		}
		if !status.Terminal && status.Bitmask != AllSteps {
			return true
		}
	}
	return false
}

// anyZoneFailed reports whether any zone has already terminated in failure.
// The run's terminal event must be Failed in that case, even when the last
// outstanding zone finishes all of its steps successfully.
func (s State) anyZoneFailed() bool {
	for _, status := range s.LocationStatuses {
		if status.Terminal && status.Completion == Failed {
			return true
		}
	}
	return false
}

type CommandKind int

const (
	CmdUpdateLocations CommandKind = iota
	CmdNoteLocationObservationUpdated
	CmdNoteLocationForecastUpdated
	CmdNoteLocationAlertStatusUpdated
	CmdNoteLocationUpdateFailure
)

type Command struct {
	Kind   CommandKind
	SagaID string
	Zones  []string
	Zone   string
}

func UpdateLocations(sagaID string, zones []string) Command {
	return Command{Kind: CmdUpdateLocations, SagaID: sagaID, Zones: zones}
}

func NoteLocationObservationUpdated(zone string) Command {
	return Command{Kind: CmdNoteLocationObservationUpdated, Zone: zone}
}

func NoteLocationForecastUpdated(zone string) Command {
	return Command{Kind: CmdNoteLocationForecastUpdated, Zone: zone}
}

func NoteLocationAlertStatusUpdated(zone string) Command {
	return Command{Kind: CmdNoteLocationAlertStatusUpdated, Zone: zone}
}

func NoteLocationUpdateFailure(zone string) Command {
	return Command{Kind: CmdNoteLocationUpdateFailure, Zone: zone}
}

// CommandName implements events.CommandNamer.
func (c Command) CommandName() string {
	switch c.Kind {
	case CmdUpdateLocations:
		return "update_locations"
	case CmdNoteLocationObservationUpdated:
		return "note_location_observation_updated"
	case CmdNoteLocationForecastUpdated:
		return "note_location_forecast_updated"
	case CmdNoteLocationAlertStatusUpdated:
		return "note_location_alert_status_updated"
	case CmdNoteLocationUpdateFailure:
		return "note_location_update_failure"
	default:
		return "unknown"
	}
}

var stepForCommand = map[CommandKind]StepBitmask{
	CmdNoteLocationObservationUpdated: StepObservation,
	CmdNoteLocationForecastUpdated:    StepForecast,
	CmdNoteLocationAlertStatusUpdated: StepAlert,
}

type EventKind int

const (
	EvtStarted EventKind = iota
	EvtLocationUpdated
	EvtCompleted
	EvtFailed
)

func (k EventKind) String() string {
	switch k {
	case EvtStarted:
		return "started"
	case EvtLocationUpdated:
		return "location_updated"
	case EvtCompleted:
		return "completed"
	case EvtFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type Event struct {
	Kind   EventKind
	SagaID string
	Zones  []string
	Zone   string
	Status LocationStatus
}

// Services bundles the saga's one injected capability: registering itself
// as a subscriber against every zone it was started with, so that
// LocationZone events for those zones get converted into saga commands.
type Services interface {
	AddSubscriber(sagaID string, zones []string)
}

// Aggregate implements events.Aggregate[State, Command, Event]. Per-zone
// work itself (Observe/Forecast/NoteAlert) is driven externally by the
// ZoneUpdateController query, not by Services.
type Aggregate struct {
	Services Services
}

func New(services Services) Aggregate { return Aggregate{Services: services} }

func (Aggregate) AggregateType() string { return "update_locations" }

func (Aggregate) Apply(s State, e Event) State {
	switch e.Kind {
	case EvtStarted:
		s.Kind = Active
		s.SagaID = e.SagaID
		s.LocationStatuses = make(map[string]LocationStatus, len(e.Zones))
		for _, z := range e.Zones {
			s.LocationStatuses[z] = LocationStatus{}
		}
	case EvtLocationUpdated:
		if s.LocationStatuses == nil {
			s.LocationStatuses = make(map[string]LocationStatus)
		}
		s.LocationStatuses[e.Zone] = e.Status
	case EvtCompleted, EvtFailed:
		s.Kind = Finished
	}
	return s
}

func (a Aggregate) Handle(_ context.Context, s State, cmd Command) ([]Event, error) {
	switch s.Kind {
	case Quiescent:
		if cmd.Kind != CmdUpdateLocations {
			return nil, weathererrors.ErrRejectedCommand
		}
		if len(cmd.Zones) == 0 {
			return nil, weathererrors.ErrEmptyZoneSet
		}
		if a.Services != nil {
			a.Services.AddSubscriber(cmd.SagaID, cmd.Zones)
		}
		return []Event{{Kind: EvtStarted, SagaID: cmd.SagaID, Zones: cmd.Zones}}, nil

	case Active:
		return a.handleActive(s, cmd)

	case Finished:
		return nil, weathererrors.ErrRejectedCommand

	default:
		return nil, weathererrors.ErrRejectedCommand
	}
}

func (a Aggregate) handleActive(s State, cmd Command) ([]Event, error) {
	if cmd.Kind == CmdUpdateLocations {
		return nil, weathererrors.ErrRejectedCommand
	}

	status, known := s.LocationStatuses[cmd.Zone]
	if !known {
		return nil, weathererrors.ErrRejectedCommand
	}

	if cmd.Kind == CmdNoteLocationUpdateFailure {
		return a.handleFailure(s, cmd.Zone, status)
	}

	step, ok := stepForCommand[cmd.Kind]
	if !ok {
		return nil, weathererrors.ErrRejectedCommand
	}
	return a.handleStep(s, cmd.Zone, status, step)
}

func (a Aggregate) handleStep(s State, zone string, status LocationStatus, step StepBitmask) ([]Event, error) {
	if status.Terminal {
		return nil, nil
	}
	if status.Bitmask&step != 0 {
		return nil, nil
	}

	newBitmask := status.Bitmask | step
	updated := LocationStatus{Bitmask: newBitmask}
	evts := []Event{{Kind: EvtLocationUpdated, Zone: zone, Status: updated}}

	if newBitmask == AllSteps && !s.anyOtherZoneActive(zone) {
		if s.anyZoneFailed() {
			evts = append(evts, Event{Kind: EvtFailed})
		} else {
			evts = append(evts, Event{Kind: EvtCompleted})
		}
	}
	return evts, nil
}

func (a Aggregate) handleFailure(s State, zone string, status LocationStatus) ([]Event, error) {
	if status.Terminal {
		return nil, nil
	}

	failed := LocationStatus{Terminal: true, Completion: Failed}
	evts := []Event{{Kind: EvtLocationUpdated, Zone: zone, Status: failed}}

	if !s.anyOtherZoneActive(zone) {
		evts = append(evts, Event{Kind: EvtFailed})
	}
	return evts, nil
}
