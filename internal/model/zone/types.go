// Package zone implements the LocationZone aggregate: the per-zone state
// machine holding the latest observation, forecast, and alert status for one
// monitored forecast zone.
package zone

import "time"

// Type selects the upstream URL path segment used for forecast lookup.
type Type int

const (
	Public Type = iota
	County
	Forecast
)

func (t Type) String() string {
	switch t {
	case Public:
		return "public"
	case County:
		return "county"
	case Forecast:
		return "forecast"
	default:
		return "unknown"
	}
}

// QualityControl is a closed, totally ordered reliability tag on a
// measurement. Higher levels dominate during aggregation.
type QualityControl byte

const (
	QCUnknown QualityControl = iota
	QCX
	QCB
	QCT
	QCQ
	QCZ
	QCC
	QCS
	QCG
	QCV
)

// Level returns the documented ordering level (V=9 down to X=1, 0=unknown).
func (q QualityControl) Level() int {
	return int(q)
}

func (q QualityControl) String() string {
	switch q {
	case QCV:
		return "V"
	case QCG:
		return "G"
	case QCS:
		return "S"
	case QCC:
		return "C"
	case QCZ:
		return "Z"
	case QCQ:
		return "Q"
	case QCT:
		return "T"
	case QCB:
		return "B"
	case QCX:
		return "X"
	default:
		return ""
	}
}

// ParseQualityControl maps a one-letter NWS quality control code to its
// QualityControl value. An unrecognized code returns QCUnknown.
func ParseQualityControl(s string) QualityControl {
	switch s {
	case "V":
		return QCV
	case "G":
		return QCG
	case "S":
		return QCS
	case "C":
		return QCC
	case "Z":
		return QCZ
	case "Q":
		return QCQ
	case "T":
		return QCT
	case "B":
		return QCB
	case "X":
		return QCX
	default:
		return QCUnknown
	}
}

// QuantitativeValue is a single measured quantity with its bounds and
// quality control tag. Invariant: MinValue <= Value <= MaxValue.
type QuantitativeValue struct {
	Value          float32        `json:"value"`
	MinValue       float32        `json:"min_value"`
	MaxValue       float32        `json:"max_value"`
	UnitCode       string         `json:"unit_code"`
	QualityControl QualityControl `json:"quality_control"`
}

// Combine merges other into the accumulator (q), preferring the value with
// higher quality control. Lower QC is ignored; higher QC resets the
// accumulator to other. Equal QC keeps the lower MinValue and the higher
// MaxValue and sets Value to the mean of the two Values; no count or sum is
// kept, so after repeated equal-QC combines Value is not the mean of all
// inputs.
func (q QuantitativeValue) Combine(other QuantitativeValue) QuantitativeValue {
	if other.QualityControl.Level() > q.QualityControl.Level() {
		return other
	}
	if other.QualityControl.Level() < q.QualityControl.Level() {
		return q
	}
	min := q.MinValue
	if other.MinValue < min {
		min = other.MinValue
	}
	max := q.MaxValue
	if other.MaxValue > max {
		max = other.MaxValue
	}
	return QuantitativeValue{
		Value:          (q.Value + other.Value) / 2,
		MinValue:       min,
		MaxValue:       max,
		UnitCode:       q.UnitCode,
		QualityControl: q.QualityControl,
	}
}

// WeatherFrame is one producer-supplied observation snapshot.
type WeatherFrame struct {
	Timestamp   time.Time          `json:"timestamp"`
	Temperature *QuantitativeValue `json:"temperature,omitempty"`
	Humidity    *QuantitativeValue `json:"humidity,omitempty"`
	WindSpeed   *QuantitativeValue `json:"wind_speed,omitempty"`
}

// ForecastPeriod is one named period of a zone forecast (e.g. "Tonight").
type ForecastPeriod struct {
	Name         string `json:"name"`
	ForecastText string `json:"forecast_text"`
}

// ZoneForecast is the most recently fetched forecast for a zone.
type ZoneForecast struct {
	ZoneCode string           `json:"zone_code"`
	Updated  time.Time        `json:"updated"`
	Periods  []ForecastPeriod `json:"periods"`
}

// AlertStatus is the publication status of a weather alert.
type AlertStatus string

const (
	AlertActual    AlertStatus = "Actual"
	AlertExercise  AlertStatus = "Exercise"
	AlertSystem    AlertStatus = "System"
	AlertTest      AlertStatus = "Test"
	AlertDraft     AlertStatus = "Draft"
)

// Alert is a structured public-alert record. Only AffectedZones and the
// existence of the alert drive LocationZone state transitions; the other
// fields are carried for view projection.
type Alert struct {
	ID             string      `json:"id"`
	AffectedZones  []string    `json:"affected_zones"`
	Status         AlertStatus `json:"status"`
	Category       string      `json:"category"`
	Severity       string      `json:"severity"`
	Certainty      string      `json:"certainty"`
	Urgency        string      `json:"urgency"`
	Effective      time.Time   `json:"effective"`
	Onset          time.Time   `json:"onset,omitempty"`
	Expires        time.Time   `json:"expires"`
	Ends           time.Time   `json:"ends,omitempty"`
	Headline       string      `json:"headline"`
	Description    string      `json:"description"`
	Instruction    string      `json:"instruction,omitempty"`
}

// AffectsZone reports whether the alert's affected zones include code.
func (a Alert) AffectsZone(code string) bool {
	for _, z := range a.AffectedZones {
		if z == code {
			return true
		}
	}
	return false
}
