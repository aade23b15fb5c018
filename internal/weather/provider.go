// Package weather implements the default GeoJSON-over-HTTPS adapter for the
// upstream weather provider: observations, forecasts, and active alerts,
// with retry and circuit-breaking around every upstream call.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dmrolfs/weatherzone/internal/model/zone"
	weathererrors "github.com/dmrolfs/weatherzone/pkg/errors"
	"github.com/dmrolfs/weatherzone/pkg/metrics"
	"github.com/dmrolfs/weatherzone/pkg/utils"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// AlertAPI is the capability ZoneUpdateController needs to fetch every
// currently active alert in one call.
type AlertAPI interface {
	ActiveAlerts(ctx context.Context) ([]zone.Alert, error)
}

// Provider is the full weather provider port: zone.Provider (observation and
// forecast lookup) plus AlertAPI.
type Provider interface {
	zone.Provider
	AlertAPI
}

// HTTPProvider is the default adapter: a GeoJSON-over-HTTPS client with
// exponential-backoff retry and a circuit breaker guarding each endpoint.
type HTTPProvider struct {
	baseURL        string
	userAgent      string
	client         *http.Client
	requestTimeout time.Duration
	log            *zap.Logger

	observationBreaker *gobreaker.CircuitBreaker
	forecastBreaker    *gobreaker.CircuitBreaker
	alertsBreaker      *gobreaker.CircuitBreaker
}

// Config configures an HTTPProvider.
type Config struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

// New constructs an HTTPProvider. cfg.BaseURL and cfg.UserAgent are required
// by the upstream service; cfg.Timeout defaults to 10s.
func New(cfg Config, log *zap.Logger) *HTTPProvider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	breakerSettings := func(name string) gobreaker.Settings {
		return gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}
	}
	return &HTTPProvider{
		baseURL:            cfg.BaseURL,
		userAgent:          cfg.UserAgent,
		client:             &http.Client{Timeout: cfg.Timeout},
		requestTimeout:     cfg.Timeout,
		log:                log,
		observationBreaker: gobreaker.NewCircuitBreaker(breakerSettings("weather-observation")),
		forecastBreaker:    gobreaker.NewCircuitBreaker(breakerSettings("weather-forecast")),
		alertsBreaker:      gobreaker.NewCircuitBreaker(breakerSettings("weather-alerts")),
	}
}

// newRetryPolicy returns a backoff strategy: 1s initial interval, growing
// exponentially to a 300s ceiling, bounded to 3 retries.
func newRetryPolicy() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 1 * time.Second
	eb.MaxInterval = 300 * time.Second
	eb.Multiplier = 2
	return backoff.WithMaxRetries(eb, 3)
}

func (p *HTTPProvider) get(ctx context.Context, path string, out interface{}) error {
	// Each retry attempt gets its own bounded deadline; an earlier deadline
	// already carried by the caller's ctx still applies.
	attemptCtx, cancel := utils.ContextWithCustomTimeout(ctx, p.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, p.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("weather: build request: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "application/geo+json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("weather: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("weather: unexpected status %d from %s", resp.StatusCode, path)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("weather: decode geojson: %w", err)
	}
	return nil
}

func (p *HTTPProvider) callWithResilience(ctx context.Context, breaker *gobreaker.CircuitBreaker, endpoint string, fn func() error) error {
	_, err := breaker.Execute(func() (interface{}, error) {
		retryErr := backoff.Retry(fn, backoff.WithContext(newRetryPolicy(), ctx))
		return nil, retryErr
	})
	result := "ok"
	if err != nil {
		result = "error"
		p.log.Warn("weather provider call failed", zap.String("endpoint", endpoint), zap.Error(err))
	}
	metrics.ProviderRequestsTotal.WithLabelValues(endpoint, result).Inc()
	if err != nil {
		return weathererrors.ErrProvider
	}
	return nil
}

type geoJSONObservation struct {
	Properties struct {
		Timestamp   time.Time `json:"timestamp"`
		Temperature struct {
			Value          *float32 `json:"value"`
			UnitCode       string   `json:"unitCode"`
			QualityControl string   `json:"qualityControl"`
		} `json:"temperature"`
	} `json:"properties"`
}

// ZoneObservation implements zone.Provider.
func (p *HTTPProvider) ZoneObservation(ctx context.Context, zoneID string) (zone.WeatherFrame, error) {
	var raw geoJSONObservation
	err := p.callWithResilience(ctx, p.observationBreaker, "observation", func() error {
		return p.get(ctx, fmt.Sprintf("/zones/forecast/%s/observations", zoneID), &raw)
	})
	if err != nil {
		return zone.WeatherFrame{}, err
	}

	frame := zone.WeatherFrame{Timestamp: raw.Properties.Timestamp}
	if raw.Properties.Temperature.Value != nil {
		frame.Temperature = &zone.QuantitativeValue{
			Value:          *raw.Properties.Temperature.Value,
			MinValue:       *raw.Properties.Temperature.Value,
			MaxValue:       *raw.Properties.Temperature.Value,
			UnitCode:       raw.Properties.Temperature.UnitCode,
			QualityControl: zone.ParseQualityControl(raw.Properties.Temperature.QualityControl),
		}
	}
	return frame, nil
}

type geoJSONForecast struct {
	Properties struct {
		Updated time.Time `json:"updated"`
		Periods []struct {
			Name             string `json:"name"`
			DetailedForecast string `json:"detailedForecast"`
		} `json:"periods"`
	} `json:"properties"`
}

func zoneTypePath(t zone.Type) string {
	switch t {
	case zone.Public:
		return "public"
	case zone.County:
		return "county"
	default:
		return "forecast"
	}
}

// ZoneForecast implements zone.Provider.
func (p *HTTPProvider) ZoneForecast(ctx context.Context, zoneType zone.Type, zoneID string) (zone.ZoneForecast, error) {
	var raw geoJSONForecast
	err := p.callWithResilience(ctx, p.forecastBreaker, "forecast", func() error {
		return p.get(ctx, fmt.Sprintf("/zones/%s/%s/forecast", zoneTypePath(zoneType), zoneID), &raw)
	})
	if err != nil {
		return zone.ZoneForecast{}, err
	}

	fc := zone.ZoneForecast{ZoneCode: zoneID, Updated: raw.Properties.Updated}
	for _, period := range raw.Properties.Periods {
		fc.Periods = append(fc.Periods, zone.ForecastPeriod{Name: period.Name, ForecastText: period.DetailedForecast})
	}
	return fc, nil
}

type geoJSONAlerts struct {
	Features []struct {
		Properties struct {
			ID            string    `json:"id"`
			AffectedZones []string  `json:"affectedZones"`
			Status        string    `json:"status"`
			Category      string    `json:"category"`
			Severity      string    `json:"severity"`
			Certainty     string    `json:"certainty"`
			Urgency       string    `json:"urgency"`
			Effective     time.Time `json:"effective"`
			Expires       time.Time `json:"expires"`
			Headline      string    `json:"headline"`
			Description   string    `json:"description"`
			Instruction   string    `json:"instruction"`
		} `json:"properties"`
	} `json:"features"`
}

// ActiveAlerts implements AlertAPI.
func (p *HTTPProvider) ActiveAlerts(ctx context.Context) ([]zone.Alert, error) {
	var raw geoJSONAlerts
	err := p.callWithResilience(ctx, p.alertsBreaker, "alerts", func() error {
		return p.get(ctx, "/alerts/active", &raw)
	})
	if err != nil {
		return nil, err
	}

	alerts := make([]zone.Alert, 0, len(raw.Features))
	for _, f := range raw.Features {
		props := f.Properties
		alerts = append(alerts, zone.Alert{
			ID:            props.ID,
			AffectedZones: props.AffectedZones,
			Status:        zone.AlertStatus(props.Status),
			Category:      props.Category,
			Severity:      props.Severity,
			Certainty:     props.Certainty,
			Urgency:       props.Urgency,
			Effective:     props.Effective,
			Expires:       props.Expires,
			Headline:      props.Headline,
			Description:   props.Description,
			Instruction:   props.Instruction,
		})
	}
	return alerts, nil
}
