package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dmrolfs/weatherzone/internal/model/registrar"
	"github.com/dmrolfs/weatherzone/internal/views"
	"github.com/dmrolfs/weatherzone/pkg/events"
	weathererrors "github.com/dmrolfs/weatherzone/pkg/errors"
	"github.com/dmrolfs/weatherzone/pkg/health"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memEventStore is a minimal in-memory events.EventStore for wiring a real
// registrar Runtime behind the handlers.
type memEventStore struct {
	mu   sync.Mutex
	rows map[string][]events.PersistedEvent
}

func newMemEventStore() *memEventStore {
	return &memEventStore{rows: make(map[string][]events.PersistedEvent)}
}

func (m *memEventStore) Append(_ context.Context, aggregateType, aggregateID string, expectedSeq int64, evts []events.StoredEvent, metadata map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := aggregateType + "/" + aggregateID
	existing := m.rows[k]
	if int64(len(existing)) != expectedSeq {
		return weathererrors.ErrAggregateConflict
	}
	for i, e := range evts {
		existing = append(existing, events.PersistedEvent{
			AggregateType: aggregateType,
			AggregateID:   aggregateID,
			Sequence:      expectedSeq + int64(i) + 1,
			EventType:     e.EventType,
			EventVersion:  e.EventVersion,
			Payload:       e.Payload,
			Metadata:      metadata,
			RecordedAt:    time.Now(),
		})
	}
	m.rows[k] = existing
	return nil
}

func (m *memEventStore) Load(_ context.Context, aggregateType, aggregateID string) ([]events.PersistedEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]events.PersistedEvent(nil), m.rows[aggregateType+"/"+aggregateID]...), nil
}

type stubRegistrarServices struct{}

func (stubRegistrarServices) InitializeForecastZone(context.Context, string) error { return nil }

func (stubRegistrarServices) UpdateWeather(context.Context, []string) (string, error) {
	return "saga-123", nil
}

// fakeViews serves canned views keyed by viewType+"/"+viewID.
type fakeViews struct {
	data map[string]interface{}
}

func (f *fakeViews) Load(_ context.Context, viewType, viewID string, out interface{}) error {
	v, ok := f.data[viewType+"/"+viewID]
	if !ok {
		return weathererrors.ErrNotFound
	}
	switch dst := out.(type) {
	case *views.WeatherView:
		*dst = v.(views.WeatherView)
	case *views.MonitoredZonesView:
		*dst = v.(views.MonitoredZonesView)
	case *views.UpdateLocationsView:
		*dst = v.(views.UpdateLocationsView)
	}
	return nil
}

func newTestServer(t *testing.T, viewData map[string]interface{}) *Server {
	t.Helper()
	rt := events.NewRuntime[registrar.State, registrar.Command, registrar.Event](
		registrar.New(stubRegistrarServices{}), newMemEventStore(), registrar.Codec{}, nil, 0)
	return NewServer(rt, &fakeViews{data: viewData}, health.NewHealthChecker(), nil)
}

func TestPostWeatherReturnsSagaID(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/weather", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "saga-123", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestAddZoneThenDuplicateRejected(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/weather/zones/WAZ558", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/weather/zones/WAZ558", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "zone already monitored")
}

func TestRemoveAbsentZoneIsOK(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/weather/zones/WAZ558", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetZonesView(t *testing.T) {
	srv := newTestServer(t, map[string]interface{}{
		views.MonitoredZonesViewName + "/" + registrar.SingletonID: views.MonitoredZonesView{Codes: []string{"WAZ558"}},
	})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/weather/zones", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "WAZ558")
}

func TestGetWeatherByCodeNotFound(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/weather/WAZ558", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "not_found")
}

func TestGetUpdateStatus(t *testing.T) {
	srv := newTestServer(t, map[string]interface{}{
		views.UpdateLocationsViewNamePrefix + "/" + views.UpdateLocationsViewID("sid-1"): views.UpdateLocationsView{
			SagaID: "sid-1",
			Status: "completed",
		},
	})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/weather/updates/sid-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "completed")

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/weather/updates/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthShallow(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "UP")
}

func TestRequestIDEchoed(t *testing.T) {
	srv := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/weather", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
