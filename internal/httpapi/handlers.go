package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dmrolfs/weatherzone/internal/model/registrar"
	"github.com/dmrolfs/weatherzone/internal/views"
	weathererrors "github.com/dmrolfs/weatherzone/pkg/errors"
	"github.com/dmrolfs/weatherzone/pkg/graceful"
	"github.com/dmrolfs/weatherzone/pkg/health"
	"github.com/dmrolfs/weatherzone/pkg/utils"
	"go.uber.org/zap"
)

func init() {
	graceful.RegisterErrorMap(map[error]graceful.ErrorMapEntry{
		weathererrors.ErrRejectedCommand:      {Code: graceful.CodeRejectedCommand, Message: "command rejected"},
		weathererrors.ErrZoneAlreadyMonitored: {Code: graceful.CodeRejectedCommand, Message: "zone already monitored"},
		weathererrors.ErrEmptyZoneSet:         {Code: graceful.CodeRejectedCommand, Message: "at least one zone is required"},
		weathererrors.ErrAggregateConflict:    {Code: graceful.CodeAggregateConflict, Message: "conflicting update, retry"},
		weathererrors.ErrProvider:             {Code: graceful.CodeProvider, Message: "weather provider unavailable"},
		weathererrors.ErrPersistence:          {Code: graceful.CodePersistence, Message: "persistence error"},
		weathererrors.ErrChannelClosed:        {Code: graceful.CodeChannelClosed, Message: "service shutting down"},
		weathererrors.ErrNotFound:             {Code: graceful.CodeNotFound, Message: "not found"},
	})
}

// writeError maps err through the registered error taxonomy and writes the
// structured {error, error_code} body. Server-side failures are logged with
// the request id; client errors are not.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	ce := graceful.MapAndWrapErr(err, "internal error", graceful.CodePersistence)
	status := ce.Code.HTTPStatus()
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("request_id", graceful.RequestIDFromContext(r.Context())),
			zap.String("path", r.URL.Path),
			zap.String("code", ce.Code.String()),
			zap.Error(err))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := map[string]interface{}{"error": ce.Message}
	if ce.Code != graceful.CodeUnknown {
		body["error_code"] = ce.Code.String()
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Warn("failed to encode error response", zap.Error(err))
	}
}

// writeJSON encodes v into a pooled buffer first, so a marshaling failure
// never leaves a partial body on the wire, then writes it with a 200 status.
func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	s.writeJSONStatus(w, http.StatusOK, v)
}

// writeJSONStatus is writeJSON with an explicit status code.
func (s *Server) writeJSONStatus(w http.ResponseWriter, status int, v interface{}) {
	buf := utils.GetBuffer()
	defer utils.PutBuffer(buf)

	if err := json.NewEncoder(buf).Encode(v); err != nil {
		s.log.Warn("failed to encode response", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		s.log.Warn("failed to write response", zap.Error(err))
	}
}

// handleWeatherRoot implements POST /api/v1/weather.
func (s *Server) handleWeatherRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var sagaID string
	_, err := s.registrar.Execute(r.Context(), registrar.SingletonID, registrar.UpdateWeather(&sagaID))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(sagaID))
}

// handleUpdateStatus implements GET /api/v1/weather/updates/{id}.
func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sagaID := strings.TrimPrefix(r.URL.Path, "/api/v1/weather/updates/")
	if sagaID == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var view views.UpdateLocationsView
	if err := s.views.Load(r.Context(), views.UpdateLocationsViewNamePrefix, views.UpdateLocationsViewID(sagaID), &view); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, view)
}

// handleZonesRoot implements GET and DELETE /api/v1/weather/zones.
func (s *Server) handleZonesRoot(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		var view views.MonitoredZonesView
		if err := s.views.Load(r.Context(), views.MonitoredZonesViewName, registrar.SingletonID, &view); err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, view)

	case http.MethodDelete:
		if _, err := s.registrar.Execute(r.Context(), registrar.SingletonID, registrar.ClearZoneMonitoring()); err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusOK)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleZoneByCode implements POST and DELETE /api/v1/weather/zones/{code}.
func (s *Server) handleZoneByCode(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimPrefix(r.URL.Path, "/api/v1/weather/zones/")
	if code == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var cmd registrar.Command
	switch r.Method {
	case http.MethodPost:
		cmd = registrar.MonitorForecastZone(code)
	case http.MethodDelete:
		cmd = registrar.ForgetForecastZone(code)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if _, err := s.registrar.Execute(r.Context(), registrar.SingletonID, cmd); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// handleWeatherByCode implements GET /api/v1/weather/{code}.
func (s *Server) handleWeatherByCode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	code := strings.TrimPrefix(r.URL.Path, "/api/v1/weather/")
	if code == "" || strings.Contains(code, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var view views.WeatherView
	if err := s.views.Load(r.Context(), views.WeatherViewName, code, &view); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, view)
}

// handleHealth implements GET /api/v1/health: a shallow liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]string{"status": "UP"})
}

// handleHealthDeep implements GET /api/v1/health/deep: runs every probe
// registered with the health checker and reports each one's result.
func (s *Server) handleHealthDeep(w http.ResponseWriter, r *http.Request) {
	status, results := s.health.Status(r.Context())
	body := map[string]interface{}{"status": status}
	details := make(map[string]string, len(results))
	for name, err := range results {
		if err != nil {
			details[name] = err.Error()
		} else {
			details[name] = "ok"
		}
	}
	body["checks"] = details

	httpStatus := http.StatusOK
	if status == health.StatusDown {
		httpStatus = http.StatusServiceUnavailable
	}
	s.writeJSONStatus(w, httpStatus, body)
}
