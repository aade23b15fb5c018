// Package httpapi is the thin HTTP adapter over the registrar aggregate and
// the view repositories: it is deliberately minimal (routing, decoding,
// status-code mapping) and contains none of the domain core's logic.
package httpapi

import (
	"context"
	"net/http"

	"github.com/dmrolfs/weatherzone/internal/model/registrar"
	"github.com/dmrolfs/weatherzone/pkg/events"
	"github.com/dmrolfs/weatherzone/pkg/graceful"
	"github.com/dmrolfs/weatherzone/pkg/health"
	"github.com/dmrolfs/weatherzone/pkg/utils"
	"go.uber.org/zap"
)

// ViewReader is the subset of the views package's CachedRepository the HTTP
// adapter reads from.
type ViewReader interface {
	Load(ctx context.Context, viewType, viewID string, out interface{}) error
}

// Server wires the public HTTP surface: every route is a thin translation
// from an HTTP request into one Registrar command or one view load.
type Server struct {
	mux       *http.ServeMux
	registrar *events.Runtime[registrar.State, registrar.Command, registrar.Event]
	views     ViewReader
	health    *health.HealthChecker
	log       *zap.Logger
}

// NewServer builds the HTTP mux. registrarRuntime
// drives zone monitoring and weather updates; views backs the read routes;
// healthChecker backs the two health routes.
func NewServer(registrarRuntime *events.Runtime[registrar.State, registrar.Command, registrar.Event], views ViewReader, healthChecker *health.HealthChecker, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{mux: http.NewServeMux(), registrar: registrarRuntime, views: views, health: healthChecker, log: log}
	s.routes()
	return s
}

// Handler returns the wired http.Handler, ready to be passed to http.Server.
// Every request is stamped with a request id, echoed back in X-Request-ID
// and attached to the context for error logging.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = utils.NewUUIDOrDefault()
		}
		w.Header().Set("X-Request-ID", requestID)
		s.mux.ServeHTTP(w, r.WithContext(graceful.WithRequestID(r.Context(), requestID)))
	})
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/v1/weather", s.handleWeatherRoot)
	s.mux.HandleFunc("/api/v1/weather/updates/", s.handleUpdateStatus)
	s.mux.HandleFunc("/api/v1/weather/zones", s.handleZonesRoot)
	s.mux.HandleFunc("/api/v1/weather/zones/", s.handleZoneByCode)
	s.mux.HandleFunc("/api/v1/health", s.handleHealth)
	s.mux.HandleFunc("/api/v1/health/deep", s.handleHealthDeep)
	s.mux.HandleFunc("/api/v1/weather/", s.handleWeatherByCode)
}
