package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/gnsstrack/core/internal/logging"
)

// WebServer exposes a Hub's tracking history and live updates over HTTP,
// grounded on the teacher's WebServer (minus its embedded static UI and
// SDR-specific mock-angle control endpoint, which have no GNSS analog).
type WebServer struct {
	srv *http.Server
	log logging.Logger
}

// NewWebServer builds an HTTP server serving a Hub's registered endpoints.
func NewWebServer(addr string, hub *Hub, logger logging.Logger) *WebServer {
	if logger == nil {
		logger = logging.Default()
	}
	ws := &WebServer{log: logger.With(logging.Subsystem("telemetry"))}

	mux := http.NewServeMux()
	hub.RegisterHandlers(mux)

	ws.srv = &http.Server{Addr: addr, Handler: mux}
	return ws
}

// Start begins listening and shuts down when the context is canceled.
func (w *WebServer) Start(ctx context.Context) {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := w.srv.Shutdown(shutdownCtx); err != nil {
			w.log.Warn("telemetry web server shutdown", logging.Field{Key: "error", Value: err})
		}
	}()

	if err := w.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		w.log.Error("telemetry web server error", logging.Field{Key: "error", Value: err})
	}
}
