package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const (
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 10 * time.Second
	triggerPathBase   = "/trigger/"
	deepLinkPathBase  = "/v/"
)

// Pinger reports backing-store reachability for the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server exposes health probes, prometheus metrics, and the optional sweep
// trigger and deep-link view handlers.
type Server struct {
	pinger         Pinger
	port           int
	logger         *zerolog.Logger
	triggerHandler http.Handler
	viewHandler    http.Handler
}

func NewServer(pinger Pinger, port int, logger *zerolog.Logger) *Server {
	return &Server{
		pinger: pinger,
		port:   port,
		logger: logger,
	}
}

// NewServerWithHandlers creates a server with trigger and deep-link view
// handlers mounted under /trigger/ and /v/.
func NewServerWithHandlers(pinger Pinger, port int, trigger, view http.Handler, logger *zerolog.Logger) *Server {
	return &Server{
		pinger:         pinger,
		port:           port,
		logger:         logger,
		triggerHandler: trigger,
		viewHandler:    view,
	}
}

func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, "OK")
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := s.pinger.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = fmt.Fprintf(w, "DB error: %v", err)

			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, "OK")
	})

	mux.Handle("/metrics", promhttp.Handler())

	if s.triggerHandler != nil {
		mux.Handle(triggerPathBase, http.StripPrefix(triggerPathBase, s.triggerHandler))
	}

	if s.viewHandler != nil {
		mux.Handle(deepLinkPathBase, http.StripPrefix(deepLinkPathBase, s.viewHandler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)

		defer cancel()

		//nolint:errcheck,contextcheck // shutdown on signal is best-effort, non-inherited context intentional
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info().Int("port", s.port).Msg("health server starting")

	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server error: %w", err)
	}

	return nil
}
