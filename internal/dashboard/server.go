package dashboard

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"BandWatch/internal/collector"
	"BandWatch/internal/metrics"
	"BandWatch/internal/model"
	"BandWatch/internal/recorder"
	"BandWatch/internal/session"
)

const pairsCacheTTL = time.Hour

// Options configures the dashboard server.
type Options struct {
	Addr         string
	APIKey       string
	AllowOrigin  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	SessionTTL   time.Duration
	Params       model.BandParams
}

// Server serves the band dashboard page and its JSON views.
type Server struct {
	router     *mux.Router
	handler    http.Handler
	httpServer *http.Server

	collector *collector.Collector
	sessions  session.Store
	recorder  recorder.Recorder
	metrics   *metrics.Metrics
	opts      Options

	pairsMu      sync.Mutex
	pairs        []string
	pairsFetched time.Time
}

// NewServer wires the routes and middleware. rec and m may be nil.
func NewServer(col *collector.Collector, store session.Store, rec recorder.Recorder, m *metrics.Metrics, opts Options) *Server {
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	if opts.Params.Window == 0 {
		opts.Params = model.DefaultBandParams()
	}
	if opts.SessionTTL == 0 {
		opts.SessionTTL = 2 * time.Hour
	}

	s := &Server{
		router:    mux.NewRouter(),
		collector: col,
		sessions:  store,
		recorder:  rec,
		metrics:   m,
		opts:      opts,
	}
	s.setupRoutes()
	// CORS wraps the router so preflight requests never reach method matching.
	s.handler = s.corsMiddleware(s.router)

	s.httpServer = &http.Server{
		Addr:         opts.Addr,
		Handler:      s.handler,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.requestLoggingMiddleware)
	s.router.Use(s.authMiddleware)

	s.router.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/v1").Subrouter()
	api.HandleFunc("/pairs", s.handlePairs).Methods(http.MethodGet)
	api.HandleFunc("/fetch", s.handleFetch).Methods(http.MethodPost)
	api.HandleFunc("/params", s.handleParams).Methods(http.MethodPost)
	api.HandleFunc("/price", s.handlePrice).Methods(http.MethodGet)
	api.HandleFunc("/bands", s.handleBands).Methods(http.MethodGet)
	api.HandleFunc("/signals", s.handleSignals).Methods(http.MethodGet)
	api.HandleFunc("/candles", s.handleCandles).Methods(http.MethodGet)
	api.HandleFunc("/history", s.handleHistory).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) Start() error {
	log.Info().Str("addr", s.opts.Addr).Bool("auth", s.opts.APIKey != "").Msg("dashboard listening")
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("shutting down dashboard")
	return s.httpServer.Shutdown(ctx)
}
