// Package server is the bridge's HTTP surface: platform ingress, the
// websocket consumer link, settings, health and metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"pushbridge/internal/metrics"
	"pushbridge/internal/storage"
	logx "pushbridge/pkg/logx"
)

type Config struct {
	Addr              string
	Pprof             bool
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// Mounter registers routes on a router.
type Mounter interface {
	Mount(r chi.Router)
}

type Deps struct {
	Ingress  Mounter
	Consumer http.Handler // nil unless the websocket link is enabled
	Attached func() bool
	Store    storage.Store
	Metrics  *metrics.Metrics
}

type Server struct {
	cfg    Config
	log    logx.Logger
	router chi.Router

	mu   sync.Mutex
	srv  *http.Server
	ln   net.Listener
	addr string
}

func New(cfg Config, d Deps, log logx.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8787"
	}
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = 5 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Server{cfg: cfg, log: log.With(logx.String("comp", "http"))}
	s.router = s.routes(d)
	return s
}

func (s *Server) routes(d Deps) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware(d.Metrics))

	if d.Ingress != nil {
		d.Ingress.Mount(r)
	}
	if d.Consumer != nil {
		r.Method(http.MethodGet, "/v1/consumer", d.Consumer)
	}
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		attached := false
		if d.Attached != nil {
			attached = d.Attached()
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "consumer_attached": attached})
	})

	st := settings{store: d.Store, log: s.log}
	r.Get("/v1/settings/{namespace}/{key}", st.get)
	r.Put("/v1/settings/{namespace}/{key}", st.put)

	if s.cfg.Pprof {
		r.Mount("/debug", middleware.Profiler())
	}
	return r
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Listen binds the configured address so bind errors surface before the
// process reports ready.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.ln = ln
	s.addr = ln.Addr().String()
	s.srv = &http.Server{Handler: s.router, ReadHeaderTimeout: s.cfg.ReadHeaderTimeout}
	s.mu.Unlock()
	s.log.Info("http listening", logx.String("addr", s.addr))
	return nil
}

// Serve serves until ctx ends, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	srv, ln := s.srv, s.ln
	s.mu.Unlock()
	if srv == nil {
		return errors.New("http server not listening")
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		s.log.Warn("http shutdown error", logx.Err(err))
	}
	<-errc
	return nil
}

// Addr reports the bound address, empty before Listen.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

func metricsMiddleware(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			path := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				path = rc.RoutePattern()
			}
			m.ObserveHTTP(path, r.Method, strconv.Itoa(ww.Status()), time.Since(start))
		})
	}
}

type settings struct {
	store storage.Store
	log   logx.Logger
}

type flagBody struct {
	Namespace string `json:"namespace,omitempty"`
	Key       string `json:"key,omitempty"`
	Value     *bool  `json:"value"`
}

func (s settings) get(w http.ResponseWriter, r *http.Request) {
	ns, key := chi.URLParam(r, "namespace"), chi.URLParam(r, "key")
	v, err := storage.Bool(r.Context(), s.store, ns, key)
	if err != nil {
		s.log.Warn("settings read failed", logx.String("namespace", ns), logx.String("key", key), logx.Err(err))
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, flagBody{Namespace: ns, Key: key, Value: &v})
}

func (s settings) put(w http.ResponseWriter, r *http.Request) {
	ns, key := chi.URLParam(r, "namespace"), chi.URLParam(r, "key")
	var body flagBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&body); err != nil || body.Value == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": `body must be {"value": bool}`})
		return
	}
	if err := storage.SetBool(r.Context(), s.store, ns, key, *body.Value); err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, storage.ErrDisabled) {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	s.log.Info("setting updated", logx.String("namespace", ns), logx.String("key", key), logx.Bool("value", *body.Value))
	writeJSON(w, http.StatusOK, flagBody{Namespace: ns, Key: key, Value: body.Value})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
