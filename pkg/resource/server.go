package resource

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "live2d_resource_http_requests_total",
		Help: "Resource server requests by method and status.",
	}, []string{"method", "status"})

	uploadBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "live2d_resource_upload_bytes_total",
		Help: "Total bytes accepted by resource uploads.",
	})

	residentBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "live2d_resource_resident_bytes",
		Help: "Bytes currently resident in the resource store.",
	})
)

// ServerConfig configures the resource HTTP sibling server.
type ServerConfig struct {
	// Addr is the listen address, e.g. "0.0.0.0:9091".
	Addr string

	// Path is the mount path for objects, e.g. "/resources".
	Path string

	// Token, when set, is required on every object request as either an
	// "Authorization: Bearer" header or a "?token=" query parameter.
	Token string

	// Logger for request events. Defaults to slog.Default().
	Logger *slog.Logger
}

// Server streams resource bytes in and out over HTTP, completing the
// two-phase upload handshake started by Store.Prepare. It also exposes
// /healthz and Prometheus metrics at /metrics.
type Server struct {
	store  *Store
	cfg    ServerConfig
	logger *slog.Logger
	http   *http.Server
}

// NewServer builds the HTTP sibling over the given store.
func NewServer(store *Store, cfg ServerConfig) *Server {
	if cfg.Path == "" {
		cfg.Path = "/resources"
	}
	cfg.Path = "/" + strings.Trim(cfg.Path, "/")
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Server{
		store:  store,
		cfg:    cfg,
		logger: cfg.Logger.With("component", "resource_server"),
	}
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.countRequests)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route(s.cfg.Path+"/{rid}", func(r chi.Router) {
		r.Use(s.requireToken)
		r.Get("/", s.handleGet)
		r.Put("/", s.handlePut)
		r.Delete("/", s.handleDelete)
	})
	return r
}

func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		httpRequests.WithLabelValues(r.Method, strconv.Itoa(ww.Status())).Inc()
	})
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Token != "" {
			header := r.Header.Get("Authorization")
			bearer := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
			if !(strings.HasPrefix(header, "Bearer ") && bearer == s.cfg.Token) &&
				r.URL.Query().Get("token") != s.cfg.Token {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	rid := chi.URLParam(r, "rid")
	rc, entry, err := s.store.Open(rid)
	if err != nil {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	defer rc.Close()

	if entry.MIME != "" {
		w.Header().Set("Content-Type", entry.MIME)
	}
	w.Header().Set("Content-Length", strconv.FormatInt(entry.Size, 10))
	if _, err := io.Copy(w, rc); err != nil {
		s.logger.Warn("download aborted", "rid", rid, "error", err)
	}
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	rid := chi.URLParam(r, "rid")
	if _, ok := s.store.Lookup(rid); !ok {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}

	// The declared size was reserved at Prepare; only a larger payload
	// needs more headroom. A payload the quota can never fit is a hard
	// 413.
	if r.ContentLength > 0 {
		switch err := s.store.ReserveUpload(rid, r.ContentLength); {
		case err == nil:
		case errors.Is(err, ErrQuotaExceeded):
			http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
			return
		default:
			http.Error(w, "Not Found", http.StatusNotFound)
			return
		}
	}

	size, digest, err := s.store.Upload(rid, r.Body)
	switch {
	case err == nil:
	case errors.Is(err, ErrChecksumMismatch):
		http.Error(w, "SHA256 mismatch", http.StatusBadRequest)
		return
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrBadState):
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	default:
		s.logger.Error("upload failed", "rid", rid, "error", err)
		http.Error(w, "Write failed", http.StatusInternalServerError)
		return
	}

	uploadBytes.Add(float64(size))
	bytes, _ := s.store.Stats()
	residentBytes.Set(float64(bytes))

	writeJSON(w, map[string]any{"rid": rid, "size": size, "sha256": digest})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	rid := chi.URLParam(r, "rid")
	if err := s.store.Release(rid); err != nil {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	bytes, _ := s.store.Stats()
	residentBytes.Set(float64(bytes))
	writeJSON(w, map[string]any{"rid": rid, "released": true})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Start begins serving on the configured address. It blocks until the
// listener fails or Shutdown is called.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.logger.Info("resource server listening", "addr", ln.Addr().String(), "path", s.cfg.Path)
	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server, waiting for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("resource server stopping")
	return s.http.Shutdown(ctx)
}
