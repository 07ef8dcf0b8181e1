// Package api serves a tile route over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/geotms/server/internal/service"
	"github.com/geotms/server/internal/tmserr"
)

// TilePath is the chi pattern of tile requests.
const TilePath = "/tile/{z}/{x}/{y}.png"

// Tiler produces encoded tiles. *service.Route implements it.
type Tiler interface {
	Tile(ctx context.Context, z, x, y int) ([]byte, error)
}

var _ Tiler = (*service.Route)(nil)

// RouterConfig contains router configuration.
type RouterConfig struct {
	Tiler       Tiler
	CORSOrigins []string
	Logger      *zap.Logger
	Metrics     *Metrics
	// Handshake returns the current handshake token.
	Handshake func() string
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) *chi.Mux {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5, "text/plain", "application/json"))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Get("/handshake", func(w http.ResponseWriter, r *http.Request) {
		token := ""
		if cfg.Handshake != nil {
			token = cfg.Handshake()
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte(token))
	})

	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.With(measure(metrics, "tile")).Get(TilePath, tileHandler(cfg.Tiler, logger))

	return r
}

func tileHandler(tiler Tiler, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		z, ok := coordinate(w, r, "z")
		if !ok {
			return
		}
		x, ok := coordinate(w, r, "x")
		if !ok {
			return
		}
		y, ok := coordinate(w, r, "y")
		if !ok {
			return
		}

		data, err := tiler.Tile(r.Context(), z, x, y)
		if err != nil {
			var re *tmserr.RenderError
			switch {
			case tmserr.IsNotFound(err):
				w.WriteHeader(http.StatusNotFound)
			case errors.As(err, &re):
				http.Error(w, "render failed", http.StatusInternalServerError)
			case errors.Is(err, context.Canceled):
				// client went away; nothing useful to send
			default:
				logger.Error("tile request failed",
					zap.Int("z", z), zap.Int("x", x), zap.Int("y", y), zap.Error(err))
				http.Error(w, "tile request failed", http.StatusInternalServerError)
			}
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Write(data)
	}
}

func coordinate(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	v, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil || v < 0 {
		http.Error(w, "invalid "+name, http.StatusBadRequest)
		return 0, false
	}
	return v, true
}

// measure records status, size and latency of requests to one handler.
func measure(m *Metrics, handler string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			m.observeRequest(handler, statusOf(ww), ww.BytesWritten(), time.Since(start))
		})
	}
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Debug("request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", statusOf(ww)),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("latency", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

func statusOf(ww middleware.WrapResponseWriter) int {
	if s := ww.Status(); s != 0 {
		return s
	}
	return http.StatusOK
}
