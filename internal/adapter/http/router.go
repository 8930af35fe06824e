package http

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"exchange-rate-watcher/internal/metrics"
	"exchange-rate-watcher/pkg/logger"
)

type Router struct {
	handler  *Handler
	log      *logger.Logger
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
}

// NewRouter builds the API router. /metrics serves gatherer, which should be
// the registry the metrics were registered with.
func NewRouter(handler *Handler, log *logger.Logger, metrics *metrics.Metrics, gatherer prometheus.Gatherer) *Router {
	return &Router{
		handler:  handler,
		log:      log,
		metrics:  metrics,
		gatherer: gatherer,
	}
}

func (r *Router) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()

		crw := &customResponseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(crw, req)

		duration := time.Since(start)
		r.metrics.ObserveHTTPRequest(routePattern(req), req.Method, crw.statusCode, duration)

		r.log.Info("HTTP request",
			"method", req.Method,
			"path", req.URL.Path,
			"query", req.URL.RawQuery,
			"status", crw.statusCode,
			"duration", duration,
			"remote_addr", req.RemoteAddr,
			"request_id", middleware.GetReqID(req.Context()),
		)
	})
}

// routePattern keeps the metric label set bounded for parameterised routes.
func routePattern(req *http.Request) string {
	if rctx := chi.RouteContext(req.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return req.URL.Path
}

type customResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (crw *customResponseWriter) WriteHeader(code int) {
	crw.statusCode = code
	crw.ResponseWriter.WriteHeader(code)
}

// Hijack lets the stream endpoint upgrade through the middleware.
func (crw *customResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := crw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return hijacker.Hijack()
}

func (r *Router) SetupRoutes() http.Handler {
	mux := chi.NewRouter()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.Recoverer)

	mux.Handle("/metrics", promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{}))

	mux.Group(func(api chi.Router) {
		api.Use(r.loggingMiddleware)

		api.Get("/health", r.handler.HealthHandler)

		api.Route("/api/v1", func(v1 chi.Router) {
			v1.Get("/rates", r.handler.GetRatesHandler)
			v1.Get("/rates/{code}", r.handler.GetRateHandler)
			v1.Get("/strategy", r.handler.GetStrategyHandler)
			v1.Get("/stream", r.handler.StreamHandler)
		})
	})

	return mux
}
