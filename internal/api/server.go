// Package api is the HTTP façade over the Store and job manager: job
// submission, video/transcript reads, search, and audio streaming.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ragaeeb/beltane-pipeline/internal/config"
	"github.com/ragaeeb/beltane-pipeline/internal/downloader"
	"github.com/ragaeeb/beltane-pipeline/internal/jobqueue"
	"github.com/ragaeeb/beltane-pipeline/internal/log"
	"github.com/ragaeeb/beltane-pipeline/internal/metrics"
	"github.com/ragaeeb/beltane-pipeline/internal/pipeline"
	"github.com/ragaeeb/beltane-pipeline/internal/store"
)

// Server wires the Store, job manager, and pipeline engine behind an
// HTTP mux.
type Server struct {
	Store  *store.Store
	Jobs   *jobqueue.Manager
	Engine *pipeline.Engine
	Config config.RunConfig
	router chi.Router
}

// NewServer builds the Server and its router, ready for ListenAndServe.
// ctx governs the lifetime of every job the server's manager starts.
func NewServer(ctx context.Context, st *store.Store, cfg config.RunConfig) *Server {
	dl := downloader.New(cfg.YtDlpBin, cfg.FFprobeBin)
	engine := pipeline.NewEngine(st, dl)

	s := &Server{Store: st, Config: cfg, Engine: engine}
	s.Jobs = jobqueue.New(ctx, cfg.JobConcurrency, s.runJob)
	s.router = s.buildRouter()
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(chimw.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:     []string{"*"},
		AllowedMethods:     []string{"GET", "POST", "DELETE", "HEAD", "OPTIONS"},
		AllowedHeaders:     []string{"Accept", "Content-Type", "Authorization"},
		MaxAge:             300,
		OptionsPassthrough: true,
	}))
	// cors writes the preflight headers and passes OPTIONS on; every
	// OPTIONS request ends here with 204.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if req.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Use(log.Middleware())
	r.Use(metricsMiddleware)
	r.Use(httprate.LimitByIP(120, time.Minute))

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/options", s.handleOptions)
		r.Get("/stats", s.handleStats)
		r.Get("/analytics", s.handleAnalytics)

		r.Get("/jobs", s.handleListJobs)
		r.Post("/jobs", s.handleCreateJob)
		r.Get("/jobs/{id}", s.handleGetJob)

		r.Get("/videos", s.handleListVideos)
		r.Post("/videos/{id}/retry", s.handleRetryVideo)
		r.Delete("/videos/{id}", s.handleDeleteVideo)

		r.Get("/transcripts", s.handleListTranscripts)
		r.Get("/transcripts/{id}", s.handleGetTranscript)

		r.Get("/channels", s.handleChannels)

		r.Get("/media/audio/{id}", s.handleMediaAudio)
		r.Head("/media/audio/{id}", s.handleMediaAudio)
	})

	return r
}

// metricsMiddleware counts each request against its matched route
// pattern and status code.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		metrics.RecordHTTPRequest(route, strconv.Itoa(ww.Status()))
	})
}
