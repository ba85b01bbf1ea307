package api

import (
	"context"
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/snarg/voxguide/internal/catalog"
	"github.com/snarg/voxguide/internal/config"
	"github.com/snarg/voxguide/internal/events"
	"github.com/snarg/voxguide/internal/metrics"
	"github.com/snarg/voxguide/internal/pipeline"
)

// ServerOptions wires the HTTP server to the rest of the service. MQTT, Bridge
// and WebFiles may be nil.
type ServerOptions struct {
	Config     *config.Config
	Host       *pipeline.Host
	Bridge     http.Handler
	Bus        *events.Bus
	Catalog    *catalog.Store
	MQTT       BrokerStatus
	WebFiles   fs.FS
	Translator string
	Version    string
	StartTime  time.Time
	Log        zerolog.Logger
}

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

func NewServer(opts ServerOptions) *Server {
	cfg := opts.Config
	r := NewRouter(opts)

	return &Server{
		http: &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      r,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		log: opts.Log,
	}
}

// NewRouter builds the route tree. Exposed for tests.
func NewRouter(opts ServerOptions) chi.Router {
	cfg := opts.Config
	log := opts.Log

	r := chi.NewRouter()

	// Global middleware
	r.Use(RequestID)
	r.Use(Recoverer)
	r.Use(Logger(log))
	r.Use(CORSWithOrigins(cfg.CORSOrigins))
	r.Use(metrics.InstrumentHandler)

	kafkaTopic := ""
	if len(cfg.KafkaBrokers) > 0 {
		kafkaTopic = cfg.KafkaTopic
	}
	deps := HealthDeps{
		MQTT:        opts.MQTT,
		KafkaTopic:  kafkaTopic,
		CatalogPath: cfg.CatalogFile,
		Translator:  opts.Translator,
	}
	if opts.Host != nil {
		deps.Host = opts.Host
	}
	health := NewHealthHandler(deps, opts.Version, opts.StartTime)
	catalogs := NewCatalogHandler(opts.Catalog)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Health and page listing: no auth
		r.Get("/health", health.ServeHTTP)
		if opts.WebFiles != nil {
			r.Get("/pages", PagesHandler(opts.WebFiles))
		}

		r.Group(func(r chi.Router) {
			r.Use(BearerAuth(cfg.AuthToken))

			if opts.Bridge != nil {
				r.Handle("/bridge", opts.Bridge)
			}
			if opts.Bus != nil {
				NewEventsHandler(opts.Bus).Routes(r)
			}

			catalogs.Routes(r)
			r.With(RequireAuth(cfg.AuthToken)).Post("/catalog/reload", catalogs.Reload)

			if opts.Host == nil {
				return
			}
			// Control endpoints drive the platform client.
			r.Group(func(r chi.Router) {
				if cfg.RateLimitRPS > 0 {
					r.Use(RateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst))
				}
				NewLanguagesHandler(opts.Host, cfg.SourceLanguage).Routes(r)
				NewCaptureHandler(opts.Host).Routes(r)
				NewTranslationsHandler(opts.Host).Routes(r)
				NewPlaybackHandler(opts.Host).Routes(r)
				NewAttractionsHandler(opts.Host).Routes(r)
			})
		})
	})

	if opts.WebFiles != nil {
		r.Handle("/*", http.FileServerFS(opts.WebFiles))
	}

	return r
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}
