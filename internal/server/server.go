// Package server wires the HTTP surface of the download counter service.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/openbeans/plugin-counter/internal/config"
	"github.com/openbeans/plugin-counter/internal/server/middleware"
	"github.com/openbeans/plugin-counter/internal/throttle"
	"github.com/openbeans/plugin-counter/model"
)

// Storage is the persisted history the service reads and appends to.
// Samples and scrape logs are append-only; there are no update or delete
// operations.
type Storage interface {
	AddPlugin(ctx context.Context, p *model.Plugin) error
	AddSample(ctx context.Context, s *model.Sample) error
	LatestSample(ctx context.Context, pluginID string) (*model.Sample, error)
	History(ctx context.Context, pluginID string, since time.Time) ([]model.Sample, error)
	AddScrapeLog(ctx context.Context, e *model.ScrapeLogEntry) error
	RecentScrapeLogs(ctx context.Context, pluginID string, limit int) ([]model.ScrapeLogEntry, error)
	Ping(ctx context.Context) error
	Close() error
}

// Fetcher loads the current download count from the plugin portal.
type Fetcher interface {
	FetchDownloadCount(ctx context.Context, pluginID string) (int64, error)
}

type Server struct {
	storage Storage
	fetcher Fetcher
	policy  *throttle.Policy
	config  *config.ServerConfig
	now     func() time.Time
}

func NewServer(storage Storage, fetcher Fetcher, config *config.ServerConfig) *Server {
	return &Server{
		storage: storage,
		fetcher: fetcher,
		policy:  throttle.New(time.Duration(config.ThrottleHours) * time.Hour),
		config:  config,
		now:     time.Now,
	}
}

// Router builds the chi router with all routes and middleware attached.
func (srv *Server) Router() chi.Router {
	router := chi.NewRouter()
	router.Use(chiMiddleware.StripSlashes)
	router.Use(middleware.LogMiddleware(srv.config.Logger))
	router.Use(middleware.CompressMiddleware)

	router.Get("/", srv.IndexHandler)
	router.Get("/api/{pluginID}", srv.BadgeHandler)
	router.Get("/sparkline/{pluginID}", srv.SparklineHandler)
	router.With(middleware.TrustedCIDR(srv.config.TrustedSubnet)).
		Post("/update/{pluginID}", srv.UpdateHandler)
	router.Get("/health", srv.HealthHandler)
	router.Get("/ping", srv.PingHandler)

	return router
}

// Run serves HTTP until ctx is canceled, then shuts down gracefully.
func (srv *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    srv.config.Addr,
		Handler: srv.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
