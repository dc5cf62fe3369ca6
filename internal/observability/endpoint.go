package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/forumkit/flarum-importer/internal/conf"
	"github.com/forumkit/flarum-importer/internal/logger"
	metricspkg "github.com/forumkit/flarum-importer/internal/observability/metrics"
	"github.com/forumkit/flarum-importer/internal/target"
)

// StatusProvider reports the state of the import run.
type StatusProvider interface {
	Report() (*target.RunReport, error)
}

// Endpoint serves /metrics, /healthz and /progress while an import runs.
type Endpoint struct {
	echo          *echo.Echo
	listenAddress string
	metrics       *Metrics
	status        StatusProvider
	log           logger.Logger
}

// NewEndpoint creates a new instance of the metrics Endpoint.
//
// If metrics are not enabled in the settings, it returns an error.
// The function does not create new metrics but uses the provided Metrics instance.
func NewEndpoint(settings *conf.MetricsSettings, metrics *Metrics, status StatusProvider, log logger.Logger) (*Endpoint, error) {
	if !settings.Enabled {
		return nil, fmt.Errorf("metrics endpoint not enabled in settings")
	}
	if log == nil {
		log = logger.NewSlogLogger(nil, logger.LogLevelInfo, nil)
	}

	e := &Endpoint{
		echo:          echo.New(),
		listenAddress: settings.Listen,
		metrics:       metrics,
		status:        status,
		log:           log.Module("metrics"),
	}
	e.echo.HideBanner = true
	e.echo.HidePort = true
	e.echo.Use(echomw.Recover())
	e.routes()
	return e, nil
}

func (e *Endpoint) routes() {
	e.echo.GET("/metrics", echo.WrapHandler(e.metrics.Handler()))
	e.echo.GET("/healthz", e.handleHealth)
	e.echo.GET("/progress", e.handleProgress)
}

// Handler exposes the router, mainly for tests.
func (e *Endpoint) Handler() http.Handler {
	return e.echo
}

func (e *Endpoint) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (e *Endpoint) handleProgress(c echo.Context) error {
	report, err := e.status.Report()
	if err != nil {
		e.log.Error("failed to read import progress", logger.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read import progress")
	}
	return c.JSON(http.StatusOK, report)
}

// Run serves until ctx is cancelled, then shuts the server down gracefully.
func (e *Endpoint) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		e.log.Info("metrics endpoint starting", logger.String("address", e.listenAddress))
		errCh <- e.echo.Start(e.listenAddress)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics endpoint: %w", err)
	case <-ctx.Done():
	}

	e.log.Info("stopping metrics endpoint")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), metricspkg.ShutdownTimeout)
	defer cancel()
	if err := e.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics endpoint shutdown: %w", err)
	}
	<-errCh
	return nil
}
