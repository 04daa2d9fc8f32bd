package server

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"qa-gateway/internal/ai"
	"qa-gateway/internal/config"
	"qa-gateway/internal/metrics"
	"qa-gateway/internal/middleware"
	"qa-gateway/web"
)

// Asker is the part of the gateway the HTTP layer needs.
type Asker interface {
	Ask(ctx context.Context, question string) (ai.Answer, error)
	Stats(ctx context.Context) (ai.Stats, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Gateway   Asker
	Store     Pinger
	Redis     *redis.Client // optional
	Metrics   metrics.Metrics
	Log       logrus.FieldLogger
	RateLimit config.RateLimitConfig
}

// New builds the echo instance with every route registered.
func New(d Deps) (*echo.Echo, error) {
	log := d.Log.WithField("component", "http")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echoMiddleware.Recover())
	e.Use(echo.WrapMiddleware(middleware.Logger(log, d.Metrics)))
	e.Use(writeErrors)

	static, err := web.Static()
	if err != nil {
		return nil, errors.Wrap(err, "embedded ui")
	}
	e.FileFS("/", "index.html", static)

	h := &handlers{gw: d.Gateway, store: d.Store, rdb: d.Redis, log: log}

	var askMW []echo.MiddlewareFunc
	if d.Redis != nil && d.RateLimit.Enabled {
		askMW = append(askMW, echo.WrapMiddleware(
			middleware.RateLimit(d.Redis, d.RateLimit.Limit, d.RateLimit.Window, log),
		))
	}
	e.POST("/ask", h.ask, askMW...)
	e.GET("/stats", h.stats)
	e.GET("/healthz", h.health)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(d.Metrics.GetRegistry(), promhttp.HandlerOpts{})))

	return e, nil
}

// writeErrors renders handler errors inside the logger so the logged status
// matches what the client sees.
func writeErrors(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := next(c); err != nil {
			c.Error(err)
		}
		return nil
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, e *echo.Echo, cfg config.ServerConfig, log logrus.FieldLogger) error {
	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.Addr).Info("listening")
		if err := e.Start(cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
