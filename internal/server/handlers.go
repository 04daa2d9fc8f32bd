package server

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"qa-gateway/internal/ai"
	"qa-gateway/internal/middleware"
)

var appStart = time.Now()

type handlers struct {
	gw    Asker
	store Pinger
	rdb   *redis.Client
	log   logrus.FieldLogger
}

type askRequest struct {
	Question string `json:"question"`
}

func (h *handlers) ask(c echo.Context) error {
	var req askRequest
	if err := c.Bind(&req); err != nil || req.Question == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "No question provided"})
	}

	ans, err := h.gw.Ask(c.Request().Context(), req.Question)
	if errors.Is(err, ai.ErrEmptyQuestion) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "No question provided"})
	}
	if err != nil {
		h.log.WithError(err).Error("ask failed")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to answer question"})
	}

	if ans.Source == ai.SourceDatabase {
		c.Response().Header().Set(middleware.HeaderCacheHit, "true")
	}
	return c.JSON(http.StatusOK, ans)
}

func (h *handlers) stats(c echo.Context) error {
	s, err := h.gw.Stats(c.Request().Context())
	if err != nil {
		h.log.WithError(err).Error("stats failed")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to load stats"})
	}
	return c.JSON(http.StatusOK, s)
}

type check struct {
	OK  bool   `json:"ok"`
	Err string `json:"err,omitempty"`
}

func (h *handlers) health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 800*time.Millisecond)
	defer cancel()

	checks := map[string]check{
		"database": toCheck(h.store.Ping(ctx)),
	}
	if h.rdb != nil {
		checks["redis"] = toCheck(h.rdb.Ping(ctx).Err())
	}

	allOK := true
	for _, ch := range checks {
		allOK = allOK && ch.OK
	}
	status := http.StatusOK
	if !allOK {
		status = http.StatusServiceUnavailable
	}

	return c.JSON(status, map[string]any{
		"status":     map[string]any{"ok": allOK},
		"uptime_sec": int(time.Since(appStart).Seconds()),
		"checks":     checks,
		"time":       time.Now().Format(time.RFC3339),
	})
}

func toCheck(err error) check {
	if err != nil {
		return check{OK: false, Err: err.Error()}
	}
	return check{OK: true}
}
