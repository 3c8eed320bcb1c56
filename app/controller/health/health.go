// Package health is for the health route
package health

import (
	"context"
	"net/http"

	"tasksched/version"

	"github.com/labstack/echo/v4"
)

type (
	// Pinger reports whether the task store is reachable.
	Pinger interface {
		PingContext(ctx context.Context) error
	}
	Handler struct {
		db Pinger
	}
	OkResponse struct {
		Ok      bool   `json:"ok"`
		Version string `json:"version"`
		Error   string `json:"error,omitempty"`
	}
)

func NewHandler(db Pinger) *Handler {
	return &Handler{db: db}
}

func (h Handler) GET(c echo.Context) error {
	ok := OkResponse{
		Ok:      true,
		Version: version.Version,
	}
	if h.db != nil {
		if err := h.db.PingContext(c.Request().Context()); err != nil {
			ok.Ok = false
			ok.Error = err.Error()
			return c.JSON(http.StatusServiceUnavailable, ok)
		}
	}
	return c.JSON(http.StatusOK, ok)
}

func Register(g *echo.Group, db Pinger) {
	h := NewHandler(db)

	g.GET("/health", h.GET)
}
