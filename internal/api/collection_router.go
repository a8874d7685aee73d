package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/dkovacevic/toolpulse/internal/schedule"
)

// CollectionScheduler is the scheduler slice exposed over HTTP.
type CollectionScheduler interface {
	Trigger(ctx context.Context) schedule.TriggerResult
	Status() schedule.Status
}

// CollectionRouter exposes the manual trigger and status of the collection
// pipeline. The trigger is fire-and-forget; callers poll the status route.
type CollectionRouter struct {
	e         *echo.Echo
	scheduler CollectionScheduler
}

func NewCollectionRouter(e *echo.Echo, scheduler CollectionScheduler) *CollectionRouter {
	return &CollectionRouter{
		e:         e,
		scheduler: scheduler,
	}
}

func (r *CollectionRouter) Bind() {
	r.e.GET("/api/news/collect/status", r.statusHandler)
	r.e.POST("/api/news/collect", r.triggerHandler)
}

func (r *CollectionRouter) statusHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, r.scheduler.Status())
}

func (r *CollectionRouter) triggerHandler(c echo.Context) error {
	result := r.scheduler.Trigger(context.WithoutCancel(c.Request().Context()))
	status := http.StatusAccepted
	if !result.Started {
		status = http.StatusConflict
	}
	return c.JSON(status, result)
}
