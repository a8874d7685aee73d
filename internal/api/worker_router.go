package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/dkovacevic/toolpulse/internal/queue"
)

// WorkerRouter exposes the worker process health: running flag, start
// time, processed count, uptime and current queue depth per job type.
type WorkerRouter struct {
	e      *echo.Echo
	worker *queue.Worker
}

func NewWorkerRouter(e *echo.Echo, worker *queue.Worker) *WorkerRouter {
	return &WorkerRouter{
		e:      e,
		worker: worker,
	}
}

func (r *WorkerRouter) Bind() {
	r.e.GET("/worker/health", r.healthHandler)
}

func (r *WorkerRouter) healthHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, r.worker.Health(c.Request().Context()))
}
