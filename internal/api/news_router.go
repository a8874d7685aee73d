package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/dkovacevic/toolpulse/internal/apperr"
	"github.com/dkovacevic/toolpulse/internal/domain"
	"github.com/dkovacevic/toolpulse/internal/storage/pg"
	"github.com/dkovacevic/toolpulse/pkg/pagination"
)

// NewsReader is the read-only storage slice behind the news API.
type NewsReader interface {
	List(ctx context.Context, page, size int) ([]domain.NewsItem, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.NewsItem, error)
}

type NewsRouter struct {
	e     *echo.Echo
	store NewsReader
}

func NewNewsRouter(e *echo.Echo, store NewsReader) *NewsRouter {
	return &NewsRouter{
		e:     e,
		store: store,
	}
}

func (r *NewsRouter) Bind() {
	r.e.GET("/api/news", r.listHandler)
	r.e.GET("/api/news/:id", r.getHandler)
}

func (r *NewsRouter) listHandler(c echo.Context) error {
	var req pagination.OffsetRequest
	if err := c.Bind(&req); err != nil {
		return apperr.NewValidationWrap("invalid pagination parameters", err)
	}
	if err := req.Validate(); err != nil {
		return apperr.NewValidationWrap("invalid pagination parameters", err)
	}

	items, err := r.store.List(c.Request().Context(), req.Page, req.Size)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, pagination.NewOffsetResult(items, req.Page, req.Size))
}

func (r *NewsRouter) getHandler(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.NewValidationWrap("invalid news id", err)
	}

	item, err := r.store.GetByID(c.Request().Context(), id)
	if errors.Is(err, pg.ErrNotFound) {
		return apperr.NewNotFound("news item not found")
	}
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, item)
}
