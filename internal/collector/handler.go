// Package collector exposes engines over HTTP so that processes that
// cannot link the library can still queue hits through a local daemon.
package collector

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"hitqueue/internal/engine"
	"hitqueue/internal/logger"
	"hitqueue/pkg/errors"
)

// Engines resolves the engine a hit is tracked on.
type Engines interface {
	Lookup(id string) (*engine.Engine, bool)
	Default() (*engine.Engine, error)
	Engines() []string
}

type Handler struct {
	engines Engines
	logger  logger.Logger
}

func NewHandler(engines Engines, log logger.Logger) *Handler {
	return &Handler{engines: engines, logger: log}
}

func (h *Handler) registerRoutes(router gin.IRouter) {
	v1 := router.Group("/api/v1")
	{
		v1.POST("/track", h.Track)
		v1.GET("/engines", h.ListEngines)
	}
}

func (h *Handler) HandleError(c *gin.Context, err error) {
	h.logger.WarnwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)
	c.JSON(errors.ToHTTPStatus(err), errors.ToErrorResponse(err))
}

func (h *Handler) Track(c *gin.Context) {
	var req TrackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	modules, err := req.Modules()
	if err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	e, err := h.resolve(req.EngineID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	if err := e.Track(c.Request.Context(), req.App, modules...); err != nil {
		// Configuration errors here come from the caller's payload.
		h.HandleError(c, errors.ErrValidation.WithMessage(err.Error()).WithCause(err))
		return
	}

	c.JSON(http.StatusAccepted, TrackResponse{Status: "queued", EngineID: e.ID()})
}

func (h *Handler) resolve(id string) (*engine.Engine, error) {
	if id == "" {
		e, err := h.engines.Default()
		if err != nil {
			return nil, errors.ErrValidation.WithMessage("engine_id is required: no default engine configured")
		}
		return e, nil
	}

	e, ok := h.engines.Lookup(id)
	if !ok {
		return nil, errors.ErrNotFound.WithMessage("unknown engine " + id)
	}
	return e, nil
}

func (h *Handler) ListEngines(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"engines": h.engines.Engines()})
}
