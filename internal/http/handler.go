package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"parkwatch/internal/domain/parking"
	"parkwatch/internal/notify"
	"parkwatch/internal/service"
)

type Handler struct {
	decisions *service.DecisionService
	hub       *notify.Hub
	log       zerolog.Logger
}

func NewHandler(decisions *service.DecisionService, hub *notify.Hub, log zerolog.Logger) *Handler {
	return &Handler{
		decisions: decisions,
		hub:       hub,
		log:       log,
	}
}

func (h *Handler) Register(r *gin.Engine, authMiddleware gin.HandlerFunc) {
	// Public endpoints
	public := r.Group("/api/v1")
	{
		public.POST("/events/ocr", h.submitOCREvent)
		public.POST("/events/raw", h.submitRawEvent)
		public.GET("/events", h.listEvents)
		public.GET("/events/stream", h.streamEvents)
		public.GET("/permits", h.listPermits)
		public.GET("/stays", h.listStays)
		public.GET("/healthz", h.health)
	}

	// Administrative endpoints
	admin := r.Group("/api/v1")
	admin.Use(authMiddleware)
	{
		admin.DELETE("/events/last", h.removeLastEvent)
		admin.POST("/permits/seed", h.seedPermits)
		admin.POST("/stays/reset", h.resetStays)
	}
}

func (h *Handler) submitOCREvent(c *gin.Context) {
	var payload parking.EventPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	decision, err := h.decisions.ProcessOCREvent(c.Request.Context(), payload)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, decision)
}

func (h *Handler) submitRawEvent(c *gin.Context) {
	var payload parking.RawEventPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	event, err := h.decisions.ProcessRawEvent(c.Request.Context(), payload)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, successResponse(event))
}

func (h *Handler) listEvents(c *gin.Context) {
	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	events, err := h.decisions.ListEvents(c.Request.Context(), limit)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(events))
}

func (h *Handler) removeLastEvent(c *gin.Context) {
	event, err := h.decisions.RemoveLastEvent(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	if event == nil {
		// empty log: nothing to remove, not an error
		c.JSON(http.StatusOK, gin.H{"data": nil})
		return
	}
	c.JSON(http.StatusOK, successResponse(event))
}

func (h *Handler) seedPermits(c *gin.Context) {
	var fixtures []parking.PermitFixture
	if err := c.ShouldBindJSON(&fixtures); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	loaded, err := h.decisions.SeedPermits(c.Request.Context(), fixtures)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"loaded": loaded})
}

func (h *Handler) listPermits(c *gin.Context) {
	permits, err := h.decisions.ListPermits(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(permits))
}

func (h *Handler) listStays(c *gin.Context) {
	stays, err := h.decisions.ListStays(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(stays))
}

func (h *Handler) resetStays(c *gin.Context) {
	cleared, err := h.decisions.ResetStays(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cleared": cleared})
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "parkwatch"})
}

// streamEvents pushes change notifications over SSE until the client
// disconnects. Clients re-query /events after each signal.
func (h *Handler) streamEvents(c *gin.Context) {
	id, ch := h.hub.Subscribe()
	defer h.hub.Unsubscribe(id)

	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case change, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent("change", change)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse(err.Error()))
	case errors.Is(err, service.ErrStorage):
		c.JSON(http.StatusServiceUnavailable, errorResponse(err.Error()))
	default:
		h.log.Error().Err(err).Msg("handler error")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
	}
}

func successResponse(data interface{}) gin.H {
	return gin.H{
		"data": data,
	}
}

func errorResponse(message string) gin.H {
	return gin.H{
		"error": message,
	}
}
