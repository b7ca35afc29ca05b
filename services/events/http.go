package events

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/c4u/launchpad/pkg/identity"
	"github.com/c4u/launchpad/pkg/live"
	"github.com/c4u/launchpad/pkg/membership"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Router is the interface for a router.
type Router interface {
	GET(relativePath string, handlers ...gin.HandlerFunc) gin.IRoutes
	POST(relativePath string, handlers ...gin.HandlerFunc) gin.IRoutes
	DELETE(relativePath string, handlers ...gin.HandlerFunc) gin.IRoutes
	Use(middleware ...gin.HandlerFunc) gin.IRoutes
}

// Events is the board the HTTP handler serves.
type Events interface {
	List(q Query) ListResponse
	Categories() []Category
	Create(ctx context.Context, actor identity.Actor, req CreateRequest) (*Event, error)
	Join(ctx context.Context, actor identity.Actor, id string) (*MembershipResult, error)
	Leave(ctx context.Context, actor identity.Actor, id string) (*MembershipResult, error)
	Delete(ctx context.Context, actor identity.Actor, id string) error
	Snapshot() live.Message
	WriteCalendar(w io.Writer) error
}

// HTTPOptions contains all the options needed for the HTTP handler.
type HTTPOptions struct {

	// The service we provide the HTTP transport for.
	Service Events

	// Gate parks mutations that arrive without an identity.
	Gate *identity.Gate

	// Hub streams list changes to websocket clients.
	Hub *live.Hub

	// The router instance to configure the HTTP routes.
	Router Router
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(opts HTTPOptions) {
	r := opts.Router
	h := &httpHandler{opts}
	r.GET("", h.listHandler)
	r.GET("/categories", h.categoriesHandler)
	r.GET("/calendar.ics", h.calendarHandler)
	r.GET("/stream", live.Handler(opts.Hub, opts.Service.Snapshot))
	r.POST("", h.createHandler)
	r.POST("/:id/join", h.joinHandler)
	r.POST("/:id/leave", h.leaveHandler)
	r.DELETE("/:id", h.deleteHandler)
}

type httpHandler struct {
	HTTPOptions
}

func (h *httpHandler) listHandler(c *gin.Context) {
	var q Query
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		c.Abort()
		return
	}
	c.JSON(http.StatusOK, h.Service.List(q))
}

func (h *httpHandler) categoriesHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"categories": h.Service.Categories()})
}

func (h *httpHandler) calendarHandler(c *gin.Context) {
	c.Header("Content-Type", "text/calendar; charset=utf-8")
	c.Header("Content-Disposition", `inline; filename="events.ics"`)
	c.Status(http.StatusOK)
	if err := h.Service.WriteCalendar(c.Writer); err != nil {
		log.Printf("Failed to write calendar: %v", err)
	}
}

func (h *httpHandler) createHandler(c *gin.Context) {
	var request CreateRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		c.Abort()
		return
	}

	h.gated(c, http.StatusCreated, "create_event", func(ctx context.Context, actor identity.Actor) (interface{}, error) {
		return h.Service.Create(ctx, actor, request)
	})
}

func (h *httpHandler) joinHandler(c *gin.Context) {
	id := c.Param("id")
	h.gated(c, http.StatusOK, "join_event", func(ctx context.Context, actor identity.Actor) (interface{}, error) {
		return h.Service.Join(ctx, actor, id)
	})
}

func (h *httpHandler) leaveHandler(c *gin.Context) {
	id := c.Param("id")
	h.gated(c, http.StatusOK, "leave_event", func(ctx context.Context, actor identity.Actor) (interface{}, error) {
		return h.Service.Leave(ctx, actor, id)
	})
}

func (h *httpHandler) deleteHandler(c *gin.Context) {
	id := c.Param("id")
	h.gated(c, http.StatusOK, "delete_event", func(ctx context.Context, actor identity.Actor) (interface{}, error) {
		if err := h.Service.Delete(ctx, actor, id); err != nil {
			return nil, err
		}
		return gin.H{"id": id, "deleted": true}, nil
	})
}

// gated runs action through the identity gate and writes its result.
func (h *httpHandler) gated(c *gin.Context, status int, name string, action identity.Action) {
	result, err := h.Gate.Run(c.Request.Context(), identity.ActorFrom(c), identity.AnyIdentity, name, action)
	if identity.AbortDeferred(c, err) {
		return
	}
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(status, result)
}

// WriteError maps service errors to HTTP responses.
func WriteError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
	case errors.Is(err, ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, ErrInvalidEvent):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, membership.ErrNoActor):
		c.JSON(http.StatusUnauthorized, gin.H{"error": identity.ErrIdentityRequired.Error()})
	default:
		log.Printf("Event request failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "something went wrong"})
	}
	c.Abort()
}
