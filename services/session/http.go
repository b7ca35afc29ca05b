package session

import (
	"errors"
	"net/http"

	"github.com/c4u/launchpad/pkg/identity"
	"github.com/c4u/launchpad/pkg/membership"
	"github.com/c4u/launchpad/repos/docstore"
	"github.com/c4u/launchpad/services/events"
	"github.com/c4u/launchpad/services/papers"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Router is the interface for a router.
type Router interface {
	GET(relativePath string, handlers ...gin.HandlerFunc) gin.IRoutes
	POST(relativePath string, handlers ...gin.HandlerFunc) gin.IRoutes
	Use(middleware ...gin.HandlerFunc) gin.IRoutes
}

// HTTPOptions contains all the options needed for the HTTP handler.
type HTTPOptions struct {

	// Gate holds the actions waiting for an identity.
	Gate *identity.Gate

	// The router instance to configure the HTTP routes.
	Router Router
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(opts HTTPOptions) {
	r := opts.Router
	h := &httpHandler{opts}
	r.GET("/whoami", h.whoamiHandler)
	r.POST("/resume/:ticket", h.resumeHandler)
}

type httpHandler struct {
	HTTPOptions
}

func (h *httpHandler) whoamiHandler(c *gin.Context) {
	actor := identity.ActorFrom(c)
	if actor == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": identity.ErrIdentityRequired.Error()})
		c.Abort()
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"actor":    actor,
		"display":  actor.Display(),
		"verified": actor.UID != "",
	})
}

// resumeHandler finishes an action that was parked because the request had
// no identity, now that the client has supplied one.
func (h *httpHandler) resumeHandler(c *gin.Context) {
	result, err := h.Gate.Resume(c.Request.Context(), c.Param("ticket"), identity.ActorFrom(c))
	if identity.AbortDeferred(c, err) {
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, identity.ErrTicketNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, docstore.ErrNotFound), errors.Is(err, papers.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, events.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, events.ErrInvalidEvent):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, membership.ErrNoActor):
		c.JSON(http.StatusUnauthorized, gin.H{"error": identity.ErrIdentityRequired.Error()})
	default:
		log.Printf("Resumed action failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "something went wrong"})
	}
	c.Abort()
}
