package papers

import (
	"context"
	"errors"
	"net/http"

	"github.com/c4u/launchpad/pkg/identity"
	"github.com/c4u/launchpad/pkg/membership"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Router is the interface for a router.
type Router interface {
	GET(relativePath string, handlers ...gin.HandlerFunc) gin.IRoutes
	POST(relativePath string, handlers ...gin.HandlerFunc) gin.IRoutes
	PUT(relativePath string, handlers ...gin.HandlerFunc) gin.IRoutes
	DELETE(relativePath string, handlers ...gin.HandlerFunc) gin.IRoutes
	Use(middleware ...gin.HandlerFunc) gin.IRoutes
}

type Papers interface {
	List(ctx context.Context, actor *identity.Actor, q Query) ListResponse
	Reload(ctx context.Context) error
	Toggle(ctx context.Context, actor identity.Actor, id string) (*VoteResult, error)
	Cast(ctx context.Context, actor identity.Actor, id string) (*VoteResult, error)
	Retract(ctx context.Context, actor identity.Actor, id string) (*VoteResult, error)
	MyVotes(ctx context.Context, uid string) (map[string]bool, error)
}

// HTTPOptions contains all the options needed for the HTTP handler.
type HTTPOptions struct {

	// The service we provide the HTTP transport for.
	Service Papers

	// Gate parks votes until the user has signed in.
	Gate *identity.Gate

	// The router instance to configure the HTTP routes.
	Router Router
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(opts HTTPOptions) {
	r := opts.Router
	h := &httpHandler{opts}
	r.GET("", h.listHandler)
	r.GET("/me/votes", h.myVotesHandler)
	r.POST("/reload", h.reloadHandler)
	r.POST("/:id/vote", h.voteHandler("toggle_vote", opts.Service.Toggle))
	r.PUT("/:id/vote", h.voteHandler("cast_vote", opts.Service.Cast))
	r.DELETE("/:id/vote", h.voteHandler("retract_vote", opts.Service.Retract))
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
	c.JSON(http.StatusOK, h.Service.List(c.Request.Context(), identity.ActorFrom(c), q))
}

func (h *httpHandler) myVotesHandler(c *gin.Context) {
	actor := identity.ActorFrom(c)
	if actor == nil || actor.UID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":  identity.ErrIdentityRequired.Error(),
			"prompt": identity.VerifiedIdentity.String(),
		})
		c.Abort()
		return
	}

	votes, err := h.Service.MyVotes(c.Request.Context(), actor.UID)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"votes": votes})
}

func (h *httpHandler) reloadHandler(c *gin.Context) {
	if err := h.Service.Reload(c.Request.Context()); err != nil {
		log.Printf("Paper reload failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "could not load papers"})
		c.Abort()
		return
	}
	c.JSON(http.StatusOK, h.Service.List(c.Request.Context(), identity.ActorFrom(c), Query{}))
}

type voteFunc func(ctx context.Context, actor identity.Actor, id string) (*VoteResult, error)

func (h *httpHandler) voteHandler(name string, vote voteFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		result, err := h.Gate.Run(c.Request.Context(), identity.ActorFrom(c), identity.VerifiedIdentity, name,
			func(ctx context.Context, actor identity.Actor) (interface{}, error) {
				return vote(ctx, actor, id)
			})
		if identity.AbortDeferred(c, err) {
			return
		}
		if err != nil {
			WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// WriteError maps service errors to HTTP responses.
func WriteError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, membership.ErrNoActor):
		c.JSON(http.StatusUnauthorized, gin.H{"error": identity.ErrIdentityRequired.Error()})
	default:
		log.Printf("Paper request failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "something went wrong"})
	}
	c.Abort()
}
