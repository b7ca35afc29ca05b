package stats

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Router is the interface for a router.
type Router interface {
	GET(relativePath string, handlers ...gin.HandlerFunc) gin.IRoutes
	Use(middleware ...gin.HandlerFunc) gin.IRoutes
}

type Stats interface {
	GetSummary() *Summary
}

// HTTPOptions contains all the options needed for the HTTP handler.
type HTTPOptions struct {

	// The service we provide the HTTP transport for.
	Service Stats

	// The router instance to configure the HTTP routes.
	Router Router
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(opts HTTPOptions) {
	r := opts.Router
	h := &httpHandler{opts}
	r.GET("/summary", h.summaryHandler)
}

type httpHandler struct {
	HTTPOptions
}

func (s *httpHandler) summaryHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"stats": s.Service.GetSummary()})
}
