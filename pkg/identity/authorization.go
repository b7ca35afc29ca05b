package identity

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"firebase.google.com/go/v4/auth"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// DisplayNameHeader carries the display name a client has cached locally.
const DisplayNameHeader = "X-Display-Name"

const actorKey = "actor"

var ErrInvalidToken = errors.New("invalid ID token")

// Actor is whoever performs a mutation.
type Actor struct {
	UID   string `json:"uid,omitempty"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// Display is the name recorded on events: the display name, else email, else uid.
func (a Actor) Display() string {
	switch {
	case a.Name != "":
		return a.Name
	case a.Email != "":
		return a.Email
	}
	return a.UID
}

// TokenVerifier is satisfied by *auth.Client.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// Resolver works out the actor of a request.
type Resolver struct {
	verifier TokenVerifier
}

// NewResolver creates a resolver. A nil verifier rejects every bearer token.
func NewResolver(verifier TokenVerifier) *Resolver {
	return &Resolver{verifier: verifier}
}

// FromRequest returns the actor for r, or nil when the request carries no
// identity. A bearer token that does not verify is an error.
func (r *Resolver) FromRequest(req *http.Request) (*Actor, error) {
	authHeader := req.Header.Get("Authorization")
	if authHeader != "" {
		idToken, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || r.verifier == nil {
			return nil, ErrInvalidToken
		}
		token, err := r.verifier.VerifyIDToken(req.Context(), strings.TrimSpace(idToken))
		if err != nil {
			log.Printf("Rejected ID token: %v", err)
			return nil, ErrInvalidToken
		}
		actor := &Actor{UID: token.UID}
		actor.Email, _ = token.Claims["email"].(string)
		actor.Name, _ = token.Claims["name"].(string)
		if name := strings.TrimSpace(req.Header.Get(DisplayNameHeader)); name != "" {
			actor.Name = name
		}
		return actor, nil
	}

	if name := strings.TrimSpace(req.Header.Get(DisplayNameHeader)); name != "" {
		return &Actor{Name: name}, nil
	}
	return nil, nil
}

// Middleware attaches the request's actor, if any, to the gin context.
func Middleware(resolver *Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, err := resolver.FromRequest(c.Request)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			c.Abort()
			return
		}
		if actor != nil {
			c.Set(actorKey, actor)
		}
		c.Next()
	}
}

// ActorFrom returns the actor attached by Middleware, or nil.
func ActorFrom(c *gin.Context) *Actor {
	v, ok := c.Get(actorKey)
	if !ok {
		return nil
	}
	actor, _ := v.(*Actor)
	return actor
}
