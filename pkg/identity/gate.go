package identity

import (
	"container/list"
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/c4u/launchpad/pkg/ticket"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

var (
	ErrIdentityRequired = errors.New("identity required")
	ErrTicketNotFound   = errors.New("ticket not found or expired")
)

// Requirement is the kind of identity an action needs.
type Requirement int

const (
	// AnyIdentity accepts a locally cached display name.
	AnyIdentity Requirement = iota
	// VerifiedIdentity needs a signed-in user with a uid.
	VerifiedIdentity
)

func (r Requirement) String() string {
	if r == VerifiedIdentity {
		return "sign_in"
	}
	return "display_name"
}

func (r Requirement) satisfiedBy(actor *Actor) bool {
	if actor == nil {
		return false
	}
	if r == VerifiedIdentity {
		return actor.UID != ""
	}
	return actor.Display() != ""
}

// Action is a mutation run on behalf of an actor.
type Action func(ctx context.Context, actor Actor) (interface{}, error)

// DeferredError is returned when an action was parked waiting for an identity.
type DeferredError struct {
	Ticket      string
	Action      string
	Requirement Requirement
	ExpiresAt   time.Time
}

func (e *DeferredError) Error() string {
	return "identity required for " + e.Action
}

func (e *DeferredError) Unwrap() error {
	return ErrIdentityRequired
}

type pending struct {
	code        string
	name        string
	requirement Requirement
	action      Action
	expires     time.Time
}

// DefaultMaxPending bounds how many actions a Gate keeps parked.
const DefaultMaxPending = 1024

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithMaxPending caps the parked actions. When full, the oldest one is dropped.
func WithMaxPending(n int) GateOption {
	return func(g *Gate) {
		if n > 0 {
			g.maxPending = n
		}
	}
}

// Gate holds mutations back until an identity is known. Parked actions are
// resumed, once, by the ticket handed to the client.
type Gate struct {
	mu         sync.Mutex
	pending    map[string]*list.Element
	order      *list.List // of *pending, oldest first; the TTL is fixed so this is expiry order
	ttl        time.Duration
	maxPending int
	now        func() time.Time
}

func NewGate(ttl time.Duration, opts ...GateOption) *Gate {
	g := &Gate{
		pending:    make(map[string]*list.Element),
		order:      list.New(),
		ttl:        ttl,
		maxPending: DefaultMaxPending,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Run executes action now if actor meets req, otherwise parks it and returns a
// *DeferredError carrying the resume ticket.
func (g *Gate) Run(ctx context.Context, actor *Actor, req Requirement, name string, action Action) (interface{}, error) {
	if req.satisfiedBy(actor) {
		return action(ctx, *actor)
	}

	code := ticket.Generate(name)
	expires := g.now().Add(g.ttl)

	g.mu.Lock()
	g.sweepLocked()
	for g.order.Len() >= g.maxPending {
		oldest := g.order.Front().Value.(*pending)
		log.Warnf("Dropping parked %s: %d actions already waiting", oldest.name, g.order.Len())
		g.removeLocked(g.order.Front())
	}
	g.pending[code] = g.order.PushBack(&pending{code: code, name: name, requirement: req, action: action, expires: expires})
	g.mu.Unlock()

	return nil, &DeferredError{Ticket: code, Action: name, Requirement: req, ExpiresAt: expires}
}

// Resume runs the action parked under code with the identity now supplied.
// If actor still does not meet the requirement the action stays parked.
func (g *Gate) Resume(ctx context.Context, code string, actor *Actor) (interface{}, error) {
	if _, _, err := ticket.Decode(code); err != nil {
		return nil, ErrTicketNotFound
	}

	g.mu.Lock()
	g.sweepLocked()
	el, ok := g.pending[code]
	if !ok {
		g.mu.Unlock()
		return nil, ErrTicketNotFound
	}
	p := el.Value.(*pending)
	if !p.requirement.satisfiedBy(actor) {
		g.mu.Unlock()
		return nil, &DeferredError{Ticket: code, Action: p.name, Requirement: p.requirement, ExpiresAt: p.expires}
	}
	g.removeLocked(el)
	g.mu.Unlock()

	log.Printf("Resuming %s for %s", p.name, actor.Display())
	return p.action(ctx, *actor)
}

// Pending reports how many actions are parked.
func (g *Gate) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sweepLocked()
	return g.order.Len()
}

// sweepLocked drops expired entries from the front and stops at the first live one.
func (g *Gate) sweepLocked() {
	now := g.now()
	for el := g.order.Front(); el != nil; el = g.order.Front() {
		if !now.After(el.Value.(*pending).expires) {
			return
		}
		g.removeLocked(el)
	}
}

func (g *Gate) removeLocked(el *list.Element) {
	delete(g.pending, el.Value.(*pending).code)
	g.order.Remove(el)
}

// AbortDeferred writes a 401 with the resume ticket if err is a
// *DeferredError and reports whether it did.
func AbortDeferred(c *gin.Context, err error) bool {
	var deferred *DeferredError
	if !errors.As(err, &deferred) {
		return false
	}
	c.JSON(http.StatusUnauthorized, gin.H{
		"error":     ErrIdentityRequired.Error(),
		"action":    deferred.Action,
		"prompt":    deferred.Requirement.String(),
		"ticket":    deferred.Ticket,
		"expiresAt": deferred.ExpiresAt,
	})
	c.Abort()
	return true
}
