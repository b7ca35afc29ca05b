package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/c4u/launchpad/pkg/identity"
	"github.com/c4u/launchpad/pkg/live"
	"github.com/c4u/launchpad/pkg/membership"
	"github.com/c4u/launchpad/pkg/metrics"
	"github.com/c4u/launchpad/pkg/mirror"
	timehelper "github.com/c4u/launchpad/pkg/timeHelper"
	"github.com/c4u/launchpad/pkg/view"
	"github.com/c4u/launchpad/repos/docstore"
	"github.com/c4u/launchpad/repos/resend"
	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

const (
	Collection     = "events"
	attendeesField = "attendees"
)

var (
	ErrNotFound     = docstore.ErrNotFound
	ErrForbidden    = errors.New("only the creator can delete this event")
	ErrInvalidEvent = errors.New("invalid event")
)

// Announcer is told about newly created events.
type Announcer interface {
	AnnounceEvent(ctx context.Context, a resend.Announcement) error
}

type EventsService struct {
	store     docstore.Store
	mirror    *mirror.Mirror[Event]
	attendees *membership.Set
	announcer Announcer
	location  *time.Location
	now       func() time.Time

	mirrorOpts []mirror.Option
}

type Option func(*EventsService)

// WithAnnouncer mails the group about every new event.
func WithAnnouncer(a Announcer) Option {
	return func(s *EventsService) { s.announcer = a }
}

// WithLocation sets the timezone that decides which events are past.
func WithLocation(loc *time.Location) Option {
	return func(s *EventsService) { s.location = loc }
}

// WithMirrorOptions tunes the subscription to the events collection.
func WithMirrorOptions(opts ...mirror.Option) Option {
	return func(s *EventsService) { s.mirrorOpts = opts }
}

func NewEventsService(store docstore.Store, hub *live.Hub, opts ...Option) *EventsService {
	s := &EventsService{
		store:     store,
		attendees: membership.NewSet(store, Collection, attendeesField),
		location:  time.Local,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.mirror = mirror.New(store, Collection, decodeEvent, s.mirrorOpts...)
	if hub != nil {
		s.mirror.OnSnapshot(func(events []Event) {
			hub.Broadcast(live.NewSnapshot(Collection, events))
		})
	}
	return s
}

// Run keeps the event list in sync until ctx is cancelled.
func (s *EventsService) Run(ctx context.Context) error {
	return s.mirror.Run(ctx)
}

func (s *EventsService) Status() mirror.Status {
	return s.mirror.Status()
}

// Events returns every mirrored event, unfiltered.
func (s *EventsService) Events() []Event {
	return s.mirror.Items()
}

// Snapshot is the message a new stream subscriber starts from.
func (s *EventsService) Snapshot() live.Message {
	return live.NewSnapshot(Collection, s.mirror.Items())
}

func (s *EventsService) Categories() []Category {
	return append([]Category(nil), Categories...)
}

// IsPast reports whether the event's date is before today in the service timezone.
func (s *EventsService) IsPast(e Event) bool {
	return e.Date < timehelper.GetTodaysDateString(s.now(), s.location)
}

func (s *EventsService) List(q Query) ListResponse {
	keep := []func(Event) bool{}
	if category, ok := ParseCategory(q.Category); ok {
		keep = append(keep, func(e Event) bool { return e.Category == category })
	}
	if !q.ShowPast {
		keep = append(keep, func(e Event) bool { return !s.IsPast(e) })
	}

	result := view.Apply(s.mirror.Items(), view.Options[Event]{
		Search: q.Search,
		Text: func(e Event) []string {
			return []string{e.Title, e.Description, e.Location}
		},
		Keep:    keep,
		Sort:    view.ParseSort(q.Sort, view.Date),
		Count:   func(e Event) int { return len(e.Attendees) },
		DateKey: func(e Event) string { return timehelper.SortKey(e.Date, e.Time) },
	})

	return ListResponse{
		Events: result.Items,
		Total:  result.Total,
		State:  result.State,
		Status: s.mirror.Status(),
	}
}

// Create stores a new event with the actor as its first attendee.
func (s *EventsService) Create(ctx context.Context, actor identity.Actor, req CreateRequest) (*Event, error) {
	event, err := s.validate(actor, req)
	if err != nil {
		return nil, err
	}

	id, err := s.store.Add(ctx, Collection, map[string]interface{}{
		"title":        event.Title,
		"date":         event.Date,
		"time":         event.Time,
		"location":     event.Location,
		"description":  event.Description,
		"category":     string(event.Category),
		"postedBy":     event.PostedBy,
		attendeesField: event.Attendees,
		"createdAt":    event.CreatedAt,
	})
	metrics.TrackMutation("event_create", err)
	if err != nil {
		return nil, xerrors.Errorf("create event: %w", err)
	}
	event.ID = id
	log.Printf("Event %s created by %s", id, event.PostedBy)

	if s.announcer != nil {
		go s.announce(context.WithoutCancel(ctx), *event)
	}
	return event, nil
}

func (s *EventsService) validate(actor identity.Actor, req CreateRequest) (*Event, error) {
	postedBy := actor.Display()
	if postedBy == "" {
		return nil, membership.ErrNoActor
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidEvent)
	}
	date := strings.TrimSpace(req.Date)
	clock := strings.TrimSpace(req.Time)
	day, err := time.Parse(timehelper.DateLayout, date)
	if err != nil {
		return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidEvent)
	}
	at, err := time.Parse(timehelper.ClockLayout, clock)
	if err != nil {
		return nil, fmt.Errorf("%w: time must be HH:MM", ErrInvalidEvent)
	}
	// Stored zero-padded so the text sort key orders chronologically.
	date = day.Format(timehelper.DateLayout)
	clock = at.Format(timehelper.ClockLayout)
	category, ok := ParseCategory(req.Category)
	if !ok {
		return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidEvent, req.Category)
	}

	return &Event{
		Title:       title,
		Date:        date,
		Time:        clock,
		Location:    strings.TrimSpace(req.Location),
		Description: strings.TrimSpace(req.Description),
		Category:    category,
		PostedBy:    postedBy,
		Attendees:   []string{postedBy},
		CreatedAt:   s.now().UTC(),
	}, nil
}

func (s *EventsService) announce(ctx context.Context, e Event) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	a := resend.Announcement{
		EventID:     e.ID,
		Title:       e.Title,
		Category:    string(e.Category),
		Date:        e.Date,
		Time:        e.Time,
		Location:    e.Location,
		Description: e.Description,
		PostedBy:    e.PostedBy,
	}
	if err := s.announcer.AnnounceEvent(ctx, a); err != nil {
		log.Printf("Failed to announce event %s: %v", e.ID, err)
	}
}

func (s *EventsService) Join(ctx context.Context, actor identity.Actor, id string) (*MembershipResult, error) {
	err := s.attendees.Join(ctx, id, actor.Display())
	metrics.TrackMutation("event_join", err)
	if err != nil {
		return nil, err
	}
	return &MembershipResult{ID: id, Actor: actor.Display(), Attending: true}, nil
}

func (s *EventsService) Leave(ctx context.Context, actor identity.Actor, id string) (*MembershipResult, error) {
	err := s.attendees.Leave(ctx, id, actor.Display())
	metrics.TrackMutation("event_leave", err)
	if err != nil {
		return nil, err
	}
	return &MembershipResult{ID: id, Actor: actor.Display(), Attending: false}, nil
}

// Delete removes the event if actor posted it.
func (s *EventsService) Delete(ctx context.Context, actor identity.Actor, id string) error {
	name := actor.Display()
	if name == "" {
		return membership.ErrNoActor
	}

	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		doc, err := tx.Get(Collection, id)
		if err != nil {
			return err
		}
		if doc.String("postedBy") != name {
			return ErrForbidden
		}
		return tx.Delete(Collection, id)
	})
	metrics.TrackMutation("event_delete", err)
	if err != nil {
		return err
	}
	log.Printf("Event %s deleted by %s", id, name)
	return nil
}

func decodeEvent(doc docstore.Document) (Event, error) {
	title := doc.String("title")
	if title == "" {
		return Event{}, fmt.Errorf("event %s has no title", doc.ID)
	}
	category, ok := ParseCategory(doc.String("category"))
	if !ok {
		category = Other
	}
	attendees := doc.Strings(attendeesField)
	if attendees == nil {
		attendees = []string{}
	}
	return Event{
		ID:          doc.ID,
		Title:       title,
		Date:        doc.String("date"),
		Time:        doc.String("time"),
		Location:    doc.String("location"),
		Description: doc.String("description"),
		Category:    category,
		PostedBy:    doc.String("postedBy"),
		Attendees:   attendees,
		CreatedAt:   doc.Time("createdAt"),
	}, nil
}
