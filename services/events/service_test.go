package events

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/c4u/launchpad/pkg/identity"
	"github.com/c4u/launchpad/pkg/live"
	"github.com/c4u/launchpad/pkg/membership"
	"github.com/c4u/launchpad/pkg/view"
	"github.com/c4u/launchpad/repos/docstore"
	"github.com/c4u/launchpad/repos/resend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2030, 1, 10, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, opts ...Option) (*EventsService, *docstore.Memory) {
	t.Helper()
	store := docstore.NewMemory()
	s := NewEventsService(store, live.NewHub(), append([]Option{WithLocation(time.UTC)}, opts...)...)
	s.now = func() time.Time { return fixedNow }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return s, store
}

func waitFor(t *testing.T, s *EventsService, cond func([]Event) bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		return !s.Status().Loading && cond(s.Events())
	}, 2*time.Second, 5*time.Millisecond)
}

func seed(t *testing.T, store docstore.Store, fields map[string]interface{}) string {
	t.Helper()
	id, err := store.Add(context.Background(), Collection, fields)
	require.NoError(t, err)
	return id
}

func TestCreateStoresCreatorAsFirstAttendee(t *testing.T) {
	s, _ := newTestService(t)
	ada := identity.Actor{Name: "Ada"}

	created, err := s.Create(context.Background(), ada, CreateRequest{
		Title:    "  Reading group ",
		Date:     "2030-01-12",
		Time:     "10:00",
		Category: "reading group",
		Location: "Gates 104",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Reading group", created.Title)
	assert.Equal(t, ReadingGroup, created.Category)
	assert.Equal(t, []string{"Ada"}, created.Attendees)

	waitFor(t, s, func(events []Event) bool { return len(events) == 1 })
	got := s.Events()[0]
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "Ada", got.PostedBy)
	assert.Equal(t, []string{"Ada"}, got.Attendees)
	assert.Equal(t, fixedNow, got.CreatedAt)
}

func TestCreateValidates(t *testing.T) {
	s, _ := newTestService(t)
	ada := identity.Actor{Name: "Ada"}
	valid := CreateRequest{Title: "Talk", Date: "2030-01-12", Time: "10:00", Category: "Talk"}

	for name, mutate := range map[string]func(*CreateRequest){
		"blank title":  func(r *CreateRequest) { r.Title = "   " },
		"bad date":     func(r *CreateRequest) { r.Date = "12/01/2030" },
		"bad time":     func(r *CreateRequest) { r.Time = "10am" },
		"bad category": func(r *CreateRequest) { r.Category = "Party" },
	} {
		req := valid
		mutate(&req)
		_, err := s.Create(context.Background(), ada, req)
		assert.ErrorIs(t, err, ErrInvalidEvent, name)
	}

	_, err := s.Create(context.Background(), identity.Actor{}, valid)
	assert.ErrorIs(t, err, membership.ErrNoActor)
}

type fakeAnnouncer struct {
	got chan resend.Announcement
}

func (f *fakeAnnouncer) AnnounceEvent(ctx context.Context, a resend.Announcement) error {
	f.got <- a
	return nil
}

func TestCreateAnnouncesEvent(t *testing.T) {
	announcer := &fakeAnnouncer{got: make(chan resend.Announcement, 1)}
	s, _ := newTestService(t, WithAnnouncer(announcer))

	created, err := s.Create(context.Background(), identity.Actor{Name: "Ada"}, CreateRequest{
		Title: "Hack night", Date: "2030-01-12", Time: "18:00", Category: "Hackathon",
	})
	require.NoError(t, err)

	select {
	case a := <-announcer.got:
		assert.Equal(t, created.ID, a.EventID)
		assert.Equal(t, "Hack night", a.Title)
		assert.Equal(t, "Hackathon", a.Category)
		assert.Equal(t, "Ada", a.PostedBy)
	case <-time.After(time.Second):
		t.Fatal("event was not announced")
	}
}

func TestJoinAndLeave(t *testing.T) {
	s, store := newTestService(t)
	id := seed(t, store, map[string]interface{}{
		"title": "Seminar", "date": "2030-01-12", "time": "10:00",
		"category": "Seminar", "postedBy": "Ada", "attendees": []string{"Ada"},
	})
	ctx := context.Background()
	grace := identity.Actor{Name: "Grace"}

	res, err := s.Join(ctx, grace, id)
	require.NoError(t, err)
	assert.True(t, res.Attending)
	_, err = s.Join(ctx, grace, id)
	require.NoError(t, err)
	waitFor(t, s, func(events []Event) bool {
		return len(events) == 1 && len(events[0].Attendees) == 2
	})
	assert.Equal(t, []string{"Ada", "Grace"}, s.Events()[0].Attendees)

	res, err = s.Leave(ctx, grace, id)
	require.NoError(t, err)
	assert.False(t, res.Attending)
	_, err = s.Leave(ctx, grace, id)
	require.NoError(t, err)
	waitFor(t, s, func(events []Event) bool {
		return len(events) == 1 && len(events[0].Attendees) == 1
	})

	_, err = s.Join(ctx, grace, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteOnlyByCreator(t *testing.T) {
	s, store := newTestService(t)
	id := seed(t, store, map[string]interface{}{
		"title": "Seminar", "date": "2030-01-12", "time": "10:00",
		"category": "Seminar", "postedBy": "Ada", "attendees": []string{"Ada"},
	})
	ctx := context.Background()

	err := s.Delete(ctx, identity.Actor{Name: "Grace"}, id)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = store.Get(ctx, Collection, id)
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, identity.Actor{Name: "Ada"}, id))
	_, err = store.Get(ctx, Collection, id)
	assert.ErrorIs(t, err, docstore.ErrNotFound)

	assert.ErrorIs(t, s.Delete(ctx, identity.Actor{Name: "Ada"}, id), ErrNotFound)
}

func TestListFiltersAndSorts(t *testing.T) {
	s, store := newTestService(t)
	seed(t, store, map[string]interface{}{
		"title": "Old seminar", "date": "2030-01-05", "time": "10:00", "category": "Seminar",
		"attendees": []string{"a", "b", "c", "d"},
	})
	seed(t, store, map[string]interface{}{
		"title": "Today talk", "date": "2030-01-10", "time": "09:00", "category": "Talk",
		"location": "Gates", "attendees": []string{"a"},
	})
	seed(t, store, map[string]interface{}{
		"title": "Social", "date": "2030-02-01", "time": "18:00", "category": "Social",
		"description": "pizza at Gates", "attendees": []string{"a", "b", "c"},
	})
	seed(t, store, map[string]interface{}{
		"title": "Journal club", "date": "2030-01-20", "time": "12:00", "category": "Journal Club",
		"attendees": []string{"a", "b"},
	})
	waitFor(t, s, func(events []Event) bool { return len(events) == 4 })

	titles := func(r ListResponse) []string {
		out := []string{}
		for _, e := range r.Events {
			out = append(out, e.Title)
		}
		return out
	}

	res := s.List(Query{})
	assert.Equal(t, []string{"Today talk", "Journal club", "Social"}, titles(res))
	assert.Equal(t, view.StateOK, res.State)

	res = s.List(Query{ShowPast: true, Sort: "popularity"})
	assert.Equal(t, []string{"Old seminar", "Social", "Journal club", "Today talk"}, titles(res))

	res = s.List(Query{Sort: "nonsense"})
	assert.Equal(t, []string{"Today talk", "Journal club", "Social"}, titles(res))

	res = s.List(Query{Search: "gates"})
	assert.Equal(t, []string{"Today talk", "Social"}, titles(res))

	res = s.List(Query{Category: "journal club"})
	assert.Equal(t, []string{"Journal club"}, titles(res))

	res = s.List(Query{Category: "Seminar"})
	assert.Empty(t, res.Events)
	assert.Equal(t, view.StateNoResults, res.State)
}

func TestCreatePadsClockSoDateSortIsChronological(t *testing.T) {
	s, _ := newTestService(t)
	ada := identity.Actor{Name: "Ada"}

	_, err := s.Create(context.Background(), ada, CreateRequest{
		Title: "late", Date: "2030-01-12", Time: "10:00", Category: "Talk",
	})
	require.NoError(t, err)
	early, err := s.Create(context.Background(), ada, CreateRequest{
		Title: "early", Date: "2030-01-12", Time: "9:30", Category: "Talk",
	})
	require.NoError(t, err)
	assert.Equal(t, "09:30", early.Time)

	waitFor(t, s, func(events []Event) bool { return len(events) == 2 })
	res := s.List(Query{Sort: "date"})
	require.Len(t, res.Events, 2)
	assert.Equal(t, "early", res.Events[0].Title)
	assert.Equal(t, "late", res.Events[1].Title)
	assert.Equal(t, "09:30", res.Events[0].Time)
}

func TestListEmptyBoard(t *testing.T) {
	s, _ := newTestService(t)
	waitFor(t, s, func(events []Event) bool { return true })

	res := s.List(Query{Search: "anything"})
	assert.Equal(t, view.StateEmpty, res.State)
	assert.Equal(t, 0, res.Total)
}

func TestWriteCalendar(t *testing.T) {
	s, store := newTestService(t)
	seed(t, store, map[string]interface{}{
		"title": "Reading group", "date": "2030-01-12", "time": "10:00", "category": "Reading Group",
		"location": "Gates 104", "postedBy": "Ada",
	})
	seed(t, store, map[string]interface{}{
		"title": "Past meeting", "date": "2030-01-01", "time": "10:00", "category": "Other",
	})
	waitFor(t, s, func(events []Event) bool { return len(events) == 2 })

	var buf bytes.Buffer
	require.NoError(t, s.WriteCalendar(&buf))
	out := buf.String()
	assert.Contains(t, out, "BEGIN:VCALENDAR")
	assert.Contains(t, out, "SUMMARY:Reading group")
	assert.Contains(t, out, "DTSTART:20300112T100000Z")
	assert.Contains(t, out, "LOCATION:Gates 104")
	assert.NotContains(t, out, "Past meeting")
}

func TestWriteCalendarWithoutEvents(t *testing.T) {
	s, _ := newTestService(t)
	waitFor(t, s, func(events []Event) bool { return true })

	var buf bytes.Buffer
	require.NoError(t, s.WriteCalendar(&buf))
	assert.Contains(t, buf.String(), "BEGIN:VCALENDAR\r\n")
	assert.Contains(t, buf.String(), "END:VCALENDAR\r\n")
}
