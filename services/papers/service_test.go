package papers

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/c4u/launchpad/pkg/identity"
	"github.com/c4u/launchpad/pkg/membership"
	"github.com/c4u/launchpad/pkg/view"
	"github.com/c4u/launchpad/repos/docstore"
	"github.com/c4u/launchpad/repos/metadata"
	"github.com/c4u/launchpad/repos/papersheet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xorcare/pointer"
)

type fakeSource struct {
	mu      sync.Mutex
	entries []papersheet.Entry
	err     error
}

func (f *fakeSource) FetchPapers(ctx context.Context) ([]papersheet.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entries, f.err
}

func (f *fakeSource) set(entries []papersheet.Entry, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries, f.err = entries, err
}

type fakeResolver struct {
	inFlight int32
	peak     int32
}

func (f *fakeResolver) Resolve(ctx context.Context, rawURL string) metadata.Metadata {
	n := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		peak := atomic.LoadInt32(&f.peak)
		if n <= peak || atomic.CompareAndSwapInt32(&f.peak, peak, n) {
			break
		}
	}
	time.Sleep(2 * time.Millisecond)
	return metadata.Metadata{Title: pointer.String("Title of " + rawURL)}
}

func ts(day int) *time.Time {
	return pointer.Time(time.Date(2024, 3, day, 9, 0, 0, 0, time.UTC))
}

var sheet = []papersheet.Entry{
	{ID: "1", URL: "https://arxiv.org/abs/1706.03762", Presenter: "Ana", Justification: "transformers"},
	{ID: "2", URL: "https://example.com/diffusion", Presenter: "Bo"},
	{ID: "3", URL: "https://example.com/old", Presenter: "Cy", Presented: pointer.Bool(true), Timestamp: ts(1)},
	{ID: "4", URL: "https://example.com/older", Presenter: "Di", Presented: pointer.Bool(true), Timestamp: ts(5)},
}

func newTestService(t *testing.T, entries []papersheet.Entry) (*PapersService, *docstore.Memory, *fakeSource, *fakeResolver) {
	t.Helper()
	store := docstore.NewMemory()
	source := &fakeSource{entries: entries}
	resolver := &fakeResolver{}
	s := NewPapersService(store, source, resolver, WithRefresh(0))

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
	require.Eventually(t, func() bool {
		return len(s.Papers()) == len(entries) && len(s.tallies.Items()) == len(entries)
	}, 2*time.Second, 5*time.Millisecond)
	return s, store, source, resolver
}

func votesOf(s *PapersService, id string) int64 {
	for _, p := range s.Papers() {
		if p.ID == id {
			return p.Votes
		}
	}
	return -1
}

func TestReloadResolvesAndCreatesCounters(t *testing.T) {
	s, store, _, _ := newTestService(t, sheet)

	papers := s.Papers()
	require.Len(t, papers, 4)
	assert.Equal(t, "1", papers[0].ID)
	assert.Equal(t, pointer.String("Title of https://arxiv.org/abs/1706.03762"), papers[0].Title)
	assert.True(t, papers[2].Presented)

	for _, e := range sheet {
		doc, err := store.Get(context.Background(), VotesCollection, e.ID)
		require.NoError(t, err)
		n, ok := doc.Int(votesField)
		assert.True(t, ok)
		assert.Equal(t, int64(0), n)
	}
}

func TestReloadBoundsConcurrency(t *testing.T) {
	entries := make([]papersheet.Entry, 40)
	for i := range entries {
		entries[i] = papersheet.Entry{ID: string(rune('a' + i)), URL: "https://example.com"}
	}
	store := docstore.NewMemory()
	resolver := &fakeResolver{}
	s := NewPapersService(store, &fakeSource{entries: entries}, resolver, WithConcurrency(3))

	require.NoError(t, s.Reload(context.Background()))
	assert.Len(t, s.Papers(), 40)
	assert.LessOrEqual(t, atomic.LoadInt32(&resolver.peak), int32(3))
}

func TestReloadHealsCorruptCounters(t *testing.T) {
	store := docstore.NewMemory()
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, VotesCollection, "1", map[string]interface{}{"votes": "lots"}, false))
	require.NoError(t, store.Set(ctx, VotesCollection, "2", map[string]interface{}{"votes": -4}, false))
	require.NoError(t, store.Set(ctx, VotesCollection, "3", map[string]interface{}{"votes": 7}, false))

	s := NewPapersService(store, &fakeSource{entries: sheet[:3]}, &fakeResolver{})
	require.NoError(t, s.Reload(ctx))

	for id, want := range map[string]int64{"1": 0, "2": 0, "3": 7} {
		doc, err := store.Get(ctx, VotesCollection, id)
		require.NoError(t, err)
		n, _ := doc.Int(votesField)
		assert.Equal(t, want, n, id)
	}
}

func TestReloadKeepsPreviousListOnFailure(t *testing.T) {
	s, _, source, _ := newTestService(t, sheet)

	source.set(nil, errors.New("sheet down"))
	assert.Error(t, s.Reload(context.Background()))
	assert.Len(t, s.Papers(), 4)

	res := s.List(context.Background(), nil, Query{})
	assert.Equal(t, "sheet down", res.Error)
}

func TestVotingIsOnePerUser(t *testing.T) {
	s, _, _, _ := newTestService(t, sheet)
	ctx := context.Background()
	ada := identity.Actor{UID: "ada"}
	bob := identity.Actor{UID: "bob"}

	res, err := s.Cast(ctx, ada, "1")
	require.NoError(t, err)
	assert.Equal(t, &VoteResult{ID: "1", Voted: true, Changed: true, Votes: 1}, res)

	res, err = s.Cast(ctx, ada, "1")
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, int64(1), res.Votes)

	res, err = s.Toggle(ctx, bob, "1")
	require.NoError(t, err)
	assert.True(t, res.Voted)
	assert.Equal(t, int64(2), res.Votes)

	require.Eventually(t, func() bool { return votesOf(s, "1") == 2 }, time.Second, 5*time.Millisecond)

	res, err = s.Toggle(ctx, bob, "1")
	require.NoError(t, err)
	assert.False(t, res.Voted)
	assert.Equal(t, int64(1), res.Votes)

	res, err = s.Retract(ctx, bob, "1")
	require.NoError(t, err)
	assert.False(t, res.Changed)

	mine, err := s.MyVotes(ctx, "ada")
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"1": true}, mine)

	_, err = s.Cast(ctx, ada, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Cast(ctx, identity.Actor{Name: "Anonymous"}, "1")
	assert.ErrorIs(t, err, membership.ErrNoActor)
}

func TestConcurrentVotesAreAllCounted(t *testing.T) {
	s, _, _, _ := newTestService(t, sheet)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Cast(ctx, identity.Actor{UID: string(rune('A' + i))}, "2")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	require.Eventually(t, func() bool { return votesOf(s, "2") == 25 }, 2*time.Second, 5*time.Millisecond)
}

func TestListViews(t *testing.T) {
	s, _, _, _ := newTestService(t, sheet)
	ctx := context.Background()
	ada := &identity.Actor{UID: "ada"}

	_, err := s.Cast(ctx, *ada, "2")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return votesOf(s, "2") == 1 }, time.Second, 5*time.Millisecond)

	ids := func(r ListResponse) []string {
		out := []string{}
		for _, p := range r.Papers {
			out = append(out, p.ID)
		}
		return out
	}

	res := s.List(ctx, ada, Query{})
	assert.Equal(t, []string{"2", "1"}, ids(res))
	assert.True(t, res.Papers[0].Voted)
	assert.False(t, res.Papers[1].Voted)
	assert.Equal(t, int64(1), res.Papers[0].Votes)

	res = s.List(ctx, nil, Query{Sort: "date"})
	assert.Equal(t, []string{"1", "2"}, ids(res))
	assert.False(t, res.Papers[1].Voted)

	res = s.List(ctx, nil, Query{View: "presented", Sort: "popularity"})
	assert.Equal(t, []string{"4", "3"}, ids(res))

	res = s.List(ctx, nil, Query{Search: "TRANSFORMERS"})
	assert.Equal(t, []string{"1"}, ids(res))

	res = s.List(ctx, nil, Query{Search: "nothing like this"})
	assert.Equal(t, view.StateNoResults, res.State)
}

func TestListBeforeAnyPapers(t *testing.T) {
	s, _, _, _ := newTestService(t, []papersheet.Entry{})
	res := s.List(context.Background(), nil, Query{})
	assert.Equal(t, view.StateEmpty, res.State)
}
