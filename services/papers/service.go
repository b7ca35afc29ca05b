package papers

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/c4u/launchpad/pkg/identity"
	"github.com/c4u/launchpad/pkg/membership"
	"github.com/c4u/launchpad/pkg/metrics"
	"github.com/c4u/launchpad/pkg/mirror"
	"github.com/c4u/launchpad/pkg/view"
	"github.com/c4u/launchpad/repos/docstore"
	"github.com/c4u/launchpad/repos/metadata"
	"github.com/c4u/launchpad/repos/papersheet"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
)

const (
	VotesCollection     = "paperVotes"
	UserVotesCollection = "userVotes"
	votesField          = "votes"

	defaultConcurrency = 8
	defaultRefresh     = 10 * time.Minute
)

var ErrNotFound = errors.New("paper not found")

// Source lists the suggested papers.
type Source interface {
	FetchPapers(ctx context.Context) ([]papersheet.Entry, error)
}

// Resolver looks up display metadata for a paper URL.
type Resolver interface {
	Resolve(ctx context.Context, rawURL string) metadata.Metadata
}

type PapersService struct {
	source      Source
	resolver    Resolver
	votes       *membership.Counter
	tallies     *mirror.Mirror[Tally]
	concurrency int
	refresh     time.Duration
	mirrorOpts  []mirror.Option

	mu       sync.RWMutex
	papers   []Paper
	loadedAt time.Time
	loadErr  error
}

type Option func(*PapersService)

// WithRefresh sets how often the sheet is re-read. Zero disables refreshing.
func WithRefresh(d time.Duration) Option {
	return func(s *PapersService) { s.refresh = d }
}

// WithConcurrency bounds parallel metadata lookups during a reload.
func WithConcurrency(n int) Option {
	return func(s *PapersService) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithMirrorOptions tunes the subscription to the vote counters.
func WithMirrorOptions(opts ...mirror.Option) Option {
	return func(s *PapersService) { s.mirrorOpts = opts }
}

func NewPapersService(store docstore.Store, source Source, resolver Resolver, opts ...Option) *PapersService {
	s := &PapersService{
		source:      source,
		resolver:    resolver,
		votes:       membership.NewCounter(store, VotesCollection, votesField, UserVotesCollection, votesField),
		concurrency: defaultConcurrency,
		refresh:     defaultRefresh,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.tallies = mirror.New(store, VotesCollection, decodeTally, s.mirrorOpts...)
	return s
}

// Run mirrors the vote counts and periodically reloads the sheet until ctx is
// cancelled. The first load happens immediately.
func (s *PapersService) Run(ctx context.Context) error {
	var g errgroup.Group
	g.Go(func() error {
		return s.tallies.Run(ctx)
	})
	g.Go(func() error {
		s.refreshLoop(ctx)
		return nil
	})
	return g.Wait()
}

func (s *PapersService) refreshLoop(ctx context.Context) {
	if err := s.Reload(ctx); err != nil {
		log.Printf("Initial paper load failed: %v", err)
	}
	if s.refresh <= 0 {
		return
	}

	ticker := time.NewTicker(s.refresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Reload(ctx); err != nil {
				log.Printf("Paper refresh failed: %v", err)
			}
		}
	}
}

// Reload reads the sheet, resolves metadata for every paper and makes sure a
// vote counter exists for each. On failure the previous list is kept.
func (s *PapersService) Reload(ctx context.Context) error {
	entries, err := s.source.FetchPapers(ctx)
	if err != nil {
		s.mu.Lock()
		s.loadErr = err
		s.mu.Unlock()
		return xerrors.Errorf("fetch papers: %w", err)
	}

	papers := make([]Paper, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, entry := range entries {
		g.Go(func() error {
			md := s.resolver.Resolve(gctx, entry.URL)
			if _, err := s.votes.Ensure(gctx, entry.ID); err != nil {
				log.Printf("Could not prepare vote counter for %s: %v", entry.ID, err)
			}
			papers[i] = paperFrom(entry, md)
			return nil
		})
	}
	g.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.papers = papers
	s.loadedAt = time.Now()
	s.loadErr = nil
	s.mu.Unlock()

	log.Printf("Loaded %d papers", len(papers))
	return nil
}

func paperFrom(e papersheet.Entry, md metadata.Metadata) Paper {
	return Paper{
		ID:            e.ID,
		URL:           e.URL,
		Justification: e.Justification,
		Presenter:     e.Presenter,
		Presented:     e.Presented != nil && *e.Presented,
		Timestamp:     e.Timestamp,
		Title:         md.Title,
		Authors:       md.Authors,
	}
}

// Papers returns the loaded papers joined with the mirrored vote counts.
func (s *PapersService) Papers() []Paper {
	counts := map[string]int64{}
	for _, t := range s.tallies.Items() {
		counts[t.ID] = t.Votes
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Paper, len(s.papers))
	for i, p := range s.papers {
		p.Votes = counts[p.ID]
		out[i] = p
	}
	return out
}

func (s *PapersService) Status() mirror.Status {
	return s.tallies.Status()
}

func (s *PapersService) List(ctx context.Context, actor *identity.Actor, q Query) ListResponse {
	papers := s.Papers()
	if actor != nil && actor.UID != "" {
		flags, err := s.votes.Flags(ctx, actor.UID)
		if err != nil {
			log.Printf("Could not read votes of %s: %v", actor.UID, err)
		}
		for i := range papers {
			papers[i].Voted = flags[papers[i].ID]
		}
	}

	opts := view.Options[Paper]{
		Search: q.Search,
		Text: func(p Paper) []string {
			return []string{deref(p.Title), deref(p.Authors), p.URL, p.Justification, p.Presenter}
		},
		Count:   func(p Paper) int { return int(p.Votes) },
		DateKey: timestampKey,
	}
	if View(strings.ToLower(q.View)) == Presented {
		opts.Keep = []func(Paper) bool{func(p Paper) bool { return p.Presented }}
		opts.Sort = view.Recent
	} else {
		opts.Keep = []func(Paper) bool{func(p Paper) bool { return !p.Presented }}
		opts.Sort = view.ParseSort(q.Sort, view.Popularity)
	}
	result := view.Apply(papers, opts)

	s.mu.RLock()
	defer s.mu.RUnlock()
	res := ListResponse{
		Papers:   result.Items,
		Total:    result.Total,
		State:    result.State,
		Status:   s.tallies.Status(),
		LoadedAt: s.loadedAt,
	}
	if s.loadErr != nil {
		res.Error = s.loadErr.Error()
	}
	return res
}

// Toggle flips the actor's vote on paper id.
func (s *PapersService) Toggle(ctx context.Context, actor identity.Actor, id string) (*VoteResult, error) {
	if err := s.checkPaper(id); err != nil {
		return nil, err
	}
	voted, err := s.votes.Toggle(ctx, id, actor.UID)
	metrics.TrackMutation("vote_toggle", err)
	if err != nil {
		return nil, err
	}
	return s.result(ctx, id, voted, true)
}

// Cast votes for paper id. Voting twice changes nothing.
func (s *PapersService) Cast(ctx context.Context, actor identity.Actor, id string) (*VoteResult, error) {
	if err := s.checkPaper(id); err != nil {
		return nil, err
	}
	changed, err := s.votes.Cast(ctx, id, actor.UID)
	metrics.TrackMutation("vote_cast", err)
	if err != nil {
		return nil, err
	}
	return s.result(ctx, id, true, changed)
}

// Retract withdraws the actor's vote on paper id, if any.
func (s *PapersService) Retract(ctx context.Context, actor identity.Actor, id string) (*VoteResult, error) {
	if err := s.checkPaper(id); err != nil {
		return nil, err
	}
	changed, err := s.votes.Retract(ctx, id, actor.UID)
	metrics.TrackMutation("vote_retract", err)
	if err != nil {
		return nil, err
	}
	return s.result(ctx, id, false, changed)
}

// MyVotes returns the ids of the papers uid has voted for.
func (s *PapersService) MyVotes(ctx context.Context, uid string) (map[string]bool, error) {
	return s.votes.Flags(ctx, uid)
}

func (s *PapersService) checkPaper(id string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.papers {
		if p.ID == id {
			return nil
		}
	}
	return ErrNotFound
}

func (s *PapersService) result(ctx context.Context, id string, voted, changed bool) (*VoteResult, error) {
	count, err := s.votes.Count(ctx, id)
	if err != nil {
		return nil, err
	}
	return &VoteResult{ID: id, Voted: voted, Changed: changed, Votes: count}, nil
}

func decodeTally(doc docstore.Document) (Tally, error) {
	n, ok := doc.Int(votesField)
	if !ok || n < 0 {
		n = 0
	}
	return Tally{ID: doc.ID, Votes: n}, nil
}

func timestampKey(p Paper) string {
	if p.Timestamp == nil {
		return ""
	}
	return p.Timestamp.UTC().Format(time.RFC3339)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
