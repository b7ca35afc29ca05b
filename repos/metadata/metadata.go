package metadata

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/c4u/launchpad/pkg/metrics"
	log "github.com/sirupsen/logrus"
	"github.com/xorcare/pointer"
)

const maxBody = 2 << 20

// Kind is where a paper URL points to.
type Kind string

const (
	KindArxiv      Kind = "arxiv"
	KindOpenReview Kind = "openreview"
	KindGeneric    Kind = "generic"
	// KindInvalid is anything that is not an http(s) URL; it is shown verbatim.
	KindInvalid Kind = "invalid"
)

var (
	arxivPattern      = regexp.MustCompile(`arxiv\.org/(?:abs|pdf)/(\d+\.\d+)`)
	openReviewPattern = regexp.MustCompile(`openreview\.net/forum\?id=([^&]+)`)
)

// Metadata is the display information for a paper. Nil fields are unknown.
type Metadata struct {
	Title   *string `json:"title"`
	Authors *string `json:"authors"`
}

// Classify returns the source kind of rawURL and the extracted identifier for
// arXiv and OpenReview links.
func Classify(rawURL string) (Kind, string) {
	if !strings.HasPrefix(rawURL, "http") {
		return KindInvalid, ""
	}
	if strings.Contains(rawURL, "arxiv.org") {
		if m := arxivPattern.FindStringSubmatch(rawURL); m != nil {
			return KindArxiv, m[1]
		}
	}
	if strings.Contains(rawURL, "openreview.net") {
		if m := openReviewPattern.FindStringSubmatch(rawURL); m != nil {
			return KindOpenReview, m[1]
		}
	}
	return KindGeneric, ""
}

// FormatAuthors lists up to three names, abbreviating longer lists with "et al.".
func FormatAuthors(authors []string) string {
	if len(authors) == 0 {
		return ""
	}
	if len(authors) <= 3 {
		return strings.Join(authors, ", ")
	}
	return strings.Join(authors[:3], ", ") + " et al."
}

// Cache stores resolved metadata by URL.
type Cache interface {
	Get(ctx context.Context, rawURL string) (Metadata, bool, error)
	Set(ctx context.Context, rawURL string, md Metadata) error
}

// Resolver looks up titles and authors for paper URLs.
type Resolver struct {
	httpClient    *http.Client
	cache         Cache
	timeout       time.Duration
	arxivURL      string
	openReviewURL string
	userAgent     string
}

type Option func(*Resolver)

func WithHTTPClient(c *http.Client) Option { return func(r *Resolver) { r.httpClient = c } }

func WithCache(c Cache) Option { return func(r *Resolver) { r.cache = c } }

func WithTimeout(d time.Duration) Option { return func(r *Resolver) { r.timeout = d } }

// WithEndpoints overrides the arXiv and OpenReview API base URLs.
func WithEndpoints(arxivURL, openReviewURL string) Option {
	return func(r *Resolver) {
		r.arxivURL = arxivURL
		r.openReviewURL = openReviewURL
	}
}

func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		httpClient:    &http.Client{},
		timeout:       10 * time.Second,
		arxivURL:      "https://export.arxiv.org/api/query",
		openReviewURL: "https://api.openreview.net/notes",
		userAgent:     "launchpad/1.0",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve never fails: anything that goes wrong yields empty Metadata.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) Metadata {
	kind, id := Classify(rawURL)
	if kind == KindInvalid {
		return Metadata{Title: pointer.String(rawURL)}
	}

	if r.cache != nil {
		md, ok, err := r.cache.Get(ctx, rawURL)
		if err != nil {
			log.Printf("Metadata cache read failed for %s: %v", rawURL, err)
		} else if ok {
			metrics.TrackMetadata(string(kind), "hit")
			return md
		}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var (
		md  Metadata
		err error
	)
	switch kind {
	case KindArxiv:
		md, err = r.fetchArxiv(ctx, id)
	case KindOpenReview:
		md, err = r.fetchOpenReview(ctx, id)
	default:
		md, err = r.fetchGeneric(ctx, rawURL)
	}
	if err != nil {
		metrics.TrackMetadata(string(kind), "failed")
		log.Printf("Error fetching %s metadata for %s: %v", kind, rawURL, err)
		return Metadata{}
	}
	metrics.TrackMetadata(string(kind), "ok")

	if r.cache != nil && md.Title != nil {
		if err := r.cache.Set(ctx, rawURL, md); err != nil {
			log.Printf("Metadata cache write failed for %s: %v", rawURL, err)
		}
	}
	return md
}

func (r *Resolver) get(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", r.userAgent)

	response, err := r.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if response.StatusCode < 200 || response.StatusCode > 299 {
		response.Body.Close()
		return nil, fmt.Errorf("GET %s: status %d", url, response.StatusCode)
	}
	return struct {
		io.Reader
		io.Closer
	}{io.LimitReader(response.Body, maxBody), response.Body}, nil
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
