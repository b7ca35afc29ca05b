package papers

import (
	"time"

	"github.com/c4u/launchpad/pkg/mirror"
	"github.com/c4u/launchpad/pkg/view"
)

// Paper is a sheet row joined with its resolved metadata and live vote count.
type Paper struct {
	ID            string     `json:"id"`
	URL           string     `json:"url"`
	Justification string     `json:"justification"`
	Presenter     string     `json:"presenter"`
	Presented     bool       `json:"presented"`
	Timestamp     *time.Time `json:"timestamp,omitempty"`
	Title         *string    `json:"title"`
	Authors       *string    `json:"authors"`
	Votes         int64      `json:"votes"`
	Voted         bool       `json:"voted"`
}

// Tally is one vote counter document.
type Tally struct {
	ID    string
	Votes int64
}

type View string

const (
	Upcoming  View = "upcoming"
	Presented View = "presented"
)

type Query struct {
	Search string `form:"q"`
	View   string `form:"view"`
	Sort   string `form:"sort"`
}

type ListResponse struct {
	Papers   []Paper       `json:"papers"`
	Total    int           `json:"total"`
	State    view.State    `json:"state"`
	Status   mirror.Status `json:"status"`
	LoadedAt time.Time     `json:"loadedAt,omitempty"`
	Error    string        `json:"error,omitempty"`
}

type VoteResult struct {
	ID      string `json:"id"`
	Voted   bool   `json:"voted"`
	Changed bool   `json:"changed"`
	Votes   int64  `json:"votes"`
}
