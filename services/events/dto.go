package events

import (
	"strings"
	"time"

	"github.com/c4u/launchpad/pkg/mirror"
	"github.com/c4u/launchpad/pkg/view"
)

type Category string

const (
	Seminar         Category = "Seminar"
	StudyGroup      Category = "Study Group"
	Workshop        Category = "Workshop"
	Hackathon       Category = "Hackathon"
	Talk            Category = "Talk"
	JournalClub     Category = "Journal Club"
	ReadingGroup    Category = "Reading Group"
	Social          Category = "Social"
	ResearchMeeting Category = "Research Meeting"
	Other           Category = "Other"
)

// Categories lists every category in display order.
var Categories = []Category{
	Seminar, StudyGroup, Workshop, Hackathon, Talk,
	JournalClub, ReadingGroup, Social, ResearchMeeting, Other,
}

// ParseCategory matches s case-insensitively against the known categories.
func ParseCategory(s string) (Category, bool) {
	s = strings.TrimSpace(s)
	for _, c := range Categories {
		if strings.EqualFold(string(c), s) {
			return c, true
		}
	}
	return "", false
}

type Event struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Date        string    `json:"date"`
	Time        string    `json:"time"`
	Location    string    `json:"location"`
	Description string    `json:"description"`
	Category    Category  `json:"category"`
	PostedBy    string    `json:"postedBy"`
	Attendees   []string  `json:"attendees"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Attending reports whether name is on the attendee list.
func (e Event) Attending(name string) bool {
	for _, a := range e.Attendees {
		if a == name {
			return true
		}
	}
	return false
}

type CreateRequest struct {
	Title       string `json:"title" binding:"required"`
	Date        string `json:"date" binding:"required"`
	Time        string `json:"time" binding:"required"`
	Category    string `json:"category" binding:"required"`
	Location    string `json:"location"`
	Description string `json:"description"`
}

// Query are the list filters taken from the URL.
type Query struct {
	Search   string `form:"q"`
	Category string `form:"category"`
	ShowPast bool   `form:"showPast"`
	Sort     string `form:"sort"`
}

type ListResponse struct {
	Events []Event       `json:"events"`
	Total  int           `json:"total"`
	State  view.State    `json:"state"`
	Status mirror.Status `json:"status"`
}

type MembershipResult struct {
	ID        string `json:"id"`
	Actor     string `json:"actor"`
	Attending bool   `json:"attending"`
}
