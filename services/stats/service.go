package stats

import (
	"github.com/c4u/launchpad/services/events"
	"github.com/c4u/launchpad/services/papers"
)

// EventBoard is the part of the events service the summary reads.
type EventBoard interface {
	Events() []events.Event
	IsPast(e events.Event) bool
}

type PaperBoard interface {
	Papers() []papers.Paper
}

type StatsService struct {
	events EventBoard
	papers PaperBoard
}

func NewStatsService(eventBoard EventBoard, paperBoard PaperBoard) *StatsService {
	return &StatsService{
		events: eventBoard,
		papers: paperBoard,
	}
}

// GetSummary totals the mirrored lists. Ties for the top spot go to the
// earlier item.
func (s *StatsService) GetSummary() *Summary {
	summary := &Summary{}

	for _, e := range s.events.Events() {
		summary.Events++
		summary.Attendances += len(e.Attendees)
		if !s.events.IsPast(e) {
			summary.UpcomingEvents++
		}
		if len(e.Attendees) > 0 && (summary.TopEvent == nil || len(e.Attendees) > summary.TopEvent.Count) {
			summary.TopEvent = &TopItem{ID: e.ID, Title: e.Title, Count: len(e.Attendees)}
		}
	}

	for _, p := range s.papers.Papers() {
		summary.Papers++
		summary.Votes += p.Votes
		if p.Presented {
			summary.PresentedPapers++
			continue
		}
		if p.Votes > 0 && (summary.TopPaper == nil || int(p.Votes) > summary.TopPaper.Count) {
			title := p.URL
			if p.Title != nil {
				title = *p.Title
			}
			summary.TopPaper = &TopItem{ID: p.ID, Title: title, Count: int(p.Votes)}
		}
	}

	return summary
}
