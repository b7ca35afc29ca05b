package events

import (
	"fmt"
	"io"
	"time"

	timehelper "github.com/c4u/launchpad/pkg/timeHelper"
	"github.com/emersion/go-ical"
	log "github.com/sirupsen/logrus"
)

const (
	calendarProductID = "-//launchpad//events//EN"
	defaultDuration   = time.Hour
)

// WriteCalendar encodes every upcoming event as an iCalendar feed.
func (s *EventsService) WriteCalendar(w io.Writer) error {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, calendarProductID)

	stamp := s.now().UTC()
	for _, e := range s.List(Query{}).Events {
		ve, err := s.toICal(e, stamp)
		if err != nil {
			log.Printf("Leaving event %s out of the calendar: %v", e.ID, err)
			continue
		}
		cal.Children = append(cal.Children, ve)
	}

	// The encoder refuses calendars without components.
	if len(cal.Children) == 0 {
		_, err := fmt.Fprintf(w, "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:%s\r\nEND:VCALENDAR\r\n", calendarProductID)
		return err
	}
	return ical.NewEncoder(w).Encode(cal)
}

func (s *EventsService) toICal(e Event, stamp time.Time) (*ical.Component, error) {
	start, err := timehelper.ParseLocal(e.Date, e.Time, s.location)
	if err != nil {
		return nil, err
	}

	ve := ical.NewComponent(ical.CompEvent)
	ve.Props.SetText(ical.PropUID, e.ID+"@launchpad")
	ve.Props.SetText(ical.PropSummary, e.Title)
	ve.Props.SetDateTime(ical.PropDateTimeStamp, stamp)
	ve.Props.SetDateTime(ical.PropDateTimeStart, start.UTC())
	ve.Props.SetDateTime(ical.PropDateTimeEnd, start.Add(defaultDuration).UTC())
	ve.Props.SetText(ical.PropCategories, string(e.Category))

	if e.Description != "" {
		ve.Props.SetText(ical.PropDescription, e.Description)
	}
	if e.Location != "" {
		ve.Props.SetText(ical.PropLocation, e.Location)
	}
	if e.PostedBy != "" {
		p := ical.NewProp(ical.PropOrganizer)
		p.Params.Set(ical.ParamCommonName, e.PostedBy)
		p.SetText("mailto:noreply@launchpad")
		ve.Props.Add(p)
	}
	return ve, nil
}
