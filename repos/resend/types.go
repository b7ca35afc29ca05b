package resend

import "time"

// Announcement is the data shown in a new-event mail.
type Announcement struct {
	EventID     string
	Title       string
	Category    string
	Date        string
	Time        string
	Location    string
	Description string
	PostedBy    string
	StartsAt    *time.Time
}
