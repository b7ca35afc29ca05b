package stats

// TopItem is the most popular event or paper.
type TopItem struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Count int    `json:"count"`
}

type Summary struct {
	Events          int      `json:"events"`
	UpcomingEvents  int      `json:"upcomingEvents"`
	Attendances     int      `json:"attendances"`
	Papers          int      `json:"papers"`
	PresentedPapers int      `json:"presentedPapers"`
	Votes           int64    `json:"votes"`
	TopEvent        *TopItem `json:"topEvent,omitempty"`
	TopPaper        *TopItem `json:"topPaper,omitempty"`
}
