package papersheet

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// Service reads paper suggestions from the spreadsheet script endpoint.
type Service struct {
	endpoint   string
	httpClient *http.Client
}

// NewService creates a client for the sheet endpoint.
func NewService(endpoint string, httpClient *http.Client) *Service {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Service{
		endpoint:   endpoint,
		httpClient: httpClient,
	}
}

// FetchPapers returns the sheet rows in sheet order. Rows without an id are dropped.
func (s *Service) FetchPapers(ctx context.Context) ([]Entry, error) {
	if s.endpoint == "" {
		return nil, fmt.Errorf("paper sheet endpoint is not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint, nil)
	if err != nil {
		return nil, xerrors.Errorf("create sheet request: %w", err)
	}

	response, err := s.httpClient.Do(req)
	if err != nil {
		return nil, xerrors.Errorf("sheet request failed: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return nil, fmt.Errorf("sheet request failed with status %d", response.StatusCode)
	}

	var entries []Entry
	if err := json.NewDecoder(response.Body).Decode(&entries); err != nil {
		return nil, xerrors.Errorf("failed to parse sheet response: %w", err)
	}

	papers := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.ID == "" {
			log.Printf("Skipping sheet row without id: %q", e.URL)
			continue
		}
		papers = append(papers, e)
	}
	return papers, nil
}
