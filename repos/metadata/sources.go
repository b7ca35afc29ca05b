package metadata

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"net/url"
	"strings"

	"github.com/xorcare/pointer"
	"golang.org/x/net/html"
	"golang.org/x/xerrors"
)

var errNoEntry = errors.New("no matching entry")

type arxivFeed struct {
	Entries []struct {
		Title   string `xml:"title"`
		Authors []struct {
			Name string `xml:"name"`
		} `xml:"author"`
	} `xml:"entry"`
}

func (r *Resolver) fetchArxiv(ctx context.Context, id string) (Metadata, error) {
	body, err := r.get(ctx, r.arxivURL+"?id_list="+url.QueryEscape(id))
	if err != nil {
		return Metadata{}, err
	}
	defer body.Close()

	var feed arxivFeed
	if err := xml.NewDecoder(body).Decode(&feed); err != nil {
		return Metadata{}, xerrors.Errorf("decode arXiv feed: %w", err)
	}
	if len(feed.Entries) == 0 {
		return Metadata{}, errNoEntry
	}
	entry := feed.Entries[0]

	var authors []string
	for _, a := range entry.Authors {
		if name := cleanText(a.Name); name != "" {
			authors = append(authors, name)
		}
	}
	return metadataOf(cleanText(entry.Title), authors), nil
}

type openReviewResponse struct {
	Notes []struct {
		Content struct {
			Title   json.RawMessage `json:"title"`
			Authors json.RawMessage `json:"authors"`
		} `json:"content"`
	} `json:"notes"`
}

func (r *Resolver) fetchOpenReview(ctx context.Context, id string) (Metadata, error) {
	body, err := r.get(ctx, r.openReviewURL+"?id="+url.QueryEscape(id))
	if err != nil {
		return Metadata{}, err
	}
	defer body.Close()

	var response openReviewResponse
	if err := json.NewDecoder(body).Decode(&response); err != nil {
		return Metadata{}, xerrors.Errorf("decode OpenReview note: %w", err)
	}
	if len(response.Notes) == 0 {
		return Metadata{}, errNoEntry
	}
	content := response.Notes[0].Content

	var title string
	unwrapField(content.Title, &title)
	var authors []string
	unwrapField(content.Authors, &authors)
	return metadataOf(cleanText(title), authors), nil
}

// unwrapField decodes raw into dst, accepting both the plain form and the
// newer API's {"value": ...} wrapper.
func unwrapField(raw json.RawMessage, dst interface{}) {
	if len(raw) == 0 {
		return
	}
	if err := json.Unmarshal(raw, dst); err == nil {
		return
	}
	var wrapped struct {
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && len(wrapped.Value) > 0 {
		_ = json.Unmarshal(wrapped.Value, dst)
	}
}

func (r *Resolver) fetchGeneric(ctx context.Context, rawURL string) (Metadata, error) {
	body, err := r.get(ctx, rawURL)
	if err != nil {
		return Metadata{}, err
	}
	defer body.Close()

	doc, err := html.Parse(body)
	if err != nil {
		return Metadata{}, xerrors.Errorf("parse page: %w", err)
	}

	var ogTitle, metaTitle, titleTag string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "meta":
				content := attr(n, "content")
				if ogTitle == "" && attr(n, "property") == "og:title" {
					ogTitle = content
				}
				if metaTitle == "" && attr(n, "name") == "title" {
					metaTitle = content
				}
			case "title":
				if titleTag == "" && n.FirstChild != nil {
					titleTag = n.FirstChild.Data
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	for _, candidate := range []string{ogTitle, metaTitle, titleTag} {
		if t := cleanText(candidate); t != "" {
			return Metadata{Title: pointer.String(t)}, nil
		}
	}
	return Metadata{}, nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func metadataOf(title string, authors []string) Metadata {
	var md Metadata
	if title != "" {
		md.Title = pointer.String(title)
	}
	if formatted := FormatAuthors(authors); formatted != "" {
		md.Authors = pointer.String(formatted)
	}
	return md
}
