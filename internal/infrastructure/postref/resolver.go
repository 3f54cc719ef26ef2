package postref

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"CollectiveLedger/internal/ports"
)

// castHosts are the clients whose post URLs carry the author handle as the first path segment.
var castHosts = map[string]struct{}{
	"warpcast.com":  {},
	"farcaster.xyz": {},
}

// Resolver scrapes Open Graph metadata from a post reference.
type Resolver struct {
	client *http.Client
}

var _ ports.PostResolver = (*Resolver)(nil)

// NewResolver wires an HTTP client; a nil client gets a 10s timeout.
func NewResolver(client *http.Client) *Resolver {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Resolver{client: client}
}

// Resolve fetches postURL and extracts its title, description and author.
func (r *Resolver) Resolve(ctx context.Context, postURL string) (ports.PostPreview, error) {
	parsed, err := url.Parse(postURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return ports.PostPreview{}, fmt.Errorf("invalid post url %q", postURL)
	}

	doc, err := r.fetchDocument(ctx, postURL)
	if err != nil {
		return ports.PostPreview{}, err
	}

	preview := extractPreview(doc)
	preview.URL = postURL
	if preview.Author == "" {
		preview.Author = handleFromURL(parsed)
	}
	return preview, nil
}

func (r *Resolver) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "CollectiveLedger/1.0")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("post host returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

func extractPreview(doc *goquery.Document) ports.PostPreview {
	title := meta(doc, `meta[property="og:title"]`, `meta[name="twitter:title"]`)
	if title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	return ports.PostPreview{
		Title:       title,
		Description: meta(doc, `meta[property="og:description"]`, `meta[name="description"]`),
		Author:      meta(doc, `meta[name="author"]`, `meta[property="article:author"]`),
	}
}

func meta(doc *goquery.Document, selectors ...string) string {
	for _, sel := range selectors {
		if content, ok := doc.Find(sel).First().Attr("content"); ok {
			if content = strings.TrimSpace(content); content != "" {
				return content
			}
		}
	}
	return ""
}

func handleFromURL(u *url.URL) string {
	if _, ok := castHosts[strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")]; !ok {
		return ""
	}
	segment, _, _ := strings.Cut(strings.Trim(u.Path, "/"), "/")
	if segment == "" || segment == "~" {
		return ""
	}
	return "@" + segment
}
