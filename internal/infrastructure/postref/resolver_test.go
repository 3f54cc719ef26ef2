package postref

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

func TestExtractPreview(t *testing.T) {
	t.Parallel()

	html := `
	<html><head>
	  <title>Fallback</title>
	  <meta property="og:title" content=" Soil cores, week 3 ">
	  <meta name="description" content="Readings from the east plot.">
	  <meta name="author" content="dana">
	</head><body></body></html>`

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("new document: %v", err)
	}

	preview := extractPreview(doc)
	if preview.Title != "Soil cores, week 3" {
		t.Fatalf("unexpected title: %q", preview.Title)
	}
	if preview.Description != "Readings from the east plot." {
		t.Fatalf("unexpected description: %q", preview.Description)
	}
	if preview.Author != "dana" {
		t.Fatalf("unexpected author: %q", preview.Author)
	}
}

func TestExtractPreviewFallsBackToTitleTag(t *testing.T) {
	t.Parallel()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`<html><head><title> Plain </title></head></html>`))
	if err != nil {
		t.Fatalf("new document: %v", err)
	}
	if got := extractPreview(doc).Title; got != "Plain" {
		t.Fatalf("unexpected title: %q", got)
	}
}

func TestHandleFromURL(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"https://warpcast.com/dana/0x1a2b":     "@dana",
		"https://www.warpcast.com/dana/0x1a2b": "@dana",
		"https://farcaster.xyz/eli/0x99":       "@eli",
		"https://example.org/dana/post":        "",
		"https://warpcast.com/":                "",
	}
	for raw, want := range cases {
		u, err := url.Parse(raw)
		if err != nil {
			t.Fatalf("parse %s: %v", raw, err)
		}
		if got := handleFromURL(u); got != want {
			t.Fatalf("%s: expected %q, got %q", raw, want, got)
		}
	}
}

func TestResolverResolve(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`<html><head><meta property="og:title" content="Cast"></head></html>`))
	}))
	defer server.Close()

	resolver := NewResolver(server.Client())
	ctx := context.Background()

	preview, err := resolver.Resolve(ctx, server.URL+"/post")
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if preview.Title != "Cast" || preview.URL != server.URL+"/post" {
		t.Fatalf("unexpected preview: %+v", preview)
	}

	if _, err := resolver.Resolve(ctx, server.URL+"/missing"); err == nil {
		t.Fatalf("expected error for missing post")
	}
	if _, err := resolver.Resolve(ctx, "ftp://example.org/x"); err == nil {
		t.Fatalf("expected error for non-http url")
	}
}
