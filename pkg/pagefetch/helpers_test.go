package pagefetch

import (
	"context"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/Sternrassler/bongard-harvester/pkg/client"
)

type stubGetter struct {
	body    string
	lastURL string
}

func (s *stubGetter) GetPage(_ context.Context, rawURL string) (*client.Response, error) {
	s.lastURL = rawURL
	return &client.Response{URL: rawURL, StatusCode: 200, Body: []byte(s.body)}, nil
}

func mustDoc(t *testing.T, body string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}
