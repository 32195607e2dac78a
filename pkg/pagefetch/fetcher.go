// Package pagefetch turns a problem ID into a validated Page: it fetches the
// problem page, extracts the example image references in document order,
// enforces the fixed twelve-image shape and locates the solution text.
package pagefetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/Sternrassler/bongard-harvester/pkg/client"
	"github.com/Sternrassler/bongard-harvester/pkg/problem"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var pageOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "harvest_page_fetch_total",
	Help: "Problem page fetches by outcome (ok or failure kind)",
}, []string{"outcome"})

// DefaultImagePathMarker selects example images among all <img> tags.
const DefaultImagePathMarker = "/examples/"

// PageGetter is the transport capability the fetcher needs.
type PageGetter interface {
	GetPage(ctx context.Context, rawURL string) (*client.Response, error)
}

// Config holds fetcher configuration.
type Config struct {
	// BaseURL is the problem URL prefix; the numeric ID is appended ("https://oebp.org/BP").
	BaseURL string

	// AssetBaseURL resolves relative image references. Defaults to the origin of BaseURL.
	AssetBaseURL string

	// ImagePathMarker must appear in an image src for it to count. Defaults to "/examples/".
	ImagePathMarker string
}

// Fetcher fetches and validates problem pages.
type Fetcher struct {
	getter    PageGetter
	baseURL   string
	assetBase *url.URL
	marker    string
	logger    zerolog.Logger
}

// New creates a fetcher.
func New(getter PageGetter, cfg Config, logger zerolog.Logger) (*Fetcher, error) {
	if getter == nil {
		return nil, fmt.Errorf("page getter is required")
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", cfg.BaseURL)
	}

	assetRaw := cfg.AssetBaseURL
	if assetRaw == "" {
		assetRaw = base.Scheme + "://" + base.Host
	}
	assetBase, err := url.Parse(assetRaw)
	if err != nil || assetBase.Scheme == "" || assetBase.Host == "" {
		return nil, fmt.Errorf("invalid asset base url %q", assetRaw)
	}

	marker := cfg.ImagePathMarker
	if marker == "" {
		marker = DefaultImagePathMarker
	}

	return &Fetcher{
		getter:    getter,
		baseURL:   cfg.BaseURL,
		assetBase: assetBase,
		marker:    marker,
		logger:    logger,
	}, nil
}

// URL returns the page URL of a problem.
func (f *Fetcher) URL(id problem.ID) string {
	return f.baseURL + strconv.Itoa(int(id))
}

// Fetch retrieves and validates the page of problem id.
// Failures are returned as *problem.Failure.
func (f *Fetcher) Fetch(ctx context.Context, id problem.ID) (*problem.Page, error) {
	pageURL := f.URL(id)

	resp, err := f.getter.GetPage(ctx, pageURL)
	if err != nil {
		kind := classify(err)
		pageOutcomes.WithLabelValues(string(kind)).Inc()
		return nil, problem.NewFailure(id, kind, err)
	}

	page, err := f.parse(id, pageURL, resp.Body)
	if err != nil {
		kind := problem.KindOf(err)
		pageOutcomes.WithLabelValues(string(kind)).Inc()
		return nil, err
	}

	pageOutcomes.WithLabelValues("ok").Inc()
	f.logger.Debug().
		Int("problem_id", int(id)).
		Bool("cached", resp.Cached).
		Bool("solution_found", page.SolutionFound).
		Msg("Problem page validated")

	return page, nil
}

func (f *Fetcher) parse(id problem.ID, pageURL string, body []byte) (*problem.Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, problem.NewFailure(id, problem.KindValidation, fmt.Errorf("%w: parse html: %v", problem.ErrValidation, err))
	}

	images := f.extractImageURLs(doc)
	if len(images) != problem.ImagesPerProblem {
		return nil, problem.NewFailure(id, problem.KindValidation,
			fmt.Errorf("%w: found %d example images, want %d", problem.ErrValidation, len(images), problem.ImagesPerProblem))
	}

	page := &problem.Page{
		ID:        id,
		URL:       pageURL,
		ImageURLs: images,
	}
	page.SolutionText, page.SolutionFound = extractSolution(doc, id)
	if !page.SolutionFound {
		f.logger.Warn().Int("problem_id", int(id)).Msg("Solution text not found on page")
	}

	return page, nil
}

// extractImageURLs returns every example image reference in document order.
// Duplicates are kept: the count gate is applied to what the page shows.
func (f *Fetcher) extractImageURLs(doc *goquery.Document) []string {
	var urls []string
	doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		src = strings.TrimSpace(src)
		if src == "" || !strings.Contains(src, f.marker) {
			return
		}
		ref, err := url.Parse(src)
		if err != nil {
			f.logger.Debug().Str("src", src).Err(err).Msg("Skipping unparseable image reference")
			return
		}
		urls = append(urls, f.assetBase.ResolveReference(ref).String())
	})
	return urls
}

// extractSolution finds the link labelled with the problem's canonical name,
// walks up to its table row and returns the text of the row's third cell.
func extractSolution(doc *goquery.Document, id problem.ID) (string, bool) {
	name := id.Name()
	href := "/" + name

	var text string
	found := false
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if v, _ := a.Attr("href"); v != href || strings.TrimSpace(a.Text()) != name {
			return true
		}
		cells := a.Closest("tr").Find("td")
		if cells.Length() < 3 {
			return true
		}
		text = normalizeSpace(cells.Eq(2).Text())
		found = true
		return false
	})
	return text, found
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// classify maps transport errors to problem failure kinds.
func classify(err error) problem.Kind {
	switch {
	case errors.Is(err, client.ErrNotFound):
		return problem.KindNotFound
	case client.ClassOf(err) == client.ErrorClassNetwork:
		return problem.KindNetwork
	case errors.Is(err, client.ErrRetryExhausted):
		return problem.KindRetriable
	case client.ClassOf(err) != "":
		return problem.KindHTTPStatus
	default:
		return problem.KindInternal
	}
}
