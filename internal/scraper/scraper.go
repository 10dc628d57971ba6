// Package scraper fetches web articles and converts their main content to
// markdown.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/raphaelgruber/qaharvest/internal/metrics"
)

// ErrEmptyContent is returned when a page has no readable main content.
var ErrEmptyContent = errors.New("page has no readable content")

// maxBodyBytes bounds how much of a response body is read.
const maxBodyBytes = 10 << 20

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.Code)
}

// Article is a fetched page reduced to its main content.
type Article struct {
	URL      string
	Title    string
	Markdown string
}

// Options configures a Scraper.
type Options struct {
	UserAgent string
	// RequestsPerSecond is the per-host request rate.
	RequestsPerSecond float64
	Retry             RetryPolicy
	Client            *http.Client
}

// Scraper fetches pages with per-host rate limiting and retries.
type Scraper struct {
	client    *http.Client
	userAgent string
	rps       float64
	retry     RetryPolicy
	logger    *slog.Logger
	metrics   *metrics.Collector

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New creates a Scraper.
func New(opts Options, logger *slog.Logger, m *metrics.Collector) *Scraper {
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 1
	}
	if opts.Retry.MaxAttempts < 1 {
		opts.Retry = DefaultRetryPolicy(1)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scraper{
		client:    opts.Client,
		userAgent: opts.UserAgent,
		rps:       opts.RequestsPerSecond,
		retry:     opts.Retry,
		logger:    logger,
		metrics:   m,
		limiters:  make(map[string]*rate.Limiter),
	}
}

func (s *Scraper) limiter(host string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Limit(s.rps), 1)
		s.limiters[host] = l
	}
	return l
}

// Fetch returns the raw HTML at rawURL.
func (s *Scraper) Fetch(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid url %q", rawURL)
	}

	var body string
	err = s.retry.do(ctx, s.logger, func() (int, error) {
		if err := s.limiter(u.Host).Wait(ctx); err != nil {
			return 0, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return 0, err
		}
		if s.userAgent != "" {
			req.Header.Set("User-Agent", s.userAgent)
		}
		req.Header.Set("Accept", "text/html,application/xhtml+xml")
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")

		resp, err := s.client.Do(req)
		if err != nil {
			return 0, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
			return resp.StatusCode, &StatusError{Code: resp.StatusCode, URL: rawURL}
		}

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return resp.StatusCode, fmt.Errorf("read body: %w", err)
		}
		body = string(data)
		return resp.StatusCode, nil
	})
	if err != nil {
		return "", err
	}
	return body, nil
}

// Scrape fetches rawURL and converts its main content to markdown.
func (s *Scraper) Scrape(ctx context.Context, rawURL string) (*Article, error) {
	start := time.Now()
	article, err := s.scrape(ctx, rawURL)
	s.metrics.Observe(metrics.OpScrape, start, err)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("scraped article",
		"url", rawURL,
		"title", article.Title,
		"markdown_len", len(article.Markdown),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return article, nil
}

func (s *Scraper) scrape(ctx context.Context, rawURL string) (*Article, error) {
	html, err := s.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return ExtractArticle(html, rawURL)
}

// noiseSelectors are removed before picking the main content.
const noiseSelectors = "script, style, noscript, iframe, form, nav, footer, aside, svg, button"

// mainSelectors are tried in order; the first non-empty match wins.
var mainSelectors = []string{"article", "main", "[role=main]", "body"}

// ExtractArticle selects the main content of an HTML page and converts it
// to markdown. Relative links resolve against pageURL.
func ExtractArticle(html, pageURL string) (*Article, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1").First().Text())
	}

	doc.Find(noiseSelectors).Remove()

	var content *goquery.Selection
	for _, sel := range mainSelectors {
		if found := doc.Find(sel).First(); found.Length() > 0 && strings.TrimSpace(found.Text()) != "" {
			content = found
			break
		}
	}
	if content == nil {
		return nil, ErrEmptyContent
	}

	if base, err := url.Parse(pageURL); err == nil && base.IsAbs() {
		resolveLinks(content, base)
	}
	converter := md.NewConverter("", true, nil)
	markdown := strings.TrimSpace(converter.Convert(content))
	if markdown == "" {
		return nil, ErrEmptyContent
	}

	return &Article{URL: pageURL, Title: title, Markdown: markdown}, nil
}

// resolveLinks rewrites relative href and src attributes to absolute URLs.
func resolveLinks(sel *goquery.Selection, base *url.URL) {
	for _, attr := range []string{"href", "src"} {
		sel.Find("[" + attr + "]").Each(func(_ int, el *goquery.Selection) {
			raw, _ := el.Attr(attr)
			ref, err := url.Parse(strings.TrimSpace(raw))
			if err != nil || ref.IsAbs() || strings.HasPrefix(raw, "#") {
				return
			}
			el.SetAttr(attr, base.ResolveReference(ref).String())
		})
	}
}
