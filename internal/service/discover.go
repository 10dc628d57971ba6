package service

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"strings"

	"github.com/raphaelgruber/qaharvest/internal/scraper"
)

// excludedPaths mark listing pages rather than articles.
var excludedPaths = []string{"/tag/", "/search", "/topics", "/archive"}

// PageFetcher returns the raw HTML of a page. *scraper.Scraper implements it.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Discoverer finds article URLs that have not been processed yet.
type Discoverer struct {
	fetcher  PageFetcher
	jobs     *JobManager
	seeds    []string
	tagPages []string
	logger   *slog.Logger
	shuffle  func([]string)
}

// NewDiscoverer creates a Discoverer over curated seed URLs and tag pages
// whose links are harvested.
func NewDiscoverer(f PageFetcher, jobs *JobManager, seeds, tagPages []string, logger *slog.Logger) *Discoverer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Discoverer{
		fetcher:  f,
		jobs:     jobs,
		seeds:    seeds,
		tagPages: tagPages,
		logger:   logger,
		shuffle: func(s []string) {
			rand.Shuffle(len(s), func(i, j int) { s[i], s[j] = s[j], s[i] })
		},
	}
}

// Discover returns up to count article URLs. Tag pages are harvested in
// random order; links already completed are skipped. When harvesting yields
// too few, unprocessed seeds fill the gap, and if every seed was processed
// the seeds are reused.
func (d *Discoverer) Discover(ctx context.Context, count int) ([]string, error) {
	if count <= 0 {
		return nil, nil
	}

	completed, err := d.jobs.CompletedURLs(ctx)
	if err != nil {
		return nil, err
	}
	done := make(map[string]bool, len(completed))
	for _, u := range completed {
		done[u] = true
	}

	var found []string
	seen := make(map[string]bool)
	add := func(u string) {
		if !seen[u] && len(found) < count {
			seen[u] = true
			found = append(found, u)
		}
	}

	pages := append([]string(nil), d.tagPages...)
	d.shuffle(pages)
	for _, page := range pages {
		if len(found) >= count || ctx.Err() != nil {
			break
		}
		for _, link := range d.harvest(ctx, page) {
			if !done[link] {
				add(link)
			}
		}
	}

	if len(found) < count {
		seeds := append([]string(nil), d.seeds...)
		d.shuffle(seeds)
		fresh := 0
		for _, s := range seeds {
			if !done[s] {
				add(s)
				fresh++
			}
		}
		if fresh == 0 {
			for _, s := range seeds {
				add(s)
			}
		}
	}

	d.logger.Info("article discovery finished", "requested", count, "found", len(found))
	return found, nil
}

// harvest returns candidate article links from one tag page. Fetch errors
// are logged and yield nothing.
func (d *Discoverer) harvest(ctx context.Context, page string) []string {
	html, err := d.fetcher.Fetch(ctx, page)
	if err != nil {
		d.logger.Warn("tag page fetch failed", "url", page, "error", err)
		return nil
	}

	links, err := scraper.ExtractLinks(html, page)
	if err != nil {
		d.logger.Warn("tag page parse failed", "url", page, "error", err)
		return nil
	}

	base, err := url.Parse(page)
	if err != nil {
		return nil
	}

	var out []string
	for _, link := range links {
		if u, ok := articleLink(link, base.Host); ok {
			out = append(out, u)
		}
	}
	return out
}

// articleLink keeps same-host, non-listing links and strips their query.
func articleLink(link, host string) (string, bool) {
	u, err := url.Parse(link)
	if err != nil || u.Host != host {
		return "", false
	}
	if u.Path == "" || u.Path == "/" {
		return "", false
	}
	for _, p := range excludedPaths {
		if strings.Contains(u.Path, p) {
			return "", false
		}
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), true
}
