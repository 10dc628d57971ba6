package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/qaharvest/internal/metrics"
)

const articlePage = `<!DOCTYPE html>
<html>
<head><title>Swift Interview Questions</title><script>var x = 1;</script></head>
<body>
  <nav><a href="/home">Home</a></nav>
  <article>
    <h1>Swift Interview Questions</h1>
    <p>ARC is <strong>automatic reference counting</strong>.</p>
    <p>See <a href="/tag/swift">more</a>.</p>
  </article>
  <footer>Copyright</footer>
</body>
</html>`

func fastRetry(attempts int) RetryPolicy {
	p := DefaultRetryPolicy(attempts)
	p.InitialBackoff = time.Millisecond
	p.MaxBackoff = 5 * time.Millisecond
	return p
}

func TestExtractArticle(t *testing.T) {
	a, err := ExtractArticle(articlePage, "https://example.com/post/1")
	require.NoError(t, err)

	assert.Equal(t, "Swift Interview Questions", a.Title)
	assert.Contains(t, a.Markdown, "# Swift Interview Questions")
	assert.Contains(t, a.Markdown, "**automatic reference counting**")
	assert.Contains(t, a.Markdown, "https://example.com/tag/swift")
	assert.NotContains(t, a.Markdown, "Home")
	assert.NotContains(t, a.Markdown, "Copyright")
	assert.NotContains(t, a.Markdown, "var x")
}

func TestExtractArticleResolvesRelativeLinks(t *testing.T) {
	page := `<html><body><article>
	<p>Read <a href="../guide/arc">the guide</a> and <a href="https://swift.org/docs">the docs</a>.</p>
	<p><img src="/img/arc.png" alt="arc"></p>
	</article></body></html>`

	a, err := ExtractArticle(page, "https://example.com/posts/1")
	require.NoError(t, err)

	assert.Contains(t, a.Markdown, "(https://example.com/guide/arc)")
	assert.Contains(t, a.Markdown, "(https://swift.org/docs)")
	assert.Contains(t, a.Markdown, "(https://example.com/img/arc.png)")
	assert.NotContains(t, a.Markdown, "%2F")
}

func TestExtractArticleFallsBackToBody(t *testing.T) {
	a, err := ExtractArticle(`<html><body><p>Plain body text.</p></body></html>`, "https://example.com/")
	require.NoError(t, err)
	assert.Equal(t, "Plain body text.", a.Markdown)
}

func TestExtractArticleEmpty(t *testing.T) {
	_, err := ExtractArticle(`<html><body><script>only()</script></body></html>`, "https://example.com/")
	assert.ErrorIs(t, err, ErrEmptyContent)
}

func TestScrape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "qaharvest-test", r.Header.Get("User-Agent"))
		fmt.Fprint(w, articlePage)
	}))
	defer srv.Close()

	c := metrics.NewCollector()
	s := New(Options{UserAgent: "qaharvest-test", RequestsPerSecond: 100, Retry: fastRetry(1)}, nil, c)

	a, err := s.Scrape(context.Background(), srv.URL+"/post/1")
	require.NoError(t, err)
	assert.Equal(t, "Swift Interview Questions", a.Title)
	assert.Equal(t, int64(1), c.Snapshot().Operations[metrics.OpScrape].Count)
}

func TestFetchRetriesTransientStatus(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, "<p>ok</p>")
	}))
	defer srv.Close()

	s := New(Options{RequestsPerSecond: 1000, Retry: fastRetry(3)}, nil, nil)

	body, err := s.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "<p>ok</p>", body)
	assert.Equal(t, int32(3), hits.Load())
}

func TestFetchDoesNotRetryClientErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	s := New(Options{RequestsPerSecond: 1000, Retry: fastRetry(3)}, nil, nil)

	_, err := s.Fetch(context.Background(), srv.URL)
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.Code)
	assert.Equal(t, int32(1), hits.Load())
}

func TestFetchInvalidURL(t *testing.T) {
	s := New(Options{}, nil, nil)
	_, err := s.Fetch(context.Background(), "not a url")
	assert.Error(t, err)
}

func TestFetchHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	s := New(Options{RequestsPerSecond: 1000, Retry: fastRetry(3)}, nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := s.Fetch(ctx, srv.URL)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestExtractLinks(t *testing.T) {
	html := `<html><body>
		<a href="/p/one">one</a>
		<a href="/p/one#comments">one again</a>
		<a href="https://other.example.org/x">other</a>
		<a href="mailto:me@example.com">mail</a>
		<a href="javascript:void(0)">js</a>
		<a href="#top">top</a>
		<a href="">empty</a>
	</body></html>`

	links, err := ExtractLinks(html, "https://example.com/tag/swift")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://example.com/p/one",
		"https://other.example.org/x",
	}, links)
}
