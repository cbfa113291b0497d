package relay

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/sync/errgroup"

	"github.com/n0madic/go-chatpipe/internal/config"
)

const (
	DefaultTitleTimeout = 10 * time.Second
	maxTitleBody        = 1 << 20
)

// TitleSource resolves the page title of a URL. An empty result means unknown.
type TitleSource interface {
	Title(ctx context.Context, rawURL string) string
}

// TitleFetcher fetches pages over HTTP and reads their <title>.
type TitleFetcher struct {
	Client  *http.Client
	Timeout time.Duration
}

// NewTitleFetcher returns a fetcher bounding each fetch by timeout.
func NewTitleFetcher(timeout time.Duration) *TitleFetcher {
	if timeout <= 0 {
		timeout = DefaultTitleTimeout
	}
	return &TitleFetcher{Client: &http.Client{}, Timeout: timeout}
}

// Title returns the trimmed page title, or "" on any failure or non-200 reply.
func (f *TitleFetcher) Title(ctx context.Context, rawURL string) string {
	ctx, cancel := context.WithTimeout(ctx, f.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return ""
	}
	config.ApplyDefaultHeaders(req.Header)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		slog.Debug("references.title.failed", "url", rawURL, "error", err)
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ""
	}
	return extractTitle(io.LimitReader(resp.Body, maxTitleBody))
}

func extractTitle(r io.Reader) string {
	z := html.NewTokenizer(r)
	inTitle := false
	var b strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.TrimSpace(b.String())
		case html.StartTagToken:
			if z.Token().DataAtom == atom.Title {
				inTitle = true
			}
		case html.EndTagToken:
			if inTitle && z.Token().DataAtom == atom.Title {
				return strings.TrimSpace(b.String())
			}
		case html.TextToken:
			if inTitle {
				b.Write(z.Text())
			}
		}
	}
}

// FormatReferences renders the collapsible reference list. Titles are fetched
// concurrently and awaited together; a failed fetch falls back to the domain.
func FormatReferences(ctx context.Context, citations []string, titles TitleSource) string {
	if len(citations) == 0 {
		return ""
	}
	resolved := make([]string, len(citations))
	if titles != nil {
		var g errgroup.Group
		for i, u := range citations {
			g.Go(func() error {
				resolved[i] = titles.Title(ctx, u)
				return nil
			})
		}
		_ = g.Wait()
	}

	lines := make([]string, 0, len(citations)+2)
	lines = append(lines, "\n\n<details>\n<summary>Reference Websites</summary>")
	for i, u := range citations {
		label := resolved[i]
		if label == "" {
			label = "News source: " + domainOf(u)
		}
		lines = append(lines, fmt.Sprintf("%d: [%s](%s)", i+1, label, u))
	}
	lines = append(lines, "</details>")
	return strings.Join(lines, "\n")
}

func domainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Host
}
