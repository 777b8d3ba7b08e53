// Package scraper fetches download counts from the plugin portal's
// catalogue pages.
package scraper

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/openbeans/plugin-counter/internal/errs"
)

// Client fetches download counts for plugins.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// New creates a scraper client against the given portal base URL.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}
}

// FetchDownloadCount loads the catalogue page for the plugin and extracts
// its total download count. All failures wrap errs.ErrFetchFailed.
func (c *Client) FetchDownloadCount(ctx context.Context, pluginID string) (int64, error) {
	url := fmt.Sprintf("%s/catalogue/?id=%s", c.baseURL, pluginID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: build request: %v", errs.ErrFetchFailed, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: fetch %s: %v", errs.ErrFetchFailed, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: fetch %s: status %d", errs.ErrFetchFailed, url, resp.StatusCode)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("%w: parse page: %v", errs.ErrFetchFailed, err)
	}

	count, err := extractDownloadCount(doc)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errs.ErrFetchFailed, err)
	}
	return count, nil
}

// extractDownloadCount locates the fa-download icon and reads the number
// following it; if the markup shifts, it falls back to the last number in
// the icon's paragraph.
func extractDownloadCount(doc *html.Node) (int64, error) {
	icon := findDownloadIcon(doc)
	if icon == nil {
		return 0, fmt.Errorf("could not find download icon on page")
	}

	if icon.NextSibling != nil && icon.NextSibling.Type == html.TextNode {
		if n, ok := digitsIn(icon.NextSibling.Data); ok {
			return n, nil
		}
	}

	text := nodeText(icon.Parent)
	var last int64
	found := false
	for _, part := range strings.Fields(text) {
		if n, err := strconv.ParseInt(part, 10, 64); err == nil {
			last = n
			found = true
		}
	}
	if !found {
		return 0, fmt.Errorf("could not extract download count from: %s", strings.TrimSpace(text))
	}
	return last, nil
}

func findDownloadIcon(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "i" {
		for _, a := range n.Attr {
			if a.Key == "class" && strings.Contains(a.Val, "fa-download") {
				return n
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findDownloadIcon(c); found != nil {
			return found
		}
	}
	return nil
}

func nodeText(n *html.Node) string {
	if n == nil {
		return ""
	}
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(nodeText(c))
		sb.WriteString(" ")
	}
	return sb.String()
}

func digitsIn(s string) (int64, bool) {
	var sb strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	if sb.Len() == 0 {
		return 0, false
	}
	n, err := strconv.ParseInt(sb.String(), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
