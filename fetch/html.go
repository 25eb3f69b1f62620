package fetch

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

const defaultUserAgent = "ragstore/1.0"

// HTTPFetcher downloads a web page and extracts its readable text.
// Pages in legacy encodings are transcoded to UTF-8 before parsing.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
}

// NewHTTPFetcher builds a fetcher with the given request timeout.
// A zero timeout defaults to 10 seconds.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPFetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: defaultUserAgent,
	}
}

// Fetch downloads the URL and returns its title and extracted text.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching %s: %v", ErrFetch, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: fetching %s: status %d", ErrFetch, url, resp.StatusCode)
	}

	// charset.NewReader sniffs the encoding from the Content-Type
	// header and the document head, then transcodes to UTF-8.
	body, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("%w: detecting charset for %s: %v", ErrFetch, url, err)
	}

	root, err := html.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing HTML from %s: %v", ErrFetch, url, err)
	}

	return &Page{
		Source:  url,
		Title:   pageTitle(root),
		Content: pageText(root),
	}, nil
}

// pageTitle returns the text of the first <title> element.
func pageTitle(root *html.Node) string {
	var title string
	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "title" {
			title = strings.TrimSpace(textContent(n))
			return true
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	walk(root)
	return title
}

// contentSelectors name elements likely to hold the main article
// body, tried in order before falling back to <body>.
var contentSelectors = []func(*html.Node) bool{
	func(n *html.Node) bool { return hasAttr(n, "id", "content") },
	func(n *html.Node) bool { return hasClass(n, "news_content") },
	func(n *html.Node) bool { return hasClass(n, "article-content") },
	func(n *html.Node) bool { return n.Data == "article" },
	func(n *html.Node) bool { return n.Data == "main" },
	func(n *html.Node) bool { return n.Data == "body" },
}

// pageText extracts readable text, preferring the main content
// element when one can be identified.
func pageText(root *html.Node) string {
	for _, match := range contentSelectors {
		if n := findElement(root, match); n != nil {
			if text := normaliseText(textContent(n)); text != "" {
				return text
			}
		}
	}
	return normaliseText(textContent(root))
}

func findElement(root *html.Node, match func(*html.Node) bool) *html.Node {
	if root.Type == html.ElementNode && match(root) {
		return root
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if n := findElement(c, match); n != nil {
			return n
		}
	}
	return nil
}

// skipElements are never part of readable content.
var skipElements = map[string]bool{
	"script": true, "style": true, "noscript": true,
	"nav": true, "header": true, "footer": true, "aside": true,
	"iframe": true, "form": true,
}

// textContent concatenates the text nodes under n, inserting line
// breaks at block boundaries and skipping non-content elements.
func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skipElements[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode {
			switch n.Data {
			case "p", "div", "br", "li", "tr", "h1", "h2", "h3", "h4", "h5", "h6":
				b.WriteString("\n")
			}
		}
	}
	walk(n)
	return b.String()
}

// normaliseText collapses runs of blank lines and trims each line.
func normaliseText(s string) string {
	lines := strings.Split(s, "\n")
	var out []string
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

func hasAttr(n *html.Node, key, val string) bool {
	if n.Type != html.ElementNode {
		return false
	}
	for _, a := range n.Attr {
		if a.Key == key && a.Val == val {
			return true
		}
	}
	return false
}

func hasClass(n *html.Node, class string) bool {
	if n.Type != html.ElementNode {
		return false
	}
	for _, a := range n.Attr {
		if a.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(a.Val) {
			if c == class {
				return true
			}
		}
	}
	return false
}
