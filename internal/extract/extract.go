// Package extract turns a fetched documentation page into clean article text.
package extract

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/markusmobius/go-trafilatura"

	"github.com/docs-hound/docshound/internal/logger"
)

// MaxExcerptLength bounds Article.Excerpt, in characters.
const MaxExcerptLength = 200

// ErrNoContent is returned when a page has no extractable article body.
var ErrNoContent = errors.New("no article content found")

// Article is the readable content of one page.
type Article struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Excerpt string `json:"excerpt,omitempty"`
}

var whitespace = regexp.MustCompile(`\s+`)

// Extractor pulls the primary article out of HTML pages.
type Extractor struct {
	logger *logger.Logger
	md     *converter
}

// New creates an extractor. A nil logger discards output.
func New(log *logger.Logger) *Extractor {
	return &Extractor{
		logger: logger.OrNop(log).WithComponent("extract"),
		md:     newConverter(),
	}
}

// contentRoots are tried in order when trafilatura finds no article body.
var contentRoots = []string{"article", "main", "[role=main]", "body"}

// noise is removed from the fallback content root.
const noise = "script, style, noscript, template, iframe, svg, button, nav, header, footer, aside, form"

// Extract parses html fetched from pageURL and returns its article. Relative
// links in the content are resolved against pageURL.
func (e *Extractor) Extract(pageURL, html string) (*Article, error) {
	if strings.TrimSpace(html) == "" {
		return nil, fmt.Errorf("%s: %w", pageURL, ErrNoContent)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", pageURL, err)
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		base = &url.URL{}
	}

	title := extractTitle(doc)
	excerpt := metaContent(doc, `meta[name="description"]`, `meta[property="og:description"]`)

	var content string
	result, err := trafilatura.Extract(strings.NewReader(html), trafilatura.Options{
		OriginalURL:     base,
		EnableFallback:  true,
		IncludeLinks:    true,
		ExcludeComments: true,
	})
	if err == nil && result != nil && result.ContentNode != nil && collapse(result.ContentText) != "" {
		content = e.md.convert(goquery.NewDocumentFromNode(result.ContentNode).Selection, base)
		if title == "" {
			title = collapse(result.Metadata.Title)
		}
		if excerpt == "" {
			excerpt = firstLine(result.ContentText)
		}
	} else {
		e.logger.WithURL(pageURL).Debugf("No article found by trafilatura, using page body: %v", err)
		if root := fallbackRoot(doc); root != nil {
			if excerpt == "" {
				excerpt = collapse(root.Find("p").First().Text())
			}
			content = e.md.convert(root, base)
		}
	}
	if content == "" {
		return nil, fmt.Errorf("%s: %w", pageURL, ErrNoContent)
	}
	if title == "" {
		title = "Untitled"
	}

	e.logger.WithURL(pageURL).Debugf("Extracted %q (%d chars)", title, len(content))

	return &Article{
		Title:   title,
		Content: content,
		Excerpt: truncate(excerpt, MaxExcerptLength),
	}, nil
}

// extractTitle prefers the first h1, then og:title, then <title>.
func extractTitle(doc *goquery.Document) string {
	if h1 := collapse(doc.Find("h1").First().Text()); h1 != "" {
		return h1
	}
	if og := metaContent(doc, `meta[property="og:title"]`); og != "" {
		return og
	}
	return collapse(doc.Find("title").First().Text())
}

// metaContent returns the first non-empty content attribute among selectors.
func metaContent(doc *goquery.Document, selectors ...string) string {
	for _, sel := range selectors {
		if v, ok := doc.Find(sel).First().Attr("content"); ok {
			if v = collapse(v); v != "" {
				return v
			}
		}
	}
	return ""
}

// fallbackRoot strips page chrome and returns the first non-empty content
// root, or nil when the page has no text left.
func fallbackRoot(doc *goquery.Document) *goquery.Selection {
	doc.Find(noise).Remove()
	for _, sel := range contentRoots {
		if s := doc.Find(sel).First(); s.Length() > 0 && collapse(s.Text()) != "" {
			return s
		}
	}
	return nil
}

func firstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if line = collapse(line); line != "" {
			return line
		}
	}
	return ""
}

func collapse(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n-3])) + "..."
}
