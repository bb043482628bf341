package extract

import (
	"html"
	"net/url"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"github.com/PuerkitoBio/goquery"
)

var languageClass = regexp.MustCompile(`(?:^|\s)(?:language|lang)-([\w+#-]+)`)

var blankRun = regexp.MustCompile(`\n{3,}`)

// converter renders extracted article nodes as GitHub-flavored markdown.
type converter struct {
	conv *md.Converter
}

func newConverter() *converter {
	conv := md.NewConverter("", true, &md.Options{
		HeadingStyle:     "atx",
		BulletListMarker: "-",
		CodeBlockStyle:   "fenced",
		Fence:            "```",
		EmDelimiter:      "_",
		StrongDelimiter:  "**",
	})
	conv.Use(plugin.GitHubFlavored())
	conv.AddRules(
		md.Rule{Filter: []string{"pre"}, Replacement: codeBlock},
		md.Rule{Filter: []string{"code"}, Replacement: bareCodeBlock},
	)
	return &converter{conv: conv}
}

// convert resolves links in sel against base and renders it. Links that only
// point at a fragment of the same page are kept as plain text.
func (c *converter) convert(sel *goquery.Selection, base *url.URL) string {
	sel.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		if href == "" || strings.HasPrefix(href, "#") {
			a.ReplaceWithHtml(html.EscapeString(a.Text()))
			return
		}
		if ref, err := url.Parse(href); err == nil {
			a.SetAttr("href", base.ResolveReference(ref).String())
		}
	})

	out := c.conv.Convert(sel)
	return strings.TrimSpace(blankRun.ReplaceAllString(out, "\n\n"))
}

// codeBlock renders a pre element as a fenced block, taking the language from
// a language-* or lang-* class on the pre or its code child.
func codeBlock(_ string, sel *goquery.Selection, _ *md.Options) *string {
	lang := language(sel)
	if lang == "" {
		lang = language(sel.Find("code").First())
	}
	return md.String(fence(sel.Text(), lang))
}

// bareCodeBlock handles multi-line code elements that are not wrapped in pre,
// which is how extracted content usually carries listings.
func bareCodeBlock(_ string, sel *goquery.Selection, _ *md.Options) *string {
	if sel.ParentsFiltered("pre").Length() > 0 || !strings.Contains(sel.Text(), "\n") {
		return nil
	}
	return md.String(fence(sel.Text(), language(sel)))
}

func fence(code, lang string) string {
	return "\n\n```" + lang + "\n" + strings.Trim(code, "\n") + "\n```\n\n"
}

func language(sel *goquery.Selection) string {
	if m := languageClass.FindStringSubmatch(sel.AttrOr("class", "")); m != nil {
		return m[1]
	}
	return ""
}
