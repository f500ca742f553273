package ingest

import (
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	pdf "github.com/dslipak/pdf"
	"golang.org/x/net/html"
)

// Page is one unit of extracted source text. PDFs produce one Page per PDF
// page; plain-text and HTML files produce a single Page.
type Page struct {
	Number int
	Text   string
}

func isSupportedFile(path string) bool {
	l := strings.ToLower(path)
	return strings.HasSuffix(l, ".pdf") ||
		strings.HasSuffix(l, ".md") ||
		strings.HasSuffix(l, ".txt") ||
		strings.HasSuffix(l, ".html") ||
		strings.HasSuffix(l, ".htm")
}

func extractPages(path string) ([]Page, error) {
	l := strings.ToLower(path)
	switch {
	case strings.HasSuffix(l, ".pdf"):
		return extractPDFPages(path)

	case strings.HasSuffix(l, ".html") || strings.HasSuffix(l, ".htm"):
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return singlePage(extractMainText(string(data))), nil

	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return singlePage(string(data)), nil
	}
}

func singlePage(text string) []Page {
	text = sanitizeUTF8(strings.TrimSpace(text))
	if text == "" {
		return nil
	}
	return []Page{{Number: 1, Text: text}}
}

func extractPDFPages(path string) ([]Page, error) {
	r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening pdf %s: %w", path, err)
	}

	var pages []Page
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extracting page %d of %s: %w", i, path, err)
		}
		text = sanitizeUTF8(strings.TrimSpace(text))
		if text == "" {
			continue
		}
		pages = append(pages, Page{Number: i, Text: text})
	}
	return pages, nil
}

// extractMainText strips tags and script/style bodies from an HTML document.
func extractMainText(htmlStr string) string {
	doc, err := html.Parse(strings.NewReader(htmlStr))
	if err != nil {
		return ""
	}

	var b strings.Builder
	var walk func(*html.Node, bool)

	walk = func(n *html.Node, skip bool) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript":
				skip = true
			}
		}

		if n.Type == html.TextNode && !skip {
			t := strings.TrimSpace(n.Data)
			if t != "" {
				b.WriteString(t)
				b.WriteString("\n")
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, skip)
		}
	}
	walk(doc, false)

	lines := strings.Split(b.String(), "\n")
	var filtered []string
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if len(l) > 1 {
			filtered = append(filtered, l)
		}
	}
	return strings.Join(filtered, "\n")
}

// sanitizeUTF8 drops invalid bytes so stored content is always valid UTF-8.
func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for len(s) > 0 {
		r, size := utf8.DecodeRuneInString(s)
		if r == utf8.RuneError && size == 1 {
			s = s[1:]
			continue
		}
		b.WriteRune(r)
		s = s[size:]
	}
	return b.String()
}
