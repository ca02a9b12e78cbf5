package extract

import (
	"bytes"
	"context"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// HTMLExtractor extracts readable text from clipped web pages. Script,
// style, and navigation chrome are dropped; block elements become line
// breaks; the <title> tag (or first <h1>) becomes the title.
type HTMLExtractor struct{}

// NewHTMLExtractor creates an HTML extractor.
func NewHTMLExtractor() *HTMLExtractor {
	return &HTMLExtractor{}
}

func (e *HTMLExtractor) Name() string { return "html" }

func (e *HTMLExtractor) Supports(contentType string) bool {
	switch baseContentType(contentType) {
	case "text/html", "application/xhtml+xml":
		return true
	}
	return false
}

// skippedElements are subtrees that never contain clip-worthy text.
var skippedElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Iframe:   true,
	atom.Nav:      true,
}

// blockElements get a newline after their content so text does not run
// together across visual boundaries.
var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true,
	atom.H5: true, atom.H6: true, atom.Tr: true, atom.Blockquote: true,
	atom.Pre: true, atom.Section: true, atom.Article: true,
}

func (e *HTMLExtractor) Extract(ctx context.Context, content []byte) (*Result, error) {
	doc, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	var title, firstH1 string
	var inBody bool

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			if skippedElements[n.DataAtom] {
				return
			}
			switch n.DataAtom {
			case atom.Title:
				if title == "" {
					title = strings.TrimSpace(textContent(n))
				}
				return
			case atom.Body:
				inBody = true
			case atom.H1:
				if firstH1 == "" {
					firstH1 = strings.TrimSpace(textContent(n))
				}
			}
		case html.TextNode:
			if inBody {
				if t := strings.TrimSpace(n.Data); t != "" {
					sb.WriteString(t)
					sb.WriteString(" ")
				}
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}

		if n.Type == html.ElementNode && inBody && blockElements[n.DataAtom] {
			sb.WriteString("\n")
		}
	}
	walk(doc)

	if title == "" {
		title = firstH1
	}

	extracted := normalizeWhitespace(sb.String())
	if title == "" {
		title = firstLineTitle(extracted)
	}
	return &Result{Text: extracted, Title: title}, nil
}

// textContent concatenates all text nodes under n.
func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

var _ Extractor = (*HTMLExtractor)(nil)
