package extract

import (
	"context"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownExtractor converts markdown to plain text via the goldmark
// AST: prose and code blocks are kept, formatting syntax is dropped.
// The first level-1 heading becomes the title.
type MarkdownExtractor struct {
	parser goldmark.Markdown
}

// NewMarkdownExtractor creates a markdown extractor.
func NewMarkdownExtractor() *MarkdownExtractor {
	return &MarkdownExtractor{
		parser: goldmark.New(),
	}
}

func (e *MarkdownExtractor) Name() string { return "markdown" }

func (e *MarkdownExtractor) Supports(contentType string) bool {
	switch baseContentType(contentType) {
	case "text/markdown", "text/x-markdown", "markdown":
		return true
	}
	return false
}

func (e *MarkdownExtractor) Extract(ctx context.Context, content []byte) (*Result, error) {
	reader := text.NewReader(content)
	doc := e.parser.Parser().Parse(reader)

	var sb strings.Builder
	var title string

	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Heading:
			headingText := string(node.Text(content))
			if title == "" && node.Level == 1 {
				title = headingText
			}
			sb.WriteString(headingText)
			sb.WriteString("\n\n")
			return ast.WalkSkipChildren, nil

		case *ast.Paragraph, *ast.TextBlock:
			sb.WriteString(inlineText(n, content))
			sb.WriteString("\n\n")
			return ast.WalkSkipChildren, nil

		case *ast.FencedCodeBlock:
			writeCodeLines(&sb, node.Lines(), content)
			sb.WriteString("\n")
			return ast.WalkSkipChildren, nil

		case *ast.CodeBlock:
			writeCodeLines(&sb, node.Lines(), content)
			sb.WriteString("\n")
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, err
	}

	extracted := normalizeWhitespace(sb.String())
	if title == "" {
		title = firstLineTitle(extracted)
	}
	return &Result{Text: extracted, Title: title}, nil
}

// inlineText flattens the inline children of a block node, resolving
// emphasis, links, and inline code to their text content.
func inlineText(n ast.Node, source []byte) string {
	var sb strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch node := c.(type) {
		case *ast.Text:
			sb.Write(node.Segment.Value(source))
			if node.SoftLineBreak() || node.HardLineBreak() {
				sb.WriteString(" ")
			}
		case *ast.CodeSpan, *ast.Emphasis, *ast.Link:
			sb.WriteString(inlineText(c, source))
		case *ast.AutoLink:
			sb.Write(node.URL(source))
		case *ast.Image:
			// alt text only
			sb.WriteString(inlineText(c, source))
		default:
			sb.WriteString(inlineText(c, source))
		}
	}
	return sb.String()
}

// writeCodeLines copies the raw lines of a code block.
func writeCodeLines(sb *strings.Builder, lines *text.Segments, source []byte) {
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		sb.Write(seg.Value(source))
	}
}

var _ Extractor = (*MarkdownExtractor)(nil)
