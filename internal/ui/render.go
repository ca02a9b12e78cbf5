package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/clipstash/clipstash/internal/scanner"
	"github.com/clipstash/clipstash/internal/search"
	"github.com/clipstash/clipstash/internal/service"
)

// snippetMaxLen bounds the preview text per result.
const snippetMaxLen = 160

// Renderer formats command output.
type Renderer struct {
	out    io.Writer
	styles Styles
}

// NewRenderer creates a renderer for the writer. Styling is enabled
// only for interactive terminals without NO_COLOR, and never in CI.
func NewRenderer(out io.Writer) *Renderer {
	plain := !IsTTY(out) || DetectNoColor() || DetectCI()
	return &Renderer{out: out, styles: GetStyles(plain)}
}

// NewPlainRenderer creates a renderer with styling off regardless of
// the terminal.
func NewPlainRenderer(out io.Writer) *Renderer {
	return &Renderer{out: out, styles: NoColorStyles()}
}

// SearchResults renders a search response.
func (r *Renderer) SearchResults(resp *search.Response) {
	if resp.Unavailable {
		fmt.Fprintln(r.out, r.styles.Error.Render("search unavailable: both indexes failed"))
		return
	}
	if resp.Degraded {
		fmt.Fprintln(r.out, r.styles.Warning.Render("(degraded: one index side unavailable)"))
	}
	if len(resp.Results) == 0 {
		fmt.Fprintln(r.out, r.styles.Dim.Render("no results"))
		return
	}

	for i, res := range resp.Results {
		title := res.Title
		if title == "" {
			title = res.DocID
		}
		fmt.Fprintf(r.out, "%s %s %s\n",
			r.styles.Score.Render(fmt.Sprintf("%2d. [%.3f]", i+1, res.Score)),
			r.styles.Title.Render(title),
			r.styles.Dim.Render(res.DocID),
		)
		fmt.Fprintf(r.out, "    %s\n", r.styles.Snippet.Render(snippet(res.Text)))

		var details []string
		if res.InBoth {
			details = append(details, "both indexes")
		}
		if len(res.MatchedTerms) > 0 {
			details = append(details, "matched: "+strings.Join(res.MatchedTerms, ", "))
		}
		if len(res.Tags) > 0 {
			details = append(details, "tags: "+strings.Join(res.Tags, ", "))
		}
		if len(details) > 0 {
			fmt.Fprintf(r.out, "    %s\n", r.styles.Label.Render(strings.Join(details, " | ")))
		}
	}

	fmt.Fprintln(r.out, r.styles.Dim.Render(
		fmt.Sprintf("%d results in %s", len(resp.Results), resp.Duration.Round(time.Millisecond))))
}

// Stats renders stash statistics.
func (r *Renderer) Stats(stats *service.Stats) {
	fmt.Fprintf(r.out, "%s %d\n", r.styles.Label.Render("documents:"), stats.TotalDocs)
	fmt.Fprintf(r.out, "%s %d\n", r.styles.Label.Render("chunks:"), stats.TotalChunks)

	last := "never"
	if !stats.LastUpdated.IsZero() {
		last = stats.LastUpdated.Local().Format(time.RFC3339)
	}
	fmt.Fprintf(r.out, "%s %s\n", r.styles.Label.Render("last updated:"), last)

	if stats.ModelLoaded {
		fmt.Fprintf(r.out, "%s %s\n", r.styles.Label.Render("embedder:"),
			r.styles.Success.Render(stats.EmbedModel))
	} else {
		fmt.Fprintf(r.out, "%s %s\n", r.styles.Label.Render("embedder:"),
			r.styles.Warning.Render("unavailable (keyword-only)"))
	}
}

// ScanReport renders an integrity scan report.
func (r *Renderer) ScanReport(report *scanner.Report) {
	fmt.Fprintf(r.out, "%s %d docs checked in %s\n",
		r.styles.Label.Render("scan:"),
		report.DocsChecked,
		report.Duration.Round(time.Millisecond))

	if report.Purged > 0 {
		fmt.Fprintf(r.out, "%s %d expired deletions removed\n",
			r.styles.Label.Render("purged:"), report.Purged)
	}

	if len(report.MissingVector) == 0 && len(report.MissingKeyword) == 0 && report.Failed == 0 {
		fmt.Fprintln(r.out, r.styles.Success.Render("indexes consistent"))
		return
	}

	fmt.Fprintf(r.out, "%s vector=%d keyword=%d\n",
		r.styles.Warning.Render("missing:"), len(report.MissingVector), len(report.MissingKeyword))
	fmt.Fprintf(r.out, "%s %d reindexed, %d failed\n",
		r.styles.Label.Render("repair:"), report.Reindexed, report.Failed)
}

// Success renders a success line.
func (r *Renderer) Success(format string, args ...any) {
	fmt.Fprintln(r.out, r.styles.Success.Render(fmt.Sprintf(format, args...)))
}

// Error renders an error line.
func (r *Renderer) Error(err error) {
	fmt.Fprintln(r.out, r.styles.Error.Render("error: "+err.Error()))
}

// snippet returns a single-line preview of chunk text.
func snippet(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) <= snippetMaxLen {
		return text
	}
	cut := text[:snippetMaxLen]
	if idx := strings.LastIndexByte(cut, ' '); idx > snippetMaxLen/2 {
		cut = cut[:idx]
	}
	return cut + "..."
}

// IsTTY checks if output is a terminal.
func IsTTY(w io.Writer) bool {
	if w == nil {
		return false
	}
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

// DetectNoColor checks if the NO_COLOR environment variable is set.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// DetectCI checks if running in a CI environment.
func DetectCI() bool {
	ciVars := []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"}
	for _, v := range ciVars {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}
