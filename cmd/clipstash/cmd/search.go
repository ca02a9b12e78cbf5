package cmd

import (
	"bufio"
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"github.com/clipstash/clipstash/internal/search"
)

type searchOptions struct {
	limit       int
	keywordOnly bool
	vectorOnly  bool
	perChunk    bool
	jsonOutput  bool
	interactive bool
}

func newSearchCmd(root *rootOptions) *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the stash",
		Long: `Search saved documents with hybrid retrieval.

Semantic and keyword searches run in parallel and their rankings are
fused; results are grouped so each document appears once, represented
by its best matching chunk.

Examples:
  clipstash search "kubernetes ingress"
  clipstash search "error handling" --limit 5
  clipstash search "exact phrase words" --keyword-only
  clipstash search --interactive`,
		Args: func(cmd *cobra.Command, args []string) error {
			if opts.interactive {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.MinimumNArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.interactive {
				return runInteractive(cmd, root, opts)
			}
			return runSearch(cmd, root, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().BoolVar(&opts.keywordOnly, "keyword-only", false, "Use keyword search only (skip semantic search)")
	cmd.Flags().BoolVar(&opts.vectorOnly, "vector-only", false, "Use semantic search only (skip keyword search)")
	cmd.Flags().BoolVar(&opts.perChunk, "per-chunk", false, "Return individual passages instead of one result per document")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output results as JSON")
	cmd.Flags().BoolVarP(&opts.interactive, "interactive", "i", false, "Read queries from stdin, one per line")

	return cmd
}

func runSearch(cmd *cobra.Command, root *rootOptions, query string, opts searchOptions) error {
	ctx := cmd.Context()
	svc, _, err := root.openService(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	resp, err := svc.HybridSearch(ctx, query, search.Options{
		Limit:       opts.limit,
		KeywordOnly: opts.keywordOnly,
		VectorOnly:  opts.vectorOnly,
		PerChunk:    opts.perChunk,
	})
	if err != nil {
		return err
	}

	if opts.jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	root.renderer(cmd).SearchResults(resp)
	return nil
}

// runInteractive reads queries from stdin one per line and searches as
// they arrive. Bursts of input are debounced through the coalescer, so
// rapid retyping runs only the newest query.
func runInteractive(cmd *cobra.Command, root *rootOptions, opts searchOptions) error {
	ctx := cmd.Context()
	svc, _, err := root.openService(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	co := svc.NewCoalescer()
	defer co.Close()

	type outcome struct {
		seq  int
		resp *search.Response
		err  error
	}
	delivered := make(chan outcome, 16)

	r := root.renderer(cmd)
	searchOpts := search.Options{
		Limit:       opts.limit,
		KeywordOnly: opts.keywordOnly,
		VectorOnly:  opts.vectorOnly,
		PerChunk:    opts.perChunk,
	}

	render := func(out outcome) {
		if out.err != nil {
			r.Error(out.err)
			return
		}
		r.SearchResults(out.resp)
	}

	var submitted, rendered int
	in := bufio.NewScanner(cmd.InOrStdin())
	for in.Scan() {
		query := strings.TrimSpace(in.Text())
		if query == "" {
			continue
		}

		submitted++
		seq := submitted
		co.Submit(ctx, query, searchOpts, func(resp *search.Response, err error) {
			delivered <- outcome{seq: seq, resp: resp, err: err}
		})

		for drained := false; !drained; {
			select {
			case out := <-delivered:
				rendered = out.seq
				render(out)
			default:
				drained = true
			}
		}
	}
	if err := in.Err(); err != nil {
		return err
	}

	// The newest submit always delivers; anything older may have been
	// superseded and dropped.
	for rendered < submitted {
		out := <-delivered
		rendered = out.seq
		render(out)
	}
	return nil
}
