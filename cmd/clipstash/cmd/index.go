package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/clipstash/clipstash/internal/docstore"
)

// extensionTypes maps file extensions to content types for CLI imports.
var extensionTypes = map[string]string{
	".txt":      "text/plain",
	".log":      "text/plain",
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".html":     "text/html",
	".htm":      "text/html",
}

type indexOptions struct {
	id          string
	title       string
	contentType string
	tags        []string
	sourceURL   string
}

func newIndexCmd(root *rootOptions) *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "index [file...]",
		Short: "Add documents to the stash",
		Long: `Index one or more files, or standard input when no files are given.

Each document is stored, chunked, embedded, and written to both the
vector and keyword indexes.

Examples:
  clipstash index notes.md
  clipstash index --title "Meeting notes" --tags work < notes.txt
  clipstash index docs/*.md`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd, root, args, opts)
		},
	}

	cmd.Flags().StringVar(&opts.id, "id", "", "Document ID (single input only; default: generated)")
	cmd.Flags().StringVar(&opts.title, "title", "", "Document title (single input only)")
	cmd.Flags().StringVarP(&opts.contentType, "type", "t", "", "Content type (default: from file extension)")
	cmd.Flags().StringSliceVar(&opts.tags, "tags", nil, "Tags to attach (repeatable)")
	cmd.Flags().StringVar(&opts.sourceURL, "source", "", "Source URL to record")

	return cmd
}

func runIndex(cmd *cobra.Command, root *rootOptions, args []string, opts indexOptions) error {
	if len(args) > 1 && (opts.id != "" || opts.title != "") {
		return fmt.Errorf("--id and --title apply to a single input only")
	}

	ctx := cmd.Context()
	svc, _, err := root.openService(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	out := root.renderer(cmd)

	var docs []*docstore.Document
	if len(args) == 0 {
		content, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		contentType := opts.contentType
		if contentType == "" {
			contentType = "text/plain"
		}
		docs = append(docs, &docstore.Document{
			ID:          opts.id,
			Title:       opts.title,
			Content:     content,
			ContentType: contentType,
			Tags:        opts.tags,
			SourceURL:   opts.sourceURL,
		})
	} else {
		for _, path := range args {
			doc, err := documentFromFile(path, opts)
			if err != nil {
				return err
			}
			docs = append(docs, doc)
		}
	}

	if len(docs) == 1 {
		result, err := svc.IndexDocument(ctx, docs[0])
		if err != nil {
			return err
		}
		if result.NoContent {
			out.Success("stored %s (no indexable content)", result.DocID)
		} else {
			out.Success("indexed %s (%d chunks)", result.DocID, result.ChunkCount)
		}
		return nil
	}

	result := svc.IndexBatch(ctx, docs)
	out.Success("indexed %d documents (%d empty, %d failed)",
		result.Indexed, result.NoContent, len(result.Failed))
	for _, failed := range result.Failed {
		out.Error(fmt.Errorf("%s: %w", failed.DocID, failed.Err))
	}
	if len(result.Failed) > 0 {
		return fmt.Errorf("%d documents failed", len(result.Failed))
	}
	return nil
}

// documentFromFile builds a document from a file path.
func documentFromFile(path string, opts indexOptions) (*docstore.Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	contentType := opts.contentType
	if contentType == "" {
		contentType = extensionTypes[strings.ToLower(filepath.Ext(path))]
		if contentType == "" {
			contentType = "text/plain"
		}
	}

	title := opts.title
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	return &docstore.Document{
		ID:          opts.id,
		Title:       title,
		Content:     content,
		ContentType: contentType,
		Tags:        opts.tags,
		SourceURL:   opts.sourceURL,
	}, nil
}
