package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDeleteCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <doc-id>...",
		Short: "Remove documents from the stash",
		Long: `Remove one or more documents by ID.

The document record, its chunks, and its entries in both search
indexes are removed. Deleting an unknown ID is not an error.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, _, err := root.openService(ctx)
			if err != nil {
				return err
			}
			defer svc.Close()

			r := root.renderer(cmd)
			var failed int
			for _, id := range args {
				if err := svc.DeleteFromIndex(ctx, id); err != nil {
					r.Error(fmt.Errorf("delete %s: %w", id, err))
					failed++
					continue
				}
				r.Success("deleted %s", id)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d deletions failed", failed, len(args))
			}
			return nil
		},
	}
}
