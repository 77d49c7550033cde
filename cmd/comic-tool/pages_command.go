package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"comic-tool/cmd/comic-tool/utils"
	"comic-tool/internal/archive"
	"comic-tool/internal/pages"
)

func newPagesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "pages <archive>",
		Short: "List the pages of an archive in reading order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.app(cmd)
			if err != nil {
				return err
			}
			ref, err := archive.Identify(args[0])
			if err != nil {
				return err
			}
			return archive.WithPages(cmd.Context(), app.Extractor, args[0], func(set *pages.Set) error {
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderPages(set))
				fmt.Fprintf(out, "%d pages, %s container, %s\n", set.Len(), ref.Kind, utils.HumanBytes(ref.Size))
				return nil
			})
		},
	}
}

func renderPages(set *pages.Set) string {
	list := set.Pages()
	rows := make([][]string, 0, len(list))
	for _, p := range list {
		rows = append(rows, []string{
			strconv.Itoa(p.Index + 1),
			p.ID,
			utils.HumanBytes(p.Size),
			utils.TruncateString(p.Checksum, 12),
		})
	}
	return renderTable(
		[]string{"#", "Entry", "Size", "BLAKE3"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft},
	)
}
