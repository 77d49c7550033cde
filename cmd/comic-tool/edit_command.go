package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"comic-tool/internal/archive"
	"comic-tool/internal/editor"
	"comic-tool/internal/pages"
	"comic-tool/internal/util"
)

type editOptions struct {
	remove   string
	keep     string
	output   string
	noBackup bool
}

func newEditCommand(ctx *commandContext) *cobra.Command {
	var opts editOptions

	cmd := &cobra.Command{
		Use:   "edit <archive>",
		Short: "Remove pages from an archive",
		Long: `Edit drops pages from an archive and writes the remaining pages back,
renumbered. Pages are chosen with 1-based numbers and ranges such as
"1 3 5" or "1-3,7-9". Without --output the archive is rewritten in place
and keeps its container kind; the previous file is backed up first.`,
		Example: `  comic-tool edit issue-01.cbz --remove 1,24-26
  comic-tool edit issue-01.cbr --keep 2-23 --output issue-01-clean.cbz`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (opts.remove == "") == (opts.keep == "") {
				return errors.New("exactly one of --remove or --keep is required")
			}
			app, err := ctx.app(cmd)
			if err != nil {
				return err
			}
			saver := *app.Saver
			if opts.noBackup {
				saver.Backups = nil
			}

			out := newPrinter(cmd.OutOrStdout())
			return archive.WithPages(cmd.Context(), app.Extractor, args[0], func(set *pages.Set) error {
				if err := opts.apply(set); err != nil {
					return err
				}
				var res *editor.Result
				if opts.output != "" {
					res, err = saver.SaveAs(cmd.Context(), set, opts.output)
				} else {
					res, err = saver.SaveInPlace(cmd.Context(), set)
				}
				if err != nil {
					out.failure("%s: %s", filepath.Base(args[0]), reasonOf(err))
					return err
				}
				out.success("Kept %d of %d pages in %s", res.Built.Pages, set.Len(), res.Built.Path)
				if res.Built.FellBack {
					out.skipped("No RAR encoder found; wrote ZIP content")
				}
				if res.Backup != nil {
					out.success("Backup saved to %s", res.Backup.Path)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&opts.remove, "remove", "", "Pages to remove, e.g. \"1-3,5\"")
	cmd.Flags().StringVar(&opts.keep, "keep", "", "Pages to keep; everything else is removed")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Write to this path instead of in place")
	cmd.Flags().BoolVar(&opts.noBackup, "no-backup", false, "Do not back up the file being replaced")
	return cmd
}

func (o editOptions) apply(set *pages.Set) error {
	if o.remove != "" {
		picked, err := util.ParseSelection(o.remove, set.Len())
		if err != nil {
			return fmt.Errorf("--remove: %w", err)
		}
		indices := make([]int, 0, len(picked))
		for i := range picked {
			indices = append(indices, i)
		}
		return set.ApplyRemovals(indices)
	}

	picked, err := util.ParseSelection(o.keep, set.Len())
	if err != nil {
		return fmt.Errorf("--keep: %w", err)
	}
	mask := make([]bool, set.Len())
	for i := range mask {
		mask[i] = picked[i]
	}
	return set.ApplyMask(mask)
}
