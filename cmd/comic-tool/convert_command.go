package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"comic-tool/cmd/comic-tool/utils"
	"comic-tool/internal/archive"
	"comic-tool/internal/batch"
)

type convertOptions struct {
	recursive bool
	noBackup  bool
	overwrite bool
	to        string
	sourceExt string
	summary   bool
}

func newConvertCommand(ctx *commandContext) *cobra.Command {
	var opts convertOptions

	cmd := &cobra.Command{
		Use:   "convert <file|directory>",
		Short: "Convert CBR archives to CBZ",
		Long: `Convert rewrites every page of each source archive into a new archive
with renumbered page names. Sources are backed up first unless --no-backup
is given; existing outputs are skipped unless --overwrite is given.

The command exits non-zero unless every source was converted; skipped
sources count as unsuccessful.`,
		Example: `  comic-tool convert ~/Comics -r
  comic-tool convert issue-01.cbr --overwrite
  comic-tool convert ~/Comics --source-ext .cbz --to cbr`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(cmd, ctx, args[0], opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.recursive, "recursive", "r", false, "Descend into subdirectories")
	cmd.Flags().BoolVar(&opts.noBackup, "no-backup", false, "Do not back up sources before converting")
	cmd.Flags().BoolVar(&opts.overwrite, "overwrite", false, "Replace outputs that already exist")
	cmd.Flags().StringVar(&opts.to, "to", "cbz", "Output container: cbz or cbr")
	cmd.Flags().StringVar(&opts.sourceExt, "source-ext", ".cbr", "Extension of the archives to convert")
	cmd.Flags().BoolVar(&opts.summary, "summary", true, "Print a summary table after a directory run")
	return cmd
}

func (o convertOptions) batchOptions(backupsEnabled bool) (batch.Options, error) {
	kind, err := archive.ParseKind(o.to)
	if err != nil {
		return batch.Options{}, err
	}
	target := ".cbz"
	if kind == archive.KindRar {
		target = ".cbr"
	}
	return batch.Options{
		Recursive:     o.recursive,
		CreateBackups: backupsEnabled && !o.noBackup,
		Overwrite:     o.overwrite,
		SourceExt:     o.sourceExt,
		TargetExt:     target,
		TargetKind:    kind,
	}, nil
}

func runConvert(cmd *cobra.Command, ctx *commandContext, target string, opts convertOptions) error {
	app, err := ctx.app(cmd)
	if err != nil {
		return err
	}
	bopts, err := opts.batchOptions(app.Config.Backup.Enabled)
	if err != nil {
		return err
	}

	out := newPrinter(cmd.OutOrStdout())
	pipeline := app.Pipeline()

	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("%s: %w", target, err)
	}

	if !info.IsDir() {
		item := pipeline.ConvertFile(cmd.Context(), target, bopts)
		printItem(out, item)
		switch item.Status {
		case batch.StatusFailed:
			return fmt.Errorf("1 of 1 conversions failed")
		case batch.StatusSkipped:
			return fmt.Errorf("1 of 1 conversions skipped (%s)", item.Reason)
		}
		return nil
	}

	var bar *progressbar.ProgressBar
	showBar := isTerminal(cmd.ErrOrStderr())
	pipeline.Progress = func(done, total int, item batch.Item) {
		if showBar {
			if bar == nil {
				bar = progressbar.NewOptions(total,
					progressbar.OptionSetWriter(cmd.ErrOrStderr()),
					progressbar.OptionSetDescription("Converting"),
					progressbar.OptionShowCount(),
					progressbar.OptionClearOnFinish(),
				)
			}
			_ = bar.Set(done)
			return
		}
		printItem(out, item)
	}

	result, err := pipeline.Run(cmd.Context(), target, bopts)
	if bar != nil {
		_ = bar.Finish()
	}
	if err != nil {
		return err
	}

	if len(result.Items) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No %s files found in %s\n", bopts.SourceExt, target)
		return nil
	}
	if showBar {
		for _, item := range result.Items {
			printItem(out, item)
		}
	}
	if opts.summary {
		fmt.Fprintln(cmd.OutOrStdout(), renderBatchSummary(result))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d converted, %d skipped, %d failed\n", result.Converted, result.Skipped, result.Failed)

	switch {
	case result.Failed > 0 && result.Skipped > 0:
		return fmt.Errorf("%d of %d conversions failed, %d skipped", result.Failed, len(result.Items), result.Skipped)
	case result.Failed > 0:
		return fmt.Errorf("%d of %d conversions failed", result.Failed, len(result.Items))
	case !result.AllConverted():
		return fmt.Errorf("%d of %d conversions skipped", result.Skipped, len(result.Items))
	}
	return nil
}

func printItem(out *printer, item batch.Item) {
	name := utils.DisplayPath(item.Path)
	switch item.Status {
	case batch.StatusConverted:
		detail := strconv.Itoa(item.Pages) + " pages"
		if item.FellBack {
			detail += ", ZIP content (no RAR encoder)"
		}
		out.success("%s -> %s (%s)", name, filepath.Base(item.Dest), detail)
	case batch.StatusSkipped:
		out.skipped("%s (%s)", name, item.Reason)
	case batch.StatusFailed:
		out.failure("%s: %s", name, item.Reason)
	}
}

func renderBatchSummary(result *batch.Result) string {
	rows := make([][]string, 0, len(result.Items))
	for _, item := range result.Items {
		detail := item.Reason
		if item.Status == batch.StatusConverted {
			detail = strconv.Itoa(item.Pages) + " pages"
		}
		rows = append(rows, []string{
			string(item.Status),
			utils.DisplayPath(item.Path),
			filepath.Base(item.Dest),
			detail,
			strconv.Itoa(len(item.Backups)),
		})
	}
	return renderTable(
		[]string{"Status", "Source", "Output", "Detail", "Backups"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
	)
}
