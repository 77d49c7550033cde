package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"comic-tool/cmd/comic-tool/utils"
	"comic-tool/internal/errs"
)

func newBackupsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backups",
		Short: "List, restore and prune archive backups",
	}
	cmd.AddCommand(newBackupsListCommand(ctx))
	cmd.AddCommand(newBackupsRevertCommand(ctx))
	cmd.AddCommand(newBackupsPruneCommand(ctx))
	return cmd
}

func newBackupsListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list <archive>",
		Short: "List backups of an archive, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.app(cmd)
			if err != nil {
				return err
			}
			records, err := app.Backups.List(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintf(out, "No backups of %s in %s\n", args[0], app.Backups.DirFor(args[0]))
				return nil
			}
			rows := make([][]string, 0, len(records))
			for _, rec := range records {
				rows = append(rows, []string{
					rec.Name(),
					rec.Timestamp.Local().Format("2006-01-02 15:04:05"),
					utils.HumanBytes(rec.Size),
				})
			}
			fmt.Fprintln(out, renderTable([]string{"Backup", "Taken", "Size"}, rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight}))
			return nil
		},
	}
}

func newBackupsRevertCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "revert <archive>",
		Short: "Replace an archive with its newest backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.app(cmd)
			if err != nil {
				return err
			}
			out := newPrinter(cmd.OutOrStdout())
			rec, err := app.Backups.Revert(cmd.Context(), args[0])
			if err != nil {
				out.failure("%s: %s", args[0], reasonOf(err))
				return err
			}
			out.success("Restored %s from %s", args[0], rec.Name())
			return nil
		},
	}
}

func newBackupsPruneCommand(ctx *commandContext) *cobra.Command {
	var keep int
	cmd := &cobra.Command{
		Use:   "prune <archive>",
		Short: "Delete all but the newest backups of an archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.app(cmd)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("keep") {
				keep = app.Config.Backup.KeepLast
			}
			if keep <= 0 {
				return errors.New("--keep must be at least 1 (or set backup.keep_last)")
			}
			deleted, err := app.Backups.Prune(args[0], keep)
			if err != nil {
				return err
			}
			out := newPrinter(cmd.OutOrStdout())
			for _, rec := range deleted {
				out.success("Deleted %s", rec.Name())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d backups deleted, newest %d kept\n", len(deleted), keep)
			return nil
		},
	}
	cmd.Flags().IntVar(&keep, "keep", 0, "Number of backups to keep")
	return cmd
}

func reasonOf(err error) string {
	return errs.Reason(err)
}
