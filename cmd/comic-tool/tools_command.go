package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"comic-tool/internal/archive"
)

func newToolsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "Report which RAR tools are available",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			tools := archive.DetectTools(cfg.ToolOptions())
			fmt.Fprintln(cmd.OutOrStdout(), renderTools(tools))
			return nil
		},
	}
}

func renderTools(t archive.Tools) string {
	orNone := func(s string) string {
		if s == "" {
			return "not found"
		}
		return s
	}
	rows := [][]string{
		{"Decoder mode", string(t.Decoder)},
		{"RAR reading", t.RarDecoder()},
		{"unrar", orNone(t.Unrar)},
		{"rar", orNone(t.Rar)},
		{"Can read CBR", yesNo(t.CanDecodeRar())},
		{"Can write CBR", yesNo(t.CanEncodeRar())},
	}
	return renderTable([]string{"Capability", "Value"}, rows, nil)
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
