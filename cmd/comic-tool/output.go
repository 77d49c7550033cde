package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
)

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// printer writes status lines, coloured only on a terminal.
type printer struct {
	out  io.Writer
	ok   *color.Color
	fail *color.Color
	skip *color.Color
}

func newPrinter(out io.Writer) *printer {
	p := &printer{
		out:  out,
		ok:   color.New(color.FgGreen),
		fail: color.New(color.FgRed),
		skip: color.New(color.FgYellow),
	}
	tty := isTerminal(out)
	for _, c := range []*color.Color{p.ok, p.fail, p.skip} {
		if tty {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

func (p *printer) success(format string, args ...any) {
	fmt.Fprintf(p.out, "%s %s\n", p.ok.Sprint("✓"), fmt.Sprintf(format, args...))
}

func (p *printer) failure(format string, args ...any) {
	fmt.Fprintf(p.out, "%s %s\n", p.fail.Sprint("✗"), fmt.Sprintf(format, args...))
}

func (p *printer) skipped(format string, args ...any) {
	fmt.Fprintf(p.out, "%s %s\n", p.skip.Sprint("-"), fmt.Sprintf(format, args...))
}

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range headers {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}
