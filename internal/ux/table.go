package ux

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	labelStyle  = lipgloss.NewStyle().Bold(true)
)

// Table is a list of rows under a header, printed as a bordered table.
type Table struct {
	Headers []string
	Rows    [][]string
	// Footer is printed below the table when set.
	Footer string
}

// RenderText implements TextRenderer.
func (t Table) RenderText(w io.Writer, styled bool) error {
	if len(t.Rows) == 0 {
		_, err := fmt.Fprintln(w, "No results.")
		return err
	}

	tbl := table.New().
		Headers(t.Headers...).
		Rows(t.Rows...).
		Border(lipgloss.NormalBorder()).
		BorderRow(false)
	if styled {
		tbl = tbl.StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	} else {
		tbl = tbl.StyleFunc(func(int, int) lipgloss.Style { return cellStyle })
	}

	if _, err := fmt.Fprintln(w, tbl.Render()); err != nil {
		return err
	}
	if t.Footer != "" {
		_, err := fmt.Fprintln(w, t.Footer)
		return err
	}
	return nil
}

// Field is one labelled value of a Detail view.
type Field struct {
	Label string
	Value string
}

// Detail prints a single record as aligned label/value lines. Empty values
// are skipped.
type Detail struct {
	Title  string
	Fields []Field
	// Body is printed after the fields, separated by a blank line.
	Body string
}

// RenderText implements TextRenderer.
func (d Detail) RenderText(w io.Writer, styled bool) error {
	if d.Title != "" {
		title := d.Title
		if styled {
			title = labelStyle.Render(title)
		}
		if _, err := fmt.Fprintln(w, title); err != nil {
			return err
		}
	}

	width := 0
	for _, f := range d.Fields {
		if f.Value != "" && len(f.Label) > width {
			width = len(f.Label)
		}
	}
	for _, f := range d.Fields {
		if f.Value == "" {
			continue
		}
		label := fmt.Sprintf("%-*s", width+1, f.Label+":")
		if styled {
			label = labelStyle.Render(label)
		}
		if _, err := fmt.Fprintf(w, "  %s %s\n", label, f.Value); err != nil {
			return err
		}
	}

	if d.Body != "" {
		if _, err := fmt.Fprintf(w, "\n%s\n", d.Body); err != nil {
			return err
		}
	}
	return nil
}

var (
	_ TextRenderer = Table{}
	_ TextRenderer = Detail{}
)
