// Package report renders validation results: verbatim JSON for machines,
// grouped-by-file text for humans.
package report

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/tallyboard/tally/internal/result"
)

// JSON writes the result verbatim.
func JSON(w io.Writer, res *result.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

type styles struct {
	file  lipgloss.Style
	rule  lipgloss.Style
	ok    lipgloss.Style
	bad   lipgloss.Style
	color bool
}

func newStyles(color bool) styles {
	s := styles{color: color}
	if !color {
		return s
	}
	s.file = lipgloss.NewStyle().Bold(true)
	s.rule = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	s.ok = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	s.bad = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	return s
}

func (s styles) render(st lipgloss.Style, text string) string {
	if !s.color {
		return text
	}
	return st.Render(text)
}

// Human writes the result grouped by file. The issue list arrives sorted,
// so grouping is a single pass.
func Human(w io.Writer, res *result.Result, color bool) {
	s := newStyles(color)

	if res.OK() {
		fmt.Fprintf(w, "%s %d files checked, no issues\n",
			s.render(s.ok, "ok:"), len(res.CheckedFiles))
		return
	}

	lastFile := ""
	for _, is := range res.Errors {
		if is.File != lastFile {
			if lastFile != "" {
				fmt.Fprintln(w)
			}
			fmt.Fprintln(w, s.render(s.file, is.File))
			lastFile = is.File
		}
		fmt.Fprintf(w, "  %-12s %s\n", s.render(s.rule, is.Rule), is.Message)
	}
	fmt.Fprintf(w, "\n%s %d issues in %d files checked\n",
		s.render(s.bad, "error:"), len(res.Errors), len(res.CheckedFiles))
}
