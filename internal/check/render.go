package check

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
)

// Format selects how reports are written.
type Format string

// Output formats.
const (
	FormatText     Format = "text"
	FormatTable    Format = "table"
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
)

// Formats lists the accepted formats.
func Formats() []Format {
	return []Format{FormatText, FormatTable, FormatMarkdown, FormatJSON}
}

// ParseFormat maps a flag value to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text":
		return FormatText, nil
	case "table":
		return FormatTable, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unknown output format %q", ErrInvalidConfig, s)
	}
}

// Render writes reports to w in the given format.
func Render(w io.Writer, format Format, reports []*Report) error {
	switch format {
	case FormatJSON:
		return renderJSON(w, reports)
	case FormatTable:
		return renderTable(w, reports, false)
	case FormatMarkdown:
		return renderTable(w, reports, true)
	default:
		return renderText(w, reports)
	}
}

// renderText prints the four shape lines per scenario, preceded by a header.
func renderText(w io.Writer, reports []*Report) error {
	for _, r := range reports {
		lines := []string{
			"Testing 3dCONV",
			fmt.Sprintf("output_size %v", r.OutputSize),
			fmt.Sprintf("reference_size %v", r.ReferenceSize),
			fmt.Sprintf("output_grad_size %v", r.OutputGradSize),
			fmt.Sprintf("reference_grad_size %v", r.ReferenceGradSize),
		}
		for _, line := range lines {
			if _, err := fmt.Fprintln(w, line); err != nil {
				return err
			}
		}
	}
	return nil
}

func renderTable(w io.Writer, reports []*Report, markdown bool) error {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Scenario", "Tensor", "Grouped", "Reference", "Max |diff|", "Mismatches", "Result"})

	for _, r := range reports {
		for _, c := range r.Comparisons() {
			grouped, reference := "", ""
			switch c.Name {
			case "output":
				grouped, reference = r.OutputSize.String(), r.ReferenceSize.String()
			case "input_grad":
				grouped, reference = r.OutputGradSize.String(), r.ReferenceGradSize.String()
			}
			t.AppendRow(table.Row{r.Scenario, c.Name, grouped, reference, fmt.Sprintf("%.3g", c.MaxAbsDiff), c.Mismatches, verdict(c.Within)})
		}
		t.AppendSeparator()
	}

	if markdown {
		t.RenderMarkdown()
	} else {
		t.Render()
	}
	return nil
}

func verdict(ok bool) string {
	if ok {
		return "PASS"
	}
	return "FAIL"
}

func renderJSON(w io.Writer, reports []*Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(reports)
}
