package diag

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
)

// Render writes the report for terminal display, errors first.
// Call Sort before Render for deterministic output.
func (r *Report) Render(w io.Writer) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()

	fmt.Fprintf(w, "\n%s\n", cyan(fmt.Sprintf("=== %s ===", r.Project)))

	if len(r.Diagnostics) == 0 {
		fmt.Fprintf(w, "  %s no issues found\n", green("✓"))
		return
	}

	for _, d := range r.Diagnostics {
		var icon, label string
		switch d.Severity {
		case SeverityError:
			icon, label = red("✗"), red(d.Code)
		case SeverityWarning:
			icon, label = yellow("⚠"), yellow(d.Code)
		default:
			icon, label = gray("·"), gray(d.Code)
		}

		loc := d.ID
		if loc == "" {
			loc = string(d.Stage)
		}
		if d.Rule != "" {
			loc = fmt.Sprintf("%s [%s]", loc, d.Rule)
		}
		fmt.Fprintf(w, "  %s %s %s: %s\n", icon, label, gray(loc), d.Message)
	}

	errs, warns, infos := r.Counts()
	fmt.Fprintf(w, "\n  %s error(s), %s warning(s), %d info\n",
		red(fmt.Sprintf("%d", errs)), yellow(fmt.Sprintf("%d", warns)), infos)
}

// RenderJSON writes the report as indented JSON for machine consumption.
func (r *Report) RenderJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
