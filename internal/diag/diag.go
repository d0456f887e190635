// Package diag aggregates parse errors, graph inconsistencies, and
// compliance violations into a single ordered report with severities.
package diag

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// Severity classifies a diagnostic. Errors block the pipeline stage that
// follows the one reporting them; warnings and info entries never block.
type Severity int

const (
	// SeverityInfo is purely informational.
	SeverityInfo Severity = iota

	// SeverityWarning is reported but non-blocking.
	SeverityWarning

	// SeverityError blocks derivation from proceeding to the next stage.
	SeverityError
)

// String returns the lowercase severity name.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalJSON serializes the severity as its name.
func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON restores a severity from its name.
func (s *Severity) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch name {
	case "info":
		*s = SeverityInfo
	case "warning":
		*s = SeverityWarning
	case "error":
		*s = SeverityError
	default:
		return fmt.Errorf("unknown severity %q", name)
	}
	return nil
}

// Stage names the pipeline stage that produced a diagnostic.
type Stage string

const (
	StageLoad   Stage = "load"
	StageParse  Stage = "parse"
	StageGraph  Stage = "graph"
	StageDerive Stage = "derive"
	StageCheck  Stage = "check"
)

// Diagnostic is one entry in a report: a stable machine-readable code plus
// human text and the originating identifier.
type Diagnostic struct {
	// Code is a stable machine-readable identifier (e.g. "CYCLE_DETECTED").
	Code string `json:"code"`

	Severity Severity `json:"severity"`

	Stage Stage `json:"stage"`

	// ID is the offending node identifier, empty for document-level entries.
	ID string `json:"id,omitempty"`

	// Rule is the constitution rule identifier for compliance diagnostics.
	Rule string `json:"rule,omitempty"`

	Message string `json:"message"`
}

// Report is the ordered diagnostic output of one compilation run for one
// project. Entries are grouped by severity: errors first, then warnings,
// then informational.
type Report struct {
	// RunID uniquely identifies the compilation run that produced this
	// report. All projects compiled in one invocation share it.
	RunID string `json:"run_id"`

	// Project is the numbered project directory name.
	Project string `json:"project"`

	Diagnostics []Diagnostic `json:"diagnostics"`
}

// NewReport creates an empty report for the given project.
func NewReport(project string) *Report {
	return &Report{
		RunID:       uuid.NewString(),
		Project:     project,
		Diagnostics: make([]Diagnostic, 0),
	}
}

// Add appends diagnostics to the report.
func (r *Report) Add(ds ...Diagnostic) {
	r.Diagnostics = append(r.Diagnostics, ds...)
}

// Sort orders entries by (severity desc, id, rule, code). The sort is
// stable so diagnostics produced in parallel land in a deterministic order
// regardless of execution interleaving.
func (r *Report) Sort() {
	sort.SliceStable(r.Diagnostics, func(i, j int) bool {
		a, b := r.Diagnostics[i], r.Diagnostics[j]
		if a.Severity != b.Severity {
			return a.Severity > b.Severity
		}
		if a.ID != b.ID {
			return a.ID < b.ID
		}
		if a.Rule != b.Rule {
			return a.Rule < b.Rule
		}
		return a.Code < b.Code
	})
}

// HasErrors reports whether any entry is an error.
func (r *Report) HasErrors() bool {
	for _, d := range r.Diagnostics {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// HasWarnings reports whether any entry is a warning.
func (r *Report) HasWarnings() bool {
	for _, d := range r.Diagnostics {
		if d.Severity == SeverityWarning {
			return true
		}
	}
	return false
}

// Counts returns the number of errors, warnings, and info entries.
func (r *Report) Counts() (errors, warnings, infos int) {
	for _, d := range r.Diagnostics {
		switch d.Severity {
		case SeverityError:
			errors++
		case SeverityWarning:
			warnings++
		default:
			infos++
		}
	}
	return
}

// Escalate promotes every warning to an error. Used in strict mode, where
// unresolved clarifications and compliance warnings gate automation.
func (r *Report) Escalate() {
	for i := range r.Diagnostics {
		if r.Diagnostics[i].Severity == SeverityWarning {
			r.Diagnostics[i].Severity = SeverityError
		}
	}
}
