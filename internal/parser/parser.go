// Package parser turns raw YAML document text into document model instances,
// enforcing schema rules and collecting clarification warnings.
//
// Parsing is pure and total for well-formed input: identical bytes always
// yield an identical document model. Nothing here reads the clock or the
// filesystem.
package parser

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/specc-dev/specc/internal/diag"
	"github.com/specc-dev/specc/internal/types"
)

// Diagnostic codes emitted by this package.
const (
	CodeSchema               = "SCHEMA_ERROR"
	CodeDuplicateID          = "DUPLICATE_ID"
	CodeBadIdentifier        = "BAD_IDENTIFIER"
	CodeClarificationPending = "CLARIFICATION_PENDING"
)

// SchemaError is a malformed-document error: missing required field,
// duplicate identifier, identifier not matching the <Prefix><3-digit>
// pattern, or a reference pointing at the wrong identifier category.
// It is fatal and aborts the document's load.
type SchemaError struct {
	Kind  types.DocKind
	ID    types.Identifier // offending identifier, if known
	Field string           // offending field, if known
	Msg   string
}

// Error implements the error interface.
func (e *SchemaError) Error() string {
	loc := string(e.Kind)
	if e.ID != "" {
		loc += " " + string(e.ID)
	}
	if e.Field != "" {
		loc += "." + e.Field
	}
	return fmt.Sprintf("schema error in %s: %s", loc, e.Msg)
}

func schemaErr(kind types.DocKind, id types.Identifier, field, format string, args ...interface{}) error {
	return &SchemaError{Kind: kind, ID: id, Field: field, Msg: fmt.Sprintf(format, args...)}
}

// decodeStrict unmarshals YAML rejecting unknown fields, so typos in
// authored documents surface as schema errors instead of silent drops.
func decodeStrict(data []byte, out interface{}) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

// ParseSpec parses spec.yml bytes into a SpecDocument. Clarification
// markers produce non-fatal warnings in the returned diagnostics; schema
// violations return a *SchemaError.
func ParseSpec(data []byte) (*types.SpecDocument, []diag.Diagnostic, error) {
	var doc types.SpecDocument
	if err := decodeStrict(data, &doc); err != nil {
		return nil, nil, schemaErr(types.DocKindSpec, "", "", "malformed YAML: %v", err)
	}

	if strings.TrimSpace(doc.Name) == "" {
		return nil, nil, schemaErr(types.DocKindSpec, "", "name", "name is required")
	}
	if doc.Lifecycle == "" {
		doc.Lifecycle = types.LifecycleDraft
	}
	if !doc.Lifecycle.IsValid() {
		return nil, nil, schemaErr(types.DocKindSpec, "", "lifecycle", "invalid lifecycle %q", doc.Lifecycle)
	}

	seen := make(map[types.Identifier]bool)
	var warnings []diag.Diagnostic

	checkReq := func(r *types.Requirement, want types.Category, field string) error {
		if err := r.ID.Validate(); err != nil {
			return schemaErr(types.DocKindSpec, r.ID, field, "%v", err)
		}
		if r.ID.Category() != want {
			return schemaErr(types.DocKindSpec, r.ID, field,
				"identifier %s has category %s, expected %s", r.ID, r.ID.Category(), want)
		}
		if seen[r.ID] {
			return schemaErr(types.DocKindSpec, r.ID, field, "duplicate identifier %s", r.ID)
		}
		seen[r.ID] = true
		if strings.TrimSpace(r.Description) == "" {
			return schemaErr(types.DocKindSpec, r.ID, "description", "description is required")
		}
		if strings.Contains(r.Description, types.ClarificationMarker) {
			r.NeedsClarification = true
			warnings = append(warnings, diag.Diagnostic{
				Code:     CodeClarificationPending,
				Severity: diag.SeverityWarning,
				Stage:    diag.StageParse,
				ID:       string(r.ID),
				Message:  fmt.Sprintf("requirement %s contains an unresolved clarification marker", r.ID),
			})
		}
		return nil
	}

	for i := range doc.Requirements.Functional {
		if err := checkReq(&doc.Requirements.Functional[i], types.CategoryFunctional, "requirements.functional"); err != nil {
			return nil, nil, err
		}
	}
	for i := range doc.Requirements.NonFunctional {
		if err := checkReq(&doc.Requirements.NonFunctional[i], types.CategoryNonFunctional, "requirements.non_functional"); err != nil {
			return nil, nil, err
		}
	}
	for i := range doc.Scenarios {
		s := &doc.Scenarios[i]
		if err := s.ID.Validate(); err != nil {
			return nil, nil, schemaErr(types.DocKindSpec, s.ID, "user_scenarios", "%v", err)
		}
		if s.ID.Category() != types.CategoryScenario {
			return nil, nil, schemaErr(types.DocKindSpec, s.ID, "user_scenarios",
				"identifier %s has category %s, expected %s", s.ID, s.ID.Category(), types.CategoryScenario)
		}
		if seen[s.ID] {
			return nil, nil, schemaErr(types.DocKindSpec, s.ID, "user_scenarios", "duplicate identifier %s", s.ID)
		}
		seen[s.ID] = true
	}

	// A document containing unresolved clarifications cannot claim a
	// lifecycle at or past "ready".
	if doc.Lifecycle.AtLeast(types.LifecycleReady) && len(warnings) > 0 {
		return nil, nil, schemaErr(types.DocKindSpec, "", "lifecycle",
			"lifecycle %q not allowed while clarification markers remain", doc.Lifecycle)
	}

	return &doc, warnings, nil
}

// ParsePlan parses plan.yml bytes into a PlanDocument.
func ParsePlan(data []byte) (*types.PlanDocument, []diag.Diagnostic, error) {
	var doc types.PlanDocument
	if err := decodeStrict(data, &doc); err != nil {
		return nil, nil, schemaErr(types.DocKindPlan, "", "", "malformed YAML: %v", err)
	}

	seen := make(map[types.Identifier]bool)
	for i := range doc.Items {
		item := &doc.Items[i]
		if err := item.ID.Validate(); err != nil {
			return nil, nil, schemaErr(types.DocKindPlan, item.ID, "plan_items", "%v", err)
		}
		if item.ID.Category() != types.CategoryPlanItem {
			return nil, nil, schemaErr(types.DocKindPlan, item.ID, "plan_items",
				"identifier %s has category %s, expected %s", item.ID, item.ID.Category(), types.CategoryPlanItem)
		}
		if seen[item.ID] {
			return nil, nil, schemaErr(types.DocKindPlan, item.ID, "plan_items", "duplicate identifier %s", item.ID)
		}
		seen[item.ID] = true
		if !item.Flag.IsValid() {
			return nil, nil, schemaErr(types.DocKindPlan, item.ID, "flag", "invalid flag %q", item.Flag)
		}
		// Orphaned items may have an empty coverage set; everything else
		// must implement at least one requirement.
		if len(item.Implements) == 0 && item.Flag != types.FlagOrphaned {
			return nil, nil, schemaErr(types.DocKindPlan, item.ID, "implements",
				"plan item must implement at least one requirement")
		}
		for _, ref := range item.Implements {
			if err := ref.Validate(); err != nil {
				return nil, nil, schemaErr(types.DocKindPlan, item.ID, "implements", "%v", err)
			}
			switch ref.Category() {
			case types.CategoryFunctional, types.CategoryNonFunctional:
			default:
				// A plan item pointing anywhere but upstream is a
				// backwards reference, rejected before graph build.
				return nil, nil, schemaErr(types.DocKindPlan, item.ID, "implements",
					"plan item may only implement requirements, not %s %s", ref.Category(), ref)
			}
		}
		for _, dep := range item.DependsOn {
			if err := dep.Validate(); err != nil {
				return nil, nil, schemaErr(types.DocKindPlan, item.ID, "depends_on", "%v", err)
			}
			if dep.Category() != types.CategoryPlanItem {
				return nil, nil, schemaErr(types.DocKindPlan, item.ID, "depends_on",
					"plan item may only depend on other plan items, not %s %s", dep.Category(), dep)
			}
			if dep == item.ID {
				return nil, nil, schemaErr(types.DocKindPlan, item.ID, "depends_on",
					"plan item cannot depend on itself")
			}
		}
	}

	return &doc, nil, nil
}

// ParseTasks parses tasks.yml bytes into a TaskDocument.
func ParseTasks(data []byte) (*types.TaskDocument, []diag.Diagnostic, error) {
	var doc types.TaskDocument
	if err := decodeStrict(data, &doc); err != nil {
		return nil, nil, schemaErr(types.DocKindTasks, "", "", "malformed YAML: %v", err)
	}

	seen := make(map[types.Identifier]bool)
	for i := range doc.Tasks {
		task := &doc.Tasks[i]
		if err := task.ID.Validate(); err != nil {
			return nil, nil, schemaErr(types.DocKindTasks, task.ID, "tasks", "%v", err)
		}
		if task.ID.Category() != types.CategoryTask {
			return nil, nil, schemaErr(types.DocKindTasks, task.ID, "tasks",
				"identifier %s has category %s, expected %s", task.ID, task.ID.Category(), types.CategoryTask)
		}
		if seen[task.ID] {
			return nil, nil, schemaErr(types.DocKindTasks, task.ID, "tasks", "duplicate identifier %s", task.ID)
		}
		seen[task.ID] = true
		if !task.Flag.IsValid() {
			return nil, nil, schemaErr(types.DocKindTasks, task.ID, "flag", "invalid flag %q", task.Flag)
		}
		if task.PlanItem == "" && task.Flag != types.FlagOrphaned {
			return nil, nil, schemaErr(types.DocKindTasks, task.ID, "plan_item", "task must reference a plan item")
		}
		if task.PlanItem != "" {
			if err := task.PlanItem.Validate(); err != nil {
				return nil, nil, schemaErr(types.DocKindTasks, task.ID, "plan_item", "%v", err)
			}
			if task.PlanItem.Category() != types.CategoryPlanItem {
				return nil, nil, schemaErr(types.DocKindTasks, task.ID, "plan_item",
					"task may only reference a plan item, not %s %s", task.PlanItem.Category(), task.PlanItem)
			}
		}
		if task.Status == "" {
			task.Status = types.TaskPending
		}
		if !task.Status.IsValid() {
			return nil, nil, schemaErr(types.DocKindTasks, task.ID, "status", "invalid status %q", task.Status)
		}
	}

	return &doc, nil, nil
}

// Parse dispatches on the expected document kind.
func Parse(kind types.DocKind, data []byte) (interface{}, []diag.Diagnostic, error) {
	switch kind {
	case types.DocKindSpec:
		return ParseSpec(data)
	case types.DocKindPlan:
		return ParsePlan(data)
	case types.DocKindTasks:
		return ParseTasks(data)
	default:
		return nil, nil, fmt.Errorf("unknown document kind %q", kind)
	}
}
