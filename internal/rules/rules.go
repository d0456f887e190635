// Package rules implements the constitution: a declarative, process-wide
// rule set evaluated against every plan item and task in the reference
// graph. Rules are loaded once at project-load time and immutable for the
// duration of a compilation run.
package rules

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/specc-dev/specc/internal/diag"
	"github.com/specc-dev/specc/internal/graph"
	"github.com/specc-dev/specc/internal/types"
)

// Diagnostic codes emitted by this package.
const (
	CodeViolation = "CONSTITUTION_VIOLATION"
	CodeEvalError = "RULE_EVAL_ERROR"
)

// Node is one compliance target: a plan item or a task. Exactly one of
// PlanItem and Task is set.
type Node struct {
	ID       types.Identifier
	Category types.Category
	PlanItem *types.PlanItem
	Task     *types.Task
}

// Text returns the free text a rule's predicates match against.
func (n Node) Text() string {
	var parts []string
	if n.PlanItem != nil {
		for _, ref := range n.PlanItem.Implements {
			parts = append(parts, string(ref))
		}
		if n.PlanItem.Override != nil {
			parts = append(parts, n.PlanItem.Override.Elaboration, n.PlanItem.Override.Status)
		}
	}
	if n.Task != nil {
		parts = append(parts, string(n.Task.PlanItem), string(n.Task.Status))
		if n.Task.Override != nil {
			parts = append(parts, n.Task.Override.Elaboration, n.Task.Override.Status)
		}
	}
	return strings.Join(parts, "\n")
}

// Rule is a declarative predicate over a plan item or task. Applies
// selects the nodes a rule governs; Satisfied evaluates one of them
// against the immutable graph and explains any failure.
type Rule interface {
	// ID returns the constitution rule identifier (e.g. "CONST-001").
	ID() string

	// Severity is the violation severity: error blocks derivation from
	// proceeding, warning is reported but non-blocking.
	Severity() diag.Severity

	// Applies reports whether the rule governs the given node.
	Applies(node Node) bool

	// Satisfied evaluates the node. A false return carries a
	// human-readable explanation of the violation.
	Satisfied(node Node, g *graph.Graph) (bool, string)
}

// Kind names a builtin rule predicate implementation.
type Kind string

const (
	// KindRequiresReference requires nodes whose text matches a pattern
	// to also reference a mitigation (e.g. persistence work must name a
	// rollback strategy).
	KindRequiresReference Kind = "requires_reference"

	// KindForbiddenPhrase rejects vague or unverifiable language.
	KindForbiddenPhrase Kind = "forbidden_phrase"

	// KindMaxTasksPerItem caps how many tasks one plan item may own.
	KindMaxTasksPerItem Kind = "max_tasks_per_item"

	// KindRequiresCoverage requires downstream coverage for matching
	// nodes regardless of the document lifecycle state.
	KindRequiresCoverage Kind = "requires_coverage"
)

// Definition is one entry of the constitution YAML file.
type Definition struct {
	ID          string `yaml:"id"`
	Kind        Kind   `yaml:"kind"`
	Severity    string `yaml:"severity,omitempty"`   // error (default) or warning
	AppliesTo   string `yaml:"applies_to,omitempty"` // plan_item, task, or any
	Description string `yaml:"description,omitempty"`

	// Match is a regular expression selecting governed nodes by text.
	// Empty means the rule governs all nodes of the applies_to kind.
	Match string `yaml:"match,omitempty"`

	// Requires is the pattern a matching node must also contain
	// (requires_reference only).
	Requires string `yaml:"requires,omitempty"`

	// Phrases are the rejected literals (forbidden_phrase only).
	Phrases []string `yaml:"phrases,omitempty"`

	// Max is the task cap (max_tasks_per_item only).
	Max int `yaml:"max,omitempty"`
}

// builtinRule is the compiled form of a Definition.
type builtinRule struct {
	def      Definition
	severity diag.Severity
	match    *regexp.Regexp // nil matches everything
	requires *regexp.Regexp
}

// Compile validates a definition and compiles its patterns.
func Compile(def Definition) (Rule, error) {
	if strings.TrimSpace(def.ID) == "" {
		return nil, fmt.Errorf("rule is missing an id")
	}

	r := &builtinRule{def: def, severity: diag.SeverityError}
	switch def.Severity {
	case "", "error":
	case "warning":
		r.severity = diag.SeverityWarning
	default:
		return nil, fmt.Errorf("rule %s: invalid severity %q", def.ID, def.Severity)
	}

	switch def.AppliesTo {
	case "", "any", "plan_item", "task":
	default:
		return nil, fmt.Errorf("rule %s: invalid applies_to %q", def.ID, def.AppliesTo)
	}

	var err error
	if def.Match != "" {
		if r.match, err = regexp.Compile("(?i)" + def.Match); err != nil {
			return nil, fmt.Errorf("rule %s: invalid match pattern: %w", def.ID, err)
		}
	}

	switch def.Kind {
	case KindRequiresReference:
		if def.Requires == "" {
			return nil, fmt.Errorf("rule %s: requires_reference needs a requires pattern", def.ID)
		}
		if r.requires, err = regexp.Compile("(?i)" + def.Requires); err != nil {
			return nil, fmt.Errorf("rule %s: invalid requires pattern: %w", def.ID, err)
		}
	case KindForbiddenPhrase:
		if len(def.Phrases) == 0 {
			return nil, fmt.Errorf("rule %s: forbidden_phrase needs at least one phrase", def.ID)
		}
	case KindMaxTasksPerItem:
		if def.Max < 1 {
			return nil, fmt.Errorf("rule %s: max_tasks_per_item needs max >= 1", def.ID)
		}
	case KindRequiresCoverage:
	default:
		return nil, fmt.Errorf("rule %s: unknown kind %q", def.ID, def.Kind)
	}

	return r, nil
}

// ID implements Rule.
func (r *builtinRule) ID() string { return r.def.ID }

// Severity implements Rule.
func (r *builtinRule) Severity() diag.Severity { return r.severity }

// Applies implements Rule.
func (r *builtinRule) Applies(node Node) bool {
	switch r.def.AppliesTo {
	case "plan_item":
		if node.PlanItem == nil {
			return false
		}
	case "task":
		if node.Task == nil {
			return false
		}
	}
	// max_tasks_per_item only ever makes sense on plan items.
	if r.def.Kind == KindMaxTasksPerItem && node.PlanItem == nil {
		return false
	}
	if r.match != nil && !r.match.MatchString(node.Text()) {
		return false
	}
	return true
}

// Satisfied implements Rule.
func (r *builtinRule) Satisfied(node Node, g *graph.Graph) (bool, string) {
	switch r.def.Kind {
	case KindRequiresReference:
		// A node may satisfy the requirement either in its text or by
		// listing the rule in its rules field.
		if r.requires.MatchString(node.Text()) {
			return true, ""
		}
		if node.PlanItem != nil {
			for _, id := range node.PlanItem.Rules {
				if id == r.def.ID {
					return true, ""
				}
			}
		}
		return false, fmt.Sprintf("%s matches %q but does not reference %q", node.ID, r.def.Match, r.def.Requires)

	case KindForbiddenPhrase:
		text := strings.ToLower(node.Text())
		for _, phrase := range r.def.Phrases {
			if strings.Contains(text, strings.ToLower(phrase)) {
				return false, fmt.Sprintf("%s contains forbidden phrase %q", node.ID, phrase)
			}
		}
		return true, ""

	case KindMaxTasksPerItem:
		owned := 0
		for _, ref := range g.ReferencedBy(node.ID) {
			if ref.Category() == types.CategoryTask {
				owned++
			}
		}
		if owned > r.def.Max {
			return false, fmt.Sprintf("%s owns %d tasks, exceeding the cap of %d", node.ID, owned, r.def.Max)
		}
		return true, ""

	case KindRequiresCoverage:
		if node.PlanItem != nil && node.PlanItem.Flag != types.FlagOrphaned {
			for _, ref := range g.ReferencedBy(node.ID) {
				if ref.Category() == types.CategoryTask {
					return true, ""
				}
			}
			return false, fmt.Sprintf("%s has no covering task", node.ID)
		}
		return true, ""
	}
	return true, ""
}
