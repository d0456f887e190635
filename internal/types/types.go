// Package types defines the document model shared by every compiler stage:
// identifiers, specification/plan/task documents, and their lifecycle states.
package types

import (
	"fmt"
	"strings"
)

// ClarificationMarker is the literal in-text flag authors leave on an
// ambiguous requirement. Any description containing it blocks promotion
// of the owning document to the "ready" lifecycle state.
const ClarificationMarker = "[NEEDS CLARIFICATION"

// Category classifies an identifier by its prefix.
type Category string

const (
	CategoryFunctional    Category = "functional"
	CategoryNonFunctional Category = "non_functional"
	CategoryScenario      Category = "user_scenario"
	CategoryPlanItem      Category = "plan_item"
	CategoryTask          Category = "task"
)

// categoryPrefixes maps identifier prefixes to categories. Longer prefixes
// must be checked before their single-letter collisions (NF before F).
var categoryPrefixes = []struct {
	prefix   string
	category Category
}{
	{"NF", CategoryNonFunctional},
	{"US", CategoryScenario},
	{"F", CategoryFunctional},
	{"P", CategoryPlanItem},
	{"T", CategoryTask},
}

// Identifier is a typed string of the form <Prefix><3-digit-number>,
// e.g. "F001", "NF002", "US001", "P003", "T014". Identifiers are unique
// within their owning document and within a numbered project for documents
// of the same kind.
type Identifier string

// ParseIdentifier validates raw text as an identifier and returns it typed.
func ParseIdentifier(raw string) (Identifier, error) {
	id := Identifier(raw)
	if err := id.Validate(); err != nil {
		return "", err
	}
	return id, nil
}

// Validate checks the <Prefix><3-digit> shape and a known prefix.
func (id Identifier) Validate() error {
	s := string(id)
	if s == "" {
		return fmt.Errorf("identifier is empty")
	}
	for _, cp := range categoryPrefixes {
		if strings.HasPrefix(s, cp.prefix) {
			digits := s[len(cp.prefix):]
			if len(digits) != 3 {
				return fmt.Errorf("identifier %q must have exactly 3 digits after prefix %q", s, cp.prefix)
			}
			for _, r := range digits {
				if r < '0' || r > '9' {
					return fmt.Errorf("identifier %q contains non-digit %q", s, r)
				}
			}
			return nil
		}
	}
	return fmt.Errorf("identifier %q has unknown prefix (expected F, NF, US, P, or T)", s)
}

// Category returns the category implied by the identifier's prefix.
// Returns an empty category for malformed identifiers.
func (id Identifier) Category() Category {
	s := string(id)
	for _, cp := range categoryPrefixes {
		if strings.HasPrefix(s, cp.prefix) {
			return cp.category
		}
	}
	return ""
}

// Number returns the numeric suffix, or -1 for malformed identifiers.
func (id Identifier) Number() int {
	s := string(id)
	for _, cp := range categoryPrefixes {
		if strings.HasPrefix(s, cp.prefix) {
			digits := s[len(cp.prefix):]
			if len(digits) != 3 {
				return -1
			}
			n := 0
			for _, r := range digits {
				if r < '0' || r > '9' {
					return -1
				}
				n = n*10 + int(r-'0')
			}
			return n
		}
	}
	return -1
}

// FormatIdentifier builds an identifier from a category and number,
// e.g. (CategoryPlanItem, 7) → "P007".
func FormatIdentifier(c Category, n int) Identifier {
	var prefix string
	for _, cp := range categoryPrefixes {
		if cp.category == c {
			prefix = cp.prefix
			break
		}
	}
	return Identifier(fmt.Sprintf("%s%03d", prefix, n))
}

// DocKind identifies which of the three document kinds a file contains.
type DocKind string

const (
	DocKindSpec  DocKind = "spec"
	DocKindPlan  DocKind = "plan"
	DocKindTasks DocKind = "tasks"
)

// IsValid checks for a known document kind.
func (k DocKind) IsValid() bool {
	switch k {
	case DocKindSpec, DocKindPlan, DocKindTasks:
		return true
	}
	return false
}

// Lifecycle is the authoring state of a specification document. Coverage
// invariants tighten as the document advances: requirements must be covered
// by plan items at "planned", plan items by tasks at "tasked".
type Lifecycle string

const (
	LifecycleDraft      Lifecycle = "draft"
	LifecycleClarifying Lifecycle = "clarifying"
	LifecycleReady      Lifecycle = "ready"
	LifecyclePlanned    Lifecycle = "planned"
	LifecycleTasked     Lifecycle = "tasked"
)

// IsValid checks for a known lifecycle state.
func (l Lifecycle) IsValid() bool {
	switch l {
	case LifecycleDraft, LifecycleClarifying, LifecycleReady, LifecyclePlanned, LifecycleTasked:
		return true
	}
	return false
}

var lifecycleOrder = map[Lifecycle]int{
	LifecycleDraft:      0,
	LifecycleClarifying: 1,
	LifecycleReady:      2,
	LifecyclePlanned:    3,
	LifecycleTasked:     4,
}

// AtLeast reports whether l is at or past the given state in the
// draft → clarifying → ready → planned → tasked progression.
func (l Lifecycle) AtLeast(other Lifecycle) bool {
	return lifecycleOrder[l] >= lifecycleOrder[other]
}

// Requirement is an atomic, testable functional or non-functional statement.
type Requirement struct {
	ID Identifier `yaml:"id"`

	// Description is free text. If it contains ClarificationMarker the
	// parser sets NeedsClarification and the requirement cannot be marked
	// ready for derivation.
	Description string `yaml:"description"`

	// AcceptanceCriteria is an ordered sequence of verification statements.
	AcceptanceCriteria []string `yaml:"acceptance_criteria,omitempty"`

	// NeedsClarification is derived from the description by the parser,
	// never authored directly.
	NeedsClarification bool `yaml:"-"`
}

// UserScenario describes an end-to-end usage flow in the specification.
type UserScenario struct {
	ID    Identifier `yaml:"id"`
	Title string     `yaml:"title"`
	Steps []string   `yaml:"steps,omitempty"`
}

// Requirements groups the two requirement classes in authored order.
type Requirements struct {
	Functional    []Requirement `yaml:"functional,omitempty"`
	NonFunctional []Requirement `yaml:"non_functional,omitempty"`
}

// SpecDocument is an authored specification. The compiler never edits it.
type SpecDocument struct {
	Name         string         `yaml:"name"`
	Description  string         `yaml:"description,omitempty"`
	Lifecycle    Lifecycle      `yaml:"lifecycle,omitempty"`
	Requirements Requirements   `yaml:"requirements"`
	Scenarios    []UserScenario `yaml:"user_scenarios,omitempty"`
}

// AllRequirements returns functional then non-functional requirements in
// authored order. This ordering governs deterministic derivation output.
func (d *SpecDocument) AllRequirements() []Requirement {
	out := make([]Requirement, 0, len(d.Requirements.Functional)+len(d.Requirements.NonFunctional))
	out = append(out, d.Requirements.Functional...)
	out = append(out, d.Requirements.NonFunctional...)
	return out
}

// ItemFlag marks a derived plan item or task that needs human attention.
type ItemFlag string

const (
	// FlagNone means the entity is in good standing.
	FlagNone ItemFlag = ""

	// FlagNeedsElaboration marks a freshly generated stub awaiting an
	// author's elaboration.
	FlagNeedsElaboration ItemFlag = "needs_elaboration"

	// FlagOrphaned marks an entity whose every upstream governor has been
	// removed. Orphans are never deleted automatically.
	FlagOrphaned ItemFlag = "orphaned"
)

// IsValid checks for a known flag.
func (f ItemFlag) IsValid() bool {
	switch f {
	case FlagNone, FlagNeedsElaboration, FlagOrphaned:
		return true
	}
	return false
}

// Override holds author-edited fields on a derived entity. Non-empty
// overrides survive regeneration verbatim.
type Override struct {
	// Elaboration is the author's free-text expansion of the derived stub.
	Elaboration string `yaml:"elaboration,omitempty"`

	// Status is an author-assigned status note (distinct from task status).
	Status string `yaml:"status,omitempty"`
}

// IsEmpty reports whether the override carries any authored content.
func (o *Override) IsEmpty() bool {
	return o == nil || (o.Elaboration == "" && o.Status == "")
}

// PlanItem is a derived unit of implementation work covering one or more
// requirements.
type PlanItem struct {
	ID Identifier `yaml:"id"`

	// Implements lists the requirement identifiers this item covers.
	// Many-to-many: an item may satisfy several requirements and a
	// requirement may be covered by several items.
	Implements []Identifier `yaml:"implements"`

	// Rules lists constitution rule identifiers this item must satisfy.
	Rules []string `yaml:"rules,omitempty"`

	// DependsOn lists plan items that must land before this one.
	DependsOn []Identifier `yaml:"depends_on,omitempty"`

	Flag     ItemFlag  `yaml:"flag,omitempty"`
	Override *Override `yaml:"override,omitempty"`

	// SourceHash fingerprints the covered requirements' content at the
	// time this item was derived. Regeneration compares it to the current
	// upstream content to decide whether the item is stale.
	SourceHash string `yaml:"source_hash,omitempty"`
}

// PlanDocument is a derived plan. Items appear in the order their governing
// requirement first appears in the upstream specification.
type PlanDocument struct {
	Items []PlanItem `yaml:"plan_items"`
}

// Item returns the plan item with the given identifier, or nil.
func (d *PlanDocument) Item(id Identifier) *PlanItem {
	for i := range d.Items {
		if d.Items[i].ID == id {
			return &d.Items[i]
		}
	}
	return nil
}

// TaskStatus is the execution state of a task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskDone       TaskStatus = "done"
)

// IsValid checks for a known task status.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskPending, TaskInProgress, TaskDone:
		return true
	}
	return false
}

// Task is the smallest derived unit of work, owned by exactly one plan item.
type Task struct {
	ID       Identifier `yaml:"id"`
	PlanItem Identifier `yaml:"plan_item"`
	Status   TaskStatus `yaml:"status"`
	Flag     ItemFlag   `yaml:"flag,omitempty"`
	Override *Override  `yaml:"override,omitempty"`

	// SourceHash fingerprints the owning plan item's content at the time
	// this task was derived.
	SourceHash string `yaml:"source_hash,omitempty"`
}

// TaskDocument is a derived task breakdown.
type TaskDocument struct {
	Tasks []Task `yaml:"tasks"`
}

// Task returns the task with the given identifier, or nil.
func (d *TaskDocument) Task(id Identifier) *Task {
	for i := range d.Tasks {
		if d.Tasks[i].ID == id {
			return &d.Tasks[i]
		}
	}
	return nil
}

// ProjectDocs bundles the (at most) three documents of one numbered project.
// Plan and Tasks are nil until first derived.
type ProjectDocs struct {
	Spec  *SpecDocument
	Plan  *PlanDocument
	Tasks *TaskDocument
}
