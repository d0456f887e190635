package derive

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/specc-dev/specc/internal/diag"
	"github.com/specc-dev/specc/internal/types"
)

func testSpec() *types.SpecDocument {
	return &types.SpecDocument{
		Name: "search",
		Requirements: types.Requirements{
			Functional: []types.Requirement{
				{ID: "F001", Description: "queries return ranked results"},
				{ID: "F002", Description: "results paginate [NEEDS CLARIFICATION: page size?]", NeedsClarification: true},
			},
			NonFunctional: []types.Requirement{
				{ID: "NF001", Description: "p99 query latency under 200ms"},
			},
		},
	}
}

func countCode(diags []diag.Diagnostic, code string) int {
	n := 0
	for _, d := range diags {
		if d.Code == code {
			n++
		}
	}
	return n
}

func TestPlan_FreshDerivation(t *testing.T) {
	plan, diags := Plan(testSpec(), nil)

	if got, want := len(plan.Items), 3; got != want {
		t.Fatalf("derived %d plan items, want %d", got, want)
	}
	// Stubs appear in requirement order, numbered from P001.
	wantIDs := []types.Identifier{"P001", "P002", "P003"}
	for i, want := range wantIDs {
		if plan.Items[i].ID != want {
			t.Errorf("item[%d].ID = %s, want %s", i, plan.Items[i].ID, want)
		}
	}
	if got, want := plan.Items[0].Implements, []types.Identifier{"F001"}; !reflect.DeepEqual(got, want) {
		t.Errorf("P001 implements %v, want %v", got, want)
	}
	if got, want := plan.Items[2].Implements, []types.Identifier{"NF001"}; !reflect.DeepEqual(got, want) {
		t.Errorf("P003 implements %v, want %v", got, want)
	}

	// Only the stub covering the ambiguous requirement is flagged.
	if plan.Items[0].Flag != types.FlagNone {
		t.Errorf("P001 flag = %q, want none", plan.Items[0].Flag)
	}
	if plan.Items[1].Flag != types.FlagNeedsElaboration {
		t.Errorf("P002 flag = %q, want %q", plan.Items[1].Flag, types.FlagNeedsElaboration)
	}

	for _, item := range plan.Items {
		if item.SourceHash == "" {
			t.Errorf("%s has empty source hash", item.ID)
		}
	}
	if got := countCode(diags, CodeStubCreated); got != 3 {
		t.Errorf("stub diagnostics = %d, want 3", got)
	}
}

func TestPlan_Idempotent(t *testing.T) {
	spec := testSpec()
	first, _ := Plan(spec, nil)
	second, diags := Plan(spec, first)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("second derivation differs:\nfirst:  %+v\nsecond: %+v", first, second)
	}
	if len(diags) != 0 {
		t.Errorf("second derivation produced diagnostics: %v", diags)
	}

	a, err := MarshalPlan(first)
	if err != nil {
		t.Fatalf("MarshalPlan() error = %v", err)
	}
	b, err := MarshalPlan(second)
	if err != nil {
		t.Fatalf("MarshalPlan() error = %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Error("emitted plan bytes differ between identical derivations")
	}
}

func TestPlan_OverrideSurvives(t *testing.T) {
	spec := testSpec()
	first, _ := Plan(spec, nil)
	first.Item("P001").Override = &types.Override{Elaboration: "use the existing index builder"}

	second, _ := Plan(spec, first)
	item := second.Item("P001")
	if item == nil || item.Override.IsEmpty() {
		t.Fatal("override lost on regeneration")
	}
	if item.Override.Elaboration != "use the existing index builder" {
		t.Errorf("override = %q, want original text", item.Override.Elaboration)
	}
}

func TestPlan_UpstreamChangeRegenerates(t *testing.T) {
	spec := testSpec()
	first, _ := Plan(spec, nil)
	oldHash := first.Item("P001").SourceHash

	spec.Requirements.Functional[0].Description = "queries return ranked, deduplicated results"
	second, diags := Plan(spec, first)

	item := second.Item("P001")
	if item.SourceHash == oldHash {
		t.Error("source hash not refreshed after upstream change")
	}
	if got := countCode(diags, CodeConflict); got != 0 {
		t.Errorf("conflicts = %d, want 0", got)
	}
}

func TestPlan_Conflict(t *testing.T) {
	spec := testSpec()
	first, _ := Plan(spec, nil)
	first.Item("P001").Override = &types.Override{Elaboration: "hand-tuned"}
	staleHash := first.Item("P001").SourceHash

	spec.Requirements.Functional[0].Description = "changed upstream"
	second, diags := Plan(spec, first)

	// Previous value kept verbatim, conflict reported as an error.
	item := second.Item("P001")
	if item.SourceHash != staleHash {
		t.Error("conflicting item was regenerated, want previous value verbatim")
	}
	if item.Override.Elaboration != "hand-tuned" {
		t.Error("override lost during conflict")
	}
	if got := countCode(diags, CodeConflict); got != 1 {
		t.Fatalf("conflicts = %d, want 1", got)
	}

	// Unresolved, the conflict re-reports on the next run too.
	third, diags := Plan(spec, second)
	if got := countCode(diags, CodeConflict); got != 1 {
		t.Errorf("conflict did not re-report: %d diagnostics", got)
	}
	if third.Item("P001").SourceHash != staleHash {
		t.Error("conflicting item changed on re-run")
	}
}

func TestPlan_HandAuthoredAdoption(t *testing.T) {
	spec := testSpec()
	existing := &types.PlanDocument{Items: []types.PlanItem{
		{
			ID:         "P001",
			Implements: []types.Identifier{"F001", "NF001"},
			Override:   &types.Override{Elaboration: "written by hand before first compile"},
		},
	}}

	out, diags := Plan(spec, existing)
	item := out.Item("P001")
	if item.SourceHash == "" {
		t.Error("hand-authored item did not adopt an upstream fingerprint")
	}
	if got := countCode(diags, CodeConflict); got != 0 {
		t.Errorf("adoption raised %d conflicts, want 0", got)
	}

	// The adopted hash must be stable on the next run.
	again, diags := Plan(spec, out)
	if again.Item("P001").SourceHash != item.SourceHash {
		t.Error("adopted hash changed on re-run")
	}
	if got := countCode(diags, CodeConflict); got != 0 {
		t.Errorf("re-run raised %d conflicts, want 0", got)
	}
}

func TestPlan_Orphan(t *testing.T) {
	spec := testSpec()
	first, _ := Plan(spec, nil)

	// Remove NF001; its covering item P003 must be orphaned, not deleted.
	spec.Requirements.NonFunctional = nil
	second, diags := Plan(spec, first)

	item := second.Item("P003")
	if item == nil {
		t.Fatal("orphaned item was deleted")
	}
	if item.Flag != types.FlagOrphaned {
		t.Errorf("P003 flag = %q, want %q", item.Flag, types.FlagOrphaned)
	}
	if len(item.Implements) != 0 {
		t.Errorf("orphan still implements %v", item.Implements)
	}
	if got := countCode(diags, CodeOrphaned); got != 1 {
		t.Errorf("orphan diagnostics = %d, want 1", got)
	}
	// Orphans sort after governed items.
	if second.Items[len(second.Items)-1].ID != "P003" {
		t.Errorf("orphan not at end: %v", second.Items)
	}

	// Already-orphaned items do not re-report.
	_, diags = Plan(spec, second)
	if got := countCode(diags, CodeOrphaned); got != 0 {
		t.Errorf("orphan re-reported: %d diagnostics", got)
	}
}

func TestPlan_StubNumberingSkipsUsed(t *testing.T) {
	spec := testSpec()
	first, _ := Plan(spec, nil)

	// A new requirement appears; its stub continues from the highest
	// existing number even if earlier numbers are free.
	spec.Requirements.Functional = append(spec.Requirements.Functional,
		types.Requirement{ID: "F003", Description: "search suggests corrections"})
	second, _ := Plan(spec, first)

	if got, want := len(second.Items), 4; got != want {
		t.Fatalf("derived %d items, want %d", got, want)
	}
	stub := second.Item("P004")
	if stub == nil {
		t.Fatalf("expected stub P004, got %v", second.Items)
	}
	if got, want := stub.Implements, []types.Identifier{"F003"}; !reflect.DeepEqual(got, want) {
		t.Errorf("stub implements %v, want %v", got, want)
	}
}

func TestPlan_PartialCoverageRemoval(t *testing.T) {
	spec := testSpec()
	existing := &types.PlanDocument{Items: []types.PlanItem{
		{ID: "P001", Implements: []types.Identifier{"F001", "F002", "NF001"}},
	}}
	first, _ := Plan(spec, existing)
	if got := len(first.Item("P001").Implements); got != 3 {
		t.Fatalf("adopted item implements %d requirements, want 3", got)
	}

	// F002 removed upstream: the item narrows but stays live.
	spec.Requirements.Functional = spec.Requirements.Functional[:1]
	second, diags := Plan(spec, first)

	item := second.Item("P001")
	if got, want := item.Implements, []types.Identifier{"F001", "NF001"}; !reflect.DeepEqual(got, want) {
		t.Errorf("P001 implements %v, want %v", got, want)
	}
	if item.Flag == types.FlagOrphaned {
		t.Error("partially covered item was orphaned")
	}
	if got := countCode(diags, CodeOrphaned); got != 0 {
		t.Errorf("orphan diagnostics = %d, want 0", got)
	}
}

func TestTasks_FreshDerivation(t *testing.T) {
	plan, _ := Plan(testSpec(), nil)
	tasks, diags := Tasks(plan, nil)

	if got, want := len(tasks.Tasks), 3; got != want {
		t.Fatalf("derived %d tasks, want %d", got, want)
	}
	for i, task := range tasks.Tasks {
		if task.Status != types.TaskPending {
			t.Errorf("task[%d].Status = %q, want pending", i, task.Status)
		}
		if task.PlanItem != plan.Items[i].ID {
			t.Errorf("task[%d] owned by %s, want %s", i, task.PlanItem, plan.Items[i].ID)
		}
	}
	if got := countCode(diags, CodeStubCreated); got != 3 {
		t.Errorf("stub diagnostics = %d, want 3", got)
	}
}

func TestTasks_StatusSurvives(t *testing.T) {
	plan, _ := Plan(testSpec(), nil)
	first, _ := Tasks(plan, nil)
	first.Task("T001").Status = types.TaskDone
	first.Task("T002").Status = types.TaskInProgress

	second, diags := Tasks(plan, first)
	if got := second.Task("T001").Status; got != types.TaskDone {
		t.Errorf("T001 status = %q, want done", got)
	}
	if got := second.Task("T002").Status; got != types.TaskInProgress {
		t.Errorf("T002 status = %q, want in_progress", got)
	}
	if len(diags) != 0 {
		t.Errorf("re-derivation produced diagnostics: %v", diags)
	}
}

func TestTasks_OrphanOnPlanItemRemoval(t *testing.T) {
	plan, _ := Plan(testSpec(), nil)
	first, _ := Tasks(plan, nil)

	plan.Items = plan.Items[:2] // drop P003
	second, diags := Tasks(plan, first)

	task := second.Task("T003")
	if task == nil {
		t.Fatal("orphaned task was deleted")
	}
	if task.Flag != types.FlagOrphaned {
		t.Errorf("T003 flag = %q, want %q", task.Flag, types.FlagOrphaned)
	}
	if task.PlanItem != "" {
		t.Errorf("orphan still references %s", task.PlanItem)
	}
	if got := countCode(diags, CodeOrphaned); got != 1 {
		t.Errorf("orphan diagnostics = %d, want 1", got)
	}
}

func TestTasks_NoStubForOrphanedPlanItem(t *testing.T) {
	plan := &types.PlanDocument{Items: []types.PlanItem{
		{ID: "P001", Flag: types.FlagOrphaned},
	}}
	tasks, _ := Tasks(plan, nil)
	if len(tasks.Tasks) != 0 {
		t.Errorf("derived %d tasks for an orphaned plan item, want 0", len(tasks.Tasks))
	}
}

func TestMarshalPlan_Stable(t *testing.T) {
	plan, _ := Plan(testSpec(), nil)
	a, err := MarshalPlan(plan)
	if err != nil {
		t.Fatalf("MarshalPlan() error = %v", err)
	}
	b, err := MarshalPlan(plan)
	if err != nil {
		t.Fatalf("MarshalPlan() error = %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Error("marshal output unstable across calls")
	}
	if !bytes.Contains(a, []byte("plan_items:")) {
		t.Error("marshal output missing plan_items key")
	}
}
