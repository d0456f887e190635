// Package derive regenerates plan and task documents from their upstream
// documents. Derivation is idempotent and merge-aware: author overrides
// survive regeneration, removed upstream entities orphan their dependents
// instead of deleting them, and unchanged input produces byte-identical
// output.
package derive

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/specc-dev/specc/internal/diag"
	"github.com/specc-dev/specc/internal/types"
)

// Diagnostic codes emitted by this package.
const (
	CodeConflict    = "DERIVE_CONFLICT"
	CodeOrphaned    = "ORPHANED"
	CodeStubCreated = "STUB_CREATED"
)

// DerivationConflict reports that an author override and an upstream change
// collide on the same derived entity. It is surfaced for manual resolution,
// never auto-resolved: the previous value is kept verbatim and the conflict
// re-reports on every run until an author intervenes.
type DerivationConflict struct {
	ID types.Identifier
}

// Error implements the error interface.
func (e *DerivationConflict) Error() string {
	return fmt.Sprintf("%s: author override and upstream change both modify this entity", e.ID)
}

// requirementHash fingerprints a requirement's derivable content.
func requirementHash(r types.Requirement) []byte {
	h := sha256.New()
	h.Write([]byte(r.Description))
	h.Write([]byte{0})
	for _, ac := range r.AcceptanceCriteria {
		h.Write([]byte(ac))
		h.Write([]byte{0})
	}
	return h.Sum(nil)
}

// coverageHash fingerprints the content of the requirements a plan item
// covers, in coverage-list order.
func coverageHash(refs []types.Identifier, reqs map[types.Identifier]types.Requirement) string {
	h := sha256.New()
	for _, ref := range refs {
		h.Write([]byte(ref))
		h.Write([]byte{0})
		h.Write(requirementHash(reqs[ref]))
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// needsClarification reports whether any referenced requirement still
// carries the clarification marker.
func needsClarification(refs []types.Identifier, reqs map[types.Identifier]types.Requirement) bool {
	for _, ref := range refs {
		if reqs[ref].NeedsClarification {
			return true
		}
	}
	return false
}

// planItemHash fingerprints a plan item's derivable content as seen by its
// tasks.
func planItemHash(item types.PlanItem) string {
	h := sha256.New()
	for _, ref := range item.Implements {
		h.Write([]byte(ref))
		h.Write([]byte{0})
	}
	for _, rule := range item.Rules {
		h.Write([]byte(rule))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Plan derives a plan document from a specification, merging with the
// existing plan when one is supplied. The returned diagnostics record
// conflicts (errors), orphan relabels (warnings), and stub creation (info).
func Plan(spec *types.SpecDocument, existing *types.PlanDocument) (*types.PlanDocument, []diag.Diagnostic) {
	reqs := spec.AllRequirements()
	reqByID := make(map[types.Identifier]types.Requirement, len(reqs))
	reqOrder := make(map[types.Identifier]int, len(reqs))
	for i, r := range reqs {
		reqByID[r.ID] = r
		reqOrder[r.ID] = i
	}

	var diags []diag.Diagnostic
	out := &types.PlanDocument{Items: make([]types.PlanItem, 0)}
	covered := make(map[types.Identifier]bool)
	maxNum := 0

	if existing != nil {
		type ordered struct {
			item types.PlanItem
			rank int // first-appearance rank of governing requirement
			prev int // position in the previous document breaks ties
		}
		kept := make([]ordered, 0, len(existing.Items))
		orphans := make([]ordered, 0)

		for pos, prev := range existing.Items {
			if n := prev.ID.Number(); n > maxNum {
				maxNum = n
			}

			// Split coverage into requirements that still exist and ones
			// removed upstream.
			live := make([]types.Identifier, 0, len(prev.Implements))
			for _, ref := range prev.Implements {
				if _, ok := reqByID[ref]; ok {
					live = append(live, ref)
				}
			}

			if len(live) == 0 {
				// Every covered requirement is gone. Deletion is never
				// automatic: relabel and carry the item forward.
				item := prev
				item.Implements = nil
				item.SourceHash = ""
				if item.Flag != types.FlagOrphaned {
					item.Flag = types.FlagOrphaned
					diags = append(diags, diag.Diagnostic{
						Code:     CodeOrphaned,
						Severity: diag.SeverityWarning,
						Stage:    diag.StageDerive,
						ID:       string(item.ID),
						Message:  fmt.Sprintf("plan item %s no longer covers any existing requirement; flagged for manual removal", item.ID),
					})
				}
				orphans = append(orphans, ordered{item: item, prev: pos})
				continue
			}

			for _, ref := range live {
				covered[ref] = true
			}

			fresh := coverageHash(live, reqByID)
			item := prev
			switch {
			case prev.SourceHash == fresh && len(live) == len(prev.Implements):
				// Upstream unchanged: preserve verbatim.
			case prev.SourceHash == "":
				// Hand-authored item seen by derivation for the first
				// time: adopt the current upstream fingerprint.
				item.Implements = live
				item.SourceHash = fresh
			case prev.Override.IsEmpty():
				// Upstream changed, nothing authored on top: regenerate.
				item.Implements = live
				item.SourceHash = fresh
				item.Flag = types.FlagNone
				if needsClarification(live, reqByID) {
					item.Flag = types.FlagNeedsElaboration
				}
			default:
				// Both the author and the upstream changed this item.
				// Keep the previous value verbatim; the stale hash makes
				// the conflict re-report until resolved manually.
				conflict := &DerivationConflict{ID: prev.ID}
				diags = append(diags, diag.Diagnostic{
					Code:     CodeConflict,
					Severity: diag.SeverityError,
					Stage:    diag.StageDerive,
					ID:       string(prev.ID),
					Message:  conflict.Error(),
				})
			}

			rank := len(reqs)
			for _, ref := range live {
				if r := reqOrder[ref]; r < rank {
					rank = r
				}
			}
			kept = append(kept, ordered{item: item, rank: rank, prev: pos})
		}

		// Emit in governing-requirement first-appearance order, previous
		// document order breaking ties, orphans after governed items.
		sort.SliceStable(kept, func(i, j int) bool {
			if kept[i].rank != kept[j].rank {
				return kept[i].rank < kept[j].rank
			}
			return kept[i].prev < kept[j].prev
		})
		for _, o := range kept {
			out.Items = append(out.Items, o.item)
		}
		for _, o := range orphans {
			out.Items = append(out.Items, o.item)
		}
	}

	// New requirements lacking any covering plan item get a stub appended
	// in creation order.
	for _, r := range reqs {
		if covered[r.ID] {
			continue
		}
		maxNum++
		// A stub covering an ambiguous requirement cannot be elaborated
		// until the clarification is resolved; flag it.
		flag := types.FlagNone
		if needsClarification([]types.Identifier{r.ID}, reqByID) {
			flag = types.FlagNeedsElaboration
		}
		stub := types.PlanItem{
			ID:         types.FormatIdentifier(types.CategoryPlanItem, maxNum),
			Implements: []types.Identifier{r.ID},
			Flag:       flag,
			SourceHash: coverageHash([]types.Identifier{r.ID}, reqByID),
		}
		out.Items = append(out.Items, stub)
		covered[r.ID] = true
		diags = append(diags, diag.Diagnostic{
			Code:     CodeStubCreated,
			Severity: diag.SeverityInfo,
			Stage:    diag.StageDerive,
			ID:       string(stub.ID),
			Message:  fmt.Sprintf("created stub plan item %s for uncovered requirement %s", stub.ID, r.ID),
		})
	}

	return out, diags
}

// Tasks derives a task document from a plan under the same merge-aware
// contract as Plan: task status and overrides are authored data and always
// survive, tasks whose plan item disappeared are orphaned, and every
// non-orphaned plan item lacking a task gets a stub.
func Tasks(plan *types.PlanDocument, existing *types.TaskDocument) (*types.TaskDocument, []diag.Diagnostic) {
	itemByID := make(map[types.Identifier]types.PlanItem, len(plan.Items))
	itemOrder := make(map[types.Identifier]int, len(plan.Items))
	for i, item := range plan.Items {
		itemByID[item.ID] = item
		itemOrder[item.ID] = i
	}

	var diags []diag.Diagnostic
	out := &types.TaskDocument{Tasks: make([]types.Task, 0)}
	covered := make(map[types.Identifier]bool)
	maxNum := 0

	if existing != nil {
		type ordered struct {
			task types.Task
			rank int
			prev int
		}
		kept := make([]ordered, 0, len(existing.Tasks))
		orphans := make([]ordered, 0)

		for pos, prev := range existing.Tasks {
			if n := prev.ID.Number(); n > maxNum {
				maxNum = n
			}

			owner, ok := itemByID[prev.PlanItem]
			if !ok {
				task := prev
				task.PlanItem = ""
				task.SourceHash = ""
				if task.Flag != types.FlagOrphaned {
					task.Flag = types.FlagOrphaned
					diags = append(diags, diag.Diagnostic{
						Code:     CodeOrphaned,
						Severity: diag.SeverityWarning,
						Stage:    diag.StageDerive,
						ID:       string(task.ID),
						Message:  fmt.Sprintf("task %s references a removed plan item; flagged for manual removal", task.ID),
					})
				}
				orphans = append(orphans, ordered{task: task, prev: pos})
				continue
			}

			covered[prev.PlanItem] = true
			fresh := planItemHash(owner)
			task := prev
			switch {
			case prev.SourceHash == fresh:
				// Owning plan item unchanged: preserve verbatim.
			case prev.SourceHash == "":
				task.SourceHash = fresh
			case prev.Override.IsEmpty():
				task.SourceHash = fresh
				if task.Flag == types.FlagOrphaned {
					task.Flag = types.FlagNone
				}
			default:
				conflict := &DerivationConflict{ID: prev.ID}
				diags = append(diags, diag.Diagnostic{
					Code:     CodeConflict,
					Severity: diag.SeverityError,
					Stage:    diag.StageDerive,
					ID:       string(prev.ID),
					Message:  conflict.Error(),
				})
			}

			kept = append(kept, ordered{task: task, rank: itemOrder[prev.PlanItem], prev: pos})
		}

		sort.SliceStable(kept, func(i, j int) bool {
			if kept[i].rank != kept[j].rank {
				return kept[i].rank < kept[j].rank
			}
			return kept[i].prev < kept[j].prev
		})
		for _, o := range kept {
			out.Tasks = append(out.Tasks, o.task)
		}
		for _, o := range orphans {
			out.Tasks = append(out.Tasks, o.task)
		}
	}

	for _, item := range plan.Items {
		if covered[item.ID] || item.Flag == types.FlagOrphaned {
			continue
		}
		maxNum++
		stub := types.Task{
			ID:         types.FormatIdentifier(types.CategoryTask, maxNum),
			PlanItem:   item.ID,
			Status:     types.TaskPending,
			SourceHash: planItemHash(item),
		}
		out.Tasks = append(out.Tasks, stub)
		covered[item.ID] = true
		diags = append(diags, diag.Diagnostic{
			Code:     CodeStubCreated,
			Severity: diag.SeverityInfo,
			Stage:    diag.StageDerive,
			ID:       string(stub.ID),
			Message:  fmt.Sprintf("created stub task %s for plan item %s", stub.ID, item.ID),
		})
	}

	return out, diags
}
