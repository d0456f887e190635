package rules

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/specc-dev/specc/internal/diag"
	"github.com/specc-dev/specc/internal/graph"
	"github.com/specc-dev/specc/internal/types"
)

// nodes collects the compliance targets (plan items and tasks) of a
// project's document set.
func nodes(docs *types.ProjectDocs) []Node {
	var out []Node
	if docs.Plan != nil {
		for i := range docs.Plan.Items {
			item := &docs.Plan.Items[i]
			out = append(out, Node{ID: item.ID, Category: types.CategoryPlanItem, PlanItem: item})
		}
	}
	if docs.Tasks != nil {
		for i := range docs.Tasks.Tasks {
			task := &docs.Tasks.Tasks[i]
			out = append(out, Node{ID: task.ID, Category: types.CategoryTask, Task: task})
		}
	}
	return out
}

// evalNode evaluates every rule against one node. A panicking rule is
// reported as a RULE_EVAL_ERROR violation and must not abort evaluation of
// its siblings.
func evalNode(node Node, g *graph.Graph, set *RuleSet) []diag.Diagnostic {
	var out []diag.Diagnostic
	for _, rule := range set.Rules {
		func() {
			defer func() {
				if r := recover(); r != nil {
					out = append(out, diag.Diagnostic{
						Code:     CodeEvalError,
						Severity: diag.SeverityWarning,
						Stage:    diag.StageCheck,
						ID:       string(node.ID),
						Rule:     rule.ID(),
						Message:  fmt.Sprintf("rule %s failed while evaluating %s: %v", rule.ID(), node.ID, r),
					})
				}
			}()

			if !rule.Applies(node) {
				return
			}
			if ok, explanation := rule.Satisfied(node, g); !ok {
				out = append(out, diag.Diagnostic{
					Code:     CodeViolation,
					Severity: rule.Severity(),
					Stage:    diag.StageCheck,
					ID:       string(node.ID),
					Rule:     rule.ID(),
					Message:  explanation,
				})
			}
		}()
	}
	return out
}

// Check evaluates the constitution against every plan item and task in the
// graph. Rules are pure predicates over an immutable graph, so nodes are
// evaluated in parallel up to the worker limit; results merge under a
// stable sort on (severity, node, rule) so report ordering is the same
// regardless of execution interleaving.
func Check(ctx context.Context, g *graph.Graph, docs *types.ProjectDocs, set *RuleSet, workers int) []diag.Diagnostic {
	targets := nodes(docs)
	if len(targets) == 0 || set == nil || len(set.Rules) == 0 {
		return nil
	}
	if workers < 1 {
		workers = 1
	}

	sem := semaphore.NewWeighted(int64(workers))
	var wg sync.WaitGroup
	results := make([][]diag.Diagnostic, len(targets))

	for i, node := range targets {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Context cancelled: evaluate the remainder inline so the
			// report stays complete. The pipeline is a terminating pure
			// computation, so this path only triggers on caller cancel.
			results[i] = evalNode(node, g, set)
			continue
		}
		wg.Add(1)
		go func(i int, node Node) {
			defer wg.Done()
			defer sem.Release(1)
			results[i] = evalNode(node, g, set)
		}(i, node)
	}
	wg.Wait()

	var out []diag.Diagnostic
	for _, rs := range results {
		out = append(out, rs...)
	}
	return out
}
