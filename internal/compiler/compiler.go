// Package compiler wires the pipeline stages together: parse → graph →
// derive → check, per project, with independent projects compiled in
// parallel. One project's failure never blocks its siblings.
package compiler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/specc-dev/specc/internal/cache"
	"github.com/specc-dev/specc/internal/config"
	"github.com/specc-dev/specc/internal/derive"
	"github.com/specc-dev/specc/internal/diag"
	"github.com/specc-dev/specc/internal/graph"
	"github.com/specc-dev/specc/internal/parser"
	"github.com/specc-dev/specc/internal/project"
	"github.com/specc-dev/specc/internal/rules"
	"github.com/specc-dev/specc/internal/types"
)

// Diagnostic codes emitted by this package.
const (
	CodeIOError = "IO_ERROR"
)

// Mode selects how much of the pipeline runs and whether output is written.
type Mode int

const (
	// ModeValidate runs parse + graph + check only, no derivation.
	ModeValidate Mode = iota

	// ModeCompile runs the full pipeline and writes derived documents.
	ModeCompile

	// ModeDiff runs the full pipeline but only reports what derivation
	// would change, writing nothing.
	ModeDiff
)

// Options configures a compilation run. The rule set is loaded once and
// immutable for the run's duration.
type Options struct {
	Mode   Mode
	Config config.Config
	Rules  *rules.RuleSet

	// Cache is optional; nil disables result caching.
	Cache *cache.Cache
}

// Result is one project's outcome. Err is set only for I/O failures; all
// compilation problems land in the Report instead.
type Result struct {
	Project project.Project
	Report  *diag.Report
	Err     error

	// Previous and derived document bytes, populated in compile and diff
	// modes for rendering what changed.
	PlanPrev  []byte
	PlanOut   []byte
	TasksPrev []byte
	TasksOut  []byte
}

// Run compiles the given projects. Independent projects share no mutable
// state, so they run in parallel up to the configured worker limit. The
// result order matches the input order.
func Run(ctx context.Context, projects []project.Project, opts Options) []Result {
	workers := opts.Config.Workers
	if workers < 1 {
		workers = 1
	}

	sem := semaphore.NewWeighted(int64(workers))
	var wg sync.WaitGroup
	results := make([]Result, len(projects))

	for i, p := range projects {
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i] = compileProject(ctx, p, opts)
			continue
		}
		wg.Add(1)
		go func(i int, p project.Project) {
			defer wg.Done()
			defer sem.Release(1)
			results[i] = compileProject(ctx, p, opts)
		}(i, p)
	}
	wg.Wait()

	return results
}

// compileProject runs the pipeline for one project. Stage failures are
// fatal for the stage but isolated to the project.
func compileProject(ctx context.Context, p project.Project, opts Options) Result {
	res := Result{Project: p, Report: diag.NewReport(p.Name)}
	report := res.Report

	files, err := p.ReadFiles()
	if err != nil {
		res.Err = fmt.Errorf("%s: %w", p.Name, err)
		report.Add(diag.Diagnostic{
			Code:     CodeIOError,
			Severity: diag.SeverityError,
			Stage:    diag.StageLoad,
			Message:  err.Error(),
		})
		return res
	}
	contentHash := files.ContentHash()

	// The cache is a pure optimization: only consulted when nothing will
	// be written, and only valid while the content hash matches.
	if opts.Cache != nil && opts.Mode == ModeValidate {
		if cached, hit, err := opts.Cache.Get(ctx, p.Name, contentHash); err == nil && hit {
			res.Report = cached
			return res
		}
	}

	docs, ok := parseAll(files, report)
	if !ok {
		finish(report, opts)
		return res
	}

	// Cycle and dangling-reference rejection happens before any
	// derivation runs.
	if _, err := graph.Build(docs); err != nil {
		addGraphError(report, err)
		finish(report, opts)
		return res
	}

	if opts.Mode != ModeValidate {
		res.PlanPrev = files.Plan
		res.TasksPrev = files.Tasks

		plan, planDiags := derive.Plan(docs.Spec, docs.Plan)
		report.Add(planDiags...)
		tasks, taskDiags := derive.Tasks(plan, docs.Tasks)
		report.Add(taskDiags...)
		docs.Plan = plan
		docs.Tasks = tasks

		if res.PlanOut, err = derive.MarshalPlan(plan); err != nil {
			res.Err = fmt.Errorf("%s: %w", p.Name, err)
			return res
		}
		if res.TasksOut, err = derive.MarshalTasks(tasks); err != nil {
			res.Err = fmt.Errorf("%s: %w", p.Name, err)
			return res
		}
	}

	// The graph is rebuilt from scratch over the final document set; it
	// is never patched in place.
	g, err := graph.Build(docs)
	if err != nil {
		addGraphError(report, err)
		finish(report, opts)
		return res
	}

	addCoverage(report, g, docs)
	report.Add(rules.Check(ctx, g, docs, opts.Rules, opts.Config.Workers)...)
	finish(report, opts)

	if opts.Mode == ModeCompile && !report.HasErrors() {
		if err := p.WritePlan(res.PlanOut); err != nil {
			res.Err = fmt.Errorf("%s: %w", p.Name, err)
			return res
		}
		if err := p.WriteTasks(res.TasksOut); err != nil {
			res.Err = fmt.Errorf("%s: %w", p.Name, err)
			return res
		}
	}

	if opts.Cache != nil && opts.Mode == ModeValidate {
		// Cache write failures are invisible to the run's outcome.
		_ = opts.Cache.Put(ctx, p.Name, contentHash, report)
	}

	return res
}

// parseAll loads the document model from raw bytes, reporting schema
// errors and clarification warnings. Returns ok=false when parsing failed.
func parseAll(files *project.Files, report *diag.Report) (*types.ProjectDocs, bool) {
	docs := &types.ProjectDocs{}

	spec, warnings, err := parser.ParseSpec(files.Spec)
	if err != nil {
		addSchemaError(report, err)
		return nil, false
	}
	docs.Spec = spec
	report.Add(warnings...)

	if files.Plan != nil {
		plan, _, err := parser.ParsePlan(files.Plan)
		if err != nil {
			addSchemaError(report, err)
			return nil, false
		}
		docs.Plan = plan
	}
	if files.Tasks != nil {
		tasks, _, err := parser.ParseTasks(files.Tasks)
		if err != nil {
			addSchemaError(report, err)
			return nil, false
		}
		docs.Tasks = tasks
	}
	return docs, true
}

func addSchemaError(report *diag.Report, err error) {
	d := diag.Diagnostic{
		Code:     parser.CodeSchema,
		Severity: diag.SeverityError,
		Stage:    diag.StageParse,
		Message:  err.Error(),
	}
	var schemaErr *parser.SchemaError
	if errors.As(err, &schemaErr) {
		d.ID = string(schemaErr.ID)
	}
	report.Add(d)
}

func addGraphError(report *diag.Report, err error) {
	d := diag.Diagnostic{
		Severity: diag.SeverityError,
		Stage:    diag.StageGraph,
		Message:  err.Error(),
	}
	var dangling *graph.DanglingReferenceError
	var cycle *graph.CycleError
	switch {
	case errors.As(err, &dangling):
		d.Code = graph.CodeDanglingReference
		d.ID = string(dangling.Source)
	case errors.As(err, &cycle):
		d.Code = graph.CodeCycleDetected
		if len(cycle.Path) > 0 {
			d.ID = string(cycle.Path[0])
		}
	default:
		d.Code = graph.CodeDanglingReference
	}
	report.Add(d)
}

// addCoverage reports requirements without covering plan items and plan
// items without owning tasks. The severity depends on the specification's
// lifecycle: a gap in a "planned" project is an error, earlier it is only
// advisory.
func addCoverage(report *diag.Report, g *graph.Graph, docs *types.ProjectDocs) {
	lifecycle := docs.Spec.Lifecycle

	// Coverage tightens with lifecycle: a gap is an error once the
	// project claims the downstream state, advisory while the downstream
	// document is still absent.
	reqSeverity := diag.SeverityInfo
	if docs.Plan != nil {
		reqSeverity = diag.SeverityWarning
	}
	if lifecycle.AtLeast(types.LifecyclePlanned) {
		reqSeverity = diag.SeverityError
	}
	for _, c := range []types.Category{types.CategoryFunctional, types.CategoryNonFunctional} {
		for _, id := range g.Uncovered(c) {
			report.Add(diag.Diagnostic{
				Code:     graph.CodeCoverageGap,
				Severity: reqSeverity,
				Stage:    diag.StageGraph,
				ID:       string(id),
				Message:  fmt.Sprintf("requirement %s has no covering plan item", id),
			})
		}
	}

	taskSeverity := diag.SeverityInfo
	if docs.Tasks != nil {
		taskSeverity = diag.SeverityWarning
	}
	if lifecycle.AtLeast(types.LifecycleTasked) {
		taskSeverity = diag.SeverityError
	}
	for _, id := range g.Uncovered(types.CategoryPlanItem) {
		report.Add(diag.Diagnostic{
			Code:     graph.CodeCoverageGap,
			Severity: taskSeverity,
			Stage:    diag.StageGraph,
			ID:       string(id),
			Message:  fmt.Sprintf("plan item %s has no owning task", id),
		})
	}
}

// finish applies strict-mode escalation and the deterministic report order.
func finish(report *diag.Report, opts Options) {
	if opts.Config.Strict {
		report.Escalate()
	}
	report.Sort()
}

// ExitCode maps a run's results to the process exit status: 0 for clean
// (or warnings in default mode), 1 for compilation errors, 2 for I/O
// failures. The worst severity across all projects wins.
func ExitCode(results []Result) int {
	code := 0
	for _, res := range results {
		if res.Err != nil {
			return 2
		}
		if res.Report != nil && res.Report.HasErrors() {
			code = 1
		}
	}
	return code
}
