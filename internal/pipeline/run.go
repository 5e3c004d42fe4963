package pipeline

// run.go - Execution orchestration for pipeline runs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cytops/cytops/internal/dag"
	"github.com/cytops/cytops/pkg/core"
)

// preparedStage holds a stage ready for execution after successful
// validation.
type preparedStage struct {
	stage    Stage
	stageRun *core.StageRun
}

// Run executes all stages in dependency order using a two-phase
// approach:
// Phase 1: Validate all stages (fail fast if any fail)
// Phase 2: Execute stages level by level, stages within a level
// concurrently
func (e *Engine) Run(ctx context.Context, env string) (*core.Run, error) {
	return e.run(ctx, env, e.graph)
}

// RunSelected executes only the specified stages, optionally with their
// downstream dependents. Upstream datasets must be produced by the
// selected stages themselves; selections that skip a producer fail
// during execution.
func (e *Engine) RunSelected(ctx context.Context, env string, stages []string, includeDownstream bool) (*core.Run, error) {
	for _, name := range stages {
		if !e.graph.Has(name) {
			return nil, fmt.Errorf("unknown stage %q, available stages: %v", name, e.graph.Stages())
		}
	}

	affected := stages
	if includeDownstream {
		affected = e.graph.Downstream(stages)
	}

	e.logger.Info("starting selected run", "environment", env, "stages", affected)
	return e.run(ctx, env, e.graph.Subgraph(affected))
}

func (e *Engine) run(ctx context.Context, env string, graph *dag.Graph) (*core.Run, error) {
	e.logger.Info("starting run", "environment", env, "stages", graph.Len())

	if err := e.ensureDBConnected(ctx); err != nil {
		return nil, err
	}

	run, err := e.store.CreateRun(env)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	e.logger.Debug("created run", "run_id", run.ID)

	sorted, err := graph.TopoSort()
	if err != nil {
		_ = e.store.CompleteRun(run.ID, core.RunStatusFailed, fmt.Sprintf("dependency sort failed: %v", err))
		return run, err
	}

	// Phase 1: Validate all stages
	execEnv := &Env{
		Config: e.cfg,
		Bag:    NewBag(),
		DB:     e.db,
		Store:  e.store,
		RunID:  run.ID,
		Logger: e.logger,
	}

	e.logger.Debug("validating stages", "count", len(sorted))
	prepared, validateErrors := e.validateAndPrepare(ctx, execEnv, sorted)

	if len(validateErrors) > 0 {
		for _, p := range prepared {
			_ = e.store.UpdateStageRun(p.stageRun.ID, core.StageRunStatusSkipped, 0,
				"run aborted: other stages failed validation", 0)
		}

		errMsg := fmt.Sprintf("%d stage(s) failed validation", len(validateErrors))
		_ = e.store.CompleteRun(run.ID, core.RunStatusFailed, errMsg)

		e.logger.Error("run failed during validation", "run_id", run.ID, "validation_errors", len(validateErrors))
		run, _ = e.store.GetRun(run.ID)
		return run, errors.Join(validateErrors...)
	}

	// Phase 2: Execute stages
	e.logger.Debug("executing stages", "count", len(prepared))
	runErr := e.executeStages(ctx, execEnv, graph, prepared)

	switch {
	case runErr == nil:
		e.logger.Info("run completed", "run_id", run.ID)
		_ = e.store.CompleteRun(run.ID, core.RunStatusCompleted, "")
		_ = e.store.PruneRuns(e.cfg.KeepRuns)
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
		e.logger.Info("run cancelled", "run_id", run.ID)
		_ = e.store.CompleteRun(run.ID, core.RunStatusCancelled, runErr.Error())
	default:
		e.logger.Info("run failed", "run_id", run.ID, "error", runErr.Error())
		_ = e.store.CompleteRun(run.ID, core.RunStatusFailed, runErr.Error())
	}

	run, _ = e.store.GetRun(run.ID)
	return run, runErr
}

// validateAndPrepare validates all stages and records pending
// StageRuns. Returns prepared stages and any validation errors.
func (e *Engine) validateAndPrepare(ctx context.Context, execEnv *Env, sorted []string) ([]preparedStage, []error) {
	var prepared []preparedStage
	var validateErrors []error

	for _, name := range sorted {
		stage, ok := e.stages[name]
		if !ok {
			validateErrors = append(validateErrors, fmt.Errorf("stage %q is not registered", name))
			continue
		}

		stageRun := &core.StageRun{
			RunID:  execEnv.RunID,
			Stage:  name,
			Status: core.StageRunStatusPending,
		}
		if err := e.store.RecordStageRun(stageRun); err != nil {
			validateErrors = append(validateErrors, fmt.Errorf("%s: failed to record stage run: %w", name, err))
			continue
		}

		if err := stage.Validate(ctx, execEnv); err != nil {
			_ = e.store.UpdateStageRun(stageRun.ID, core.StageRunStatusFailed, 0, err.Error(), 0)
			validateErrors = append(validateErrors, fmt.Errorf("%s: %w", name, err))
			continue
		}

		e.logger.Debug("stage validated", "stage", name)
		prepared = append(prepared, preparedStage{stage: stage, stageRun: stageRun})
	}

	return prepared, validateErrors
}

// executeStages executes prepared stages level by level. Stages in the
// same level share no dependency path and run concurrently.
func (e *Engine) executeStages(ctx context.Context, execEnv *Env, graph *dag.Graph, prepared []preparedStage) error {
	byName := make(map[string]preparedStage, len(prepared))
	for _, p := range prepared {
		byName[p.stage.Name()] = p
	}

	levels, err := graph.Levels()
	if err != nil {
		return err
	}

	executed := make(map[string]bool, len(prepared))

	markRemaining := func(reason string) {
		for _, p := range prepared {
			if !executed[p.stage.Name()] {
				_ = e.store.UpdateStageRun(p.stageRun.ID, core.StageRunStatusSkipped, 0, reason, 0)
			}
		}
	}

	for _, level := range levels {
		if err := ctx.Err(); err != nil {
			markRemaining("skipped: run cancelled")
			return err
		}

		var mu sync.Mutex
		var levelErrors []error

		g, gctx := errgroup.WithContext(ctx)
		for _, name := range level {
			p, ok := byName[name]
			if !ok {
				continue
			}
			g.Go(func() error {
				if err := e.executeStage(gctx, execEnv, p); err != nil {
					mu.Lock()
					levelErrors = append(levelErrors, err)
					mu.Unlock()
					return err
				}
				return nil
			})
			executed[name] = true
		}
		_ = g.Wait()

		if len(levelErrors) > 0 {
			markRemaining("skipped: upstream stage failed")
			return errors.Join(levelErrors...)
		}
	}

	return nil
}

// executeStage runs a single stage and records its outcome.
func (e *Engine) executeStage(ctx context.Context, execEnv *Env, p preparedStage) error {
	name := p.stage.Name()
	if err := ctx.Err(); err != nil {
		_ = e.store.UpdateStageRun(p.stageRun.ID, core.StageRunStatusSkipped, 0, "skipped: run cancelled", 0)
		return fmt.Errorf("%s: %w", name, err)
	}
	_ = e.store.UpdateStageRun(p.stageRun.ID, core.StageRunStatusRunning, 0, "", 0)

	start := time.Now()
	rows, err := p.stage.Execute(ctx, execEnv)
	durationMS := time.Since(start).Milliseconds()

	if err != nil {
		e.logger.Debug("stage execution failed", "stage", name, "error", err)
		_ = e.store.UpdateStageRun(p.stageRun.ID, core.StageRunStatusFailed, 0, err.Error(), durationMS)
		return fmt.Errorf("%s: %w", name, err)
	}

	e.logger.Debug("stage executed", "stage", name, "rows", rows, "duration_ms", durationMS)
	_ = e.store.UpdateStageRun(p.stageRun.ID, core.StageRunStatusSuccess, rows, "", durationMS)
	return nil
}
