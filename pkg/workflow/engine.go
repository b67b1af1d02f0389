package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/agentcore/platform/internal/logger"
	"github.com/agentcore/platform/pkg/agenterrors"
)

// DefaultMaxParallelSteps is spec §4.8's default concurrency bound.
const DefaultMaxParallelSteps = 8

// Engine runs Workflows against an Executor (spec §4.8).
type Engine struct {
	executor    Executor
	maxParallel int64
}

// New returns an Engine bounded to maxParallel concurrent steps. A
// non-positive value falls back to DefaultMaxParallelSteps.
func New(executor Executor, maxParallel int) *Engine {
	if maxParallel <= 0 {
		maxParallel = DefaultMaxParallelSteps
	}
	return &Engine{executor: executor, maxParallel: int64(maxParallel)}
}

// Run builds the DAG, starts each step as soon as all of its dependencies
// have finished, bounded by maxParallel, and returns the immutable WorkflowResult. ctx
// cancellation (external cancel token, spec §4.8 step 7) stops scheduling
// new steps and marks in-flight ones cancelled as they observe it.
func (e *Engine) Run(ctx context.Context, wf Workflow) (*WorkflowResult, error) {
	if wf.Timeout != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *wf.Timeout)
		defer cancel()
	}

	d, err := buildDAG(wf)
	if err != nil {
		return nil, err
	}

	log := logger.FromContext(ctx).With("workflow_id", wf.ID)
	sem := semaphore.NewWeighted(e.maxParallel)

	done := make(map[string]chan struct{}, len(d.order))
	for _, id := range d.order {
		done[id] = make(chan struct{})
	}

	var mu sync.Mutex
	results := make(map[string]StepResult, len(d.order))
	var abort atomic.Bool

	var wg sync.WaitGroup
	wg.Add(len(d.order))
	for _, id := range d.order {
		step := d.steps[id]
		go func() {
			defer wg.Done()
			defer close(done[step.ID])

			if !awaitDependencies(ctx, step, done) {
				recordResult(&mu, results, StepResult{StepID: step.ID, Outcome: OutcomeCancelled, Err: agenterrors.New(agenterrors.KindCancelled, "workflow cancelled before step started", nil)})
				return
			}

			if abort.Load() || ctx.Err() != nil {
				recordResult(&mu, results, StepResult{StepID: step.ID, Outcome: OutcomeSkipped})
				return
			}
			if depFailed(d, step, &mu, results) {
				recordResult(&mu, results, StepResult{StepID: step.ID, Outcome: OutcomeSkipped})
				return
			}

			if err := sem.Acquire(ctx, 1); err != nil {
				recordResult(&mu, results, StepResult{StepID: step.ID, Outcome: OutcomeCancelled, Err: agenterrors.Wrap(agenterrors.KindCancelled, err, nil)})
				return
			}
			defer sem.Release(1)

			result := e.runStep(ctx, wf, step, &mu, results)
			recordResult(&mu, results, result)
			if result.Outcome != OutcomeSuccess && step.Required {
				abort.Store(true)
				log.Warn("required step failed, aborting remaining steps", "step", step.ID, "outcome", result.Outcome)
			}
		}()
	}
	wg.Wait()

	success := true
	for _, id := range d.order {
		r := results[id]
		if d.steps[id].Required && r.Outcome != OutcomeSuccess {
			success = false
		}
	}
	return &WorkflowResult{WorkflowID: wf.ID, Success: success, Steps: results}, nil
}

// awaitDependencies blocks until every DependsOn step has reached a
// terminal state, or ctx is done first.
func awaitDependencies(ctx context.Context, step WorkflowStep, done map[string]chan struct{}) bool {
	for _, dep := range step.DependsOn {
		select {
		case <-done[dep]:
		case <-ctx.Done():
			return false
		}
	}
	return true
}

// depFailed reports whether a dependency that is itself REQUIRED did not
// succeed; such a step cascades to skipped rather than running with
// missing required inputs. A failed OPTIONAL dependency is not cause for
// cascading skip here: the dependent still runs, simply without that
// dependency's dep_<d>_* keys (see effectiveParams), and whether it then
// fails is left to its own operation's parameter validation (spec §4.8
// step 6 is silent on a cascade policy for optional-dependency failure).
func depFailed(d *dag, step WorkflowStep, mu *sync.Mutex, results map[string]StepResult) bool {
	mu.Lock()
	defer mu.Unlock()
	for _, dep := range step.DependsOn {
		depStep, ok := d.steps[dep]
		if !ok || !depStep.Required {
			continue
		}
		r, ok := results[dep]
		if ok && r.Outcome != OutcomeSuccess {
			return true
		}
	}
	return false
}

func recordResult(mu *sync.Mutex, results map[string]StepResult, r StepResult) {
	mu.Lock()
	defer mu.Unlock()
	if _, already := results[r.StepID]; !already {
		results[r.StepID] = r
	}
}

// runStep builds the effective parameter map (spec §4.8 step 3) and
// dispatches via the Executor, honoring the step's own timeout.
func (e *Engine) runStep(ctx context.Context, wf Workflow, step WorkflowStep, mu *sync.Mutex, results map[string]StepResult) StepResult {
	params := effectiveParams(wf, step, mu, results)

	stepCtx := ctx
	var cancel context.CancelFunc
	if step.Timeout > 0 {
		stepCtx, cancel = context.WithTimeout(ctx, step.Timeout)
		defer cancel()
	}

	data, err := e.executor.Execute(stepCtx, ExecuteRequest{
		TargetAgentID: step.TargetAgentID,
		SkillName:     step.SkillName,
		Operation:     step.Operation,
		Parameters:    params,
	})
	if err != nil {
		if kind, ok := agenterrors.KindOf(err); ok && kind == agenterrors.KindCancelled {
			return StepResult{StepID: step.ID, Outcome: OutcomeCancelled, Err: err}
		}
		if errors.Is(ctx.Err(), context.Canceled) {
			return StepResult{StepID: step.ID, Outcome: OutcomeCancelled, Err: agenterrors.Wrap(agenterrors.KindCancelled, err, map[string]any{"step": step.ID})}
		}
		if stepCtx.Err() != nil {
			return StepResult{StepID: step.ID, Outcome: OutcomeTimeout, Err: agenterrors.New(agenterrors.KindStepTimeout, "step timed out", map[string]any{"step": step.ID})}
		}
		return StepResult{StepID: step.ID, Outcome: OutcomeFailed, Err: err}
	}
	return StepResult{StepID: step.ID, Outcome: OutcomeSuccess, Data: data}
}

// effectiveParams implements spec §4.8 step 3: step params, then
// globalContext, then each succeeded dependency's result data under
// dep_<d>_* keys. Failed/skipped optional dependencies contribute no keys
// (spec §4.8 step 6: "dependents... get empty dep fields").
func effectiveParams(wf Workflow, step WorkflowStep, mu *sync.Mutex, results map[string]StepResult) map[string]any {
	out := make(map[string]any, len(step.Parameters)+len(wf.GlobalContext))
	for k, v := range step.Parameters {
		out[k] = v
	}
	for k, v := range wf.GlobalContext {
		out[k] = v
	}

	mu.Lock()
	defer mu.Unlock()
	for _, dep := range step.DependsOn {
		r, ok := results[dep]
		if !ok || r.Outcome != OutcomeSuccess {
			continue
		}
		prefix := fmt.Sprintf("dep_%s_", dep)
		for k, v := range r.Data {
			out[prefix+k] = v
		}
	}
	return out
}
