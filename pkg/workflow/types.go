// Package workflow implements spec §4.8's Workflow Engine: a DAG scheduler
// that dispatches each step via the Agent Runtime, propagating dependency
// result data and honoring per-step timeouts and cancellation.
package workflow

import (
	"context"
	"time"
)

// WorkflowStep is spec §3's WorkflowStep.
type WorkflowStep struct {
	ID            string
	TargetAgentID string // empty means "this agent"
	SkillName     string
	Operation     string
	Parameters    map[string]any
	Timeout       time.Duration
	Order         int // carried with the step; the Engine does not read it and schedules by DependsOn only
	Required      bool
	DependsOn     []string
}

// Workflow is spec §3's Workflow.
type Workflow struct {
	ID            string
	Name          string
	Steps         []WorkflowStep
	GlobalContext map[string]any
	Timeout       *time.Duration // overall workflow timeout, optional
}

// StepOutcome is one of spec §4.8 step 5's terminal outcomes.
type StepOutcome string

const (
	OutcomeSuccess   StepOutcome = "success"
	OutcomeFailed    StepOutcome = "failed"
	OutcomeSkipped   StepOutcome = "skipped"
	OutcomeTimeout   StepOutcome = "timeout"
	OutcomeCancelled StepOutcome = "cancelled"
)

// StepResult is one step's terminal record.
type StepResult struct {
	StepID  string
	Outcome StepOutcome
	Data    map[string]any
	Err     error
}

// WorkflowResult is spec §3's immutable per-workflow result record.
type WorkflowResult struct {
	WorkflowID string
	Success    bool
	Steps      map[string]StepResult
}

// ExecuteRequest is what the Workflow Engine asks the Agent Runtime to run
// for one step (spec §4.8 step 4).
type ExecuteRequest struct {
	TargetAgentID string
	SkillName     string
	Operation     string
	Parameters    map[string]any
}

// Executor is the Agent Runtime seam the engine dispatches steps through.
// Defined here (rather than imported from agentruntime) to avoid an import
// cycle: agentruntime depends on workflow, not the other way around.
type Executor interface {
	Execute(ctx context.Context, req ExecuteRequest) (map[string]any, error)
}
