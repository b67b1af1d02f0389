// Package dispatch implements spec §4.5's Function Dispatcher: Invoke(skill,
// operation, args) with parameter validation, write-forbidden gating in
// read-only mode, and tracing metadata attachment.
package dispatch

import (
	"context"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/agentcore/platform/internal/logger"
	"github.com/agentcore/platform/pkg/agenterrors"
	"github.com/agentcore/platform/pkg/pluginhost"
	"github.com/agentcore/platform/pkg/skillreg"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Dispatcher maps (skill, operation) to a handler, validating arguments and
// gating writes. Stateless and safe for parallel calls (spec §5).
type Dispatcher struct {
	host *pluginhost.Host

	mu       sync.RWMutex
	readOnly bool
}

// New returns a Dispatcher backed by host.
func New(host *pluginhost.Host) *Dispatcher {
	return &Dispatcher{host: host}
}

// SetReadOnly toggles read-only mode; while on, `write` operations fail
// with WriteForbidden (spec §4.5).
func (d *Dispatcher) SetReadOnly(ro bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.readOnly = ro
}

func (d *Dispatcher) isReadOnly() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.readOnly
}

// CallMetadata is the tracing metadata attached to every dispatched call
// (spec §4.5).
type CallMetadata struct {
	RequestID    string
	CallerAgentID string
}

// Invoke dispatches operation on skillName with args, enforcing read-only
// mode and per-skill serialization (spec §5 "the Plugin Host serializes
// calls into skills marked serial").
func (d *Dispatcher) Invoke(ctx context.Context, skillName, operation string, args map[string]any, caller string) (map[string]any, CallMetadata, error) {
	meta := CallMetadata{RequestID: uuid.NewString(), CallerAgentID: caller}
	log := logger.FromContext(ctx).With("request_id", meta.RequestID, "skill", skillName, "operation", operation)

	release, err := d.host.EnterCall(skillName)
	if err != nil {
		return nil, meta, err
	}
	defer release()

	inst, err := d.host.Get(skillName)
	if err != nil {
		return nil, meta, err
	}
	if inst.Status == pluginhost.StatusFailed || inst.Status == pluginhost.StatusDisposing {
		return nil, meta, agenterrors.New(agenterrors.KindSkillUnavailable, "skill is not available", map[string]any{"skill": skillName})
	}

	op, err := findOperation(inst, operation)
	if err != nil {
		return nil, meta, err
	}

	if op.SideEffect == skillreg.SideEffectWrite && d.isReadOnly() {
		return nil, meta, agenterrors.New(agenterrors.KindWriteForbidden, "write operation rejected while runtime is read-only", map[string]any{
			"skill": skillName, "operation": operation,
		})
	}

	if err := validateArgs(op, args); err != nil {
		return nil, meta, err
	}

	invoke := func() (map[string]any, error) { return op.Handler(args) }
	if inst.Metadata.ConcurrencyMode == skillreg.ConcurrencySerial {
		inst.Lock()
		defer inst.Unlock()
	}

	result, err := invoke()
	if err != nil {
		log.Error("operation failed", "error", err)
		return nil, meta, err
	}
	return result, meta, nil
}

func findOperation(inst *pluginhost.Instance, name string) (skillreg.Operation, error) {
	if inst.Handle == nil {
		return skillreg.Operation{}, agenterrors.New(agenterrors.KindSkillUnavailable, "skill has no loaded handle", map[string]any{"skill": inst.Name})
	}
	for _, op := range inst.Handle.Operations() {
		if op.Name == name {
			return op, nil
		}
	}
	return skillreg.Operation{}, agenterrors.New(agenterrors.KindOperationNotFound, "operation not registered", map[string]any{
		"skill": inst.Name, "operation": name,
	})
}

// validateArgs applies each declared "field -> validator tag" rule to args
// via go-playground/validator's Var, aggregating every failing field into
// one InvalidArgument error.
func validateArgs(op skillreg.Operation, args map[string]any) error {
	if len(op.ParamSchema) == 0 {
		return nil
	}
	var failed []string
	for field, tag := range op.ParamSchema {
		val, present := args[field]
		if !present {
			if hasRequired(tag) {
				failed = append(failed, field)
			}
			continue
		}
		if err := validate.Var(val, tag); err != nil {
			failed = append(failed, field)
		}
	}
	if len(failed) > 0 {
		return agenterrors.New(agenterrors.KindInvalidArgument, "argument validation failed", map[string]any{
			"operation": op.Name, "fields": failed,
		})
	}
	return nil
}

func hasRequired(tag string) bool {
	for _, part := range splitTag(tag) {
		if part == "required" {
			return true
		}
	}
	return false
}

func splitTag(tag string) []string {
	var out []string
	start := 0
	for i := 0; i < len(tag); i++ {
		if tag[i] == ',' {
			out = append(out, tag[start:i])
			start = i + 1
		}
	}
	out = append(out, tag[start:])
	return out
}
