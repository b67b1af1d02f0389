// Package pluginhost implements spec §4.4's Plugin Host: strictly ordered
// initialization from a CompositionPlan, call dispatch with per-skill
// serialization, health aggregation, and hot-reload.
//
// True OS-level load-unload isolation (spec §9 "Runtime assembly isolation
// with hot-reload") is out of this package's scope: Go has no supported
// in-process unload primitive. Skills are loaded through the Loader
// interface, whose default InProcessLoader simply calls a registered
// skillreg.Factory; the Loader interface (set with WithLoader) is the seam
// for an out-of-process worker (spec §9's fallback), and no such loader is
// implemented here (see DESIGN.md).
package pluginhost

import (
	"context"
	"sync"
	"time"

	"github.com/agentcore/platform/internal/logger"
	"github.com/agentcore/platform/pkg/agenterrors"
	"github.com/agentcore/platform/pkg/compose"
	"github.com/agentcore/platform/pkg/skillreg"
)

// Status is a SkillInstance's health state (spec §3).
type Status string

const (
	StatusUninitialized Status = "uninitialized"
	StatusInitializing  Status = "initializing"
	StatusHealthy       Status = "healthy"
	StatusDegraded      Status = "degraded"
	StatusFailed        Status = "failed"
	StatusDisposing     Status = "disposing"
)

// Instance is the runtime pairing of (metadata, config, handle, status)
// from spec §3's SkillInstance.
type Instance struct {
	Name     string
	Required bool
	Metadata skillreg.Metadata
	Config   map[string]any
	Handle   skillreg.Handle
	Status   Status

	mu sync.Mutex // guards calls into a `serial` concurrency-mode skill
}

// Lock serializes calls into this instance; used by the Function
// Dispatcher when the skill's metadata declares ConcurrencySerial.
func (i *Instance) Lock() { i.mu.Lock() }

// Unlock releases the lock taken by Lock.
func (i *Instance) Unlock() { i.mu.Unlock() }

// DefaultInitTimeout is spec §4.4's default per-skill Initialize timeout.
const DefaultInitTimeout = 30 * time.Second

// Loader constructs a fresh Handle for a PlannedSkill. InProcessLoader is
// the default; see the package doc for the out-of-process seam.
type Loader interface {
	Load(p compose.PlannedSkill) (skillreg.Handle, error)
}

// InProcessLoader just calls the plan's registered factory.
type InProcessLoader struct{}

func (InProcessLoader) Load(p compose.PlannedSkill) (skillreg.Handle, error) {
	return p.Factory()
}

// Host owns every SkillInstance for one agent.
type Host struct {
	mu          sync.RWMutex
	instances   map[string]*Instance
	order       []string // topological order from the last Boot/partial reload
	loader      Loader
	initTimeout time.Duration
	reload      *reloadState
}

// New returns a Host using InProcessLoader and the default init timeout.
func New() *Host {
	return &Host{
		instances:   make(map[string]*Instance),
		loader:      InProcessLoader{},
		initTimeout: DefaultInitTimeout,
		reload:      newReloadState(),
	}
}

// WithLoader overrides the Loader (e.g. for tests or a process-isolated implementation).
func (h *Host) WithLoader(l Loader) *Host {
	h.loader = l
	return h
}

// Boot initializes every skill in plan.Skills strictly in order (spec
// §4.4): each Initialize must complete or time out before the next begins.
// A failing required skill aborts the whole boot.
func (h *Host) Boot(ctx context.Context, plan *compose.CompositionPlan) error {
	log := logger.FromContext(ctx)
	h.mu.Lock()
	defer h.mu.Unlock()

	instances := make(map[string]*Instance, len(plan.Skills))
	order := make([]string, 0, len(plan.Skills))

	for _, p := range plan.Skills {
		inst := &Instance{Name: p.Metadata.Name, Required: p.Required, Metadata: p.Metadata, Config: p.Config, Status: StatusUninitialized}
		instances[p.Metadata.Name] = inst
		order = append(order, p.Metadata.Name)

		handle, err := h.loader.Load(p)
		if err != nil {
			inst.Status = StatusFailed
			if p.Required {
				return agenterrors.Wrap(agenterrors.KindInitializationFailed, err, map[string]any{"skill": p.Metadata.Name})
			}
			log.Warn("optional skill failed to load", "skill", p.Metadata.Name, "error", err)
			continue
		}
		inst.Handle = handle
		inst.Status = StatusInitializing

		depHandles := make(map[string]skillreg.Handle, len(p.Requirement.Dependencies))
		for _, depName := range p.Requirement.Dependencies {
			if depInst, ok := instances[depName]; ok {
				depHandles[depName] = depInst.Handle
			}
		}

		if err := h.initWithTimeout(ctx, inst, depHandles); err != nil {
			inst.Status = StatusFailed
			if p.Required {
				return agenterrors.Wrap(agenterrors.KindInitializationFailed, err, map[string]any{"skill": p.Metadata.Name})
			}
			log.Warn("optional skill failed to initialize", "skill", p.Metadata.Name, "error", err)
			continue
		}
		inst.Status = StatusHealthy
	}

	h.instances = instances
	h.order = order
	return nil
}

func (h *Host) initWithTimeout(ctx context.Context, inst *Instance, deps map[string]skillreg.Handle) error {
	deadline := h.initTimeout
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- inst.Handle.Initialize(inst.Config, deps)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return agenterrors.New(agenterrors.KindInitializationTimeout, "skill initialization timed out", map[string]any{
			"skill":   inst.Name,
			"timeout": deadline.String(),
		})
	}
}

// dependencyHandles looks up the live handles for a set of dependency
// names against the host's currently loaded instances, used when
// re-initializing a single skill during Reload.
func (h *Host) dependencyHandles(names []string) map[string]skillreg.Handle {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]skillreg.Handle, len(names))
	for _, name := range names {
		if inst, ok := h.instances[name]; ok {
			out[name] = inst.Handle
		}
	}
	return out
}

// Get returns the named instance, or an OperationNotFound error.
func (h *Host) Get(name string) (*Instance, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	inst, ok := h.instances[name]
	if !ok {
		return nil, agenterrors.New(agenterrors.KindOperationNotFound, "skill not loaded", map[string]any{"skill": name})
	}
	return inst, nil
}

// AggregateHealth implements spec §4.4's aggregation: any required skill
// `failed` makes the agent `degraded`.
type AgentHealth struct {
	Overall string
	Skills  map[string]skillreg.Health
}

func (h *Host) AggregateHealth() AgentHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := AgentHealth{Overall: "healthy", Skills: make(map[string]skillreg.Health, len(h.instances))}
	for name, inst := range h.instances {
		var health skillreg.Health
		if inst.Handle != nil {
			health = inst.Handle.GetHealth()
		} else {
			health = skillreg.Health{Healthy: false, Status: string(inst.Status)}
		}
		out.Skills[name] = health
		if inst.Required && (inst.Status == StatusFailed || !health.Healthy) {
			out.Overall = "degraded"
		}
	}
	return out
}

// Shutdown disposes every instance that holds a handle in reverse
// topological order, best-effort; required and optional skills are not
// treated differently.
func (h *Host) Shutdown(ctx context.Context) []error {
	log := logger.FromContext(ctx)
	h.mu.Lock()
	defer h.mu.Unlock()

	var errs []error
	for i := len(h.order) - 1; i >= 0; i-- {
		name := h.order[i]
		inst := h.instances[name]
		if inst.Handle == nil {
			continue
		}
		inst.Status = StatusDisposing
		if err := inst.Handle.Dispose(); err != nil {
			log.Error("skill dispose failed", "skill", name, "error", err)
			errs = append(errs, err)
		}
	}
	return errs
}
