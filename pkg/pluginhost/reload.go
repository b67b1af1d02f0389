package pluginhost

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/agentcore/platform/internal/logger"
	"github.com/agentcore/platform/pkg/agenterrors"
	"github.com/agentcore/platform/pkg/compose"
)

// DefaultDrainTimeout bounds how long Reload waits for in-flight calls to
// the reloading skill to finish before giving up (spec §4.4 step a).
const DefaultDrainTimeout = 10 * time.Second

// reloadState tracks skills currently mid hot-reload; EnterCall consults it
// to return Reloading to new callers (spec §4.4, scenario S7).
type reloadState struct {
	mu        sync.Mutex
	inFlight  map[string]*int64 // skill -> in-flight call counter
	reloading map[string]bool
}

func newReloadState() *reloadState {
	return &reloadState{inFlight: make(map[string]*int64), reloading: make(map[string]bool)}
}

func (r *reloadState) counter(name string) *int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.inFlight[name]
	if !ok {
		var zero int64
		c = &zero
		r.inFlight[name] = c
	}
	return c
}

func (r *reloadState) isReloading(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reloading[name]
}

func (r *reloadState) setReloading(name string, v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reloading[name] = v
}

// EnterCall increments the skill's in-flight counter, rejecting with
// Reloading if a reload is in progress. The returned func must be deferred
// to decrement on exit.
func (h *Host) EnterCall(name string) (func(), error) {
	if h.reload.isReloading(name) {
		return nil, agenterrors.New(agenterrors.KindReloading, "skill is being hot-reloaded", map[string]any{"skill": name})
	}
	c := h.reload.counter(name)
	atomic.AddInt64(c, 1)
	return func() { atomic.AddInt64(c, -1) }, nil
}

// Reload implements spec §4.4's hot-reload sequence for a single skill:
// quiesce, Dispose, unload, re-resolve via newPlan, swap in. On any failure
// it rolls back to the previous handle if still held, else leaves the skill
// `failed`. The previous handle is disposed before the new one is loaded,
// so a failed load or initialization leaves the skill `failed`.
func (h *Host) Reload(ctx context.Context, name string, newPlan compose.PlannedSkill) error {
	log := logger.FromContext(ctx).With("skill", name)

	h.mu.RLock()
	prev, ok := h.instances[name]
	h.mu.RUnlock()
	if !ok {
		return agenterrors.New(agenterrors.KindOperationNotFound, "skill not loaded", map[string]any{"skill": name})
	}

	h.reload.setReloading(name, true)
	defer h.reload.setReloading(name, false)

	if err := h.drain(ctx, name); err != nil {
		log.Warn("reload proceeding after drain timeout", "error", err)
	}

	if prev.Handle != nil {
		if err := prev.Handle.Dispose(); err != nil {
			log.Error("dispose failed during reload", "error", err)
		}
		// A disposed handle is no longer usable; dropping it makes a
		// later rollback leave the skill failed instead of restoring it.
		h.mu.Lock()
		prev.Handle = nil
		h.mu.Unlock()
	}

	newHandle, err := h.loader.Load(newPlan)
	if err != nil {
		return h.rollback(prev, agenterrors.Wrap(agenterrors.KindInitializationFailed, err, map[string]any{"skill": name}))
	}

	newInst := &Instance{Name: name, Required: newPlan.Required, Metadata: newPlan.Metadata, Config: newPlan.Config, Handle: newHandle, Status: StatusInitializing}
	if err := h.initWithTimeout(ctx, newInst, h.dependencyHandles(newPlan.Requirement.Dependencies)); err != nil {
		return h.rollback(prev, err)
	}
	newInst.Status = StatusHealthy

	h.mu.Lock()
	h.instances[name] = newInst
	h.mu.Unlock()
	log.Info("skill hot-reloaded")
	return nil
}

// rollback restores prev as the active instance (if it still has a handle)
// and returns the triggering error. If prev no longer has a usable handle
// (it was already disposed), the skill is left `failed`.
func (h *Host) rollback(prev *Instance, cause error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if prev.Handle != nil {
		prev.Status = StatusHealthy
		h.instances[prev.Name] = prev
	} else {
		prev.Status = StatusFailed
		h.instances[prev.Name] = prev
	}
	return cause
}

// drain waits up to DefaultDrainTimeout for in-flight calls to name to
// reach zero.
func (h *Host) drain(ctx context.Context, name string) error {
	counter := h.reload.counter(name)
	deadline := time.Now().Add(DefaultDrainTimeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if atomic.LoadInt64(counter) == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return agenterrors.New(agenterrors.KindStepTimeout, "drain timeout waiting for in-flight calls", map[string]any{"skill": name})
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Watcher watches a directory for skill-artifact changes and invokes
// onChange(skillName) for every write or create event, used to trigger Reload from an
// external directive (spec §9 "treat skills as units that can be loaded and
// unloaded").
type Watcher struct {
	fsw      *fsnotify.Watcher
	onChange func(skillName string)
}

// NewWatcher watches dir and calls onChange with the base name, cut at its
// first '.', of any file that is written to or created.
func NewWatcher(dir string, onChange func(skillName string)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, agenterrors.Wrap(agenterrors.KindInitializationFailed, err, map[string]any{"dir": dir})
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, agenterrors.Wrap(agenterrors.KindInitializationFailed, err, map[string]any{"dir": dir})
	}
	return &Watcher{fsw: fsw, onChange: onChange}, nil
}

// Run blocks, dispatching write and create events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			_ = w.fsw.Close()
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				w.onChange(skillNameFromPath(ev.Name))
			}
		case <-w.fsw.Errors:
			// best-effort: a watch error does not stop the host
		}
	}
}

func skillNameFromPath(path string) string {
	start := 0
	for j := len(path) - 1; j >= 0; j-- {
		if path[j] == '/' {
			start = j + 1
			break
		}
	}
	name := path[start:]
	for idx, c := range name {
		if c == '.' {
			return name[:idx]
		}
	}
	return name
}
