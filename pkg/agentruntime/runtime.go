// Package agentruntime implements spec §4.10's Agent Runtime: the
// top-level façade that routes a request to the local Function Dispatcher,
// a remote agent via A2A Transport (resolved through Discovery), or the
// Workflow Engine, while tracking the agent's lifecycle state machine.
package agentruntime

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/agentcore/platform/internal/logger"
	"github.com/agentcore/platform/pkg/a2a"
	"github.com/agentcore/platform/pkg/a2a/transport"
	"github.com/agentcore/platform/pkg/agenterrors"
	"github.com/agentcore/platform/pkg/discovery"
	"github.com/agentcore/platform/pkg/dispatch"
	"github.com/agentcore/platform/pkg/pluginhost"
	"github.com/agentcore/platform/pkg/workflow"
)

// State is the runtime's lifecycle state (spec §4.10).
type State string

const (
	StateInitializing State = "Initializing"
	StateReady         State = "Ready"
	StateDegraded      State = "Degraded"
	StateDraining      State = "Draining"
	StateStopped       State = "Stopped"
)

// Request is the top-level AgentRequest from spec §4.10's data flow.
type Request struct {
	TargetAgentID string // empty or self id routes locally
	SkillName     string
	Operation     string
	Parameters    map[string]any
	Workflow      *workflow.Workflow
	CorrelationID string
	ShareableKeys []string // context keys the caller wants propagated downstream
}

// Result is the outcome of a routed Request.
type Result struct {
	CorrelationID string
	Data          map[string]any
	Workflow      *workflow.WorkflowResult
}

// Config bounds backpressure (spec §5) and transport routing.
type Config struct {
	MaxInFlightPerDestination int
	MaxQueuedPerDestination   int
	MaxParallelSteps          int
}

// DefaultConfig matches spec §6.4's defaults.
func DefaultConfig() Config {
	return Config{MaxInFlightPerDestination: 64, MaxQueuedPerDestination: 256, MaxParallelSteps: workflow.DefaultMaxParallelSteps}
}

// Runtime is the façade described by spec §4.10.
type Runtime struct {
	self       a2a.Identity
	dispatcher *dispatch.Dispatcher
	host       *pluginhost.Host
	client     *transport.Client
	directory  *discovery.Directory
	engine     *workflow.Engine
	cfg        Config

	state   atomic.Value // State
	limiter *destinationLimiters
	metrics *metrics
}

// New wires a Runtime around its component dependencies. The Engine is
// constructed with an executorAdapter over the Runtime as its Executor, so
// workflow steps recurse back through ExecuteStep (spec §2 "nodes call the
// Runtime recursively").
func New(self a2a.Identity, host *pluginhost.Host, dispatcher *dispatch.Dispatcher, client *transport.Client, directory *discovery.Directory, cfg Config) *Runtime {
	r := &Runtime{
		self:       self,
		dispatcher: dispatcher,
		host:       host,
		client:     client,
		directory:  directory,
		cfg:        cfg,
		limiter:    newDestinationLimiters(cfg.MaxInFlightPerDestination, cfg.MaxQueuedPerDestination),
		metrics:    newMetrics(),
	}
	r.state.Store(StateInitializing)
	r.engine = workflow.New(&executorAdapter{r: r}, cfg.MaxParallelSteps)
	return r
}

// SetReady transitions Initializing -> Ready once Boot has completed.
func (r *Runtime) SetReady() { r.state.Store(StateReady) }

// SetDegraded marks Degraded (spec: "one or more optional skills are
// unhealthy").
func (r *Runtime) SetDegraded() { r.state.Store(StateDegraded) }

// Recover returns to Ready from Degraded once skills heal.
func (r *Runtime) Recover() { r.state.Store(StateReady) }

// Drain transitions to Draining: new requests are rejected with
// ShuttingDown while in-flight ones are left to complete.
func (r *Runtime) Drain() { r.state.Store(StateDraining) }

// Stop transitions to the terminal Stopped state.
func (r *Runtime) Stop() { r.state.Store(StateStopped) }

// State reports the current lifecycle state.
func (r *Runtime) State() State { return r.state.Load().(State) }

// Execute routes req per spec §4.10's data flow.
func (r *Runtime) Execute(ctx context.Context, req Request) (Result, error) {
	if r.State() == StateDraining || r.State() == StateStopped {
		return Result{}, agenterrors.New(agenterrors.KindShuttingDown, "runtime is not accepting new requests", nil)
	}

	correlationID := req.CorrelationID
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	ctx = logger.ContextWithLogger(ctx, logger.FromContext(ctx).With("correlation_id", correlationID))

	if req.Workflow != nil {
		wfResult, err := r.engine.Run(ctx, *req.Workflow)
		if err != nil {
			return Result{}, err
		}
		return Result{CorrelationID: correlationID, Workflow: wfResult}, nil
	}

	data, err := r.dispatchOne(ctx, req.TargetAgentID, req.SkillName, req.Operation, req.Parameters)
	if err != nil {
		return Result{}, err
	}
	return Result{CorrelationID: correlationID, Data: data}, nil
}

// ExecuteStep backs workflow.Executor (through executorAdapter), letting the
// Workflow Engine recurse through the same routing logic for each step.
func (r *Runtime) ExecuteStep(ctx context.Context, req workflow.ExecuteRequest) (map[string]any, error) {
	return r.dispatchOne(ctx, req.TargetAgentID, req.SkillName, req.Operation, req.Parameters)
}

// executorAdapter adapts Runtime.ExecuteStep to workflow.Executor's
// Execute(ctx, ExecuteRequest) signature, since Runtime's own Execute
// method has the public Request/Result shape instead.
type executorAdapter struct{ r *Runtime }

var _ workflow.Executor = (*executorAdapter)(nil)

func (a *executorAdapter) Execute(ctx context.Context, req workflow.ExecuteRequest) (map[string]any, error) {
	return a.r.ExecuteStep(ctx, req)
}

func (r *Runtime) dispatchOne(ctx context.Context, targetAgentID, skillName, operation string, params map[string]any) (map[string]any, error) {
	if targetAgentID == "" || targetAgentID == r.self.ID {
		data, _, err := r.dispatcher.Invoke(ctx, skillName, operation, params, r.self.ID)
		r.metrics.observe("local", err)
		return data, err
	}
	data, err := r.dispatchRemote(ctx, targetAgentID, skillName, operation, params)
	r.metrics.observe("remote", err)
	return data, err
}

func (r *Runtime) dispatchRemote(ctx context.Context, targetAgentID, skillName, operation string, params map[string]any) (map[string]any, error) {
	identities, err := r.directory.Resolve(ctx, discovery.Query{Kind: discovery.QueryByID, Value: targetAgentID})
	if err != nil {
		return nil, err
	}
	target := identities[0]
	if target.Endpoint == "" {
		return nil, agenterrors.New(agenterrors.KindTargetUnknown, "resolved agent has no endpoint", map[string]any{"agent": targetAgentID})
	}

	release, err := r.limiter.acquire(ctx, target.Endpoint)
	if err != nil {
		return nil, err
	}
	defer release()

	content, err := marshalSkillRequest(skillName, operation, params)
	if err != nil {
		return nil, err
	}
	msg := a2a.Message{
		ID:       uuid.NewString(),
		Type:     a2a.TypeRequest,
		From:     r.self,
		To:       target,
		Priority: a2a.PriorityNormal,
		Payload:  a2a.Payload{ContentType: a2a.ContentTypeSkillRequest, Content: content},
	}

	reply, err := r.client.Send(ctx, target.Endpoint, msg)
	if err != nil {
		return nil, err
	}
	return unmarshalSkillResponse(*reply)
}

// destinationLimiters enforces spec §5's per-destination backpressure:
// MaxInFlightPerDestination concurrent calls, a bounded queue of
// MaxQueuedPerDestination beyond that, Overloaded past both.
type destinationLimiters struct {
	mu          sync.Mutex
	perDest     map[string]*destinationLimiter
	maxInFlight int
	maxQueued   int
}

func newDestinationLimiters(maxInFlight, maxQueued int) *destinationLimiters {
	return &destinationLimiters{perDest: make(map[string]*destinationLimiter), maxInFlight: maxInFlight, maxQueued: maxQueued}
}

func (d *destinationLimiters) get(destination string) *destinationLimiter {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.perDest[destination]
	if !ok {
		l = newDestinationLimiter(d.maxInFlight, d.maxQueued)
		d.perDest[destination] = l
	}
	return l
}

func (d *destinationLimiters) acquire(ctx context.Context, destination string) (func(), error) {
	return d.get(destination).acquire(ctx)
}

// destinationLimiter bounds one destination's concurrency via a semaphore
// channel, rejecting with Overloaded once the queue behind it fills too.
type destinationLimiter struct {
	slots  chan struct{}
	queued atomic.Int64
	maxQ   int64
}

func newDestinationLimiter(maxInFlight, maxQueued int) *destinationLimiter {
	return &destinationLimiter{slots: make(chan struct{}, maxInFlight), maxQ: int64(maxQueued)}
}

func (l *destinationLimiter) acquire(ctx context.Context) (func(), error) {
	select {
	case l.slots <- struct{}{}:
		return func() { <-l.slots }, nil
	default:
	}

	if l.queued.Add(1) > l.maxQ {
		l.queued.Add(-1)
		return nil, agenterrors.New(agenterrors.KindOverloaded, "destination queue is full", nil)
	}
	defer l.queued.Add(-1)

	select {
	case l.slots <- struct{}{}:
		return func() { <-l.slots }, nil
	case <-ctx.Done():
		return nil, agenterrors.New(agenterrors.KindCancelled, "request cancelled while queued", nil)
	}
}
