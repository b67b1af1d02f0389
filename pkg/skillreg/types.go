// Package skillreg implements spec §4.2's Skill Registry: an in-memory
// index of skill implementations by name/version, with secondary indexes
// by category and advertised capability.
package skillreg

import "github.com/agentcore/platform/pkg/semverx"

// CompatibilityKind classifies a compatibility entry between two skills.
type CompatibilityKind string

const (
	CompatRequired CompatibilityKind = "required"
	CompatEnhances CompatibilityKind = "enhances"
	CompatConflicts CompatibilityKind = "conflicts"
	CompatReplaces CompatibilityKind = "replaces"
)

// Compatibility is one entry of a skill's compatibility table.
type Compatibility struct {
	WithSkill string
	Kind      CompatibilityKind
}

// Metadata is spec §3's SkillMetadata: stable properties of an implementation.
type Metadata struct {
	Name            string
	Version         semverx.Version
	Category        string
	Capabilities    []string
	RequiredInfra   []string
	OptionalInfra   []string
	Compatibility   []Compatibility
	Properties      map[string]any

	// ConcurrencyMode declares whether the Plugin Host must serialize calls
	// into this skill (spec §5 "each skill must declare its own concurrency
	// guarantees").
	ConcurrencyMode ConcurrencyMode
}

// ConcurrencyMode is a skill's declared reentrancy guarantee.
type ConcurrencyMode string

const (
	ConcurrencySerial   ConcurrencyMode = "serial"
	ConcurrencyReentrant ConcurrencyMode = "reentrant"
)

// Factory constructs a fresh handle for a registered implementation. The
// Plugin Host calls this once per SkillInstance at boot or hot-reload.
type Factory func() (Handle, error)

// Handle is the narrow contract every skill implementation exposes to the
// Plugin Host (spec §4.4/§9 "explicit operations() table, not reflection").
type Handle interface {
	Initialize(config map[string]any, deps map[string]Handle) error
	Dispose() error
	GetHealth() Health
	Operations() []Operation
}

// Health is a skill's self-reported health (spec §4.4).
type Health struct {
	Healthy  bool
	Status   string
	Metrics  map[string]float64
	Warnings []string
	Errors   []string
}

// SideEffect classifies an operation's effect (spec §4.5).
type SideEffect string

const (
	SideEffectRead     SideEffect = "read"
	SideEffectWrite    SideEffect = "write"
	SideEffectExternal SideEffect = "external"
)

// Operation is one callable exposed by a skill (spec §9: "explicit
// operations() table of (name, handler, parameter schema)").
type Operation struct {
	Name        string
	Handler     func(args map[string]any) (map[string]any, error)
	ParamSchema map[string]string // field -> validator tag, e.g. "required,min=1"
	Idempotent  bool
	SideEffect  SideEffect
}

// entry pairs a registered implementation's metadata with its factory.
type entry struct {
	meta    Metadata
	factory Factory
}
