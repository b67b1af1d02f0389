package skillreg

import (
	"sort"
	"strings"
	"sync"

	"github.com/agentcore/platform/pkg/agenterrors"
	"github.com/agentcore/platform/pkg/semverx"
)

// Registry is the read-mostly, in-memory skill index (spec §4.2, §5).
// Writes (Register) take the write lock; reads use RLock for snapshot
// semantics.
type Registry struct {
	mu  sync.RWMutex
	byName map[string][]entry // name -> all registered versions

	// secondary indexes, updated by each Register under the same write lock
	byCategory   map[string]map[string]bool // category -> set of names
	byCapability map[string]map[string]bool // capability -> set of names
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		byName:       make(map[string][]entry),
		byCategory:   make(map[string]map[string]bool),
		byCapability: make(map[string]map[string]bool),
	}
}

// Register adds an implementation. Duplicate (name, version) pairs are
// rejected (spec §4.2).
func (r *Registry) Register(meta Metadata, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.byName[meta.Name] {
		if e.meta.Version.Compare(meta.Version) == 0 {
			return agenterrors.New(agenterrors.KindSkillConflict, "duplicate (name, version) registration", map[string]any{
				"name":    meta.Name,
				"version": meta.Version.String(),
			})
		}
	}
	r.byName[meta.Name] = append(r.byName[meta.Name], entry{meta: meta, factory: factory})

	if meta.Category != "" {
		if r.byCategory[meta.Category] == nil {
			r.byCategory[meta.Category] = make(map[string]bool)
		}
		r.byCategory[meta.Category][meta.Name] = true
	}
	for _, capability := range meta.Capabilities {
		if r.byCapability[capability] == nil {
			r.byCapability[capability] = make(map[string]bool)
		}
		r.byCapability[capability][meta.Name] = true
	}
	return nil
}

// Match is a resolved implementation: its metadata and a fresh-handle factory.
type Match struct {
	Metadata Metadata
	Factory  Factory
}

// Find returns the best version of name satisfying rng, per spec §4.1's
// "highest version, ties by id" selection.
func (r *Registry) Find(name string, rng semverx.Range) (Match, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries, ok := r.byName[name]
	if !ok || len(entries) == 0 {
		return Match{}, agenterrors.New(agenterrors.KindSkillMissingRequired, "no implementation registered", map[string]any{"name": name})
	}
	candidates := make([]semverx.Candidate, len(entries))
	byID := make(map[string]entry, len(entries))
	for i, e := range entries {
		id := name + "@" + e.meta.Version.String()
		candidates[i] = semverx.Candidate{ID: id, Version: e.meta.Version}
		byID[id] = e
	}
	best, err := semverx.SelectBest(candidates, rng)
	if err != nil {
		return Match{}, agenterrors.New(agenterrors.KindVersionUnsatisfied, "no version of skill satisfies range", map[string]any{"name": name})
	}
	chosen := byID[best.ID]
	return Match{Metadata: chosen.meta, Factory: chosen.factory}, nil
}

// Search returns implementations advertising capability, across all
// registered names (highest version per name first).
func (r *Registry) Search(capability string) []Match {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names, ok := r.byCapability[capability]
	if !ok {
		return nil
	}
	var out []Match
	for name := range names {
		for _, e := range r.byName[name] {
			out = append(out, Match{Metadata: e.meta, Factory: e.factory})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Metadata.Name != out[j].Metadata.Name {
			return out[i].Metadata.Name < out[j].Metadata.Name
		}
		return out[i].Metadata.Version.Compare(out[j].Metadata.Version) > 0
	})
	return out
}

// ByCategory returns every registered name in category.
func (r *Registry) ByCategory(category string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := r.byCategory[category]
	out := make([]string, 0, len(names))
	for n := range names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// ValidateCompatibility implements spec §4.2's compatibility validation over
// a selected set of skill names: rejects conflicting pairs, reports the
// required companions that must be auto-inserted, the enhances hints to
// log, and enforces at most one `replaces` source per replaced name.
type CompatibilityReport struct {
	RequiredCompanions []string // names to auto-insert
	EnhanceHints       []string // human-readable hints
}

func (r *Registry) ValidateCompatibility(selected []string) (CompatibilityReport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	selectedSet := make(map[string]bool, len(selected))
	for _, s := range selected {
		selectedSet[strings.ToLower(s)] = true
	}

	var report CompatibilityReport
	replacedBy := make(map[string]string) // replaced-name -> replacer

	for _, name := range selected {
		latest := r.latestLocked(name)
		if latest == nil {
			continue
		}
		for _, c := range latest.meta.Compatibility {
			target := strings.ToLower(c.WithSkill)
			switch c.Kind {
			case CompatConflicts:
				if selectedSet[target] {
					return CompatibilityReport{}, agenterrors.New(agenterrors.KindSkillConflict, "conflicting skills selected together", map[string]any{
						"a": name, "b": c.WithSkill,
					})
				}
			case CompatRequired:
				if !selectedSet[target] {
					report.RequiredCompanions = append(report.RequiredCompanions, c.WithSkill)
				}
			case CompatEnhances:
				report.EnhanceHints = append(report.EnhanceHints, name+" enhances "+c.WithSkill)
			case CompatReplaces:
				if existing, dup := replacedBy[target]; dup && existing != name {
					return CompatibilityReport{}, agenterrors.New(agenterrors.KindSkillConflict, "multiple replacers for the same skill", map[string]any{
						"replaced": c.WithSkill, "first": existing, "second": name,
					})
				}
				replacedBy[target] = name
			}
		}
	}
	return report, nil
}

func (r *Registry) latestLocked(name string) *entry {
	entries := r.byName[name]
	if len(entries) == 0 {
		return nil
	}
	best := entries[0]
	for _, e := range entries[1:] {
		if e.meta.Version.Compare(best.meta.Version) > 0 {
			best = e
		}
	}
	return &best
}
