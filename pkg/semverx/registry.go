// Package semverx implements spec §4.1's Version Registry: semantic version
// parsing, range satisfaction, and "pick the best match" selection, on top
// of github.com/Masterminds/semver/v3.
package semverx

import (
	"fmt"
	"sort"

	"github.com/Masterminds/semver/v3"

	"github.com/agentcore/platform/pkg/agenterrors"
)

// Version wraps semver.Version so callers in this module never import
// Masterminds/semver directly.
type Version struct {
	v *semver.Version
}

// Parse parses a MAJOR.MINOR.PATCH[-pre] string.
func Parse(raw string) (Version, error) {
	v, err := semver.NewVersion(raw)
	if err != nil {
		return Version{}, agenterrors.Wrap(agenterrors.KindTemplateInvalid, err, map[string]any{"version": raw})
	}
	return Version{v: v}, nil
}

// MustParse panics on invalid input; reserved for constant/test versions.
func MustParse(raw string) Version {
	v, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return v
}

func (v Version) String() string {
	if v.v == nil {
		return ""
	}
	return v.v.String()
}

// Compare returns -1, 0, or 1 as per semver precedence.
func (v Version) Compare(other Version) int {
	return v.v.Compare(other.v)
}

// Range is a version range predicate: >= min, and (optionally) < max.
// A zero-value Max means "no upper bound".
type Range struct {
	Min Version
	Max Version // zero value = unbounded
}

func (r Range) hasMax() bool { return r.Max.v != nil }

// Satisfies is total: it never errors, returning false for any version
// outside the range (spec §4.1 "satisfies(v, range) is total").
func Satisfies(v Version, r Range) bool {
	if v.v == nil {
		return false
	}
	if r.Min.v != nil && v.Compare(r.Min) < 0 {
		return false
	}
	if r.hasMax() && v.Compare(r.Max) >= 0 {
		return false
	}
	return true
}

// Candidate is an implementation identified by id and version, used by
// SelectBest to resolve a requirement to a concrete instance.
type Candidate struct {
	ID      string
	Version Version
}

// SelectBest picks the highest version satisfying r; ties break by
// lexicographically smallest implementation id (spec §4.1). Returns
// VersionUnsatisfied if no candidate matches.
func SelectBest(candidates []Candidate, r Range) (Candidate, error) {
	var best *Candidate
	for i := range candidates {
		c := candidates[i]
		if !Satisfies(c.Version, r) {
			continue
		}
		if best == nil {
			best = &candidates[i]
			continue
		}
		cmp := c.Version.Compare(best.Version)
		if cmp > 0 || (cmp == 0 && c.ID < best.ID) {
			best = &candidates[i]
		}
	}
	if best == nil {
		return Candidate{}, agenterrors.New(agenterrors.KindVersionUnsatisfied, "no implementation satisfies version range", map[string]any{
			"min": r.Min.String(),
			"max": r.Max.String(),
		})
	}
	return *best, nil
}

// SortDescending returns candidates ordered highest-version-first, ties
// broken by id ascending. Only this package's tests call it; the Skill
// Registry orders its candidates itself.
func SortDescending(candidates []Candidate) []Candidate {
	out := make([]Candidate, len(candidates))
	copy(out, candidates)
	sort.Slice(out, func(i, j int) bool {
		cmp := out[i].Version.Compare(out[j].Version)
		if cmp != 0 {
			return cmp > 0
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ParseConstraint builds a Masterminds/semver constraint for advanced
// conjunctions (e.g. ">=1.1.0,<2.0.0") beyond the simple min/max Range.
// Only CheckConstraint calls it. The Composer parses a template's
// maxVersion with Parse, which rejects a wildcard such as "1.x".
func ParseConstraint(expr string) (*semver.Constraints, error) {
	c, err := semver.NewConstraint(expr)
	if err != nil {
		return nil, agenterrors.Wrap(agenterrors.KindTemplateInvalid, err, map[string]any{"constraint": expr})
	}
	return c, nil
}

// CheckConstraint evaluates v against a raw constraint expression.
func CheckConstraint(v Version, expr string) (bool, error) {
	c, err := ParseConstraint(expr)
	if err != nil {
		return false, err
	}
	ok, errs := c.Validate(v.v)
	if ok {
		return true, nil
	}
	if len(errs) > 0 {
		return false, fmt.Errorf("%w", errs[0])
	}
	return false, nil
}
