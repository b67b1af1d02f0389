// Package compose implements spec §4.3's Composer: resolving a resolved
// Template plus environment config into an ordered CompositionPlan of
// (implementation, effective config) pairs.
package compose

import (
	"github.com/agentcore/platform/pkg/skillreg"
	"github.com/agentcore/platform/pkg/template"
)

// PlannedSkill is one entry of a CompositionPlan: a selected implementation
// paired with its fully merged effective configuration.
type PlannedSkill struct {
	Requirement template.SkillRequirement
	Required    bool // true if drawn from the template's requiredSkills list or auto-inserted as a required companion
	Metadata    skillreg.Metadata
	Factory     skillreg.Factory
	Config      map[string]any
}

// CompositionPlan is spec §4.3's emitted result: the ordered plan plus a
// summary for operators/logs.
type CompositionPlan struct {
	AgentTemplate string
	Skills        []PlannedSkill // topologically ordered
	ChosenVersions map[string]string
	InfraDemands   template.Infrastructure
}
