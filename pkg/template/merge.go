package template

import (
	"dario.cat/mergo"
	"github.com/mohae/deepcopy"

	"github.com/agentcore/platform/pkg/agenterrors"
)

// mergeTemplates merges child over parent additively (spec §3):
//   - skill lists union by name, child winning on version/config
//   - validation rules concatenate
//   - default configuration deep-merges, child's leaves win
//   - personality fields use child's value when non-zero
//   - infrastructure lists concatenate (parent's, then child's); its other
//     fields use child's value when non-zero
func mergeTemplates(parent, child *Template) (*Template, error) {
	out := *parent
	out.Name = child.Name
	out.Version = child.Version
	out.Description = firstNonEmpty(child.Description, parent.Description)
	out.BaseTemplate = child.BaseTemplate
	out.sourcePath = child.sourcePath

	if err := mergo.Merge(&out.Personality, child.Personality, mergo.WithOverride); err != nil {
		return nil, agenterrors.Wrap(agenterrors.KindTemplateInvalid, err, map[string]any{"section": "personality"})
	}
	if err := mergo.Merge(&out.Infrastructure, child.Infrastructure, mergo.WithOverride, mergo.WithAppendSlice); err != nil {
		return nil, agenterrors.Wrap(agenterrors.KindTemplateInvalid, err, map[string]any{"section": "infrastructure"})
	}

	merged, err := mergeConfig(parent.DefaultConfiguration, child.DefaultConfiguration)
	if err != nil {
		return nil, err
	}
	out.DefaultConfiguration = merged

	out.RequiredSkills = unionSkills(parent.RequiredSkills, child.RequiredSkills)
	out.OptionalSkills = unionSkills(parent.OptionalSkills, child.OptionalSkills)
	out.ValidationRules = append(append([]ValidationRule{}, parent.ValidationRules...), child.ValidationRules...)

	return &out, nil
}

// unionSkills unions by Name; a name present in both keeps child's entry
// (version/config/priority), i.e. "child wins" per spec §3.
func unionSkills(parentSkills, childSkills []SkillRequirement) []SkillRequirement {
	byName := make(map[string]SkillRequirement, len(parentSkills)+len(childSkills))
	order := make([]string, 0, len(parentSkills)+len(childSkills))
	for _, s := range parentSkills {
		byName[s.Name] = s
		order = append(order, s.Name)
	}
	for _, s := range childSkills {
		if _, exists := byName[s.Name]; !exists {
			order = append(order, s.Name)
		}
		byName[s.Name] = s
	}
	out := make([]SkillRequirement, 0, len(order))
	for _, n := range order {
		out = append(out, byName[n])
	}
	return out
}

// mergeConfig deep-merges two free-form config trees: maps merge
// recursively, lists replace (spec §4.3 "effective config" rule, applied
// here for template-level inheritance rather than environment layering).
func mergeConfig(base, override map[string]any) (map[string]any, error) {
	out := deepCopyMap(base)
	if err := mergo.Merge(&out, override, mergo.WithOverride); err != nil {
		return nil, agenterrors.Wrap(agenterrors.KindTemplateInvalid, err, map[string]any{"section": "defaultConfiguration"})
	}
	return out, nil
}

// deepCopyMap clones a free-form config tree so mergo's in-place merge
// never mutates a parent template's stored defaults.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	copied, ok := deepcopy.Copy(m).(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return copied
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
