package compose

import (
	"sort"

	"dario.cat/mergo"

	"github.com/agentcore/platform/pkg/agenterrors"
	"github.com/agentcore/platform/pkg/semverx"
	"github.com/agentcore/platform/pkg/skillreg"
	"github.com/agentcore/platform/pkg/template"
)

// SchemaLookup resolves a skill name to its declared ConfigSchema. Skills
// with no schema may return a zero ConfigSchema.
type SchemaLookup func(skillName string) (ConfigSchema, bool)

// Composer turns a resolved Template + environment overrides into a
// CompositionPlan (spec §4.3).
type Composer struct {
	registry *skillreg.Registry
	schemas  SchemaLookup
}

// New builds a Composer backed by registry. schemas may be nil, in which
// case no skill has a declared configuration schema.
func New(registry *skillreg.Registry, schemas SchemaLookup) *Composer {
	if schemas == nil {
		schemas = func(string) (ConfigSchema, bool) { return ConfigSchema{}, false }
	}
	return &Composer{registry: registry, schemas: schemas}
}

// availableInfra reports whether every tag in required is present in env's
// advertised infra (used to drop optionals lacking infra, spec §4.3 step 1).
func availableInfra(required []string, available map[string]bool) bool {
	for _, tag := range required {
		if !available[tag] {
			return false
		}
	}
	return true
}

// Compose resolves t (already inheritance-resolved by the Template Store)
// against the Composer's registry, using envOverrides as the top config
// layer and availableInfraTags as the set of infra tags the environment can
// actually provide.
func (c *Composer) Compose(t *template.Template, envOverrides map[string]map[string]any, availableInfraTags map[string]bool) (*CompositionPlan, error) {
	selected, reqByName, required, err := c.selectSkills(t, availableInfraTags)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(selected))
	for n := range selected {
		names = append(names, n)
	}
	sort.Strings(names)

	compatReport, err := c.registry.ValidateCompatibility(names)
	if err != nil {
		return nil, err
	}
	for _, companion := range compatReport.RequiredCompanions {
		if _, ok := selected[companion]; ok {
			continue
		}
		match, ferr := c.registry.Find(companion, semverx.Range{})
		if ferr != nil {
			return nil, agenterrors.New(agenterrors.KindSkillMissingRequired, "auto-inserted required companion unavailable", map[string]any{"name": companion})
		}
		selected[companion] = match
		reqByName[companion] = template.SkillRequirement{Name: companion, Priority: template.PriorityNormal}
		required[companion] = true // auto-inserted because something selected declared it `required` compatibility
		names = append(names, companion)
	}
	sort.Strings(names)

	ordered, err := topoSort(names, selected, reqByName)
	if err != nil {
		return nil, err
	}

	plan := &CompositionPlan{
		AgentTemplate:  t.Name,
		ChosenVersions: make(map[string]string, len(ordered)),
		InfraDemands:   t.Infrastructure,
	}
	for _, name := range ordered {
		match := selected[name]
		req := reqByName[name]
		schema, _ := c.schemas(name)
		effective, merr := effectiveConfig(schema, name, t.DefaultConfiguration, req.Configuration, envOverrides[name])
		if merr != nil {
			return nil, merr
		}
		if verr := validateAgainstSchema(name, schema, effective); verr != nil {
			return nil, verr
		}
		plan.Skills = append(plan.Skills, PlannedSkill{
			Requirement: req,
			Required:    required[name],
			Metadata:    match.Metadata,
			Factory:     match.Factory,
			Config:      effective,
		})
		plan.ChosenVersions[name] = match.Metadata.Version.String()
	}

	if err := c.enforceValidationRules(t, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// enforceValidationRules evaluates t.ValidationRules (spec §3's Template
// validationRules, merged additively across baseTemplate inheritance) via
// CEL against the composed plan's skill configurations. A critical
// violation aborts composition; non-critical violations are evaluated but
// neither logged nor returned, so a caller that wants them has to call
// template.EvaluateValidationRules itself with the same env.
func (c *Composer) enforceValidationRules(t *template.Template, plan *CompositionPlan) error {
	if len(t.ValidationRules) == 0 {
		return nil
	}
	env := map[string]any{
		"template":             t.Name,
		"defaultConfiguration": t.DefaultConfiguration,
		"selectedSkills":       plan.ChosenVersions,
	}
	for _, ps := range plan.Skills {
		env[ps.Metadata.Name] = ps.Config
	}

	violations, err := template.EvaluateValidationRules(t.ValidationRules, env)
	if err != nil {
		return err
	}
	if template.AnyCritical(violations) {
		details := map[string]any{"template": t.Name}
		var messages []string
		for _, v := range violations {
			if v.IsCritical {
				messages = append(messages, v.Message)
			}
		}
		details["violations"] = messages
		return agenterrors.New(agenterrors.KindTemplateInvalid, "critical validation rule failed", details)
	}
	return nil
}

// selectSkills implements spec §4.3 steps 1-2: collect required+optional
// (dropping optionals lacking infra), then resolve each via the registry.
func (c *Composer) selectSkills(
	t *template.Template,
	availableInfraTags map[string]bool,
) (map[string]skillreg.Match, map[string]template.SkillRequirement, map[string]bool, error) {
	selected := make(map[string]skillreg.Match)
	reqByName := make(map[string]template.SkillRequirement)
	required := make(map[string]bool)

	for _, req := range t.RequiredSkills {
		rng, err := requirementRange(req)
		if err != nil {
			return nil, nil, nil, err
		}
		match, err := c.registry.Find(req.Name, rng)
		if err != nil {
			return nil, nil, nil, agenterrors.New(agenterrors.KindSkillMissingRequired, "required skill has no matching implementation", map[string]any{"name": req.Name})
		}
		selected[req.Name] = match
		reqByName[req.Name] = req
		required[req.Name] = true
	}
	for _, req := range t.OptionalSkills {
		if !availableInfra(requirementInfraTags(req), availableInfraTags) {
			continue
		}
		rng, err := requirementRange(req)
		if err != nil {
			continue // optional: an invalid range just drops the optional skill
		}
		match, err := c.registry.Find(req.Name, rng)
		if err != nil {
			continue
		}
		selected[req.Name] = match
		reqByName[req.Name] = req
	}
	return selected, reqByName, required, nil
}

// requirementInfraTags is a seam for optional-skill infra requirements;
// optional skills currently declare infra needs via
// Configuration["requiresInfra"].
func requirementInfraTags(req template.SkillRequirement) []string {
	raw, ok := req.Configuration["requiresInfra"]
	if !ok {
		return nil
	}
	list, ok := raw.([]string)
	if !ok {
		if anyList, ok2 := raw.([]any); ok2 {
			out := make([]string, 0, len(anyList))
			for _, v := range anyList {
				if s, ok3 := v.(string); ok3 {
					out = append(out, s)
				}
			}
			return out
		}
		return nil
	}
	return list
}

func requirementRange(req template.SkillRequirement) (semverx.Range, error) {
	minV, err := semverx.Parse(req.MinVersion)
	if err != nil {
		return semverx.Range{}, err
	}
	r := semverx.Range{Min: minV}
	if req.MaxVersion != "" {
		maxV, err := semverx.Parse(req.MaxVersion)
		if err != nil {
			return semverx.Range{}, err
		}
		r.Max = maxV
	}
	return r, nil
}

// topoSort builds the dependency graph (edge A->B iff A depends on B, or A
// declares required compatibility with B) and returns a topological order,
// failing with CompositionCycle if one exists (spec §4.3 step 5).
func topoSort(names []string, selected map[string]skillreg.Match, reqByName map[string]template.SkillRequirement) ([]string, error) {
	edges := make(map[string][]string) // name -> names it depends on
	for _, name := range names {
		req := reqByName[name]
		edges[name] = append(edges[name], req.Dependencies...)
		for _, compat := range selected[name].Metadata.Compatibility {
			if compat.Kind == skillreg.CompatRequired {
				edges[name] = append(edges[name], compat.WithSkill)
			}
		}
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(names))
	var order []string
	var visit func(n string) error
	visit = func(n string) error {
		if color[n] == black {
			return nil
		}
		if color[n] == gray {
			return agenterrors.New(agenterrors.KindCompositionCycle, "skill dependency graph has a cycle", map[string]any{"at": n})
		}
		color[n] = gray
		deps := edges[n]
		sort.Strings(deps)
		for _, d := range deps {
			if _, ok := selected[d]; !ok {
				continue // dependency not part of this composition (e.g. unresolved optional)
			}
			if err := visit(d); err != nil {
				return err
			}
		}
		color[n] = black
		order = append(order, n)
		return nil
	}
	for _, n := range names {
		if err := visit(n); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// effectiveConfig implements spec §4.3's merge order: skill defaults from
// schema ◁ template default configuration scoped to the skill ◁ the
// requirement's own configuration ◁ environment overrides. Maps merge; lists replace (mergo.WithOverride's default slice
// behavior).
func effectiveConfig(
	schema ConfigSchema,
	skillName string,
	templateDefaults map[string]any,
	requirementConfig, envOverride map[string]any,
) (map[string]any, error) {
	out := map[string]any{}
	for k, v := range schema.Defaults {
		out[k] = v
	}
	if scoped, ok := templateDefaults[skillName].(map[string]any); ok {
		if err := mergo.Merge(&out, scoped, mergo.WithOverride); err != nil {
			return nil, agenterrors.Wrap(agenterrors.KindConfigSchemaViolation, err, nil)
		}
	}
	if err := mergo.Merge(&out, requirementConfig, mergo.WithOverride); err != nil {
		return nil, agenterrors.Wrap(agenterrors.KindConfigSchemaViolation, err, nil)
	}
	if err := mergo.Merge(&out, envOverride, mergo.WithOverride); err != nil {
		return nil, agenterrors.Wrap(agenterrors.KindConfigSchemaViolation, err, nil)
	}
	return out, nil
}
