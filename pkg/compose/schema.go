package compose

import (
	"encoding/json"

	"github.com/kaptinlin/jsonschema"

	"github.com/agentcore/platform/pkg/agenterrors"
)

// ConfigSchema is a skill's declared SkillConfigurationSchema (spec §4.3
// step 6): a JSON Schema document describing types, enums, patterns,
// required keys, and conditional requirements for that skill's config.
type ConfigSchema struct {
	// Raw is the JSON Schema document, e.g.
	// {"type":"object","required":["dsn"],"properties":{"dsn":{"type":"string"}}}
	Raw json.RawMessage
	// Defaults are schema-declared default values, the lowest layer of the
	// effective-config merge (spec §4.3: "skill defaults from schema ◁
	// template default configuration ◁ environment overrides").
	Defaults map[string]any
}

var compiler = jsonschema.NewCompiler()

// validateAgainstSchema compiles and validates cfg against schema.Raw,
// returning a ConfigSchemaViolation error naming every failing field.
func validateAgainstSchema(skillName string, schema ConfigSchema, cfg map[string]any) error {
	if len(schema.Raw) == 0 {
		return nil
	}
	compiled, err := compiler.Compile(schema.Raw)
	if err != nil {
		return agenterrors.Wrap(agenterrors.KindConfigSchemaViolation, err, map[string]any{
			"skill": skillName, "stage": "compile",
		})
	}
	result := compiled.Validate(cfg)
	if result.IsValid() {
		return nil
	}
	details := map[string]any{"skill": skillName}
	if result.Errors != nil {
		fields := make([]string, 0, len(result.Errors))
		for field := range result.Errors {
			fields = append(fields, field)
		}
		details["fields"] = fields
	}
	return agenterrors.New(agenterrors.KindConfigSchemaViolation, "skill configuration violates its schema", details)
}
