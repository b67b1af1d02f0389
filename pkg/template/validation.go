package template

import (
	"github.com/google/cel-go/cel"

	"github.com/agentcore/platform/pkg/agenterrors"
)

// RuleViolation is one failed or errored validation rule.
type RuleViolation struct {
	Rule       ValidationRule
	Message    string
	IsCritical bool
}

// EvaluateValidationRules runs every rule's CEL expression against env
// (typically the composed agent's effective configuration, exposed to CEL
// as top-level variables) and returns every violation. A critical
// violation should abort composition; non-critical ones are advisory.
func EvaluateValidationRules(rules []ValidationRule, env map[string]any) ([]RuleViolation, error) {
	if len(rules) == 0 {
		return nil, nil
	}
	declOpts := make([]cel.EnvOption, 0, len(env))
	for k := range env {
		declOpts = append(declOpts, cel.Variable(k, cel.DynType))
	}
	celEnv, err := cel.NewEnv(declOpts...)
	if err != nil {
		return nil, agenterrors.Wrap(agenterrors.KindTemplateInvalid, err, map[string]any{"stage": "cel_env"})
	}

	var violations []RuleViolation
	for _, rule := range rules {
		ast, issues := celEnv.Compile(rule.ValidationExpression)
		if issues != nil && issues.Err() != nil {
			violations = append(violations, RuleViolation{Rule: rule, Message: issues.Err().Error(), IsCritical: rule.IsCritical})
			continue
		}
		prg, err := celEnv.Program(ast)
		if err != nil {
			violations = append(violations, RuleViolation{Rule: rule, Message: err.Error(), IsCritical: rule.IsCritical})
			continue
		}
		out, _, err := prg.Eval(env)
		if err != nil {
			violations = append(violations, RuleViolation{Rule: rule, Message: err.Error(), IsCritical: rule.IsCritical})
			continue
		}
		passed, ok := out.Value().(bool)
		if !ok || !passed {
			msg := rule.ErrorMessage
			if msg == "" {
				msg = "validation rule failed: " + rule.Name
			}
			violations = append(violations, RuleViolation{Rule: rule, Message: msg, IsCritical: rule.IsCritical})
		}
	}
	return violations, nil
}

// AnyCritical reports whether violations contains at least one critical rule.
func AnyCritical(violations []RuleViolation) bool {
	for _, v := range violations {
		if v.IsCritical {
			return true
		}
	}
	return false
}
