package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcore/platform/pkg/agenterrors"
)

func baseReq(name string) SkillRequirement {
	return SkillRequirement{Name: name, MinVersion: "1.0.0", Priority: PriorityNormal}
}

func TestStore_Resolve_Inheritance(t *testing.T) {
	t.Run("Should merge child over parent additively", func(t *testing.T) {
		s := NewStore()
		require.NoError(t, s.Put(&Template{
			Name:           "base",
			Version:        "1.0.0",
			RequiredSkills: []SkillRequirement{baseReq("logging")},
			DefaultConfiguration: map[string]any{
				"timeout": 30,
				"nested":  map[string]any{"a": 1},
			},
		}))
		require.NoError(t, s.Put(&Template{
			Name:         "child",
			Version:      "1.0.0",
			BaseTemplate: "base",
			RequiredSkills: []SkillRequirement{
				{Name: "logging", MinVersion: "2.0.0", Priority: PriorityHigh},
				baseReq("sql"),
			},
			DefaultConfiguration: map[string]any{
				"nested": map[string]any{"b": 2},
			},
		}))

		resolved, err := s.Resolve("child")

		require.NoError(t, err)
		assert.Len(t, resolved.RequiredSkills, 2)
		var logging SkillRequirement
		for _, r := range resolved.RequiredSkills {
			if r.Name == "logging" {
				logging = r
			}
		}
		assert.Equal(t, "2.0.0", logging.MinVersion, "child should win on version")
		assert.Equal(t, 30, resolved.DefaultConfiguration["timeout"], "parent-only keys survive")
		nested := resolved.DefaultConfiguration["nested"].(map[string]any)
		assert.Equal(t, 1, nested["a"])
		assert.Equal(t, 2, nested["b"])
	})

	t.Run("Should fail with TemplateExtendsCycle on a cyclic chain (S1)", func(t *testing.T) {
		s := NewStore()
		require.NoError(t, s.Put(&Template{Name: "A", Version: "1.0.0", BaseTemplate: "B", RequiredSkills: []SkillRequirement{baseReq("x")}}))
		require.NoError(t, s.Put(&Template{Name: "B", Version: "1.0.0", BaseTemplate: "A", RequiredSkills: []SkillRequirement{baseReq("x")}}))

		_, err := s.Resolve("A")

		require.Error(t, err)
		kind, ok := agenterrors.KindOf(err)
		require.True(t, ok)
		assert.Equal(t, agenterrors.KindTemplateExtendsCycle, kind)
	})

	t.Run("Should fail with TemplateExtendsUnknown when base is missing", func(t *testing.T) {
		s := NewStore()
		require.NoError(t, s.Put(&Template{Name: "child", Version: "1.0.0", BaseTemplate: "ghost", RequiredSkills: []SkillRequirement{baseReq("x")}}))

		_, err := s.Resolve("child")

		require.Error(t, err)
		kind, ok := agenterrors.KindOf(err)
		require.True(t, ok)
		assert.Equal(t, agenterrors.KindTemplateExtendsUnknown, kind)
	})

	t.Run("Should be deterministic across repeated calls (property 8)", func(t *testing.T) {
		s := NewStore()
		require.NoError(t, s.Put(&Template{Name: "solo", Version: "1.0.0", RequiredSkills: []SkillRequirement{baseReq("x")}}))

		first, err := s.Resolve("solo")
		require.NoError(t, err)
		second, err := s.Resolve("solo")
		require.NoError(t, err)

		assert.Equal(t, first, second)
	})
}

func TestEvaluateValidationRules(t *testing.T) {
	t.Run("Should report a critical violation when the expression evaluates false", func(t *testing.T) {
		rules := []ValidationRule{
			{Name: "min_memory", ValidationExpression: "memoryMB >= 512", ErrorMessage: "needs 512MB", IsCritical: true},
		}

		violations, err := EvaluateValidationRules(rules, map[string]any{"memoryMB": 128})

		require.NoError(t, err)
		require.Len(t, violations, 1)
		assert.True(t, AnyCritical(violations))
		assert.Equal(t, "needs 512MB", violations[0].Message)
	})

	t.Run("Should report no violations when all rules pass", func(t *testing.T) {
		rules := []ValidationRule{
			{Name: "min_memory", ValidationExpression: "memoryMB >= 512"},
		}

		violations, err := EvaluateValidationRules(rules, map[string]any{"memoryMB": 1024})

		require.NoError(t, err)
		assert.Empty(t, violations)
	})
}
