package skillreg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcore/platform/pkg/agenterrors"
	"github.com/agentcore/platform/pkg/semverx"
)

func noopFactory() (Handle, error) { return nil, nil }

func TestRegistry_Register(t *testing.T) {
	t.Run("Should reject duplicate (name, version) registration", func(t *testing.T) {
		r := New()
		meta := Metadata{Name: "alpha", Version: semverx.MustParse("1.0.0")}
		require.NoError(t, r.Register(meta, noopFactory))

		err := r.Register(meta, noopFactory)

		require.Error(t, err)
		kind, ok := agenterrors.KindOf(err)
		require.True(t, ok)
		assert.Equal(t, agenterrors.KindSkillConflict, kind)
	})
}

func TestRegistry_Find(t *testing.T) {
	t.Run("Should select the highest satisfying version (S2)", func(t *testing.T) {
		r := New()
		require.NoError(t, r.Register(Metadata{Name: "alpha", Version: semverx.MustParse("1.0.0")}, noopFactory))
		require.NoError(t, r.Register(Metadata{Name: "alpha", Version: semverx.MustParse("1.2.0")}, noopFactory))
		require.NoError(t, r.Register(Metadata{Name: "alpha", Version: semverx.MustParse("2.0.0")}, noopFactory))

		match, err := r.Find("alpha", semverx.Range{Min: semverx.MustParse("1.1.0"), Max: semverx.MustParse("2.0.0")})

		require.NoError(t, err)
		assert.Equal(t, "1.2.0", match.Metadata.Version.String())
	})

	t.Run("Should fail with SkillMissingRequired when name is unregistered", func(t *testing.T) {
		r := New()

		_, err := r.Find("ghost", semverx.Range{Min: semverx.MustParse("1.0.0")})

		require.Error(t, err)
		kind, ok := agenterrors.KindOf(err)
		require.True(t, ok)
		assert.Equal(t, agenterrors.KindSkillMissingRequired, kind)
	})
}

func TestRegistry_Search(t *testing.T) {
	t.Run("Should return implementations advertising the capability", func(t *testing.T) {
		r := New()
		require.NoError(t, r.Register(Metadata{Name: "sql", Version: semverx.MustParse("1.0.0"), Capabilities: []string{"query"}}, noopFactory))
		require.NoError(t, r.Register(Metadata{Name: "git", Version: semverx.MustParse("1.0.0"), Capabilities: []string{"vcs"}}, noopFactory))

		matches := r.Search("query")

		require.Len(t, matches, 1)
		assert.Equal(t, "sql", matches[0].Metadata.Name)
	})
}

func TestRegistry_ValidateCompatibility(t *testing.T) {
	t.Run("Should fail with SkillConflict when conflicting skills are selected together (S6)", func(t *testing.T) {
		r := New()
		require.NoError(t, r.Register(Metadata{
			Name: "beta", Version: semverx.MustParse("1.0.0"),
			Compatibility: []Compatibility{{WithSkill: "gamma", Kind: CompatConflicts}},
		}, noopFactory))
		require.NoError(t, r.Register(Metadata{Name: "gamma", Version: semverx.MustParse("1.0.0")}, noopFactory))

		_, err := r.ValidateCompatibility([]string{"beta", "gamma"})

		require.Error(t, err)
		kind, ok := agenterrors.KindOf(err)
		require.True(t, ok)
		assert.Equal(t, agenterrors.KindSkillConflict, kind)
	})

	t.Run("Should report a required companion that is not yet selected", func(t *testing.T) {
		r := New()
		require.NoError(t, r.Register(Metadata{
			Name: "beta", Version: semverx.MustParse("1.0.0"),
			Compatibility: []Compatibility{{WithSkill: "core", Kind: CompatRequired}},
		}, noopFactory))

		report, err := r.ValidateCompatibility([]string{"beta"})

		require.NoError(t, err)
		assert.Contains(t, report.RequiredCompanions, "core")
	})

	t.Run("Should reject a second replacer for the same replaced skill", func(t *testing.T) {
		r := New()
		require.NoError(t, r.Register(Metadata{
			Name: "newA", Version: semverx.MustParse("1.0.0"),
			Compatibility: []Compatibility{{WithSkill: "legacy", Kind: CompatReplaces}},
		}, noopFactory))
		require.NoError(t, r.Register(Metadata{
			Name: "newB", Version: semverx.MustParse("1.0.0"),
			Compatibility: []Compatibility{{WithSkill: "legacy", Kind: CompatReplaces}},
		}, noopFactory))

		_, err := r.ValidateCompatibility([]string{"newA", "newB"})

		require.Error(t, err)
	})
}
