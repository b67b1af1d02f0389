package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcore/platform/pkg/agenterrors"
	"github.com/agentcore/platform/pkg/compose"
	"github.com/agentcore/platform/pkg/pluginhost"
	"github.com/agentcore/platform/pkg/semverx"
	"github.com/agentcore/platform/pkg/skillreg"
)

type stubHandle struct {
	ops []skillreg.Operation
}

func (s *stubHandle) Initialize(map[string]any, map[string]skillreg.Handle) error { return nil }
func (s *stubHandle) Dispose() error                                             { return nil }
func (s *stubHandle) GetHealth() skillreg.Health                                  { return skillreg.Health{Healthy: true} }
func (s *stubHandle) Operations() []skillreg.Operation                            { return s.ops }

func newHostWithSkill(t *testing.T, name string, ops []skillreg.Operation, concurrency skillreg.ConcurrencyMode) *pluginhost.Host {
	t.Helper()
	h := pluginhost.New()
	handle := &stubHandle{ops: ops}
	plan := &compose.CompositionPlan{Skills: []compose.PlannedSkill{{
		Metadata: skillreg.Metadata{Name: name, Version: semverx.MustParse("1.0.0"), ConcurrencyMode: concurrency},
		Config:   map[string]any{},
		Factory:  func() (skillreg.Handle, error) { return handle, nil },
	}}}
	require.NoError(t, h.Boot(context.Background(), plan))
	return h
}

func echoOp(name string, effect skillreg.SideEffect, schema map[string]string) skillreg.Operation {
	return skillreg.Operation{
		Name:        name,
		SideEffect:  effect,
		ParamSchema: schema,
		Handler: func(args map[string]any) (map[string]any, error) {
			return map[string]any{"echo": args}, nil
		},
	}
}

func TestDispatcher_Invoke(t *testing.T) {
	t.Run("Should invoke a registered read operation successfully", func(t *testing.T) {
		h := newHostWithSkill(t, "sql", []skillreg.Operation{echoOp("query", skillreg.SideEffectRead, nil)}, "")
		d := New(h)

		result, meta, err := d.Invoke(context.Background(), "sql", "query", map[string]any{"q": "select 1"}, "agent-a")

		require.NoError(t, err)
		assert.NotEmpty(t, meta.RequestID)
		assert.Equal(t, map[string]any{"q": "select 1"}, result["echo"])
	})

	t.Run("Should fail with OperationNotFound for an unregistered operation", func(t *testing.T) {
		h := newHostWithSkill(t, "sql", nil, "")
		d := New(h)

		_, _, err := d.Invoke(context.Background(), "sql", "ghost", nil, "agent-a")

		require.Error(t, err)
		kind, ok := agenterrors.KindOf(err)
		require.True(t, ok)
		assert.Equal(t, agenterrors.KindOperationNotFound, kind)
	})

	t.Run("Should fail with InvalidArgument when a required field is missing", func(t *testing.T) {
		h := newHostWithSkill(t, "sql", []skillreg.Operation{echoOp("query", skillreg.SideEffectRead, map[string]string{"q": "required"})}, "")
		d := New(h)

		_, _, err := d.Invoke(context.Background(), "sql", "query", map[string]any{}, "agent-a")

		require.Error(t, err)
		kind, ok := agenterrors.KindOf(err)
		require.True(t, ok)
		assert.Equal(t, agenterrors.KindInvalidArgument, kind)
	})

	t.Run("Should fail with WriteForbidden for a write op while read-only", func(t *testing.T) {
		h := newHostWithSkill(t, "sql", []skillreg.Operation{echoOp("insert", skillreg.SideEffectWrite, nil)}, "")
		d := New(h)
		d.SetReadOnly(true)

		_, _, err := d.Invoke(context.Background(), "sql", "insert", map[string]any{}, "agent-a")

		require.Error(t, err)
		kind, ok := agenterrors.KindOf(err)
		require.True(t, ok)
		assert.Equal(t, agenterrors.KindWriteForbidden, kind)
	})
}
