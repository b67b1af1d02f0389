package agenterrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_AsMap(t *testing.T) {
	t.Run("Should omit details and cause without debug flag", func(t *testing.T) {
		err := Wrap(KindTimeout, errors.New("dial tcp: timeout"), map[string]any{"endpoint": "http://x"})

		m := err.AsMap(false)

		assert.Equal(t, "Timeout", m["kind"])
		assert.NotContains(t, m, "details")
		assert.NotContains(t, m, "cause")
	})

	t.Run("Should include details and cause with debug flag", func(t *testing.T) {
		err := Wrap(KindTimeout, errors.New("dial tcp: timeout"), map[string]any{"endpoint": "http://x"})

		m := err.AsMap(true)

		assert.Equal(t, map[string]any{"endpoint": "http://x"}, m["details"])
		assert.Equal(t, "dial tcp: timeout", m["cause"])
	})
}

func TestError_Retryable(t *testing.T) {
	t.Run("Should mark transport transient kinds retryable", func(t *testing.T) {
		assert.True(t, New(KindTimeout, "", nil).Retryable())
		assert.True(t, New(KindUnreachable, "", nil).Retryable())
		assert.True(t, New(KindCircuitOpen, "", nil).Retryable())
	})

	t.Run("Should mark non-transient kinds non-retryable", func(t *testing.T) {
		assert.False(t, New(KindInvalidArgument, "", nil).Retryable())
		assert.False(t, New(KindSkillConflict, "", nil).Retryable())
	})
}

func TestKindOf(t *testing.T) {
	t.Run("Should unwrap a wrapped Error to its kind", func(t *testing.T) {
		err := Wrap(KindOperationNotFound, errors.New("boom"), nil)

		kind, ok := KindOf(err)

		require.True(t, ok)
		assert.Equal(t, KindOperationNotFound, kind)
	})

	t.Run("Should report false for a plain error", func(t *testing.T) {
		_, ok := KindOf(errors.New("plain"))
		assert.False(t, ok)
	})
}
