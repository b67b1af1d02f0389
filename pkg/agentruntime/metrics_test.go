package agentruntime

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/agentcore/platform/pkg/a2a"
)

func TestRuntime_Metrics(t *testing.T) {
	t.Run("Should count a local request against the requests_total metric", func(t *testing.T) {
		self := a2a.Identity{ID: "agent-a", Name: "A"}
		r, _ := newTestRuntime(t, self, DefaultConfig())

		reg := prometheus.NewRegistry()
		require.NoError(t, r.Register(reg))

		_, err := r.Execute(context.Background(), Request{SkillName: "greeter", Operation: "greet", Parameters: map[string]any{"name": "x"}})
		require.NoError(t, err)

		metricFamilies, err := reg.Gather()
		require.NoError(t, err)

		var found bool
		for _, mf := range metricFamilies {
			if mf.GetName() != "agentcore_runtime_requests_total" {
				continue
			}
			found = true
			var total float64
			for _, m := range mf.Metric {
				total += m.GetCounter().GetValue()
			}
			require.Equal(t, float64(1), total)
		}
		require.True(t, found)
	})
}
