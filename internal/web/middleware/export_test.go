package middleware

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/portal/internal/metrics"
)

// decisions reads portal_ratelimit_decisions_total{policy,outcome}
func decisions(t *testing.T, m *metrics.Metrics, policy, outcome string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)

	for _, f := range families {
		if f.GetName() != "portal_ratelimit_decisions_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			labels := map[string]string{}
			for _, l := range metric.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			if labels["policy"] == policy && labels["outcome"] == outcome {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}
