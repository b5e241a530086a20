package core

import "context"

// Broker metrics share one namespace so dashboards can glob
// connections.* across operations.
const metricNamespace = "connections"

func metricName(parts ...string) string {
	name := metricNamespace
	for _, part := range parts {
		if part == "" {
			continue
		}
		name += "." + part
	}
	return name
}

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

func cloneTags(tags map[string]string) map[string]string {
	if len(tags) == 0 {
		return map[string]string{}
	}
	copied := make(map[string]string, len(tags))
	for key, value := range tags {
		copied[key] = value
	}
	return copied
}

var _ MetricsRecorder = NopMetricsRecorder{}
