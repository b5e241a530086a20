package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

func (b *Broker) observeOperation(
	ctx context.Context,
	startedAt time.Time,
	operation string,
	err error,
	fields map[string]any,
) {
	if b == nil {
		return
	}
	operation = normalizeOperation(operation)
	if operation == "" {
		operation = "unknown"
	}
	status := "success"
	if err != nil {
		status = "failure"
	}

	contextFields := cloneFields(fields)
	contextFields["event_type"] = operation
	contextFields["status"] = status
	contextFields["duration_ms"] = time.Since(startedAt).Milliseconds()
	if err != nil {
		contextFields["error"] = err.Error()
	}

	tags := map[string]string{
		"operation": operation,
		"status":    status,
	}
	for _, key := range []string{"service", "user_id", "subject", "credential_id"} {
		if value := strings.TrimSpace(fmt.Sprint(contextFields[key])); value != "" && value != "<nil>" {
			tags[key] = value
		}
	}

	b.recordCounter(ctx, metricName(operation, "total"), 1, tags)
	b.recordHistogram(ctx, metricName(operation, "duration_ms"), float64(time.Since(startedAt).Milliseconds()), tags)

	if err != nil {
		b.logError(ctx, operation+" failed", contextFields)
		return
	}
	b.logInfo(ctx, operation+" succeeded", contextFields)
}

// reportPartialState records an inconsistency between the hub and the
// credential table that the caller-visible result does not expose.
func (b *Broker) reportPartialState(ctx context.Context, operation string, fields map[string]any) {
	if b == nil {
		return
	}
	contextFields := cloneFields(fields)
	contextFields["event_type"] = normalizeOperation(operation)
	contextFields["text_code"] = BrokerErrorPartialState
	b.recordCounter(ctx, metricName("partial_state", "total"), 1, map[string]string{
		"operation": normalizeOperation(operation),
	})
	b.logError(ctx, "partial state detected", contextFields)
}

func (b *Broker) logInfo(ctx context.Context, message string, fields map[string]any) {
	b.logWithLevel(ctx, "info", message, fields)
}

func (b *Broker) logError(ctx context.Context, message string, fields map[string]any) {
	b.logWithLevel(ctx, "error", message, fields)
}

func (b *Broker) logWithLevel(ctx context.Context, level string, message string, fields map[string]any) {
	if b == nil || b.logger == nil {
		return
	}
	logger := b.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fieldsLogger, ok := logger.(FieldsLogger); ok {
		logger = fieldsLogger.WithFields(RedactSensitiveMap(cloneFields(fields)))
	}
	args := flattenFields(fields)
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "error":
		logger.Error(message, args...)
	default:
		logger.Info(message, args...)
	}
}

func (b *Broker) recordCounter(ctx context.Context, name string, value int64, tags map[string]string) {
	if b == nil || b.metricsRecorder == nil {
		return
	}
	b.metricsRecorder.IncCounter(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

func (b *Broker) recordHistogram(ctx context.Context, name string, value float64, tags map[string]string) {
	if b == nil || b.metricsRecorder == nil {
		return
	}
	b.metricsRecorder.ObserveHistogram(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

func cloneFields(fields map[string]any) map[string]any {
	if len(fields) == 0 {
		return map[string]any{}
	}
	copied := make(map[string]any, len(fields))
	for key, value := range fields {
		copied[key] = value
	}
	return copied
}

func flattenFields(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys)*2)
	for _, key := range keys {
		args = append(args, key, fields[key])
	}
	return args
}

func normalizeOperation(operation string) string {
	operation = strings.TrimSpace(strings.ToLower(operation))
	operation = strings.ReplaceAll(operation, " ", "_")
	operation = strings.ReplaceAll(operation, "-", "_")
	return operation
}
