package logging

import (
	"context"
)

const (
	TraceIDKey     = "trace_id"
	EventIDKey     = "event_id"
	RuleIDKey      = "rule_id"
	TargetIDKey    = "target_id"
	ScheduleIDKey  = "schedule_id"
	ServiceNameKey = "service_name"
)

type ctxKey string

// fieldOrder fixes the order fields appear in log lines.
var fieldOrder = []string{TraceIDKey, EventIDKey, RuleIDKey, TargetIDKey, ScheduleIDKey, ServiceNameKey}

func with(ctx context.Context, key, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKey(key), value)
}

func get(ctx context.Context, key string) string {
	if v, ok := ctx.Value(ctxKey(key)).(string); ok {
		return v
	}
	return ""
}

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return with(ctx, TraceIDKey, traceID)
}

func WithEventID(ctx context.Context, eventID string) context.Context {
	return with(ctx, EventIDKey, eventID)
}

// WithDelivery tags ctx with the rule and target a delivery belongs to.
func WithDelivery(ctx context.Context, ruleID, targetID string) context.Context {
	return with(with(ctx, RuleIDKey, ruleID), TargetIDKey, targetID)
}

func WithScheduleID(ctx context.Context, scheduleID string) context.Context {
	return with(ctx, ScheduleIDKey, scheduleID)
}

func WithServiceName(ctx context.Context, serviceName string) context.Context {
	return with(ctx, ServiceNameKey, serviceName)
}

func GetTraceID(ctx context.Context) string {
	return get(ctx, TraceIDKey)
}

func GetEventID(ctx context.Context) string {
	return get(ctx, EventIDKey)
}

func GetRuleID(ctx context.Context) string {
	return get(ctx, RuleIDKey)
}

func GetServiceName(ctx context.Context) string {
	return get(ctx, ServiceNameKey)
}

func GetLogFields(ctx context.Context) []interface{} {
	fields := make([]interface{}, 0, len(fieldOrder)*2)
	for _, key := range fieldOrder {
		if v := get(ctx, key); v != "" {
			fields = append(fields, key, v)
		}
	}
	return fields
}
