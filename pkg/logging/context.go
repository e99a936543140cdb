package logging

import (
	"context"
)

type ctxKey string

const (
	EngineIDKey    ctxKey = "engine_id"
	RequestIDKey   ctxKey = "request_id"
	ServiceNameKey ctxKey = "service_name"
)

func WithEngineID(ctx context.Context, engineID string) context.Context {
	return context.WithValue(ctx, EngineIDKey, engineID)
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

func WithServiceName(ctx context.Context, serviceName string) context.Context {
	return context.WithValue(ctx, ServiceNameKey, serviceName)
}

func GetEngineID(ctx context.Context) string {
	if engineID, ok := ctx.Value(EngineIDKey).(string); ok {
		return engineID
	}
	return ""
}

func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

func GetServiceName(ctx context.Context) string {
	if serviceName, ok := ctx.Value(ServiceNameKey).(string); ok {
		return serviceName
	}
	return ""
}

// GetLogFields returns the key/value pairs carried by ctx, ready to be
// passed to a sugared logger.
func GetLogFields(ctx context.Context) []interface{} {
	fields := make([]interface{}, 0, 6)

	if engineID := GetEngineID(ctx); engineID != "" {
		fields = append(fields, string(EngineIDKey), engineID)
	}

	if requestID := GetRequestID(ctx); requestID != "" {
		fields = append(fields, string(RequestIDKey), requestID)
	}

	if serviceName := GetServiceName(ctx); serviceName != "" {
		fields = append(fields, string(ServiceNameKey), serviceName)
	}

	return fields
}
