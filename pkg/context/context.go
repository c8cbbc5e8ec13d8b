// Package context holds the request scoped values carried through fusion handlers and passes.
package context

import "context"

type ContextKey string

var (
	RequestIDKey      = ContextKey("X-Request-Id")
	MethodKey         = ContextKey("X-Method")
	RouteKey          = ContextKey("X-Route")
	RemoteIPKey       = ContextKey("X-Remote-Ip")
	RefererKey        = ContextKey("X-Referer")
	ActorIDKey        = ContextKey("X-Actor-Id")
	FusionSourceIDKey = ContextKey("X-Fusion-Source-Id")
)

func set(ctx context.Context, key ContextKey, value string) context.Context {
	return context.WithValue(ctx, key, value)
}

func get(ctx context.Context, key ContextKey) string {
	value, ok := ctx.Value(key).(string)
	if !ok {
		return ""
	}
	return value
}

func SetRequestID(ctx context.Context, requestID string) context.Context {
	return set(ctx, RequestIDKey, requestID)
}

func GetRequestID(ctx context.Context) string {
	return get(ctx, RequestIDKey)
}

func SetMethod(ctx context.Context, method string) context.Context {
	return set(ctx, MethodKey, method)
}

func GetMethod(ctx context.Context) string {
	return get(ctx, MethodKey)
}

func SetRoute(ctx context.Context, route string) context.Context {
	return set(ctx, RouteKey, route)
}

func GetRoute(ctx context.Context) string {
	return get(ctx, RouteKey)
}

func SetRemoteIP(ctx context.Context, remoteIP string) context.Context {
	return set(ctx, RemoteIPKey, remoteIP)
}

func GetRemoteIP(ctx context.Context) string {
	return get(ctx, RemoteIPKey)
}

func SetReferer(ctx context.Context, referer string) context.Context {
	return set(ctx, RefererKey, referer)
}

func GetReferer(ctx context.Context) string {
	return get(ctx, RefererKey)
}

// SetActorID records who is acting on the request. Review decisions fall back to it
// when the payload carries no reviewer.
func SetActorID(ctx context.Context, actorID string) context.Context {
	return set(ctx, ActorIDKey, actorID)
}

func GetActorID(ctx context.Context) string {
	return get(ctx, ActorIDKey)
}

// SetFusionSourceID tags a context with the fusion source a pass is running for.
func SetFusionSourceID(ctx context.Context, fusionSourceID string) context.Context {
	return set(ctx, FusionSourceIDKey, fusionSourceID)
}

func GetFusionSourceID(ctx context.Context) string {
	return get(ctx, FusionSourceIDKey)
}
