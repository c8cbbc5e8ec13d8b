package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextValues(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetRequestID(ctx))
	assert.Empty(t, GetActorID(ctx))

	ctx = SetRequestID(ctx, "req-1")
	ctx = SetMethod(ctx, "POST")
	ctx = SetRoute(ctx, "/api/v1/reviews/:id/decision")
	ctx = SetRemoteIP(ctx, "10.0.0.1")
	ctx = SetReferer(ctx, "https://console")
	ctx = SetActorID(ctx, "reviewer-1")
	ctx = SetFusionSourceID(ctx, "fs-1")

	assert.Equal(t, "req-1", GetRequestID(ctx))
	assert.Equal(t, "POST", GetMethod(ctx))
	assert.Equal(t, "/api/v1/reviews/:id/decision", GetRoute(ctx))
	assert.Equal(t, "10.0.0.1", GetRemoteIP(ctx))
	assert.Equal(t, "https://console", GetReferer(ctx))
	assert.Equal(t, "reviewer-1", GetActorID(ctx))
	assert.Equal(t, "fs-1", GetFusionSourceID(ctx))
}

func TestContextValues_WrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), RequestIDKey, 42)
	assert.Empty(t, GetRequestID(ctx))
}
