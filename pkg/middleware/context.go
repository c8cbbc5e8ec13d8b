package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	fusionctx "github.com/Ramsey-B/fusion/pkg/context"
)

// HeaderActorID identifies the caller acting on reviews and fusion accounts.
const HeaderActorID = "X-Actor-ID"

func Context() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			requestID := req.Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.New().String()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, requestID)

			ctx := req.Context()
			ctx = fusionctx.SetRequestID(ctx, requestID)
			ctx = fusionctx.SetMethod(ctx, req.Method)
			ctx = fusionctx.SetRoute(ctx, c.Path())
			ctx = fusionctx.SetRemoteIP(ctx, c.RealIP())
			ctx = fusionctx.SetReferer(ctx, req.Referer())
			if actor := req.Header.Get(HeaderActorID); actor != "" {
				ctx = fusionctx.SetActorID(ctx, actor)
			}

			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}
