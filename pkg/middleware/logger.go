package middleware

import (
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	fusionctx "github.com/Ramsey-B/fusion/pkg/context"
)

// Logger writes one structured line per request. It expects Context to run first so the
// request id is already on the context.
func Logger(logger ectologger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			res := c.Response()
			start := time.Now()
			if err := next(c); err != nil {
				c.Error(err)
			}
			elapsed := time.Since(start)

			ctx := c.Request().Context()
			fields := map[string]any{
				"request_id":    fusionctx.GetRequestID(ctx),
				"method":        req.Method,
				"uri":           req.RequestURI,
				"route":         c.Path(),
				"status":        res.Status,
				"remote_ip":     c.RealIP(),
				"user_agent":    req.UserAgent(),
				"response_time": elapsed,
				"response_size": strconv.FormatInt(res.Size, 10),
			}
			if actor := fusionctx.GetActorID(ctx); actor != "" {
				fields["actor_id"] = actor
			}

			logger.WithContext(ctx).WithFields(fields).Info("Request")
			return nil
		}
	}
}
