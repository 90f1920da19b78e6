package echoapi

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/trezcool/studentnotes/core"
)

const headerCorrelationID = "X-Correlation-ID"

// roleMiddleware lets through active users having one of roles.
func roleMiddleware(a *auth, roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := a.contextUser(ctx)
			if err != nil {
				return err
			}
			for _, role := range roles {
				if usr.Role == role {
					return next(ctx)
				}
			}
			return errHttpForbidden
		}
	}
}

// correlationIDMiddleware reads or generates the request correlation id, echoes it on the response
// and stores it with the client info on the request context.
func correlationIDMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			req := ctx.Request()
			id := req.Header.Get(headerCorrelationID)
			if id == "" {
				id = uuid.NewString()
			}
			ctx.Response().Header().Set(headerCorrelationID, id)

			info := core.RequestInfo{
				CorrelationID: id,
				IPAddress:     ctx.RealIP(),
				UserAgent:     req.UserAgent(),
			}
			ctx.SetRequest(req.WithContext(core.WithRequestInfo(req.Context(), info)))
			return next(ctx)
		}
	}
}

// rateLimitMiddleware limits reads and writes per client IP, with the per minute quotas of conf.
// A quota <= 0 disables the matching limiter.
func rateLimitMiddleware(conf *core.Config) echo.MiddlewareFunc {
	reads := newRateLimiter(conf.Server.ReadRateLimit, conf.Server.RateLimitBurst, func(ctx echo.Context) bool {
		return !isRead(ctx.Request().Method)
	})
	writes := newRateLimiter(conf.Server.WriteRateLimit, conf.Server.RateLimitBurst, func(ctx echo.Context) bool {
		return isRead(ctx.Request().Method)
	})

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return reads(writes(next))
	}
}

func newRateLimiter(perMinute, burst int, skip middleware.Skipper) echo.MiddlewareFunc {
	if perMinute <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	if burst < 1 {
		burst = 1
	}
	limit := rate.Limit(float64(perMinute) / 60)
	retryAfter := time.Duration(float64(time.Minute) / float64(perMinute))

	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Skipper: skip,
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      limit,
			Burst:     burst,
			ExpiresIn: 3 * time.Minute,
		}),
		IdentifierExtractor: func(ctx echo.Context) (string, error) {
			return ctx.RealIP(), nil
		},
		ErrorHandler: func(ctx echo.Context, err error) error {
			return errHttpForbidden
		},
		DenyHandler: func(ctx echo.Context, identifier string, err error) error {
			return &core.RateLimitError{RetryAfter: retryAfter}
		},
	})
}

func isRead(method string) bool {
	return method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions
}
