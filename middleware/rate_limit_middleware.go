package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"syscontrol/message"
)

// RateLimitMiddleware admits requests through a token bucket refilled at r
// per second with the given burst. Rejected requests get a RateLimited reply.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Transaction) *message.Transaction {
			if !limiter.Allow() {
				return &message.Transaction{
					Service: req.Service,
					Code:    req.Code,
					Status:  message.StatusRateLimited,
					Error:   "rate limit exceeded",
				}
			}
			return next(ctx, req)
		}
	}
}
