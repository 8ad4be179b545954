package middleware

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"syscontrol/message"
)

// retryable reports whether a failed round trip may be repeated. Only
// transport failures qualify; a status produced by the handler is final.
func retryable(status message.Status) bool {
	return status == message.StatusDeadObject || status == message.StatusTimedOut
}

// RetryMiddleware repeats a request up to maxRetries times with exponential
// backoff starting at baseDelay. It belongs on the client side.
func RetryMiddleware(maxRetries int, baseDelay time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Transaction) *message.Transaction {
			reply := next(ctx, req)
			for i := 0; i < maxRetries; i++ {
				if !retryable(reply.Status) {
					return reply
				}
				log.Debug().
					Int("attempt", i+1).
					Str("service", req.Service).
					Uint32("code", req.Code).
					Str("error", reply.Error).
					Msg("retrying transaction")

				select {
				case <-time.After(baseDelay * time.Duration(1<<i)):
				case <-ctx.Done():
					return reply
				}
				reply = next(ctx, req)
			}
			return reply
		}
	}
}
