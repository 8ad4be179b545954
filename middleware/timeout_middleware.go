package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"syscontrol/message"
)

// TimeOutMiddleware bounds the time spent in next. On expiry the caller gets a
// TimedOut reply; next keeps running with a cancelled context and its result
// is dropped.
//
// next runs on its own goroutine, out of reach of any RecoverMiddleware above
// this one, so a panic in next is recovered here and becomes a
// FailedTransaction reply.
func TimeOutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Transaction) *message.Transaction {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan *message.Transaction, 1)
			go func() {
				defer func() {
					if r := recover(); r != nil {
						log.Error().
							Str("service", req.Service).
							Uint32("code", req.Code).
							Interface("panic", r).
							Msg("handler panicked")
						done <- req.Fail(message.StatusFailedTransaction, fmt.Errorf("panic: %v", r))
					}
				}()
				done <- next(ctx, req)
			}()

			select {
			case reply := <-done:
				return reply
			case <-ctx.Done():
				return &message.Transaction{
					Service: req.Service,
					Code:    req.Code,
					Status:  message.StatusTimedOut,
					Error:   "request timed out",
				}
			}
		}
	}
}
