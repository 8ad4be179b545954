package middleware

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"syscontrol/message"
)

// RecoverMiddleware turns a panic in next into a FailedTransaction reply.
func RecoverMiddleware() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Transaction) (reply *message.Transaction) {
			defer func() {
				if r := recover(); r != nil {
					log.Error().
						Str("service", req.Service).
						Uint32("code", req.Code).
						Interface("panic", r).
						Msg("handler panicked")
					reply = req.Fail(message.StatusFailedTransaction, fmt.Errorf("panic: %v", r))
				}
			}()
			return next(ctx, req)
		}
	}
}
