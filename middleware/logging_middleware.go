package middleware

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"syscontrol/message"
)

func LoggingMiddleware() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Transaction) *message.Transaction {
			start := time.Now()
			reply := next(ctx, req)

			event := log.Debug()
			if reply.Status != message.StatusOK {
				event = log.Warn().Str("error", reply.Error)
			}
			event.
				Str("service", req.Service).
				Uint32("code", req.Code).
				Stringer("status", reply.Status).
				Dur("duration", time.Since(start)).
				Msg("transaction")
			return reply
		}
	}
}
