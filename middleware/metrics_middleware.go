package middleware

import (
	"context"
	"strconv"
	"time"

	"syscontrol/message"
	"syscontrol/observability"
)

// MetricsMiddleware records every transaction under side ("server" or
// "client"). codeName labels the code; nil labels it with its number.
func MetricsMiddleware(side string, codeName func(code uint32) string) Middleware {
	if codeName == nil {
		codeName = func(code uint32) string { return strconv.FormatUint(uint64(code), 10) }
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Transaction) *message.Transaction {
			start := time.Now()
			reply := next(ctx, req)
			observability.RecordTransaction(side, req.Service, codeName(req.Code), reply.Status.String(), time.Since(start))
			return reply
		}
	}
}
