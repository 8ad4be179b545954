// Package middleware wraps transaction handlers. The same chain type serves
// the server, around handler dispatch, and the client, around the network
// round trip.
package middleware

import (
	"context"

	"syscontrol/message"
)

type HandlerFunc func(ctx context.Context, req *message.Transaction) *message.Transaction

type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares so that the first one added is the outermost:
// Chain(A, B, C)(h) == A(B(C(h))).
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
