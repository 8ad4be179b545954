// Package server implements the transaction server: handler registration by
// interface descriptor, a middleware chain, parallel request processing, and
// graceful shutdown.
//
// Request processing pipeline:
//
//	Accept conn → handleConn (single goroutine reads frames)
//	  → for each request: go handleRequest (parallel processing)
//	    → Codec.Decode → Middleware Chain → dispatch (Handler.OnTransact) → Codec.Encode → write reply
//
// A handler failure is reported in the reply's status; it never closes the
// connection or stops the server.
package server

import (
	"context"
	"fmt"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"syscontrol/codec"
	"syscontrol/ipc"
	"syscontrol/message"
	"syscontrol/middleware"
	"syscontrol/parcel"
	"syscontrol/protocol"
	"syscontrol/registry"
)

// DefaultTTL is the registry lease, in seconds, for published handlers.
const DefaultTTL = 10

// Server routes transactions to registered handlers.
type Server struct {
	mu            sync.RWMutex           // guards handlers, listener, registry, advertiseAddr and wg.Add against shutdown
	handlers      map[string]ipc.Handler // descriptor → handler
	listener      net.Listener
	wg            sync.WaitGroup // in-flight requests
	shutdown      atomic.Bool    // set during shutdown to suppress Accept errors
	conns         sync.Map       // open connections, closed on shutdown
	middlewares   []middleware.Middleware
	handler       middleware.HandlerFunc // middleware(middleware(...(dispatch)))
	registry      registry.Registry      // nil if not using discovery
	advertiseAddr string                 // routable address published to the registry
	ttl           int64
	weight        int
	version       string
	ready         chan struct{}
}

// Option configures a Server.
type Option func(*Server)

// WithTTL sets the registry lease in seconds.
func WithTTL(ttl int64) Option {
	return func(s *Server) { s.ttl = ttl }
}

// WithInstance sets the weight and version published to the registry.
func WithInstance(weight int, version string) Option {
	return func(s *Server) {
		s.weight = weight
		s.version = version
	}
}

// NewServer creates a server with no handlers.
func NewServer(opts ...Option) *Server {
	s := &Server{
		handlers: make(map[string]ipc.Handler),
		ttl:      DefaultTTL,
		weight:   1,
		ready:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds h under its descriptor. Registering a second handler for the
// same descriptor is an error.
func (svr *Server) Register(h ipc.Handler) error {
	desc := h.Descriptor()
	if desc == "" {
		return fmt.Errorf("server: handler has an empty descriptor")
	}
	svr.mu.Lock()
	defer svr.mu.Unlock()
	if _, ok := svr.handlers[desc]; ok {
		return fmt.Errorf("server: handler %q already registered", desc)
	}
	svr.handlers[desc] = h
	return nil
}

// Services returns the registered descriptors in sorted order.
func (svr *Server) Services() []string {
	svr.mu.RLock()
	defer svr.mu.RUnlock()
	out := make([]string, 0, len(svr.handlers))
	for desc := range svr.handlers {
		out = append(out, desc)
	}
	sort.Strings(out)
	return out
}

func (svr *Server) lookup(desc string) ipc.Handler {
	svr.mu.RLock()
	defer svr.mu.RUnlock()
	return svr.handlers[desc]
}

// Use registers a middleware. Middlewares are applied in the order they are added.
// Call Use before Serve.
func (svr *Server) Use(mw middleware.Middleware) {
	svr.middlewares = append(svr.middlewares, mw)
}

// Serve listens on address and serves until Shutdown.
//
// advertiseAddr is the address published to reg; it differs from the listen
// address because ":7070" is not routable. Pass a nil reg to skip discovery.
func (svr *Server) Serve(network, address string, advertiseAddr string, reg registry.Registry) error {
	listener, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	return svr.ServeListener(listener, advertiseAddr, reg)
}

// ServeListener serves on an existing listener until Shutdown.
func (svr *Server) ServeListener(listener net.Listener, advertiseAddr string, reg registry.Registry) error {
	// Chain(A, B, C)(h) → A(B(C(h))); built once, not per request.
	svr.handler = middleware.Chain(svr.middlewares...)(svr.dispatch)

	if advertiseAddr == "" {
		advertiseAddr = listener.Addr().String()
	}
	svr.mu.Lock()
	svr.listener = listener
	svr.advertiseAddr = advertiseAddr
	svr.registry = reg
	svr.mu.Unlock()

	if reg != nil {
		for _, desc := range svr.Services() {
			err := reg.Register(desc, registry.ServiceInstance{
				Addr:    advertiseAddr,
				Weight:  svr.weight,
				Version: svr.version,
			}, svr.ttl)
			if err != nil {
				listener.Close()
				return fmt.Errorf("server: register %q: %w", desc, err)
			}
		}
	}

	log.Info().Str("addr", listener.Addr().String()).Strs("services", svr.Services()).Msg("server: listening")
	close(svr.ready)

	for {
		conn, err := listener.Accept()
		if err != nil {
			// listener.Close() during Shutdown also lands here
			if svr.shutdown.Load() {
				return nil
			}
			return err
		}
		go svr.handleConn(conn)
	}
}

// Ready is closed once the server is accepting connections.
func (svr *Server) Ready() <-chan struct{} {
	return svr.ready
}

// Addr returns the listener address, or nil before Serve.
func (svr *Server) Addr() net.Addr {
	select {
	case <-svr.ready:
		svr.mu.RLock()
		defer svr.mu.RUnlock()
		return svr.listener.Addr()
	default:
		return nil
	}
}

// handleConn processes a single TCP connection.
// Frames are read by this goroutine alone, since reads must be sequential to
// keep frame boundaries, and each request is handled on its own goroutine.
// writeMu serializes reply frames from those goroutines.
func (svr *Server) handleConn(conn net.Conn) {
	svr.conns.Store(conn, struct{}{})
	defer func() {
		svr.conns.Delete(conn)
		conn.Close()
	}()

	writeMu := &sync.Mutex{}
	for {
		header, body, err := protocol.Decode(conn)
		if err != nil {
			if !svr.shutdown.Load() {
				log.Debug().Str("remote", conn.RemoteAddr().String()).Err(err).Msg("server: connection closed")
			}
			return
		}

		if header.MsgType != protocol.MsgTypeRequest {
			continue // heartbeats keep the connection alive, nothing to answer
		}

		if !svr.track() {
			continue // shutting down: drop it, replies still in flight use this conn
		}
		go svr.handleRequest(header, body, conn, writeMu)
	}
}

// track adds an in-flight request unless shutdown has begun. Holding mu keeps
// wg.Add from racing the wg.Wait in Shutdown.
func (svr *Server) track() bool {
	svr.mu.RLock()
	defer svr.mu.RUnlock()
	if svr.shutdown.Load() {
		return false
	}
	svr.wg.Add(1)
	return true
}

// handleRequest decodes one request, runs it through the middleware chain and
// writes the reply with the request's sequence number.
func (svr *Server) handleRequest(header *protocol.Header, body []byte, conn net.Conn, writeMu *sync.Mutex) {
	defer svr.wg.Done()

	c := codec.GetCodec(codec.CodecType(header.CodecType))
	req := &message.Transaction{}
	var reply *message.Transaction
	if err := c.Decode(body, req); err != nil {
		reply = req.Fail(message.StatusFailedTransaction, err)
	} else {
		reply = svr.handler(context.Background(), req)
	}

	result, err := c.Encode(reply)
	if err != nil {
		log.Error().Err(err).Str("service", req.Service).Uint32("code", req.Code).Msg("server: encode reply")
		return
	}

	replyHeader := protocol.Header{
		CodecType: header.CodecType,
		MsgType:   protocol.MsgTypeResponse,
		Seq:       header.Seq,
	}

	writeMu.Lock()
	defer writeMu.Unlock()
	if err := protocol.Encode(conn, &replyHeader, result); err != nil {
		log.Warn().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("server: write reply")
	}
}

// dispatch delivers a transaction to the handler registered for its
// descriptor. It is the innermost HandlerFunc of the middleware chain.
func (svr *Server) dispatch(ctx context.Context, req *message.Transaction) *message.Transaction {
	h := svr.lookup(req.Service)
	if h == nil {
		return req.Fail(message.StatusNameNotFound, fmt.Errorf("%w: %q", ipc.ErrServiceNotFound, req.Service))
	}

	reply := parcel.New()
	if err := h.OnTransact(ctx, req.Code, parcel.FromBytes(req.Data), reply); err != nil {
		return req.Fail(ipc.StatusOf(err), err)
	}
	return req.Reply(reply.Bytes())
}

// Shutdown performs graceful shutdown:
//  1. Deregister every handler, so clients stop routing here
//  2. Set the shutdown flag: the Accept error is expected from here on, and
//     requests read after this point are dropped
//  3. Close the listener
//  4. Wait for in-flight requests, up to timeout
//  5. Close the remaining connections
func (svr *Server) Shutdown(timeout time.Duration) error {
	svr.mu.RLock()
	reg, advertiseAddr, listener := svr.registry, svr.advertiseAddr, svr.listener
	svr.mu.RUnlock()

	if reg != nil {
		for _, desc := range svr.Services() {
			if err := reg.Deregister(desc, advertiseAddr); err != nil {
				log.Warn().Err(err).Str("service", desc).Msg("server: deregister")
			}
		}
	}

	svr.mu.Lock()
	svr.shutdown.Store(true)
	svr.mu.Unlock()
	if listener != nil {
		listener.Close()
	}

	done := make(chan struct{})
	go func() {
		svr.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-time.After(timeout):
		err = fmt.Errorf("server: timeout waiting for ongoing requests to finish")
	}

	svr.conns.Range(func(key, _ any) bool {
		key.(net.Conn).Close()
		return true
	})
	return err
}
