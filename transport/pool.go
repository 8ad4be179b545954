// Package transport also provides ConnPool, a bounded pool of ClientTransports
// to a single address.
//
// A transport is borrowed for one call and returned afterwards. Broken
// transports are dropped on the way in or out, and the pool grows back lazily.
// A buffered channel serves as the FIFO of idle transports.
package transport

import (
	"context"
	"errors"
	"net"
	"sync"

	"syscontrol/codec"
)

var ErrPoolClosed = errors.New("transport: pool closed")

// ConnPool manages a pool of reusable transports to a single address.
type ConnPool struct {
	mu        sync.Mutex
	conns     chan *ClientTransport // idle transports
	addr      string
	maxConns  int
	curConns  int // transports created and not yet discarded, protected by mu
	closed    bool
	codecType codec.CodecType
	factory   func(ctx context.Context) (net.Conn, error)
}

// NewConnPool creates a pool holding at most maxConns transports. Connections
// are created on demand by factory; the pool starts empty.
func NewConnPool(addr string, maxConns int, codecType codec.CodecType, factory func(ctx context.Context) (net.Conn, error)) *ConnPool {
	if maxConns <= 0 {
		maxConns = 1
	}
	return &ConnPool{
		conns:     make(chan *ClientTransport, maxConns),
		addr:      addr,
		maxConns:  maxConns,
		codecType: codecType,
		factory:   factory,
	}
}

// TCPFactory returns a factory dialing addr over TCP.
func TCPFactory(addr string) func(ctx context.Context) (net.Conn, error) {
	return func(ctx context.Context) (net.Conn, error) {
		var d net.Dialer
		return d.DialContext(ctx, "tcp", addr)
	}
}

// Addr returns the address the pool connects to.
func (p *ConnPool) Addr() string {
	return p.addr
}

// Get borrows a transport.
//  1. Take an idle transport if one is available, skipping broken ones.
//  2. Otherwise create a new one if the pool is under its limit.
//  3. Otherwise wait for a transport to be returned, or for ctx to end.
func (p *ConnPool) Get(ctx context.Context) (*ClientTransport, error) {
	for {
		select {
		case t := <-p.conns:
			if t.Closed() {
				p.discard()
				continue
			}
			return t, nil
		default:
		}

		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrPoolClosed
		}
		if p.curConns < p.maxConns {
			p.curConns++
			p.mu.Unlock()
			return p.createNew(ctx)
		}
		p.mu.Unlock()

		select {
		case t := <-p.conns:
			if t.Closed() {
				p.discard()
				continue
			}
			return t, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Put returns a transport to the pool. Broken transports are discarded.
func (p *ConnPool) Put(t *ClientTransport) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || t.Closed() {
		t.Close()
		p.curConns--
		return
	}
	// never blocks: the channel holds maxConns and curConns <= maxConns
	p.conns <- t
}

// Close shuts down the pool and closes every idle transport. Borrowed
// transports are closed when they are returned.
func (p *ConnPool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	for {
		select {
		case t := <-p.conns:
			t.Close()
			p.discard()
		default:
			return nil
		}
	}
}

// Size returns the number of live transports, idle or borrowed.
func (p *ConnPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.curConns
}

func (p *ConnPool) discard() {
	p.mu.Lock()
	p.curConns--
	p.mu.Unlock()
}

// createNew dials a connection for a slot already reserved in curConns.
func (p *ConnPool) createNew(ctx context.Context) (*ClientTransport, error) {
	conn, err := p.factory(ctx)
	if err != nil {
		p.discard()
		return nil, err
	}
	return NewClientTransport(conn, p.codecType), nil
}
