// Package client resolves a descriptor to a server and carries transactions to
// it: registry lookup, balancer pick, pooled multiplexed transport, and an
// optional client-side middleware chain around the round trip.
//
//	Remote(desc).Transact → middleware chain → roundTrip
//	  → Registry.Discover → Balancer.Pick → ConnPool.Get → ClientTransport.Send → wait
//
// Every failure on that path reaches the caller as an ipc error:
// ErrDeadObject when no server could be reached, ErrTimedOut when the reply
// did not arrive in time.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"syscontrol/codec"
	"syscontrol/ipc"
	"syscontrol/loadbalance"
	"syscontrol/message"
	"syscontrol/middleware"
	"syscontrol/parcel"
	"syscontrol/registry"
	"syscontrol/transport"
)

const (
	DefaultPoolSize    = 4
	DefaultCallTimeout = 5 * time.Second
)

var ErrClientClosed = errors.New("client: closed")

type Config struct {
	Registry    registry.Registry    // required
	Balancer    loadbalance.Balancer // defaults to round robin
	Codec       codec.CodecType
	PoolSize    int           // transports per server address
	CallTimeout time.Duration // per transaction, including retries
	Middlewares []middleware.Middleware

	// Dial overrides the TCP dialer, mostly for tests.
	Dial func(ctx context.Context, addr string) (net.Conn, error)
}

type Client struct {
	cfg     Config
	handler middleware.HandlerFunc

	mu     sync.Mutex
	pools  map[string]*transport.ConnPool // server address → pool
	closed bool
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("client: no registry configured")
	}
	if cfg.Balancer == nil {
		cfg.Balancer = &loadbalance.RoundRobinBalancer{}
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = DefaultPoolSize
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	c := &Client{
		cfg:   cfg,
		pools: make(map[string]*transport.ConnPool),
	}
	c.handler = middleware.Chain(cfg.Middlewares...)(c.roundTrip)
	return c, nil
}

// Remote returns the Remote for descriptor. Each Transact resolves the server
// anew, so a Remote survives server restarts and registry changes.
func (c *Client) Remote(descriptor string) ipc.Remote {
	return ipc.RemoteFunc(func(ctx context.Context, code uint32, data *parcel.Parcel) (*parcel.Parcel, error) {
		return c.transact(ctx, descriptor, code, data)
	})
}

func (c *Client) transact(ctx context.Context, descriptor string, code uint32, data *parcel.Parcel) (*parcel.Parcel, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	req := &message.Transaction{Service: descriptor, Code: code, Data: data.Bytes()}
	reply := c.handler(ctx, req)
	if err := ipc.FromStatus(reply.Status, reply.Error); err != nil {
		return nil, err
	}
	return parcel.FromBytes(reply.Data), nil
}

// roundTrip is the innermost HandlerFunc. It reports every failure as a reply
// status so client middlewares, such as retry, can act on it.
func (c *Client) roundTrip(ctx context.Context, req *message.Transaction) *message.Transaction {
	instances, err := c.cfg.Registry.Discover(req.Service)
	if err != nil {
		return req.Fail(message.StatusDeadObject, fmt.Errorf("discover %q: %w", req.Service, err))
	}
	instance, err := c.cfg.Balancer.Pick(instances)
	if err != nil {
		return req.Fail(message.StatusDeadObject, fmt.Errorf("pick %q: %w", req.Service, err))
	}

	pool, err := c.pool(instance.Addr)
	if err != nil {
		return req.Fail(message.StatusDeadObject, err)
	}
	t, err := pool.Get(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return req.Fail(message.StatusTimedOut, ctx.Err())
		}
		log.Debug().Err(err).Str("addr", instance.Addr).Msg("client: dial failed")
		return req.Fail(message.StatusDeadObject, err)
	}
	defer pool.Put(t)

	seq, ch, err := t.Send(req)
	if err != nil {
		return req.Fail(message.StatusDeadObject, err)
	}

	select {
	case reply := <-ch:
		return reply
	case <-ctx.Done():
		t.Cancel(seq)
		return req.Fail(message.StatusTimedOut, ctx.Err())
	}
}

func (c *Client) pool(addr string) (*transport.ConnPool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClientClosed
	}
	if p, ok := c.pools[addr]; ok {
		return p, nil
	}

	factory := transport.TCPFactory(addr)
	if c.cfg.Dial != nil {
		dial := c.cfg.Dial
		factory = func(ctx context.Context) (net.Conn, error) { return dial(ctx, addr) }
	}
	p := transport.NewConnPool(addr, c.cfg.PoolSize, c.cfg.Codec, factory)
	c.pools[addr] = p
	return p, nil
}

// Close closes every pooled transport. Calls made afterwards fail with
// ErrDeadObject.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	for addr, p := range c.pools {
		p.Close()
		delete(c.pools, addr)
	}
	return nil
}
