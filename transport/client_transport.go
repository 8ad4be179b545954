// Package transport implements the client side of the TCP transport: a
// multiplexed connection with heartbeat, and a pool of such connections.
//
// ClientTransport lets several goroutines transact over one TCP connection.
// Each request gets a unique sequence ID, and a background goroutine (recvLoop)
// reads replies and routes them to the waiting caller via its pending channel.
//
//	goroutine-1 ──Send(seq=1)──┐
//	goroutine-2 ──Send(seq=2)──┼──→ single TCP conn ──→ Server
//	goroutine-3 ──Send(seq=3)──┘
//
//	recvLoop:  ←── reply(seq=2) → pending[2] chan → goroutine-2 wakes up
//
// Each call is still one request and one reply; sequence IDs only keep
// concurrent calls from different goroutines apart.
package transport

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"syscontrol/codec"
	"syscontrol/message"
	"syscontrol/protocol"
)

// DefaultHeartbeatInterval is how often an idle connection is probed.
const DefaultHeartbeatInterval = 30 * time.Second

var ErrClosed = errors.New("transport: connection closed")

// ClientTransport manages a single multiplexed TCP connection.
type ClientTransport struct {
	conn    net.Conn
	codec   codec.CodecType
	seq     uint32      // protected by sending
	pending sync.Map    // map[uint32]chan *message.Transaction
	sending sync.Mutex  // serializes frame writes on conn
	closed  atomic.Bool // set once the connection is unusable
	done    chan struct{}
}

// NewClientTransport wraps conn and starts the receive and heartbeat loops.
func NewClientTransport(conn net.Conn, codecType codec.CodecType) *ClientTransport {
	return NewClientTransportWithHeartbeat(conn, codecType, DefaultHeartbeatInterval)
}

// NewClientTransportWithHeartbeat is NewClientTransport with a custom heartbeat
// interval. An interval <= 0 disables heartbeats.
func NewClientTransportWithHeartbeat(conn net.Conn, codecType codec.CodecType, interval time.Duration) *ClientTransport {
	t := &ClientTransport{
		conn:  conn,
		codec: codecType,
		done:  make(chan struct{}),
	}
	go t.recvLoop()
	if interval > 0 {
		go t.heartbeatLoop(interval)
	}
	return t
}

// Send encodes tx and writes it as a request frame. It returns the sequence
// number and a channel that receives exactly one reply. If the connection
// breaks before the reply arrives, the channel receives a DEAD_OBJECT reply.
func (t *ClientTransport) Send(tx *message.Transaction) (uint32, <-chan *message.Transaction, error) {
	if t.closed.Load() {
		return 0, nil, ErrClosed
	}

	body, err := codec.GetCodec(t.codec).Encode(tx)
	if err != nil {
		return 0, nil, err
	}

	t.sending.Lock()
	defer t.sending.Unlock()

	t.seq++
	seq := t.seq

	header := protocol.Header{
		CodecType: byte(t.codec),
		MsgType:   protocol.MsgTypeRequest,
		Seq:       seq,
	}

	// Register before writing so recvLoop cannot see a reply with no owner.
	respChan := make(chan *message.Transaction, 1)
	t.pending.Store(seq, respChan)

	if err := protocol.Encode(t.conn, &header, body); err != nil {
		t.pending.Delete(seq)
		t.fail(err)
		return 0, nil, err
	}

	// closeAllPending may have run between the closed check and Store.
	if t.closed.Load() {
		if _, ok := t.pending.LoadAndDelete(seq); ok {
			return 0, nil, ErrClosed
		}
	}
	return seq, respChan, nil
}

// Cancel forgets a pending request, e.g. after the caller gave up waiting.
// A reply that arrives later is dropped.
func (t *ClientTransport) Cancel(seq uint32) {
	t.pending.Delete(seq)
}

// recvLoop is the only reader of conn. Frames must be read sequentially to
// keep their boundaries, so one goroutine owns the read side.
func (t *ClientTransport) recvLoop() {
	for {
		header, body, err := protocol.Decode(t.conn)
		if err != nil {
			t.fail(err)
			return
		}
		if header.MsgType != protocol.MsgTypeResponse {
			continue
		}

		reply := &message.Transaction{}
		if err := codec.GetCodec(codec.CodecType(header.CodecType)).Decode(body, reply); err != nil {
			reply = &message.Transaction{Status: message.StatusFailedTransaction, Error: err.Error()}
		}

		if channel, ok := t.pending.LoadAndDelete(header.Seq); ok {
			channel.(chan *message.Transaction) <- reply
		}
	}
}

// fail marks the transport closed and releases every pending caller.
func (t *ClientTransport) fail(err error) {
	if t.closed.Swap(true) {
		return
	}
	close(t.done)
	t.conn.Close()
	if !errors.Is(err, net.ErrClosed) {
		log.Debug().Str("remote", t.conn.RemoteAddr().String()).Err(err).Msg("transport: connection lost")
	}
	t.closeAllPending(err)
}

// closeAllPending sends a DEAD_OBJECT reply to every pending caller so none of
// them blocks forever.
func (t *ClientTransport) closeAllPending(err error) {
	t.pending.Range(func(key, _ any) bool {
		if channel, ok := t.pending.LoadAndDelete(key); ok {
			channel.(chan *message.Transaction) <- &message.Transaction{
				Status: message.StatusDeadObject,
				Error:  err.Error(),
			}
		}
		return true
	})
}

// Close shuts the connection down. Pending calls fail with DEAD_OBJECT.
func (t *ClientTransport) Close() error {
	t.fail(ErrClosed)
	return nil
}

// Closed reports whether the connection is no longer usable.
func (t *ClientTransport) Closed() bool {
	return t.closed.Load()
}

// Conn returns the underlying TCP connection.
func (t *ClientTransport) Conn() net.Conn {
	return t.conn
}

// heartbeatLoop sends periodic bodiless heartbeat frames so a dead peer is
// noticed even when no calls are in flight.
func (t *ClientTransport) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
		}
		header := &protocol.Header{
			CodecType: byte(t.codec),
			MsgType:   protocol.MsgTypeHeartbeat,
		}
		t.sending.Lock()
		err := protocol.Encode(t.conn, header, nil)
		t.sending.Unlock()
		if err != nil {
			t.fail(err)
			return
		}
	}
}
