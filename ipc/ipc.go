// Package ipc defines the calling convention shared by both ends of a
// transaction: the Remote a client sends through, the Handler a server
// dispatches to, and the generic transactions every handler answers.
//
//	client                               server
//	  Remote.Transact(code, data) ──────▶ Handler.OnTransact(code, data, reply)
//	  ◀──────────────── reply or error ──
//
// A Remote reports exactly one of two outcomes: a reply parcel, or an error
// meaning the call did not complete. The reply parcel must not be read when the
// error is non-nil.
package ipc

import (
	"context"

	"syscontrol/parcel"
)

// Transaction code space. Interface-specific codes start at FirstCallTransaction;
// the generic codes below live above LastCallTransaction so they can never
// collide with an interface's own table.
const (
	FirstCallTransaction uint32 = 0x00000001
	LastCallTransaction  uint32 = 0x00ffffff

	PingTransaction      uint32 = '_'<<24 | 'P'<<16 | 'N'<<8 | 'G'
	InterfaceTransaction uint32 = '_'<<24 | 'N'<<16 | 'T'<<8 | 'F'
)

// Remote sends one transaction and blocks until it has a reply or has failed.
type Remote interface {
	Transact(ctx context.Context, code uint32, data *parcel.Parcel) (*parcel.Parcel, error)
}

// RemoteFunc adapts a function to the Remote interface.
type RemoteFunc func(ctx context.Context, code uint32, data *parcel.Parcel) (*parcel.Parcel, error)

func (f RemoteFunc) Transact(ctx context.Context, code uint32, data *parcel.Parcel) (*parcel.Parcel, error) {
	return f(ctx, code, data)
}

// Handler is the server-side object a transaction is delivered to.
//
// OnTransact decodes data, performs the call and encodes the result into reply.
// A non-nil error rejects the whole transaction: the client sees a transport
// failure and reply is discarded.
type Handler interface {
	Descriptor() string
	OnTransact(ctx context.Context, code uint32, data, reply *parcel.Parcel) error
}

// DefaultOnTransact answers the generic transactions for h and rejects every
// other code with ErrUnknownTransaction. Handlers call it for codes outside
// their own table.
func DefaultOnTransact(h Handler, code uint32, data, reply *parcel.Parcel) error {
	switch code {
	case PingTransaction:
		return nil
	case InterfaceTransaction:
		reply.WriteString16(h.Descriptor())
		return nil
	default:
		return ErrUnknownTransaction
	}
}

// Ping checks that the handler behind r is reachable.
func Ping(ctx context.Context, r Remote) error {
	_, err := r.Transact(ctx, PingTransaction, parcel.New())
	return err
}

// InterfaceDescriptor asks the handler behind r which interface it implements.
func InterfaceDescriptor(ctx context.Context, r Remote) (string, error) {
	reply, err := r.Transact(ctx, InterfaceTransaction, parcel.New())
	if err != nil {
		return "", err
	}
	return reply.ReadString16()
}
