package ipc

import (
	"context"
	"fmt"

	"syscontrol/parcel"
)

type local struct {
	h Handler
}

// Local returns a Remote that delivers transactions to h in the calling
// goroutine. Request and reply bytes are copied across the call, and handler
// errors are reduced to their wire status, so a local call observes exactly
// what a remote one would.
func Local(h Handler) Remote {
	return local{h: h}
}

func (l local) Transact(ctx context.Context, code uint32, data *parcel.Parcel) (*parcel.Parcel, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTimedOut, err)
	}
	in := parcel.FromBytes(data.Bytes())
	reply := parcel.New()
	if err := l.h.OnTransact(ctx, code, in, reply); err != nil {
		return nil, FromStatus(StatusOf(err), err.Error())
	}
	return parcel.FromBytes(reply.Bytes()), nil
}
