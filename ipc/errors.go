package ipc

import (
	"context"
	"errors"
	"fmt"

	"syscontrol/message"
	"syscontrol/parcel"
)

var (
	ErrUnknownTransaction = errors.New("ipc: unknown transaction")
	ErrBadInterface       = parcel.ErrBadInterface
	ErrDeadObject         = errors.New("ipc: dead object")
	ErrFailedTransaction  = errors.New("ipc: failed transaction")
	ErrTimedOut           = errors.New("ipc: timed out")
	ErrRateLimited        = errors.New("ipc: rate limited")
	ErrServiceNotFound    = errors.New("ipc: service not found")
)

var statusErrors = map[message.Status]error{
	message.StatusUnknownTransaction: ErrUnknownTransaction,
	message.StatusBadType:            ErrBadInterface,
	message.StatusDeadObject:         ErrDeadObject,
	message.StatusFailedTransaction:  ErrFailedTransaction,
	message.StatusTimedOut:           ErrTimedOut,
	message.StatusRateLimited:        ErrRateLimited,
	message.StatusNameNotFound:       ErrServiceNotFound,
}

// StatusError is a non-OK status received from, or produced for, the other end.
type StatusError struct {
	Status message.Status
	Msg    string
}

func (e *StatusError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("ipc: status %s", e.Status)
	}
	return fmt.Sprintf("ipc: status %s: %s", e.Status, e.Msg)
}

func (e *StatusError) Unwrap() error {
	if err, ok := statusErrors[e.Status]; ok {
		return err
	}
	return ErrFailedTransaction
}

// FromStatus converts a reply status into an error. It returns nil for StatusOK.
func FromStatus(status message.Status, msg string) error {
	if status == message.StatusOK {
		return nil
	}
	return &StatusError{Status: status, Msg: msg}
}

// StatusOf maps err to the status reported on the wire. Malformed parcels and
// unrecognised errors become StatusFailedTransaction.
func StatusOf(err error) message.Status {
	var se *StatusError
	switch {
	case err == nil:
		return message.StatusOK
	case errors.As(err, &se):
		return se.Status
	case errors.Is(err, ErrUnknownTransaction):
		return message.StatusUnknownTransaction
	case errors.Is(err, ErrBadInterface):
		return message.StatusBadType
	case errors.Is(err, ErrDeadObject):
		return message.StatusDeadObject
	case errors.Is(err, ErrTimedOut), errors.Is(err, context.DeadlineExceeded):
		return message.StatusTimedOut
	case errors.Is(err, ErrRateLimited):
		return message.StatusRateLimited
	case errors.Is(err, ErrServiceNotFound):
		return message.StatusNameNotFound
	default:
		return message.StatusFailedTransaction
	}
}
