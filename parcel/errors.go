package parcel

import (
	"errors"
	"fmt"
)

var (
	ErrTruncated         = errors.New("parcel: truncated data")
	ErrInvalidLength     = errors.New("parcel: invalid length")
	ErrMissingTerminator = errors.New("parcel: string missing terminator")
	ErrBadInterface      = errors.New("parcel: interface token mismatch")
)

// InterfaceError reports a request whose interface token could not be read or
// did not match the expected descriptor.
type InterfaceError struct {
	Want string
	Got  string
	Err  error
}

func (e *InterfaceError) Error() string {
	if e.Got == "" && !errors.Is(e.Err, ErrBadInterface) {
		return fmt.Sprintf("parcel: read interface token (want %q): %v", e.Want, e.Err)
	}
	return fmt.Sprintf("parcel: interface token %q, want %q", e.Got, e.Want)
}

func (e *InterfaceError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrBadInterface) match any token failure, including a
// token that was cut short.
func (e *InterfaceError) Is(target error) bool {
	return target == ErrBadInterface
}
