// Package parcel implements the flat wire codec used for request and reply bodies.
//
// A Parcel is an append-only byte buffer with an independent read cursor. Values
// carry no type tags: both endpoints agree on the order and type of every field
// for a given transaction code, so a reader must consume fields in exactly the
// order the writer produced them.
//
// Layout of each primitive (native byte order, every value padded to 4 bytes):
//
//	int32   ┌──────────┐
//	        │  4 bytes │
//	        └──────────┘
//	int64   ┌──────────────────────┐
//	        │       8 bytes        │
//	        └──────────────────────┘
//	bool    int32 0 or 1
//	string  ┌──────────┬──────────────────────────┬──────┬─────────┐
//	        │ int32 n  │ n UTF-16 code units      │ 0x00 │ padding │
//	        └──────────┴──────────────────────────┴──────┴─────────┘
//	        n = -1 encodes a null string and carries no payload.
//
// Byte order is the host's: a parcel is exchanged between two processes built
// from the same definitions, it is not a cross-architecture format.
package parcel

import (
	"encoding/binary"
	"unicode/utf16"
)

const (
	align     = 4
	nullLen   = -1
	unitBytes = 2
)

var order = binary.NativeEndian

// Parcel is a linear buffer of encoded values.
// A Parcel is not safe for concurrent use; each call builds its own.
type Parcel struct {
	data []byte
	pos  int
}

// New returns an empty parcel ready for writing.
func New() *Parcel {
	return &Parcel{data: make([]byte, 0, 64)}
}

// FromBytes wraps b for reading. The parcel takes its own copy so the caller's
// buffer is never aliased.
func FromBytes(b []byte) *Parcel {
	data := make([]byte, len(b))
	copy(data, b)
	return &Parcel{data: data}
}

// Bytes returns a copy of the encoded contents.
func (p *Parcel) Bytes() []byte {
	out := make([]byte, len(p.data))
	copy(out, p.data)
	return out
}

// Len returns the number of encoded bytes.
func (p *Parcel) Len() int {
	return len(p.data)
}

// Position returns the read cursor.
func (p *Parcel) Position() int {
	return p.pos
}

// SetPosition moves the read cursor. It returns ErrInvalidLength if pos is
// outside the buffer.
func (p *Parcel) SetPosition(pos int) error {
	if pos < 0 || pos > len(p.data) {
		return ErrInvalidLength
	}
	p.pos = pos
	return nil
}

// Remaining returns the number of unread bytes.
func (p *Parcel) Remaining() int {
	return len(p.data) - p.pos
}

func (p *Parcel) grow(n int) []byte {
	padded := pad(n)
	start := len(p.data)
	p.data = append(p.data, make([]byte, padded)...)
	return p.data[start : start+n]
}

// next returns the next n bytes and advances the cursor past their padding.
// The cursor does not move when the buffer is too short.
func (p *Parcel) next(n int) ([]byte, error) {
	padded := pad(n)
	if n < 0 || padded > len(p.data)-p.pos {
		return nil, ErrTruncated
	}
	b := p.data[p.pos : p.pos+n]
	p.pos += padded
	return b, nil
}

func pad(n int) int {
	return (n + align - 1) &^ (align - 1)
}

// WriteInt32 appends a 32-bit signed integer.
func (p *Parcel) WriteInt32(v int32) {
	order.PutUint32(p.grow(4), uint32(v))
}

// ReadInt32 reads a 32-bit signed integer.
func (p *Parcel) ReadInt32() (int32, error) {
	b, err := p.next(4)
	if err != nil {
		return 0, err
	}
	return int32(order.Uint32(b)), nil
}

// WriteInt64 appends a 64-bit signed integer.
func (p *Parcel) WriteInt64(v int64) {
	order.PutUint64(p.grow(8), uint64(v))
}

// ReadInt64 reads a 64-bit signed integer.
func (p *Parcel) ReadInt64() (int64, error) {
	b, err := p.next(8)
	if err != nil {
		return 0, err
	}
	return int64(order.Uint64(b)), nil
}

// WriteBool appends v as an int32 0 or 1.
func (p *Parcel) WriteBool(v bool) {
	if v {
		p.WriteInt32(1)
		return
	}
	p.WriteInt32(0)
}

// ReadBool reads an int32 and reports whether it is non-zero.
func (p *Parcel) ReadBool() (bool, error) {
	v, err := p.ReadInt32()
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

// WriteString16 appends s as UTF-16. The empty string is written as a
// zero-length string, never as null. Bytes of s that are not valid UTF-8 are
// written as U+FFFD, so such strings do not read back unchanged.
func (p *Parcel) WriteString16(s string) {
	p.writeUnits(utf16.Encode([]rune(s)))
}

// WriteNullableString16 appends *s, or the null marker when s is nil.
func (p *Parcel) WriteNullableString16(s *string) {
	if s == nil {
		p.WriteInt32(nullLen)
		return
	}
	p.WriteString16(*s)
}

func (p *Parcel) writeUnits(units []uint16) {
	p.WriteInt32(int32(len(units)))
	b := p.grow((len(units) + 1) * unitBytes)
	for i, u := range units {
		order.PutUint16(b[i*unitBytes:], u)
	}
	// terminator is already zeroed by grow
}

// ReadString16 reads a UTF-16 string. A null string reads as "".
func (p *Parcel) ReadString16() (string, error) {
	s, err := p.ReadNullableString16()
	if err != nil || s == nil {
		return "", err
	}
	return *s, nil
}

// ReadNullableString16 reads a UTF-16 string, returning nil for the null marker.
func (p *Parcel) ReadNullableString16() (*string, error) {
	start := p.pos
	n, err := p.ReadInt32()
	if err != nil {
		return nil, err
	}
	if n == nullLen {
		return nil, nil
	}
	if n < 0 {
		p.pos = start
		return nil, ErrInvalidLength
	}
	if int64(n)+1 > int64(p.Remaining()/unitBytes) {
		p.pos = start
		return nil, ErrTruncated
	}
	b, err := p.next((int(n) + 1) * unitBytes)
	if err != nil {
		p.pos = start
		return nil, err
	}
	if order.Uint16(b[int(n)*unitBytes:]) != 0 {
		p.pos = start
		return nil, ErrMissingTerminator
	}
	units := make([]uint16, n)
	for i := range units {
		units[i] = order.Uint16(b[i*unitBytes:])
	}
	s := string(utf16.Decode(units))
	return &s, nil
}

// WriteInterfaceToken appends the descriptor that identifies the interface a
// request is addressed to. It must be the first value in every request.
func (p *Parcel) WriteInterfaceToken(descriptor string) {
	p.WriteString16(descriptor)
}

// EnforceInterface reads the interface token and checks it against descriptor.
// On mismatch it returns an error wrapping ErrBadInterface and no further field
// should be read from p.
func (p *Parcel) EnforceInterface(descriptor string) error {
	got, err := p.ReadNullableString16()
	if err != nil {
		return &InterfaceError{Want: descriptor, Err: err}
	}
	if got == nil || *got != descriptor {
		token := "<null>"
		if got != nil {
			token = *got
		}
		return &InterfaceError{Want: descriptor, Got: token, Err: ErrBadInterface}
	}
	return nil
}
