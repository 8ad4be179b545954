// Package protocol implements the binary frame that carries transactions over a
// byte stream.
//
// A fixed-size 14-byte header is followed by a variable-length body. The
// receiver reads the header first to learn the body length, then reads exactly
// that many bytes, so frames never run together on the stream.
//
// Frame format:
//
//	0      3  4  5  6         10        14
//	┌──────┬──┬──┬──┬─────────┬─────────┬───────────────┐
//	│magic │v │ct│mt│   seq   │ bodyLen │    body ...    │
//	│ scp  │01│  │  │ uint32  │ uint32  │ bodyLen bytes  │
//	└──────┴──┴──┴──┴─────────┴─────────┴───────────────┘
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Magic number bytes: "scp" (system control protocol).
// Lets the server reject connections that do not speak this protocol before
// it trusts any length field.
const (
	MagicNumber byte = 0x73 // 's'
	MagicByte2  byte = 0x63 // 'c'
	MagicByte3  byte = 0x70 // 'p'
	Version     byte = 0x01
	HeaderSize  int  = 14 // 3 (magic) + 1 (version) + 1 (codec) + 1 (msgType) + 4 (seq) + 4 (bodyLen)

	// MaxBodyLen bounds the allocation a peer can force with one header.
	MaxBodyLen uint32 = 16 << 20
)

// MsgType distinguishes request, response, and heartbeat frames.
type MsgType byte

const (
	MsgTypeRequest   MsgType = 0 // Client → Server transaction
	MsgTypeResponse  MsgType = 1 // Server → Client reply
	MsgTypeHeartbeat MsgType = 2 // KeepAlive probe (no body)
)

// Codec type constants, mirrored from codec package to avoid circular import.
const (
	CodecTypeJSON   byte = 0
	CodecTypeBinary byte = 1
)

var (
	ErrInvalidMagic       = errors.New("protocol: invalid magic number")
	ErrUnsupportedVersion = errors.New("protocol: unsupported version")
	ErrUnsupportedCodec   = errors.New("protocol: unsupported codec type")
	ErrUnsupportedMsgType = errors.New("protocol: unsupported message type")
	ErrBodyTooLarge       = errors.New("protocol: body too large")
)

// Header represents the fixed 14-byte frame header.
type Header struct {
	CodecType byte    // Serialization format of the body: 0=JSON, 1=Binary
	MsgType   MsgType // Request, Response, or Heartbeat
	Seq       uint32  // Sequence ID, matches a response to its request
	BodyLen   uint32  // Body length in bytes
}

// Encode writes a complete frame (header + body) to w in a single Write.
// Callers sharing a writer across goroutines must still serialize calls.
func Encode(w io.Writer, h *Header, body []byte) error {
	if uint64(len(body)) > uint64(MaxBodyLen) {
		return ErrBodyTooLarge
	}
	buf := make([]byte, HeaderSize, HeaderSize+len(body))

	copy(buf[0:3], []byte{MagicNumber, MagicByte2, MagicByte3})
	buf[3] = Version
	buf[4] = h.CodecType
	buf[5] = byte(h.MsgType)
	binary.BigEndian.PutUint32(buf[6:10], h.Seq)
	binary.BigEndian.PutUint32(buf[10:14], uint32(len(body)))
	buf = append(buf, body...)

	_, err := w.Write(buf)
	return err
}

// Decode reads a complete frame (header + body) from r.
// It validates the magic number, version, codec type, message type and body
// length before allocating the body.
func Decode(r io.Reader) (*Header, []byte, error) {
	headerBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, headerBuf); err != nil {
		return nil, nil, err
	}

	if headerBuf[0] != MagicNumber || headerBuf[1] != MagicByte2 || headerBuf[2] != MagicByte3 {
		return nil, nil, fmt.Errorf("%w: %x", ErrInvalidMagic, headerBuf[0:3])
	}
	if headerBuf[3] != Version {
		return nil, nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, headerBuf[3])
	}
	if headerBuf[4] != CodecTypeJSON && headerBuf[4] != CodecTypeBinary {
		return nil, nil, fmt.Errorf("%w: %d", ErrUnsupportedCodec, headerBuf[4])
	}
	msgType := headerBuf[5]
	if msgType != byte(MsgTypeRequest) && msgType != byte(MsgTypeResponse) && msgType != byte(MsgTypeHeartbeat) {
		return nil, nil, fmt.Errorf("%w: %d", ErrUnsupportedMsgType, msgType)
	}

	seq := binary.BigEndian.Uint32(headerBuf[6:10])
	bodyLen := binary.BigEndian.Uint32(headerBuf[10:14])
	if bodyLen > MaxBodyLen {
		return nil, nil, fmt.Errorf("%w: %d", ErrBodyTooLarge, bodyLen)
	}

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, nil, err
	}

	return &Header{
		CodecType: headerBuf[4],
		MsgType:   MsgType(msgType),
		Seq:       seq,
		BodyLen:   bodyLen,
	}, body, nil
}
