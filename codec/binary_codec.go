package codec

import (
	"encoding/binary"
	"errors"
	"math"

	"syscontrol/message"
)

var (
	ErrNotTransaction = errors.New("codec: v must be *message.Transaction")
	ErrTruncated      = errors.New("codec: truncated body")
	ErrFieldTooLarge  = errors.New("codec: field too large")
)

// BinaryCodec lays a Transaction out as length-prefixed fields, big-endian:
//
//	service len u16 | service | code u32 | status i32 | error len u16 | error | data len u32 | data
type BinaryCodec struct{}

func (c *BinaryCodec) Encode(v any) ([]byte, error) {
	msg, ok := v.(*message.Transaction)
	if !ok {
		return nil, ErrNotTransaction
	}
	if len(msg.Service) > math.MaxUint16 || len(msg.Error) > math.MaxUint16 || uint64(len(msg.Data)) > math.MaxUint32 {
		return nil, ErrFieldTooLarge
	}

	total := 2 + len(msg.Service) + 4 + 4 + 2 + len(msg.Error) + 4 + len(msg.Data)
	buf := make([]byte, 0, total)

	buf = binary.BigEndian.AppendUint16(buf, uint16(len(msg.Service)))
	buf = append(buf, msg.Service...)
	buf = binary.BigEndian.AppendUint32(buf, msg.Code)
	buf = binary.BigEndian.AppendUint32(buf, uint32(msg.Status))
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(msg.Error)))
	buf = append(buf, msg.Error...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(msg.Data)))
	buf = append(buf, msg.Data...)
	return buf, nil
}

func (c *BinaryCodec) Decode(data []byte, v any) error {
	msg, ok := v.(*message.Transaction)
	if !ok {
		return ErrNotTransaction
	}

	r := reader{buf: data}
	service := r.bytes(int(r.uint16()))
	code := r.uint32()
	status := r.uint32()
	errText := r.bytes(int(r.uint16()))
	payload := r.bytes(int(r.uint32()))
	if r.short {
		return ErrTruncated
	}

	msg.Service = string(service)
	msg.Code = code
	msg.Status = message.Status(int32(status))
	msg.Error = string(errText)
	msg.Data = nil
	if len(payload) > 0 {
		msg.Data = make([]byte, len(payload))
		copy(msg.Data, payload)
	}
	return nil
}

func (c *BinaryCodec) Type() CodecType {
	return CodecTypeBinary
}

// reader walks a body and remembers whether it ran out of bytes.
type reader struct {
	buf   []byte
	off   int
	short bool
}

func (r *reader) bytes(n int) []byte {
	if r.short || n < 0 || n > len(r.buf)-r.off {
		r.short = true
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) uint16() uint16 {
	b := r.bytes(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *reader) uint32() uint32 {
	b := r.bytes(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}
