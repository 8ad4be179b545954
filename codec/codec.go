package codec

import (
	"fmt"
	"strings"
)

type CodecType byte

const (
	CodecTypeJSON   CodecType = 0
	CodecTypeBinary CodecType = 1
)

// Codec serializes the *message.Transaction envelope carried in a frame body.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	Type() CodecType // 0=JSON, 1=Binary
}

func GetCodec(codecType CodecType) Codec {
	if codecType == CodecTypeJSON {
		return &JSONCodec{}
	}

	return &BinaryCodec{}
}

// ParseCodecType maps a config name to a codec type. The empty name selects binary.
func ParseCodecType(name string) (CodecType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "binary":
		return CodecTypeBinary, nil
	case "json":
		return CodecTypeJSON, nil
	default:
		return 0, fmt.Errorf("codec: unknown codec %q", name)
	}
}

func (t CodecType) String() string {
	switch t {
	case CodecTypeJSON:
		return "json"
	case CodecTypeBinary:
		return "binary"
	default:
		return fmt.Sprintf("codec(%d)", byte(t))
	}
}
