package syscontrol

import "fmt"

// Descriptor is the interface token written first in every request.
const Descriptor = "droidlogic.ISystemControlService"

// Opcode selects the operation a request invokes.
//
// The values are a wire contract with the peer. Append new operations at the
// end; never renumber or reuse a retired value.
type Opcode uint32

const (
	GetProperty       Opcode = 1
	GetPropertyString Opcode = 2
	GetPropertyInt    Opcode = 3
	GetPropertyLong   Opcode = 4
	GetPropertyBool   Opcode = 5
	SetProperty       Opcode = 6
	ReadSysfs         Opcode = 7
	WriteSysfs        Opcode = 8
	GetBootEnv        Opcode = 9
	SetBootEnv        Opcode = 10

	opcodeEnd // keep last
)

var opcodeNames = map[Opcode]string{
	GetProperty:       "GET_PROPERTY",
	GetPropertyString: "GET_PROPERTY_STRING",
	GetPropertyInt:    "GET_PROPERTY_INT",
	GetPropertyLong:   "GET_PROPERTY_LONG",
	GetPropertyBool:   "GET_PROPERTY_BOOL",
	SetProperty:       "SET_PROPERTY",
	ReadSysfs:         "READ_SYSFS",
	WriteSysfs:        "WRITE_SYSFS",
	GetBootEnv:        "GET_BOOT_ENV",
	SetBootEnv:        "SET_BOOT_ENV",
}

func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("OPCODE(%d)", uint32(op))
}

// Valid reports whether op belongs to the service's opcode table.
func (op Opcode) Valid() bool {
	return op >= GetProperty && op < opcodeEnd
}

// Opcodes returns every opcode in ascending order.
func Opcodes() []Opcode {
	ops := make([]Opcode, 0, opcodeEnd-GetProperty)
	for op := GetProperty; op < opcodeEnd; op++ {
		ops = append(ops, op)
	}
	return ops
}
