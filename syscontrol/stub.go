package syscontrol

import (
	"context"

	"syscontrol/ipc"
	"syscontrol/parcel"
)

// Stub serves a Service to remote callers. It holds no state between calls and
// may be invoked from any number of goroutines; the Service guards its own data.
type Stub struct {
	svc Service
}

var _ ipc.Handler = (*Stub)(nil)

// NewStub returns a handler that dispatches transactions to svc.
func NewStub(svc Service) *Stub {
	return &Stub{svc: svc}
}

func (s *Stub) Descriptor() string {
	return Descriptor
}

// OnTransact decodes and executes one transaction. For every code in the opcode
// table the interface token is checked before any argument is read, and a
// request that fails to decode never reaches the Service. Codes outside the
// table go to ipc.DefaultOnTransact.
func (s *Stub) OnTransact(ctx context.Context, code uint32, data, reply *parcel.Parcel) error {
	fn, ok := stubTable[Opcode(code)]
	if !ok {
		return ipc.DefaultOnTransact(s, code, data, reply)
	}
	if err := data.EnforceInterface(Descriptor); err != nil {
		return err
	}
	return fn(s.svc, &args{p: data}, reply)
}

// stubFunc decodes the arguments of one opcode, calls the Service and encodes
// the reply. Arguments are decoded completely before the Service is called.
type stubFunc func(svc Service, in *args, reply *parcel.Parcel) error

var stubTable = map[Opcode]stubFunc{
	GetProperty: func(svc Service, in *args, reply *parcel.Parcel) error {
		key := in.string()
		if in.err != nil {
			return in.err
		}
		value, ok := svc.GetProperty(key)
		FlaggedString{Flag: FlagOf(ok), Value: value}.Encode(reply)
		return nil
	},
	GetPropertyString: func(svc Service, in *args, reply *parcel.Parcel) error {
		key, def := in.string(), in.string()
		if in.err != nil {
			return in.err
		}
		value, ok := svc.GetPropertyString(key, def)
		FlaggedString{Flag: FlagOf(ok), Value: value}.Encode(reply)
		return nil
	},
	GetPropertyInt: func(svc Service, in *args, reply *parcel.Parcel) error {
		key, def := in.string(), in.int32()
		if in.err != nil {
			return in.err
		}
		reply.WriteInt32(svc.GetPropertyInt(key, def))
		return nil
	},
	GetPropertyLong: func(svc Service, in *args, reply *parcel.Parcel) error {
		key, def := in.string(), in.int64()
		if in.err != nil {
			return in.err
		}
		reply.WriteInt64(svc.GetPropertyLong(key, def))
		return nil
	},
	GetPropertyBool: func(svc Service, in *args, reply *parcel.Parcel) error {
		key, def := in.string(), in.int32()
		if in.err != nil {
			return in.err
		}
		reply.WriteBool(svc.GetPropertyBoolean(key, def != 0))
		return nil
	},
	SetProperty: func(svc Service, in *args, reply *parcel.Parcel) error {
		key, value := in.string(), in.string()
		if in.err != nil {
			return in.err
		}
		svc.SetProperty(key, value)
		return nil
	},
	ReadSysfs: func(svc Service, in *args, reply *parcel.Parcel) error {
		path := in.string()
		if in.err != nil {
			return in.err
		}
		// the reply has no flag; a failed read goes out as ""
		value, _ := svc.ReadSysfs(path)
		reply.WriteString16(value)
		return nil
	},
	WriteSysfs: func(svc Service, in *args, reply *parcel.Parcel) error {
		path, value := in.string(), in.string()
		if in.err != nil {
			return in.err
		}
		reply.WriteBool(svc.WriteSysfs(path, value))
		return nil
	},
	GetBootEnv: func(svc Service, in *args, reply *parcel.Parcel) error {
		key := in.string()
		if in.err != nil {
			return in.err
		}
		value, ok := svc.GetBootEnv(key)
		FlaggedString{Flag: FlagOf(ok), Value: value}.Encode(reply)
		return nil
	},
	SetBootEnv: func(svc Service, in *args, reply *parcel.Parcel) error {
		key, value := in.string(), in.string()
		if in.err != nil {
			return in.err
		}
		svc.SetBootEnv(key, value)
		return nil
	},
}

// args reads arguments in order and keeps the first decode error. Once an
// error is recorded every further read returns the zero value.
type args struct {
	p   *parcel.Parcel
	err error
}

func (a *args) string() string {
	if a.err != nil {
		return ""
	}
	var s string
	s, a.err = a.p.ReadString16()
	return s
}

func (a *args) int32() int32 {
	if a.err != nil {
		return 0
	}
	var v int32
	v, a.err = a.p.ReadInt32()
	return v
}

func (a *args) int64() int64 {
	if a.err != nil {
		return 0
	}
	var v int64
	v, a.err = a.p.ReadInt64()
	return v
}
