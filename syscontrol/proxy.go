package syscontrol

import (
	"context"

	"github.com/rs/zerolog/log"

	"syscontrol/ipc"
	"syscontrol/parcel"
)

// Proxy is the client side of the interface. Every method performs one
// synchronous transaction through the Remote.
//
// Methods never return errors. When the transport fails, or the reply cannot
// be decoded, each method returns its failure value:
//
//	GetProperty, GetPropertyString, GetBootEnv   "", false
//	GetPropertyInt, GetPropertyLong              -1
//	GetPropertyBoolean, WriteSysfs               false
//	ReadSysfs                                    "", false
//	SetProperty, SetBootEnv                      no signal at all
//
// -1 is also a legitimate property value; a caller cannot tell the two apart.
type Proxy struct {
	remote ipc.Remote
	ctx    context.Context
}

var _ Service = (*Proxy)(nil)

// NewProxy returns a proxy that sends through remote.
func NewProxy(remote ipc.Remote) *Proxy {
	return &Proxy{remote: remote}
}

// WithContext returns a shallow copy of p whose calls run under ctx. Cancelling
// ctx makes an in-flight call fail like any other transport failure.
func (p *Proxy) WithContext(ctx context.Context) *Proxy {
	p2 := *p
	p2.ctx = ctx
	return &p2
}

func (p *Proxy) context() context.Context {
	if p.ctx != nil {
		return p.ctx
	}
	return context.Background()
}

func newRequest() *parcel.Parcel {
	data := parcel.New()
	data.WriteInterfaceToken(Descriptor)
	return data
}

// transact sends data and returns the reply, or false if the transport failed.
// The reply must not be touched when ok is false.
func (p *Proxy) transact(op Opcode, data *parcel.Parcel) (*parcel.Parcel, bool) {
	reply, err := p.remote.Transact(p.context(), uint32(op), data)
	if err != nil {
		log.Warn().Str("op", op.String()).Err(err).Msg("syscontrol: could not contact remote")
		return nil, false
	}
	return reply, true
}

func (p *Proxy) flaggedString(op Opcode, data *parcel.Parcel) (string, bool) {
	reply, ok := p.transact(op, data)
	if !ok {
		return "", false
	}
	r, err := DecodeFlaggedString(reply)
	if err != nil {
		log.Error().Str("op", op.String()).Err(err).Msg("syscontrol: malformed reply")
		return "", false
	}
	if !r.Flag.OK() {
		log.Debug().Str("op", op.String()).Msg("syscontrol: remote reported failure")
		return "", false
	}
	return r.Value, true
}

func (p *Proxy) GetProperty(key string) (string, bool) {
	data := newRequest()
	data.WriteString16(key)
	log.Debug().Str("key", key).Msg("syscontrol: getProperty")
	return p.flaggedString(GetProperty, data)
}

func (p *Proxy) GetPropertyString(key, def string) (string, bool) {
	data := newRequest()
	data.WriteString16(key)
	data.WriteString16(def)
	log.Debug().Str("key", key).Msg("syscontrol: getPropertyString")
	return p.flaggedString(GetPropertyString, data)
}

func (p *Proxy) GetPropertyInt(key string, def int32) int32 {
	data := newRequest()
	data.WriteString16(key)
	data.WriteInt32(def)
	log.Debug().Str("key", key).Msg("syscontrol: getPropertyInt")

	reply, ok := p.transact(GetPropertyInt, data)
	if !ok {
		return -1
	}
	v, err := reply.ReadInt32()
	if err != nil {
		log.Error().Str("op", GetPropertyInt.String()).Err(err).Msg("syscontrol: malformed reply")
		return -1
	}
	return v
}

func (p *Proxy) GetPropertyLong(key string, def int64) int64 {
	data := newRequest()
	data.WriteString16(key)
	data.WriteInt64(def)
	log.Debug().Str("key", key).Msg("syscontrol: getPropertyLong")

	reply, ok := p.transact(GetPropertyLong, data)
	if !ok {
		return -1
	}
	v, err := reply.ReadInt64()
	if err != nil {
		log.Error().Str("op", GetPropertyLong.String()).Err(err).Msg("syscontrol: malformed reply")
		return -1
	}
	return v
}

func (p *Proxy) GetPropertyBoolean(key string, def bool) bool {
	data := newRequest()
	data.WriteString16(key)
	data.WriteBool(def)
	log.Debug().Str("key", key).Msg("syscontrol: getPropertyBoolean")

	reply, ok := p.transact(GetPropertyBool, data)
	if !ok {
		return false
	}
	v, err := reply.ReadBool()
	if err != nil {
		log.Error().Str("op", GetPropertyBool.String()).Err(err).Msg("syscontrol: malformed reply")
		return false
	}
	return v
}

// SetProperty is fire-and-forget: the caller cannot distinguish a write that
// was applied from one that never reached the remote.
func (p *Proxy) SetProperty(key, value string) {
	data := newRequest()
	data.WriteString16(key)
	data.WriteString16(value)
	log.Debug().Str("key", key).Str("value", value).Msg("syscontrol: setProperty")
	p.transact(SetProperty, data)
}

// ReadSysfs reports true whenever the transaction completes. The reply carries
// only the value, so an attribute the server could not read comes back as "".
func (p *Proxy) ReadSysfs(path string) (string, bool) {
	data := newRequest()
	data.WriteString16(path)
	log.Debug().Str("path", path).Msg("syscontrol: readSysfs")

	reply, ok := p.transact(ReadSysfs, data)
	if !ok {
		return "", false
	}
	v, err := reply.ReadString16()
	if err != nil {
		log.Error().Str("op", ReadSysfs.String()).Err(err).Msg("syscontrol: malformed reply")
		return "", false
	}
	return v, true
}

func (p *Proxy) WriteSysfs(path, value string) bool {
	data := newRequest()
	data.WriteString16(path)
	data.WriteString16(value)
	log.Debug().Str("path", path).Str("value", value).Msg("syscontrol: writeSysfs")

	reply, ok := p.transact(WriteSysfs, data)
	if !ok {
		return false
	}
	v, err := reply.ReadBool()
	if err != nil {
		log.Error().Str("op", WriteSysfs.String()).Err(err).Msg("syscontrol: malformed reply")
		return false
	}
	return v
}

func (p *Proxy) GetBootEnv(key string) (string, bool) {
	data := newRequest()
	data.WriteString16(key)
	log.Debug().Str("key", key).Msg("syscontrol: getBootEnv")
	return p.flaggedString(GetBootEnv, data)
}

// SetBootEnv is fire-and-forget, like SetProperty.
func (p *Proxy) SetBootEnv(key, value string) {
	data := newRequest()
	data.WriteString16(key)
	data.WriteString16(value)
	log.Debug().Str("key", key).Str("value", value).Msg("syscontrol: setBootEnv")
	p.transact(SetBootEnv, data)
}
