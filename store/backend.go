package store

import (
	"github.com/rs/zerolog/log"

	"syscontrol/syscontrol"
)

// Backend serves syscontrol.Service from a property store, a sysfs root and a
// boot environment. Failures are logged and reported through the Service's
// lossy return values.
type Backend struct {
	props *Properties
	sysfs *Sysfs   // nil: sysfs calls fail
	env   *BootEnv // nil: in-memory environment
}

var _ syscontrol.Service = (*Backend)(nil)

func NewBackend(props PropertyStore, sysfs *Sysfs, env *BootEnv) *Backend {
	if props == nil {
		props = NewMemoryStore(nil)
	}
	if env == nil {
		env = NewMemoryBootEnv(nil)
	}
	return &Backend{props: NewProperties(props), sysfs: sysfs, env: env}
}

func (b *Backend) Properties() *Properties { return b.props }

func (b *Backend) BootEnv() *BootEnv { return b.env }

func (b *Backend) GetProperty(key string) (string, bool) {
	return b.props.Get(key)
}

// GetPropertyString succeeds with def when key is unset.
func (b *Backend) GetPropertyString(key, def string) (string, bool) {
	return b.props.GetString(key, def), true
}

func (b *Backend) GetPropertyInt(key string, def int32) int32 {
	return b.props.GetInt32(key, def)
}

func (b *Backend) GetPropertyLong(key string, def int64) int64 {
	return b.props.GetInt64(key, def)
}

func (b *Backend) GetPropertyBoolean(key string, def bool) bool {
	return b.props.GetBool(key, def)
}

func (b *Backend) SetProperty(key, value string) {
	if err := b.props.Set(key, value); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("store: set property")
	}
}

func (b *Backend) ReadSysfs(path string) (string, bool) {
	if b.sysfs == nil {
		log.Debug().Str("path", path).Err(ErrNoSysfs).Msg("store: read sysfs")
		return "", false
	}
	v, err := b.sysfs.Read(path)
	if err != nil {
		log.Debug().Str("path", path).Err(err).Msg("store: read sysfs")
		return "", false
	}
	return v, true
}

func (b *Backend) WriteSysfs(path, value string) bool {
	if b.sysfs == nil {
		log.Debug().Str("path", path).Err(ErrNoSysfs).Msg("store: write sysfs")
		return false
	}
	if err := b.sysfs.Write(path, value); err != nil {
		log.Warn().Str("path", path).Err(err).Msg("store: write sysfs")
		return false
	}
	return true
}

func (b *Backend) GetBootEnv(key string) (string, bool) {
	return b.env.Get(key)
}

func (b *Backend) SetBootEnv(key, value string) {
	if err := b.env.Set(key, value); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("store: set boot env")
	}
}
