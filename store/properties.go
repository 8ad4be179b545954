package store

import (
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// Properties gives typed access to a PropertyStore. Lookups never fail: a
// missing, malformed or out-of-range value yields the caller's default, and a
// store error is logged and treated as missing.
type Properties struct {
	store PropertyStore
}

func NewProperties(s PropertyStore) *Properties {
	return &Properties{store: s}
}

// Get returns the raw value of key.
func (p *Properties) Get(key string) (string, bool) {
	v, ok, err := p.store.Get(key)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("store: property lookup failed")
		return "", false
	}
	return v, ok
}

func (p *Properties) GetString(key, def string) string {
	if v, ok := p.Get(key); ok {
		return v
	}
	return def
}

// GetInt32 parses key with base prefixes: "0x1f", "017" and "42" are all valid.
func (p *Properties) GetInt32(key string, def int32) int32 {
	v, ok := p.Get(key)
	if !ok {
		return def
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 0, 32)
	if err != nil {
		return def
	}
	return int32(n)
}

func (p *Properties) GetInt64(key string, def int64) int64 {
	v, ok := p.Get(key)
	if !ok {
		return def
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 0, 64)
	if err != nil {
		return def
	}
	return n
}

func (p *Properties) GetBool(key string, def bool) bool {
	v, ok := p.Get(key)
	if !ok {
		return def
	}
	if b, ok := ParseBool(v); ok {
		return b
	}
	return def
}

func (p *Properties) Set(key, value string) error {
	return p.store.Set(key, value)
}

func (p *Properties) Keys() ([]string, error) {
	return p.store.Keys()
}

// ParseBool accepts 1/y/yes/on/true and 0/n/no/off/false in any case.
func ParseBool(raw string) (value bool, ok bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "y", "yes", "on", "true":
		return true, true
	case "0", "n", "no", "off", "false":
		return false, true
	default:
		return false, false
	}
}
