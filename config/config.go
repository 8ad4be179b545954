// Package config loads daemon and client settings from TOML files. Keys that a
// file leaves out keep their defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"syscontrol/codec"
	"syscontrol/loadbalance"
)

type DaemonConfig struct {
	ListenAddr      string
	AdvertiseAddr   string // published to the registry; defaults to the listen address
	AdminListenAddr string // empty disables the admin HTTP surface
	NodeName        string

	EtcdEndpoints []string // empty disables registry publication
	RegistryTTL   int64
	Weight        int
	Version       string

	PropertyBackend string // "memory" or "etcd"
	EtcdPrefix      string
	Properties      map[string]string // initial values for the memory backend
	SysfsRoot       string
	BootEnvPath     string // empty keeps the boot env in memory

	RateLimit       float64 // requests per second, 0 disables
	RateBurst       int
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

type ClientConfig struct {
	Addrs         []string // static server list, used when EtcdEndpoints is empty
	EtcdEndpoints []string
	Balancer      string
	Codec         codec.CodecType
	PoolSize      int
	CallTimeout   time.Duration
	Retries       int
	RetryBackoff  time.Duration
}

func DefaultDaemonConfig() DaemonConfig {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "syscontrold"
	}
	return DaemonConfig{
		ListenAddr:      "127.0.0.1:7070",
		AdminListenAddr: "127.0.0.1:7071",
		NodeName:        host,
		RegistryTTL:     10,
		Weight:          1,
		PropertyBackend: "memory",
		EtcdPrefix:      "/syscontrol-props/",
		Properties:      map[string]string{},
		SysfsRoot:       "/sys",
		BootEnvPath:     "",
		RateBurst:       100,
		RequestTimeout:  5 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Addrs:        []string{"127.0.0.1:7070"},
		Balancer:     "roundrobin",
		Codec:        codec.CodecTypeBinary,
		PoolSize:     4,
		CallTimeout:  5 * time.Second,
		Retries:      2,
		RetryBackoff: 50 * time.Millisecond,
	}
}

// syscontrold.toml key mapping.
type daemonFile struct {
	Addr            string            `toml:"addr"`
	AdvertiseAddr   string            `toml:"advertise_addr"`
	AdminListenAddr string            `toml:"admin_listen_addr"`
	NodeName        string            `toml:"node_name"`
	EtcdEndpoints   []string          `toml:"etcd_endpoints"`
	RegistryTTL     int64             `toml:"registry_ttl"`
	Weight          int               `toml:"weight"`
	Version         string            `toml:"version"`
	PropertyBackend string            `toml:"property_backend"`
	EtcdPrefix      string            `toml:"etcd_prefix"`
	Properties      map[string]string `toml:"properties"`
	SysfsRoot       string            `toml:"sysfs_root"`
	BootEnvPath     string            `toml:"bootenv_path"`
	RateLimit       float64           `toml:"rate_limit"`
	RateBurst       int               `toml:"rate_burst"`
	RequestTimeout  string            `toml:"request_timeout"`
	ShutdownTimeout string            `toml:"shutdown_timeout"`
}

// syscontrol.toml key mapping.
type clientFile struct {
	Addrs         []string `toml:"addrs"`
	EtcdEndpoints []string `toml:"etcd_endpoints"`
	Balancer      string   `toml:"balancer"`
	Codec         string   `toml:"codec"`
	PoolSize      int      `toml:"pool_size"`
	CallTimeout   string   `toml:"call_timeout"`
	Retries       int      `toml:"retries"`
	RetryBackoff  string   `toml:"retry_backoff"`
}

// LoadDaemonConfig overlays the file at path onto DefaultDaemonConfig. An
// empty path returns the defaults.
func LoadDaemonConfig(path string) (DaemonConfig, error) {
	cfg := DefaultDaemonConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, cfg.Validate()
	}

	var raw daemonFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return DaemonConfig{}, fmt.Errorf("load daemon config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return DaemonConfig{}, fmt.Errorf("load daemon config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("addr") {
		cfg.ListenAddr = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("advertise_addr") {
		cfg.AdvertiseAddr = strings.TrimSpace(raw.AdvertiseAddr)
	}
	if meta.IsDefined("admin_listen_addr") {
		cfg.AdminListenAddr = strings.TrimSpace(raw.AdminListenAddr)
	}
	if meta.IsDefined("node_name") {
		cfg.NodeName = strings.TrimSpace(raw.NodeName)
	}
	if meta.IsDefined("etcd_endpoints") {
		cfg.EtcdEndpoints = trimAll(raw.EtcdEndpoints)
	}
	if meta.IsDefined("registry_ttl") {
		cfg.RegistryTTL = raw.RegistryTTL
	}
	if meta.IsDefined("weight") {
		cfg.Weight = raw.Weight
	}
	if meta.IsDefined("version") {
		cfg.Version = strings.TrimSpace(raw.Version)
	}
	if meta.IsDefined("property_backend") {
		cfg.PropertyBackend = strings.ToLower(strings.TrimSpace(raw.PropertyBackend))
	}
	if meta.IsDefined("etcd_prefix") {
		cfg.EtcdPrefix = strings.TrimSpace(raw.EtcdPrefix)
	}
	if meta.IsDefined("properties") {
		cfg.Properties = raw.Properties
	}
	if meta.IsDefined("sysfs_root") {
		cfg.SysfsRoot = strings.TrimSpace(raw.SysfsRoot)
	}
	if meta.IsDefined("bootenv_path") {
		cfg.BootEnvPath = strings.TrimSpace(raw.BootEnvPath)
	}
	if meta.IsDefined("rate_limit") {
		cfg.RateLimit = raw.RateLimit
	}
	if meta.IsDefined("rate_burst") {
		cfg.RateBurst = raw.RateBurst
	}
	if meta.IsDefined("request_timeout") {
		if cfg.RequestTimeout, err = parseDuration("request_timeout", raw.RequestTimeout); err != nil {
			return DaemonConfig{}, err
		}
	}
	if meta.IsDefined("shutdown_timeout") {
		if cfg.ShutdownTimeout, err = parseDuration("shutdown_timeout", raw.ShutdownTimeout); err != nil {
			return DaemonConfig{}, err
		}
	}

	return cfg, cfg.Validate()
}

func (cfg DaemonConfig) Validate() error {
	if cfg.ListenAddr == "" {
		return fmt.Errorf("load daemon config: addr is required")
	}
	switch cfg.PropertyBackend {
	case "memory":
	case "etcd":
		if len(cfg.EtcdEndpoints) == 0 {
			return fmt.Errorf("load daemon config: property_backend=etcd requires etcd_endpoints")
		}
	default:
		return fmt.Errorf("load daemon config: unsupported property backend %q (expected memory or etcd)", cfg.PropertyBackend)
	}
	if len(cfg.EtcdEndpoints) > 0 && cfg.RegistryTTL <= 0 {
		return fmt.Errorf("load daemon config: registry_ttl must be positive")
	}
	if cfg.RateLimit < 0 || (cfg.RateLimit > 0 && cfg.RateBurst <= 0) {
		return fmt.Errorf("load daemon config: invalid rate limit %v/%d", cfg.RateLimit, cfg.RateBurst)
	}
	return nil
}

// LoadClientConfig overlays the file at path onto DefaultClientConfig. An
// empty path returns the defaults.
func LoadClientConfig(path string) (ClientConfig, error) {
	cfg := DefaultClientConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	var raw clientFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return ClientConfig{}, fmt.Errorf("load client config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return ClientConfig{}, fmt.Errorf("load client config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("addrs") {
		cfg.Addrs = trimAll(raw.Addrs)
	}
	if meta.IsDefined("etcd_endpoints") {
		cfg.EtcdEndpoints = trimAll(raw.EtcdEndpoints)
	}
	if meta.IsDefined("balancer") {
		cfg.Balancer = strings.TrimSpace(raw.Balancer)
		if _, err := loadbalance.New(cfg.Balancer); err != nil {
			return ClientConfig{}, fmt.Errorf("load client config: %w", err)
		}
	}
	if meta.IsDefined("codec") {
		if cfg.Codec, err = codec.ParseCodecType(raw.Codec); err != nil {
			return ClientConfig{}, fmt.Errorf("load client config: %w", err)
		}
	}
	if meta.IsDefined("pool_size") {
		cfg.PoolSize = raw.PoolSize
	}
	if meta.IsDefined("call_timeout") {
		if cfg.CallTimeout, err = parseDuration("call_timeout", raw.CallTimeout); err != nil {
			return ClientConfig{}, err
		}
	}
	if meta.IsDefined("retries") {
		cfg.Retries = raw.Retries
	}
	if meta.IsDefined("retry_backoff") {
		if cfg.RetryBackoff, err = parseDuration("retry_backoff", raw.RetryBackoff); err != nil {
			return ClientConfig{}, err
		}
	}

	if len(cfg.Addrs) == 0 && len(cfg.EtcdEndpoints) == 0 {
		return ClientConfig{}, fmt.Errorf("load client config: addrs or etcd_endpoints is required")
	}
	return cfg, nil
}

func parseDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("load config: %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("load config: %s must not be negative", key)
	}
	return d, nil
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
