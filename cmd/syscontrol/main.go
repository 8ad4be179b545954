// Command syscontrol calls a syscontrold over TCP.
//
//	syscontrol [-config path] [-addr host:port] <command> [args]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"syscontrol/client"
	"syscontrol/config"
	"syscontrol/ipc"
	"syscontrol/loadbalance"
	"syscontrol/middleware"
	"syscontrol/observability"
	"syscontrol/registry"
	"syscontrol/syscontrol"
)

// errFailed marks a call that completed but reported failure; the CLI exits 1
// without printing an error message.
var errFailed = errors.New("call failed")

type command struct {
	args  []string
	usage string
	run   func(p *syscontrol.Proxy, remote ipc.Remote, args []string, out io.Writer) error
}

var commands = map[string]command{
	"getprop": {[]string{"key"}, "print a property", func(p *syscontrol.Proxy, _ ipc.Remote, a []string, out io.Writer) error {
		v, ok := p.GetProperty(a[0])
		return printValue(out, v, ok)
	}},
	"getpropdef": {[]string{"key", "default"}, "print a property or the default", func(p *syscontrol.Proxy, _ ipc.Remote, a []string, out io.Writer) error {
		v, ok := p.GetPropertyString(a[0], a[1])
		return printValue(out, v, ok)
	}},
	"getint": {[]string{"key", "default"}, "print a property as int32", func(p *syscontrol.Proxy, _ ipc.Remote, a []string, out io.Writer) error {
		def, err := strconv.ParseInt(a[1], 0, 32)
		if err != nil {
			return fmt.Errorf("default: %w", err)
		}
		fmt.Fprintln(out, p.GetPropertyInt(a[0], int32(def)))
		return nil
	}},
	"getlong": {[]string{"key", "default"}, "print a property as int64", func(p *syscontrol.Proxy, _ ipc.Remote, a []string, out io.Writer) error {
		def, err := strconv.ParseInt(a[1], 0, 64)
		if err != nil {
			return fmt.Errorf("default: %w", err)
		}
		fmt.Fprintln(out, p.GetPropertyLong(a[0], def))
		return nil
	}},
	"getbool": {[]string{"key", "default"}, "print a property as bool", func(p *syscontrol.Proxy, _ ipc.Remote, a []string, out io.Writer) error {
		def, err := strconv.ParseBool(a[1])
		if err != nil {
			return fmt.Errorf("default: %w", err)
		}
		fmt.Fprintln(out, p.GetPropertyBoolean(a[0], def))
		return nil
	}},
	"setprop": {[]string{"key", "value"}, "set a property", func(p *syscontrol.Proxy, _ ipc.Remote, a []string, _ io.Writer) error {
		p.SetProperty(a[0], a[1])
		return nil
	}},
	"readsys": {[]string{"path"}, "print a sysfs node", func(p *syscontrol.Proxy, _ ipc.Remote, a []string, out io.Writer) error {
		v, ok := p.ReadSysfs(a[0])
		return printValue(out, v, ok)
	}},
	"writesys": {[]string{"path", "value"}, "write a sysfs node", func(p *syscontrol.Proxy, _ ipc.Remote, a []string, out io.Writer) error {
		ok := p.WriteSysfs(a[0], a[1])
		fmt.Fprintln(out, ok)
		if !ok {
			return errFailed
		}
		return nil
	}},
	"getenv": {[]string{"key"}, "print a boot env variable", func(p *syscontrol.Proxy, _ ipc.Remote, a []string, out io.Writer) error {
		v, ok := p.GetBootEnv(a[0])
		return printValue(out, v, ok)
	}},
	"setenv": {[]string{"key", "value"}, "set a boot env variable", func(p *syscontrol.Proxy, _ ipc.Remote, a []string, _ io.Writer) error {
		p.SetBootEnv(a[0], a[1])
		return nil
	}},
	"ping": {nil, "check that the service answers", func(_ *syscontrol.Proxy, r ipc.Remote, _ []string, out io.Writer) error {
		start := time.Now()
		if err := ipc.Ping(context.Background(), r); err != nil {
			return err
		}
		fmt.Fprintf(out, "ok %s\n", time.Since(start).Round(time.Microsecond))
		return nil
	}},
}

func printValue(out io.Writer, value string, ok bool) error {
	if !ok {
		return errFailed
	}
	fmt.Fprintln(out, value)
	return nil
}

// execute runs one command line against remote.
func execute(remote ipc.Remote, args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("missing command")
	}
	cmd, ok := commands[args[0]]
	if !ok {
		return fmt.Errorf("unknown command %q", args[0])
	}
	if len(args)-1 != len(cmd.args) {
		return fmt.Errorf("usage: %s %s", args[0], strings.Join(cmd.args, " "))
	}
	return cmd.run(syscontrol.NewProxy(remote), remote, args[1:], out)
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: syscontrol [-config path] [-addr host:port] <command> [args]\n\ncommands:\n")
	for _, name := range []string{"getprop", "getpropdef", "getint", "getlong", "getbool", "setprop", "readsys", "writesys", "getenv", "setenv", "ping"} {
		cmd := commands[name]
		fmt.Fprintf(os.Stderr, "  %-28s %s\n", strings.TrimSpace(name+" "+strings.Join(cmd.args, " ")), cmd.usage)
	}
	flag.PrintDefaults()
}

func main() {
	configPath := flag.String("config", "", "path to syscontrol.toml (defaults built in)")
	addr := flag.String("addr", "", "server address, overrides the config")
	flag.Usage = usage
	flag.Parse()

	if os.Getenv(observability.EnvLogLevel) == "" {
		os.Setenv(observability.EnvLogLevel, "warn")
	}
	observability.ConfigureRuntime()

	cfg, err := config.LoadClientConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "syscontrol: %v\n", err)
		os.Exit(2)
	}
	if *addr != "" {
		cfg.Addrs = []string{*addr}
		cfg.EtcdEndpoints = nil
	}

	c, closeReg, err := newClient(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "syscontrol: %v\n", err)
		os.Exit(2)
	}

	err = execute(c.Remote(syscontrol.Descriptor), flag.Args(), os.Stdout)
	c.Close()
	closeReg()
	switch {
	case err == nil:
	case errors.Is(err, errFailed):
		os.Exit(1)
	default:
		fmt.Fprintf(os.Stderr, "syscontrol: %v\n", err)
		os.Exit(1)
	}
}

func newClient(cfg config.ClientConfig) (*client.Client, func(), error) {
	var reg registry.Registry
	closeReg := func() {}
	if len(cfg.EtcdEndpoints) > 0 {
		etcdReg, err := registry.NewEtcdRegistry(cfg.EtcdEndpoints)
		if err != nil {
			return nil, nil, err
		}
		reg = etcdReg
		closeReg = func() { etcdReg.Close() }
	} else {
		reg = registry.NewStaticRegistry(cfg.Addrs...)
	}

	bal, err := loadbalance.New(cfg.Balancer)
	if err != nil {
		closeReg()
		return nil, nil, err
	}

	mws := []middleware.Middleware{middleware.LoggingMiddleware()}
	if cfg.Retries > 0 {
		mws = append(mws, middleware.RetryMiddleware(cfg.Retries, cfg.RetryBackoff))
	}
	c, err := client.NewClient(client.Config{
		Registry:    reg,
		Balancer:    bal,
		Codec:       cfg.Codec,
		PoolSize:    cfg.PoolSize,
		CallTimeout: cfg.CallTimeout,
		Middlewares: mws,
	})
	if err != nil {
		closeReg()
		return nil, nil, err
	}
	log.Debug().Strs("addrs", cfg.Addrs).Strs("etcd", cfg.EtcdEndpoints).Str("balancer", bal.Name()).Msg("client ready")
	return c, closeReg, nil
}
