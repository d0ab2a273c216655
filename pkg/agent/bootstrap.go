package agent

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"

	"github.com/freitascorp/fleetmq/pkg/store"
)

// BootstrapConfig carries the subset of configuration values consulted
// when seeding a fresh store document on first run, grounded in the
// original daemon's Config::new addr/name/home defaulting.
type BootstrapConfig struct {
	Addr      string
	Name      string
	Home      string
	Interface string
	Bin       string
	Tmp       string
	Version   string
}

// Bootstrap seeds s's document with the agent-identity keys a fresh
// store won't yet have: addr (explicit, else the first IPv4 address on
// Interface, or the first non-loopback one on any interface when
// Interface is empty, defaulting to 127.0.0.1), name (explicit,
// else the system hostname), home (explicit, else $HOME), plus
// moid/arch/rc/bin/tmp/self/destinations. Existing values are left
// untouched so a restarted agent keeps its identity.
func Bootstrap(s *store.Store, cfg BootstrapConfig) error {
	if _, err := s.Get("addr"); err != nil {
		addr := cfg.Addr
		if addr == "" {
			addr = resolveIPv4(cfg.Interface)
		}
		s.Set("addr", addr)
	}

	if _, err := s.Get("name"); err != nil {
		name := cfg.Name
		if name == "" {
			name = hostname()
		}
		s.Set("name", name)
	}

	if _, err := s.Get("home"); err != nil {
		home := cfg.Home
		if home == "" {
			home = os.Getenv("HOME")
		}
		s.Set("home", home)
	}

	if _, err := s.Get("moid"); err != nil {
		s.Set("moid", cfg.Version)
	}
	if _, err := s.Get("arch"); err != nil {
		s.Set("arch", runtime.GOARCH)
	}
	if _, err := s.Get("rc"); err != nil {
		s.Set("rc", float64(0))
	}
	if _, err := s.Get("bin"); err != nil {
		bin := cfg.Bin
		if bin == "" {
			bin = "/usr/local/bin"
		}
		s.Set("bin", bin)
	}

	if _, err := s.Get("tmp"); err != nil {
		tmp := cfg.Tmp
		if tmp == "" {
			addrVal, _ := s.Get("addr")
			tmp = filepath.Join(os.TempDir(), "fleetmq-"+store.Stringify(addrVal))
			if err := os.MkdirAll(tmp, 0o755); err != nil {
				return fmt.Errorf("agent: bootstrap tmp dir: %w", err)
			}
		}
		s.Set("tmp", tmp)
	}

	if _, err := s.Get("self"); err != nil {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("agent: bootstrap self: %w", err)
		}
		s.Set("self", cwd)
	}

	if _, err := s.Get("destinations"); err != nil {
		s.Set("destinations", []any{"bin", "tmp", "home", "self"})
	}

	return s.Flush()
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return name
}

// resolveIPv4 returns the first IPv4 address of the named interface if
// one is given (loopback included, other interfaces not scanned), else
// the first non-loopback IPv4 address of any interface, and 127.0.0.1
// when nothing is found — the Go equivalent of the original's
// get_if_addrs scan.
func resolveIPv4(interfaceName string) string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "127.0.0.1"
	}
	for _, iface := range ifaces {
		if interfaceName != "" && iface.Name != interfaceName {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipNet.IP.To4()
			if ip4 == nil {
				continue
			}
			if interfaceName == "" && ip4.IsLoopback() {
				continue
			}
			return ip4.String()
		}
	}
	return "127.0.0.1"
}
