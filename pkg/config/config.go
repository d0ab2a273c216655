// Package config is the plain options table spec §1/§6 calls for: no
// code inside the agent or controller queries the environment or a
// config file directly, everything funnels through this struct. Values
// load from a YAML file (gopkg.in/yaml.v3) with environment-variable
// overlay (caarlos0/env/v11) — env wins, matching the teacher's
// layering convention.
package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// TLSConfig carries mutual-TLS material for the MQTT connection.
type TLSConfig struct {
	CAFile     string `yaml:"cafile" env:"FLEETMQ_TLS_CAFILE"`
	CertFile   string `yaml:"certfile" env:"FLEETMQ_TLS_CERTFILE"`
	KeyFile    string `yaml:"keyfile" env:"FLEETMQ_TLS_KEYFILE"`
	Passphrase string `yaml:"passphrase" env:"FLEETMQ_TLS_PASSPHRASE"`
}

// PSKConfig carries pre-shared-key material, the lighter-weight
// alternative to TLSConfig for constrained agents.
type PSKConfig struct {
	PSKFile string `yaml:"psk_file" env:"FLEETMQ_PSK_FILE"`
	Ciphers string `yaml:"ciphers" env:"FLEETMQ_PSK_CIPHERS"`
}

// AliasDef is one commands.NAME inline alias table entry (spec §4.6).
type AliasDef struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	Alias   string   `yaml:"alias"`
	Filter  string   `yaml:"filter"`
	Group   string   `yaml:"group"`
	Help    string   `yaml:"help"`
	Quiet   bool     `yaml:"quiet"`
	Stages  int      `yaml:"stages"`
}

// Config is the full recognized option set from spec §6, plus the
// ambient metrics_addr addition from the observability domain stack.
type Config struct {
	MQTTAddr        string `yaml:"mqtt_addr" env:"FLEETMQ_MQTT_ADDR" envDefault:"tcp://localhost:1883"`
	MQTTPort        int    `yaml:"mqtt_port" env:"FLEETMQ_MQTT_PORT" envDefault:"1883"`
	MQTTConnectWait int    `yaml:"mqtt_connect_wait" env:"FLEETMQ_MQTT_CONNECT_WAIT" envDefault:"5"`
	Interface       string `yaml:"interface" env:"FLEETMQ_INTERFACE"`

	Store       string `yaml:"store" env:"FLEETMQ_STORE"`
	StoreBackend string `yaml:"store_backend" env:"FLEETMQ_STORE_BACKEND" envDefault:"file"`

	LogFile  string `yaml:"log_file" env:"FLEETMQ_LOG_FILE"`
	LogLevel string `yaml:"log_level" env:"FLEETMQ_LOG_LEVEL" envDefault:"info"`

	Restricted string `yaml:"restricted" env:"FLEETMQ_RESTRICTED" envDefault:"yes"`

	Bin  string `yaml:"bin" env:"FLEETMQ_BIN"`
	Tmp  string `yaml:"tmp" env:"FLEETMQ_TMP" envDefault:"/tmp"`
	Home string `yaml:"home" env:"FLEETMQ_HOME"`

	Destinations map[string]string `yaml:"destinations"`

	AliveInterval int    `yaml:"alive_interval" env:"FLEETMQ_ALIVE_INTERVAL" envDefault:"60"`
	AliveAction   string `yaml:"alive_action" env:"FLEETMQ_ALIVE_ACTION" envDefault:"reconnect"`

	TLS TLSConfig `yaml:"tls"`
	PSK PSKConfig `yaml:"psk"`

	Commands map[string]AliasDef `yaml:"commands"`

	// MetricsAddr, if non-empty, serves Prometheus metrics on this
	// address (e.g. ":9090"); empty disables the endpoint.
	MetricsAddr string `yaml:"metrics_addr" env:"FLEETMQ_METRICS_ADDR"`

	// AuditDir, if non-empty, enables the controller's append-only audit
	// log of queries sent and stage outcomes under this directory.
	AuditDir string `yaml:"audit_dir" env:"FLEETMQ_AUDIT_DIR"`
}

// Load reads path (if it exists) as YAML, then overlays environment
// variables, matching the teacher's "file defaults, env wins" layering.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{SetDefaultsForZeroValuesOnly: true}); err != nil {
		return nil, fmt.Errorf("config: parse environment: %w", err)
	}

	return cfg, nil
}

// IsRestricted reports whether the config disallows non-read-only verbs
// for an unprivileged invocation (spec §4.6 restricted mode).
func (c *Config) IsRestricted() bool {
	return c.Restricted == "yes" || c.Restricted == "true"
}
