// Package config loads and validates the static configuration a bound
// rdmnet.Context is constructed from: logging, telemetry, network
// interfaces, LLRP timing, scope list, static broker entries and resource
// caps. Dynamic state (discovered brokers, live connections) is never
// persisted here; it lives in the Context returned by rdmnet.Init.
//
// Configuration sources, in order of precedence:
//  1. CLI flags (highest priority, applied by the caller after Load)
//  2. Environment variables (RDMNET_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
//
// Environment variables override only keys present in the loaded file.
// When no configuration file is found, Load returns the defaults and
// does not consult the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/marmos91/rdmnetcore/internal/bytesize"
)

// Config is the top-level configuration for an rdmnet.Context.
type Config struct {
	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing.
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// Metrics contains Prometheus metrics server configuration.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// ControlAPI contains the optional gRPC introspection server
	// configuration.
	ControlAPI ControlAPIConfig `mapstructure:"control_api" yaml:"control_api"`

	// Network lists the network interfaces the stack binds LLRP and
	// broker-discovery multicast sockets to.
	Network NetworkConfig `mapstructure:"network" yaml:"network"`

	// LLRP contains the timing constants that drive the Manager and
	// Target discovery engines.
	LLRP LLRPConfig `mapstructure:"llrp" yaml:"llrp"`

	// Connection contains broker connection state machine timing.
	Connection ConnectionConfig `mapstructure:"connection" yaml:"connection"`

	// Scopes lists the RDMnet scopes this Context monitors at startup.
	Scopes []ScopeConfig `mapstructure:"scopes" yaml:"scopes"`

	// Caps bounds per-client/per-scope resource allocation (spec.md §5
	// "Resource caps").
	Caps ResourceCaps `mapstructure:"caps" yaml:"caps"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive).
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format: text or json.
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written: stdout, stderr, or a
	// file path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
type TelemetryConfig struct {
	Enabled        bool    `mapstructure:"enabled" yaml:"enabled"`
	Endpoint       string  `mapstructure:"endpoint" yaml:"endpoint"`
	Insecure       bool    `mapstructure:"insecure" yaml:"insecure"`
	SampleRate     float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`
	ServiceName    string  `mapstructure:"service_name" yaml:"service_name"`
	ServiceVersion string  `mapstructure:"service_version" yaml:"service_version"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// ControlAPIConfig configures the optional gRPC introspection server.
type ControlAPIConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Address string `mapstructure:"address" yaml:"address"`
}

// NetworkConfig selects which host interfaces the stack participates on.
type NetworkConfig struct {
	// Interfaces lists interface names to bind to (e.g. "eth0"). An
	// empty list means "all multicast-capable interfaces".
	Interfaces []string `mapstructure:"interfaces" yaml:"interfaces,omitempty"`

	// EnableIPv6 controls whether IPv6 multicast groups are joined
	// alongside IPv4.
	EnableIPv6 bool `mapstructure:"enable_ipv6" yaml:"enable_ipv6"`
}

// LLRPConfig holds the timing constants of the LLRP Manager and Target
// engines (spec.md §4.5, §4.6).
type LLRPConfig struct {
	// ProbeTimeout is how long a Manager waits for probe-replies after
	// sending a probe-request before treating the range as clean
	// (spec.md §4.5: LLRP_TIMEOUT ~ 2s).
	ProbeTimeout time.Duration `mapstructure:"probe_timeout" validate:"required,gt=0" yaml:"probe_timeout"`

	// CleanProbesToFinish is the number of consecutive clean probes
	// (no replies) before discovery is declared finished for a range.
	CleanProbesToFinish int `mapstructure:"clean_probes_to_finish" validate:"required,gt=0" yaml:"clean_probes_to_finish"`

	// KnownUIDSize bounds the Known-UID suppression list per
	// probe-request; beyond this the list is fragmented across
	// multiple probe-requests, never truncated (spec.md Open
	// Question 2).
	KnownUIDSize int `mapstructure:"known_uid_size" validate:"required,gt=0" yaml:"known_uid_size"`

	// ReplyBackoffMax bounds the Target's randomized probe-reply
	// back-off window (spec.md Open Question 4; value must be
	// checked against the ratified E1.33 text).
	ReplyBackoffMax time.Duration `mapstructure:"reply_backoff_max" validate:"required,gt=0" yaml:"reply_backoff_max"`
}

// ConnectionConfig holds broker connection state machine timing
// (spec.md §4.4, §5 "Cancellation & timeouts").
type ConnectionConfig struct {
	// ConnectReplyTimeout bounds how long the client waits for a
	// connect-reply after sending client-connect.
	ConnectReplyTimeout time.Duration `mapstructure:"connect_reply_timeout" validate:"required,gt=0" yaml:"connect_reply_timeout"`

	// HeartbeatTimeout is how long an unanswered heartbeat is
	// tolerated before the connection is torn down.
	HeartbeatTimeout time.Duration `mapstructure:"heartbeat_timeout" validate:"required,gt=0" yaml:"heartbeat_timeout"`

	// HeartbeatInterval is how often a NULL (heartbeat) broker PDU is
	// sent on an idle connection.
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval" validate:"required,gt=0" yaml:"heartbeat_interval"`

	// BackoffInitial and BackoffMax bound the exponential back-off
	// applied between reconnect attempts.
	BackoffInitial time.Duration `mapstructure:"backoff_initial" validate:"required,gt=0" yaml:"backoff_initial"`
	BackoffMax     time.Duration `mapstructure:"backoff_max" validate:"required,gt=0" yaml:"backoff_max"`
}

// ScopeConfig describes one RDMnet scope to monitor at startup.
type ScopeConfig struct {
	// ID is the scope string (default: "default").
	ID string `mapstructure:"id" validate:"required" yaml:"id"`

	// StaticBrokerAddr, when non-empty, skips discovery entirely and
	// connects directly (spec.md §4.4: "if a static broker is
	// configured, skip to Connecting").
	StaticBrokerAddr string `mapstructure:"static_broker_addr" yaml:"static_broker_addr,omitempty"`
}

// ResourceCaps bounds per-client/per-scope resource allocation so the
// library never allocates unboundedly in response to network input
// (spec.md §5 "Resource caps").
type ResourceCaps struct {
	MaxConnectionsPerClient int `mapstructure:"max_connections_per_client" validate:"required,gt=0" yaml:"max_connections_per_client"`
	MaxScopesPerClient      int `mapstructure:"max_scopes_per_client" validate:"required,gt=0" yaml:"max_scopes_per_client"`
	MaxRespondersPerEndpoint int `mapstructure:"max_responders_per_endpoint" validate:"required,gt=0" yaml:"max_responders_per_endpoint"`
	MaxPendingCommandsPerScope int `mapstructure:"max_pending_commands_per_scope" validate:"required,gt=0" yaml:"max_pending_commands_per_scope"`
	MaxKnownUIDsPerProbe    int `mapstructure:"max_known_uids_per_probe" validate:"required,gt=0" yaml:"max_known_uids_per_probe"`

	// MaxReassembledMessageSize bounds the total parameter-data size an
	// ACK_OVERFLOW chain may accumulate before the session abandons it
	// and NACKs rather than keep concatenating attacker- or
	// malfunction-supplied fragments without bound. Accepts
	// human-readable forms like "64KiB" or "1Mi" as well as a plain
	// byte count.
	MaxReassembledMessageSize bytesize.ByteSize `mapstructure:"max_reassembled_message_size" validate:"required,gt=0" yaml:"max_reassembled_message_size"`
}

// Load loads configuration from file, environment, and defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	if !found {
		return GetDefaultConfig(), nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// SaveConfig saves the configuration to the given path in YAML format.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

var structValidator = validator.New()

// Validate runs struct-tag validation over cfg.
func Validate(cfg *Config) error {
	if err := structValidator.Struct(cfg); err != nil {
		return err
	}
	for i := range cfg.Scopes {
		if err := structValidator.Struct(&cfg.Scopes[i]); err != nil {
			return fmt.Errorf("scopes[%d]: %w", i, err)
		}
	}
	return nil
}

// setupViper configures environment variable and config file search
// behavior.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("RDMNET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}

	configDir := getConfigDir()
	v.AddConfigPath(configDir)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

// readConfigFile reads the configuration file if present. A missing file
// is not an error: Load falls back to defaults.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// configDecodeHooks composes the custom mapstructure decode hooks this
// config needs: time.Duration and bytesize.ByteSize parsing from
// human-readable strings.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(durationDecodeHook(), byteSizeDecodeHook())
}

func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory, preferring
// XDG_CONFIG_HOME and falling back to ~/.config, then ".".
func getConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "rdmnetcore")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "rdmnetcore")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists reports whether a config file exists at the
// default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}
