package config

import (
	"strings"
	"time"

	"github.com/marmos91/rdmnetcore/internal/bytesize"
)

// GetDefaultConfig returns a Config populated entirely with defaults,
// suitable as a starting point with no config file present.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills in any unspecified fields with sensible defaults.
// Explicit values already set (non-zero) are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyMetricsDefaults(&cfg.Metrics)
	applyControlAPIDefaults(&cfg.ControlAPI)
	applyNetworkDefaults(&cfg.Network)
	applyLLRPDefaults(&cfg.LLRP)
	applyConnectionDefaults(&cfg.Connection)
	applyCapsDefaults(&cfg.Caps)
	applyScopeDefaults(cfg.Scopes)

	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []ScopeConfig{{ID: "default"}}
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "rdmnetcore"
	}
	if cfg.ServiceVersion == "" {
		cfg.ServiceVersion = "dev"
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = 9090
	}
}

func applyControlAPIDefaults(cfg *ControlAPIConfig) {
	if cfg.Address == "" {
		cfg.Address = "localhost:8900"
	}
}

// applyNetworkDefaults is a no-op: nil/empty Interfaces means "all
// multicast-capable interfaces", resolved by internal/netif at bind time.
func applyNetworkDefaults(cfg *NetworkConfig) {}

// LLRP timing defaults, per spec.md §4.5/§4.6 and Open Questions 2 and 4.
const (
	defaultLLRPProbeTimeoutMs        = 2000
	defaultLLRPCleanProbesToFinish   = 3
	defaultLLRPKnownUIDSize          = 200
	defaultLLRPReplyBackoffMaxMs     = 1500
)

func applyLLRPDefaults(cfg *LLRPConfig) {
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = msDuration(defaultLLRPProbeTimeoutMs)
	}
	if cfg.CleanProbesToFinish == 0 {
		cfg.CleanProbesToFinish = defaultLLRPCleanProbesToFinish
	}
	if cfg.KnownUIDSize == 0 {
		cfg.KnownUIDSize = defaultLLRPKnownUIDSize
	}
	if cfg.ReplyBackoffMax == 0 {
		cfg.ReplyBackoffMax = msDuration(defaultLLRPReplyBackoffMaxMs)
	}
}

// Connection timing defaults, per spec.md §5 "Cancellation & timeouts":
// connect-reply timeout is 5s, heartbeat timeout is 15s unanswered.
const (
	defaultConnectReplyTimeoutMs = 5000
	defaultHeartbeatTimeoutMs    = 15000
	defaultHeartbeatIntervalMs   = 5000
	defaultBackoffInitialMs      = 250
	defaultBackoffMaxMs          = 30000
)

func applyConnectionDefaults(cfg *ConnectionConfig) {
	if cfg.ConnectReplyTimeout == 0 {
		cfg.ConnectReplyTimeout = msDuration(defaultConnectReplyTimeoutMs)
	}
	if cfg.HeartbeatTimeout == 0 {
		cfg.HeartbeatTimeout = msDuration(defaultHeartbeatTimeoutMs)
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = msDuration(defaultHeartbeatIntervalMs)
	}
	if cfg.BackoffInitial == 0 {
		cfg.BackoffInitial = msDuration(defaultBackoffInitialMs)
	}
	if cfg.BackoffMax == 0 {
		cfg.BackoffMax = msDuration(defaultBackoffMaxMs)
	}
}

func applyCapsDefaults(cfg *ResourceCaps) {
	if cfg.MaxConnectionsPerClient == 0 {
		cfg.MaxConnectionsPerClient = 16
	}
	if cfg.MaxScopesPerClient == 0 {
		cfg.MaxScopesPerClient = 16
	}
	if cfg.MaxRespondersPerEndpoint == 0 {
		cfg.MaxRespondersPerEndpoint = 4096
	}
	if cfg.MaxPendingCommandsPerScope == 0 {
		cfg.MaxPendingCommandsPerScope = 256
	}
	if cfg.MaxKnownUIDsPerProbe == 0 {
		cfg.MaxKnownUIDsPerProbe = defaultLLRPKnownUIDSize
	}
	if cfg.MaxReassembledMessageSize == 0 {
		cfg.MaxReassembledMessageSize = defaultMaxReassembledMessageSize
	}
}

// defaultMaxReassembledMessageSize bounds a single ACK_OVERFLOW chain's
// accumulated parameter data. RDM parameter data is capped at 231 bytes
// per message by the wire format, so a chain of a few hundred parts
// already represents a pathological sender; 64KiB gives generous
// headroom above any legitimate reassembly.
const defaultMaxReassembledMessageSize = 64 * bytesize.KiB

func applyScopeDefaults(scopes []ScopeConfig) {
	for i := range scopes {
		if scopes[i].ID == "" {
			scopes[i].ID = "default"
		}
	}
}

func msDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
