// Package config provides YAML configuration loading for the connection
// pool registry.
//
// It reads two sources, both driven by environment variables:
//
//	CONNPOOL_ENDPOINTS_DIRECTORY_PATH → Endpoints map
//	CONNPOOL_POOL_CONFIG_PATH         → Pool tuning knobs
package config

import "time"

// EndpointConfig is the fully-resolved configuration for a single pooled
// endpoint. Optional fields that are zero-valued in the YAML are filled
// with hard-coded fallbacks during resolution.
type EndpointConfig struct {
	// IP is the endpoint's management address (spec.md §3: the key for
	// the pool this endpoint's nodes are bound to).
	IP string

	// Port is the endpoint's UDP port (default 161, matching the SNMP
	// dialer's conventional port).
	Port int

	// PoolSize is the number of Node handles pre-created for this
	// endpoint on startup (default 4).
	PoolSize int

	// HealthInterval is how often the health checker sweeps this endpoint
	// and re-probes its RETRY and FAILED nodes (default 30s).
	HealthInterval time.Duration

	// DialTimeout bounds how long the dialer may take to establish one
	// connection (default 3s).
	DialTimeout time.Duration

	// Community is the SNMP community string used by the default
	// snmpconn dialer for v1/v2c endpoints.
	Community string

	// Version selects the SNMP protocol version: "1", "2c", or "3".
	Version string

	// V3 holds SNMPv3 security parameters; only consulted when Version
	// is "3".
	V3 V3Credentials
}

// V3Credentials holds a single set of SNMPv3 security parameters, mirrored
// from the teacher's device configuration schema.
type V3Credentials struct {
	Username                 string `yaml:"username"`
	AuthenticationProtocol   string `yaml:"authentication_protocol"`
	AuthenticationPassphrase string `yaml:"authentication_passphrase"`
	PrivacyProtocol          string `yaml:"privacy_protocol"`
	PrivacyPassphrase        string `yaml:"privacy_passphrase"`
}

// PoolConfig holds the tunable knobs for the registry that are reasonable
// to change without a rebuild. BucketCount and Enabled are deliberately
// NOT here — they remain Go constants (registry.BucketCount,
// registry.Enabled) per the pool's compile-time sizing contract.
type PoolConfig struct {
	// AcquireTimeout is the default TimedGet budget used by callers that
	// don't specify their own (default 5s).
	AcquireTimeout time.Duration

	// DumpInterval is how often the app's periodic dump runs (default
	// 60s). An unset or zero value is replaced by the default, so the
	// periodic dump cannot be switched off through the pool file.
	DumpInterval time.Duration

	// DumpPath is loaded from dump_path (default "/var/log/connpool/dump").
	// The app does not read it: its dump loop writes to Config.DumpWriter
	// (stdout by default), not to a rotating file.
	DumpPath string

	// MetricsListenAddr is loaded from metrics_listen_addr. connpoolctl
	// does not read it; its Prometheus /metrics endpoint is started only
	// by the -metrics.listen flag.
	MetricsListenAddr string
}

func (c *PoolConfig) withDefaults() {
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = 5 * time.Second
	}
	if c.DumpInterval == 0 {
		c.DumpInterval = 60 * time.Second
	}
	if c.DumpPath == "" {
		c.DumpPath = "/var/log/connpool/dump"
	}
}
