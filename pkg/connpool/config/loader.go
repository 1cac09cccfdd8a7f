package config

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/common/model"
	"gopkg.in/yaml.v3"
)

// Paths holds the directory/file locations for every configuration source.
type Paths struct {
	Endpoints string // CONNPOOL_ENDPOINTS_DIRECTORY_PATH
	PoolFile  string // CONNPOOL_POOL_CONFIG_PATH
}

// PathsFromEnv reads each path from its environment variable, falling back
// to the documented default when the variable is unset or empty.
func PathsFromEnv() Paths {
	return Paths{
		Endpoints: envOr("CONNPOOL_ENDPOINTS_DIRECTORY_PATH", "/etc/connpool/endpoints"),
		PoolFile:  envOr("CONNPOOL_POOL_CONFIG_PATH", "/etc/connpool/pool.yml"),
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// LoadedConfig is the fully parsed representation of every configuration
// source.
type LoadedConfig struct {
	// Endpoints maps each endpoint's name (its top-level YAML key) →
	// resolved EndpointConfig.
	Endpoints map[string]EndpointConfig

	// Pool holds the registry's runtime tuning knobs.
	Pool PoolConfig
}

// The raw YAML structs use model.Duration (from the Prometheus common
// library already pulled in via client_golang) rather than time.Duration
// directly: yaml.v3 decodes a bare time.Duration as its underlying int64,
// rejecting human-readable strings like "30s", whereas model.Duration
// implements UnmarshalYAML to parse them.
type rawEndpointEntry struct {
	IP             string         `yaml:"ip"`
	Port           int            `yaml:"port"`
	PoolSize       int            `yaml:"pool_size"`
	HealthInterval model.Duration `yaml:"health_interval"`
	DialTimeout    model.Duration `yaml:"dial_timeout"`
	Community      string         `yaml:"community"`
	Version        string         `yaml:"version"`
	V3             V3Credentials  `yaml:"v3_credentials"`
}

type rawPoolFile struct {
	AcquireTimeout    model.Duration `yaml:"acquire_timeout"`
	DumpInterval      model.Duration `yaml:"dump_interval"`
	DumpPath          string         `yaml:"dump_path"`
	MetricsListenAddr string         `yaml:"metrics_listen_addr"`
}

// Load reads every configuration source under paths and returns a fully
// resolved LoadedConfig. Endpoint entries that fail to resolve (e.g. a
// missing ip) are accumulated and returned together so operators see all
// problems at once; an endpoint file that cannot be decoded as YAML is
// logged and skipped. A missing endpoints directory yields an empty map
// rather than an error, matching partial-deployment tolerance.
func Load(paths Paths, logger *slog.Logger) (*LoadedConfig, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	endpoints, errs := loadEndpoints(paths.Endpoints, logger)
	if len(errs) > 0 {
		return nil, fmt.Errorf("config: %d error(s):\n  %s", len(errs), strings.Join(errs, "\n  "))
	}

	pool, err := loadPoolConfig(paths.PoolFile, logger)
	if err != nil {
		return nil, fmt.Errorf("config: load pool config: %w", err)
	}

	return &LoadedConfig{Endpoints: endpoints, Pool: pool}, nil
}

func loadEndpoints(dir string, logger *slog.Logger) (map[string]EndpointConfig, []string) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	result := make(map[string]EndpointConfig)
	files, err := yamlFiles(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return result, nil
		}
		return result, []string{fmt.Sprintf("list endpoints dir %q: %v", dir, err)}
	}

	var errs []string
	for _, path := range files {
		var raw map[string]rawEndpointEntry
		if err := decodeFile(path, &raw); err != nil {
			logger.Warn("config: skip malformed endpoint file", "file", path, "error", err.Error())
			continue
		}
		for name, entry := range raw {
			ec, err := resolveEndpoint(entry)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: endpoint %q: %v", path, name, err))
				continue
			}
			result[name] = ec
		}
		logger.Debug("config: loaded endpoint file", "file", path, "count", len(raw))
	}
	return result, errs
}

func resolveEndpoint(e rawEndpointEntry) (EndpointConfig, error) {
	if e.IP == "" {
		return EndpointConfig{}, fmt.Errorf("missing ip")
	}

	port := e.Port
	if port == 0 {
		port = 161
	}
	poolSize := e.PoolSize
	if poolSize == 0 {
		poolSize = 4
	}
	interval := time.Duration(e.HealthInterval)
	if interval == 0 {
		interval = 30 * time.Second
	}
	dialTimeout := time.Duration(e.DialTimeout)
	if dialTimeout == 0 {
		dialTimeout = 3 * time.Second
	}
	version := e.Version
	if version == "" {
		version = "2c"
	}

	return EndpointConfig{
		IP:             e.IP,
		Port:           port,
		PoolSize:       poolSize,
		HealthInterval: interval,
		DialTimeout:    dialTimeout,
		Community:      e.Community,
		Version:        version,
		V3:             e.V3,
	}, nil
}

func loadPoolConfig(path string, logger *slog.Logger) (PoolConfig, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	var pc PoolConfig
	var raw rawPoolFile
	if err := decodeFile(path, &raw); err != nil {
		if os.IsNotExist(err) {
			pc.withDefaults()
			return pc, nil
		}
		return pc, err
	}
	pc = PoolConfig{
		AcquireTimeout:    time.Duration(raw.AcquireTimeout),
		DumpInterval:      time.Duration(raw.DumpInterval),
		DumpPath:          raw.DumpPath,
		MetricsListenAddr: raw.MetricsListenAddr,
	}
	pc.withDefaults()
	logger.Debug("config: loaded pool config", "file", path)
	return pc, nil
}

// yamlFiles returns all *.yml / *.yaml files under dir, sorted by path.
func yamlFiles(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(p))
		if ext == ".yml" || ext == ".yaml" {
			paths = append(paths, p)
		}
		return nil
	})
	return paths, err
}

// decodeFile opens path and unmarshals the YAML content into out.
func decodeFile(path string, out interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(false)
	return dec.Decode(out)
}
