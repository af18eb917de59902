// Package config loads mrcpd's global configuration using viper.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// configRoot wraps GlobalConfig under the YAML document's root key, the
// same wrapper-struct trick the rest of the corpus uses to keep the
// on-disk shape self-describing.
type configRoot struct {
	Mrcpd GlobalConfig `mapstructure:"mrcpd"`
}

// GlobalConfig is the top-level static configuration, mapped from the
// `mrcpd:` root key in YAML.
type GlobalConfig struct {
	Node      NodeConfig      `mapstructure:"node"`
	Agent     AgentConfig     `mapstructure:"agent"`
	Media     MediaConfig     `mapstructure:"media"`
	Resources ResourcesConfig `mapstructure:"resources"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Log       LogConfig       `mapstructure:"log"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

// NodeConfig identifies this instance within a sharded deployment.
type NodeConfig struct {
	ID   string   `mapstructure:"id"`
	Role string   `mapstructure:"role"` // "client" | "server"
	Tags []string `mapstructure:"tags"`
}

// AgentConfig configures the MRCPv2 connection agent (§4.8).
type AgentConfig struct {
	Listen            string   `mapstructure:"listen"`
	ControlSocket     string   `mapstructure:"control_socket"`
	MaxConnections    int      `mapstructure:"max_connections"`
	ShardPeers        []string `mapstructure:"shard_peers"`
	ResourceCatalogue string   `mapstructure:"resource_catalogue"`
}

// MediaConfig configures the media engine (§4.10).
type MediaConfig struct {
	FrameIntervalMS   int `mapstructure:"frame_interval_ms"`
	MaxTerminations   int `mapstructure:"max_terminations"`
	RequestQueueDepth int `mapstructure:"request_queue_depth"`
}

// ResourcesConfig bounds worker and buffer sizing.
type ResourcesConfig struct {
	MaxWorkers      int `mapstructure:"max_workers"`
	InboxCapacity   int `mapstructure:"inbox_capacity"`
	ConnectionQueue int `mapstructure:"connection_queue"`
}

// MetricsConfig configures the prometheus exporter.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// LogConfig configures the structured slog logger.
type LogConfig struct {
	Level  string          `mapstructure:"level"`
	Format string          `mapstructure:"format"` // "json" | "text"
	File   LogFileConfig   `mapstructure:"file"`
}

// LogFileConfig configures the lumberjack rotating file sink.
type LogFileConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// TracingConfig configures SkyWalking span emission.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
	OAPAddress  string `mapstructure:"oap_address"`
}

// Load reads path, applies environment overrides and defaults, and
// validates the result.
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("mrcpd: config: read %s: %w", path, err)
	}

	// "mrcpd." key prefix naturally maps to MRCPD_ in env vars via the
	// key replacer (e.g. "mrcpd.log.level" -> MRCPD_LOG_LEVEL).
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("mrcpd: config: unmarshal: %w", err)
	}
	cfg := root.Mrcpd

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("mrcpd: config: validate: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mrcpd.node.role", "server")

	v.SetDefault("mrcpd.agent.listen", ":1544")
	v.SetDefault("mrcpd.agent.control_socket", "127.0.0.1:17490")
	v.SetDefault("mrcpd.agent.max_connections", 1024)

	v.SetDefault("mrcpd.media.frame_interval_ms", 10)
	v.SetDefault("mrcpd.media.max_terminations", 8)
	v.SetDefault("mrcpd.media.request_queue_depth", 256)

	v.SetDefault("mrcpd.resources.max_workers", 0)
	v.SetDefault("mrcpd.resources.inbox_capacity", 64)
	v.SetDefault("mrcpd.resources.connection_queue", 128)

	v.SetDefault("mrcpd.metrics.enabled", true)
	v.SetDefault("mrcpd.metrics.listen", ":9090")
	v.SetDefault("mrcpd.metrics.path", "/metrics")

	v.SetDefault("mrcpd.log.level", "info")
	v.SetDefault("mrcpd.log.format", "json")
	v.SetDefault("mrcpd.log.file.enabled", false)
	v.SetDefault("mrcpd.log.file.path", "/var/log/mrcpd/mrcpd.log")
	v.SetDefault("mrcpd.log.file.max_size_mb", 100)
	v.SetDefault("mrcpd.log.file.max_age_days", 30)
	v.SetDefault("mrcpd.log.file.max_backups", 5)
	v.SetDefault("mrcpd.log.file.compress", true)

	v.SetDefault("mrcpd.tracing.enabled", false)
	v.SetDefault("mrcpd.tracing.service_name", "mrcpd")
}

// ValidateAndApplyDefaults fails fast on a malformed config: an
// invalid log level/format, or a non-positive bound that would make
// the media engine or connection agent meaningless.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("mrcpd: config: invalid log level %q (must be debug/info/warn/error)", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return fmt.Errorf("mrcpd: config: invalid log format %q (must be json/text)", cfg.Log.Format)
	}
	if cfg.Node.Role != "client" && cfg.Node.Role != "server" {
		return fmt.Errorf("mrcpd: config: invalid node role %q (must be client/server)", cfg.Node.Role)
	}
	if cfg.Media.MaxTerminations <= 0 {
		return fmt.Errorf("mrcpd: config: media.max_terminations must be positive, got %d", cfg.Media.MaxTerminations)
	}
	if cfg.Media.FrameIntervalMS <= 0 {
		return fmt.Errorf("mrcpd: config: media.frame_interval_ms must be positive, got %d", cfg.Media.FrameIntervalMS)
	}
	if cfg.Agent.MaxConnections <= 0 {
		return fmt.Errorf("mrcpd: config: agent.max_connections must be positive, got %d", cfg.Agent.MaxConnections)
	}
	return nil
}
