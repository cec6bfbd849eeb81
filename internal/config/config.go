package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration. It is loaded once at
// startup and passed down as a value; nothing below the command layer
// reads ambient state.
type Config struct {
	Storage     StorageConfig     `yaml:"storage" mapstructure:"storage"`
	Consolidate ConsolidateConfig `yaml:"consolidate" mapstructure:"consolidate"`
	Stamps      StampConfig       `yaml:"stamps" mapstructure:"stamps"`
	RunLog      RunLogConfig      `yaml:"runlog" mapstructure:"runlog"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// StorageConfig locates the input and output object stores and the local
// scratch space.
type StorageConfig struct {
	InputRoot  string `yaml:"input_root" mapstructure:"input_root"`
	OutputRoot string `yaml:"output_root" mapstructure:"output_root"`
	ScratchDir string `yaml:"scratch_dir" mapstructure:"scratch_dir"`
}

// ConsolidateConfig configures the consolidation engine.
type ConsolidateConfig struct {
	Version         string  `yaml:"version" mapstructure:"version"`
	RunID           string  `yaml:"run_id" mapstructure:"run_id"`
	Concurrency     int     `yaml:"concurrency" mapstructure:"concurrency"`
	LoadCeiling     float64 `yaml:"load_ceiling" mapstructure:"load_ceiling"`
	StartIntervalMs int     `yaml:"start_interval_ms" mapstructure:"start_interval_ms"`
	Order           string  `yaml:"order" mapstructure:"order"`
	Orphans         string  `yaml:"orphans" mapstructure:"orphans"`
}

// StampConfig selects where completion stamps live: "blob" keeps markers
// in the output store (multi-machine), "local" keeps marker files in a
// directory on this machine.
type StampConfig struct {
	Backend string `yaml:"backend" mapstructure:"backend"`
	Dir     string `yaml:"dir" mapstructure:"dir"`
}

// RunLogConfig configures the local SQLite run log.
type RunLogConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CONSOLIDATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("consolidate.concurrency", 4)
	v.SetDefault("consolidate.load_ceiling", 0.0)
	v.SetDefault("consolidate.start_interval_ms", 0)
	v.SetDefault("consolidate.order", "random")
	v.SetDefault("consolidate.orphans", "ignore")
	v.SetDefault("stamps.backend", "blob")
	v.SetDefault("runlog.path", "consolidator-runs.db")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
