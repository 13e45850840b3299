package internal

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DefaultConfigFile = "files/config.yaml"
	envPrefix         = "CLIPGRAB"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Staging   StagingConfig   `mapstructure:"staging"`
	Extractor ExtractorConfig `mapstructure:"extractor"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type ServerConfig struct {
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	MaxBodyBytes   int      `mapstructure:"max_body_bytes"`
}

type StagingConfig struct {
	Dir             string        `mapstructure:"dir"`
	Retention       time.Duration `mapstructure:"retention"`
	SweepInterval   time.Duration `mapstructure:"sweep_interval"`
	ResolveAttempts int           `mapstructure:"resolve_attempts"`
	ResolveInterval time.Duration `mapstructure:"resolve_interval"`
}

type ExtractorConfig struct {
	Binary         string        `mapstructure:"binary"`
	WholeTimeout   time.Duration `mapstructure:"whole_timeout"`
	SegmentTimeout time.Duration `mapstructure:"segment_timeout"`
	VideoBaseURL   string        `mapstructure:"video_base_url"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":5001")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.max_body_bytes", 1<<20)

	v.SetDefault("staging.dir", "./downloads")
	v.SetDefault("staging.retention", time.Hour)
	v.SetDefault("staging.sweep_interval", 5*time.Minute)
	v.SetDefault("staging.resolve_attempts", 5)
	v.SetDefault("staging.resolve_interval", 200*time.Millisecond)

	v.SetDefault("extractor.binary", "yt-dlp")
	v.SetDefault("extractor.whole_timeout", 120*time.Second)
	v.SetDefault("extractor.segment_timeout", 10*time.Minute)
	v.SetDefault("extractor.video_base_url", "https://www.youtube.com/watch?v=")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.pretty", false)
}

// LoadConfig reads defaults, then the YAML file at path, then CLIPGRAB_*
// environment variables (a local .env file is loaded first when present).
// An empty path falls back to DefaultConfigFile, which may be absent.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate rejects settings under which a staged file could be swept while
// its extraction is still running.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Staging.Dir == "" {
		errs = append(errs, errors.New("staging.dir is required"))
	}
	if c.Staging.Retention <= 0 {
		errs = append(errs, errors.New("staging.retention must be positive"))
	}
	if c.Staging.SweepInterval <= 0 {
		errs = append(errs, errors.New("staging.sweep_interval must be positive"))
	}
	if c.Extractor.WholeTimeout <= 0 || c.Extractor.SegmentTimeout <= 0 {
		errs = append(errs, errors.New("extractor timeouts must be positive"))
	}
	if c.Extractor.WholeTimeout >= c.Staging.Retention || c.Extractor.SegmentTimeout >= c.Staging.Retention {
		errs = append(errs, fmt.Errorf("staging.retention (%s) must exceed the extractor timeouts", c.Staging.Retention))
	}
	if c.Extractor.Binary == "" {
		errs = append(errs, errors.New("extractor.binary is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
