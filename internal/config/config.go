package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Download DownloadConfig `mapstructure:"download" yaml:"download"`
	YTDLP    YTDLPConfig    `mapstructure:"ytdlp" yaml:"ytdlp"`
	Retry    RetryConfig    `mapstructure:"retry" yaml:"retry"`
	Classify ClassifyConfig `mapstructure:"classify" yaml:"classify"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Store    StoreConfig    `mapstructure:"store" yaml:"store"`

	Port string `mapstructure:"port" yaml:"port"`
}

type DownloadConfig struct {
	OutDir           string        `mapstructure:"out_dir" yaml:"out_dir"`
	FilenameTemplate string        `mapstructure:"filename_template" yaml:"filename_template"`
	MaxConcurrent    int           `mapstructure:"max_concurrent" yaml:"max_concurrent"`
	ProgressInterval time.Duration `mapstructure:"progress_interval" yaml:"progress_interval"`
	IdleTimeout      time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	GraceTimeout     time.Duration `mapstructure:"grace_timeout" yaml:"grace_timeout"`
}

type YTDLPConfig struct {
	Binary    string   `mapstructure:"binary" yaml:"binary"`
	ExtraArgs []string `mapstructure:"extra_args" yaml:"extra_args"`
}

type RetryConfig struct {
	Auto        bool          `mapstructure:"auto" yaml:"auto"`
	MaxAuto     int           `mapstructure:"max_auto" yaml:"max_auto"`
	BackoffBase time.Duration `mapstructure:"backoff_base" yaml:"backoff_base"`
}

// ClassifyConfig overrides the built-in failure pattern tables. The phrases
// yt-dlp emits change independently of our releases, so they are config, not
// code. Empty lists keep the defaults.
type ClassifyConfig struct {
	RestrictedPatterns []string `mapstructure:"restricted_patterns" yaml:"restricted_patterns"`
	NetworkPatterns    []string `mapstructure:"network_patterns" yaml:"network_patterns"`
	FormatPatterns     []string `mapstructure:"format_patterns" yaml:"format_patterns"`
}

type LogConfig struct {
	Path          string `mapstructure:"path" yaml:"path"`
	Level         string `mapstructure:"level" yaml:"level"`
	IncludeStdout bool   `mapstructure:"include_stdout" yaml:"include_stdout"`
}

type StoreConfig struct {
	Driver      string `mapstructure:"driver" yaml:"driver"` // sqlite | postgres
	SQLitePath  string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	PostgresDSN string `mapstructure:"postgres_dsn" yaml:"postgres_dsn"`
}

func Load(path string) (*Config, error) {

	v := viper.New()

	// Set Defaults
	v.SetDefault("port", "8080")
	v.SetDefault("download.out_dir", "./downloads")
	v.SetDefault("download.filename_template", "%(title)s [%(id)s].%(ext)s")
	v.SetDefault("download.max_concurrent", 2)
	v.SetDefault("download.progress_interval", "1s")
	v.SetDefault("download.idle_timeout", "5m")
	v.SetDefault("download.grace_timeout", "10s")
	v.SetDefault("ytdlp.binary", "yt-dlp")
	v.SetDefault("retry.auto", true)
	v.SetDefault("retry.max_auto", 3)
	v.SetDefault("retry.backoff_base", "2s")
	v.SetDefault("log.path", "gograb.log")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.include_stdout", true)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "./data/gograb.db")

	// Read config file. Every setting has a workable default, so a missing
	// default config file is fine. An explicitly requested file that is
	// absent still is an error.
	explicit := path != ""
	if path == "" {
		path = "config.yaml"
	}

	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	} else if explicit {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	// Support Environment Variables
	v.SetEnvPrefix("GOGRAB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Download.OutDir == "" {
		c.Download.OutDir = "./downloads"
	}

	if c.Download.MaxConcurrent <= 0 {
		// Default to a sane value
		c.Download.MaxConcurrent = 2
	}

	if c.Download.ProgressInterval <= 0 {
		c.Download.ProgressInterval = time.Second
	}

	if c.Download.IdleTimeout <= 0 {
		c.Download.IdleTimeout = 5 * time.Minute
	}

	if c.Download.GraceTimeout <= 0 {
		c.Download.GraceTimeout = 10 * time.Second
	}

	if c.YTDLP.Binary == "" {
		c.YTDLP.Binary = "yt-dlp"
	}

	if c.Retry.MaxAuto < 0 {
		c.Retry.MaxAuto = 0
	}

	if c.Retry.BackoffBase <= 0 {
		c.Retry.BackoffBase = 2 * time.Second
	}

	switch c.Store.Driver {
	case "", "sqlite":
		c.Store.Driver = "sqlite"
	case "postgres":
		if c.Store.PostgresDSN == "" {
			return fmt.Errorf("store.driver is postgres but store.postgres_dsn is empty")
		}
	default:
		return fmt.Errorf("unknown store.driver %q (expected sqlite or postgres)", c.Store.Driver)
	}

	return nil
}
