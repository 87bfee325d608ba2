package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
	"github.com/weberc2/easyfs/pkg/efs"
	"gopkg.in/yaml.v2"
)

const (
	EnvVarPrefix = "EFS"
	appName      = "efs"
)

type Config struct {
	Image             string `envconfig:"EFS_IMAGE"               yaml:"image"`
	TotalBlocks       uint32 `envconfig:"EFS_TOTAL_BLOCKS"        yaml:"totalBlocks"`
	InodeBitmapBlocks uint32 `envconfig:"EFS_INODE_BITMAP_BLOCKS" yaml:"inodeBitmapBlocks"`
	CacheCapacity     int    `envconfig:"EFS_CACHE_CAPACITY"      yaml:"cacheCapacity"`
	OffsetBlocks      uint32 `envconfig:"EFS_OFFSET_BLOCKS"       yaml:"offsetBlocks"`
	LogLevel          string `envconfig:"EFS_LOG_LEVEL"           yaml:"logLevel"`
	Addr              string `envconfig:"EFS_ADDR"                yaml:"addr"`
	PasswordHash      string `envconfig:"EFS_PASSWORD_HASH"       yaml:"passwordHash"`
	Bucket            string `envconfig:"EFS_BUCKET"              yaml:"bucket"`
	Prefix            string `envconfig:"EFS_PREFIX"              yaml:"prefix"`
}

// Defaults are applied before the config file so that both the file and
// the environment can override them.
func Defaults() Config {
	return Config{
		TotalBlocks:       32768,
		InodeBitmapBlocks: 1,
		CacheCapacity:     16,
		LogLevel:          "info",
		Addr:              "127.0.0.1:8080",
	}
}

// Load reads the YAML file at `$EFS_CONFIG_FILE` (or
// `~/.config/efs.yaml`), if it exists, and then applies environment
// overrides.
func Load() (*Config, error) {
	configFile := os.Getenv(EnvVarPrefix + "_CONFIG_FILE")
	if configFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("locating config file: %w", err)
		}
		configFile = filepath.Join(home, ".config", appName+".yaml")
	}

	c := Defaults()
	data, err := os.ReadFile(configFile)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	} else if err := yaml.UnmarshalStrict(data, &c); err != nil {
		return nil, fmt.Errorf("unmarshaling config file: %w", err)
	}

	if err := envconfig.Process(EnvVarPrefix, &c); err != nil {
		return nil, fmt.Errorf("parsing environment variables: %w", err)
	}
	return &c, nil
}

// Validate reports the first missing or invalid setting.
func (c *Config) Validate() error {
	if y, e := func() (string, string) {
		if c.Image == "" {
			return "image", "IMAGE"
		}
		if c.TotalBlocks == 0 {
			return "totalBlocks", "TOTAL_BLOCKS"
		}
		if c.InodeBitmapBlocks == 0 {
			return "inodeBitmapBlocks", "INODE_BITMAP_BLOCKS"
		}
		if c.CacheCapacity < efs.MinCacheCapacity {
			return "cacheCapacity", "CACHE_CAPACITY"
		}
		if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
			return "logLevel", "LOG_LEVEL"
		}
		return "", ""
	}(); y != "" {
		return fmt.Errorf(
			"missing or invalid configuration: %s / %s_%s",
			y,
			EnvVarPrefix,
			e,
		)
	}
	return nil
}

// ValidateRemote checks the settings `push` and `pull` need.
func (c *Config) ValidateRemote() error {
	if c.Bucket == "" {
		return fmt.Errorf(
			"missing required configuration: bucket / %s_BUCKET",
			EnvVarPrefix,
		)
	}
	return nil
}

// Key is the object key of the image in the bucket.
func (c *Config) Key() string {
	return c.Prefix + filepath.Base(c.Image)
}

// Logger builds a JSON logger at the configured level.
func (c *Config) Logger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}
