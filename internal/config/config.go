package config

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Listen      string        `yaml:"listen"`
	Root        string        `yaml:"root"`
	ReposDir    string        `yaml:"repos-dir"`
	CacheDir    string        `yaml:"cache-dir"`
	KeyringDir  string        `yaml:"keyring-dir"`
	LocksFile   string        `yaml:"locks-file"`
	Arch        string        `yaml:"arch"`
	ReleaseVer  string        `yaml:"releasever"`
	Auth        AuthConfig    `yaml:"auth"`
	Storage     StorageConfig `yaml:"storage"`
	CallbackURL string        `yaml:"callback-url"`
	// Cron expression for background autorefresh, empty disables it.
	AutorefreshSchedule string `yaml:"autorefresh-schedule"`
	Log                 string `yaml:"log"`
	LogLevel            string `yaml:"log-level"`
	Debug               bool   `yaml:"debug"`
}

type AuthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	APIKey  string `yaml:"api-key"`
}

// StorageConfig selects the backend holding downloaded raw metadata.
type StorageConfig struct {
	Type string `yaml:"type"` // local, mindb
	Path string `yaml:"path"`
}

func Default() *Config {
	return &Config{
		Listen:   ":8080",
		Root:     "/",
		Storage:  StorageConfig{Type: "local"},
		LogLevel: "info",
	}
}

// LoadConfig reads path on top of the defaults. A missing file yields
// the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg.Complete(), nil
		}
		return nil, errors.Wrapf(err, "read config %s", path)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}

	return cfg.Complete(), nil
}

// Complete fills the directories derived from Root.
func (c *Config) Complete() *Config {
	if c.Root == "" {
		c.Root = "/"
	}
	if c.ReposDir == "" {
		c.ReposDir = filepath.Join(c.Root, "etc/zypp/repos.d")
	}
	if c.CacheDir == "" {
		c.CacheDir = filepath.Join(c.Root, "var/cache/pkgbind")
	}
	if c.KeyringDir == "" {
		c.KeyringDir = filepath.Join(c.Root, "var/lib/pkgbind/keyring")
	}
	if c.LocksFile == "" {
		c.LocksFile = filepath.Join(c.Root, "var/lib/pkgbind/locks.yaml")
	}
	if c.Storage.Type == "" {
		c.Storage.Type = "local"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.CacheDir, "raw")
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Debug {
		c.LogLevel = "debug"
	}
	return c
}

// SetRoot moves every derived directory under a new root.
func (c *Config) SetRoot(root string) {
	c.Root = root
	c.ReposDir, c.CacheDir, c.KeyringDir, c.LocksFile, c.Storage.Path = "", "", "", "", ""
	c.Complete()
}
