package server

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"example.com/nitfgate/internal/common"
)

const defaultMaxUploadBytes = 2 << 30

// Options configures server creation.
type Options struct {
	StorageDir     string
	UseMmap        bool
	MaxUploadBytes int64
	Preload        []string
}

// Config is the nitfd YAML configuration document.
type Config struct {
	Addr           string           `yaml:"addr"`
	StorageDir     string           `yaml:"storageDir"`
	UseMmap        bool             `yaml:"useMmap"`
	MaxUploadBytes int64            `yaml:"maxUploadBytes"`
	Preload        []string         `yaml:"preload"`
	ReadTimeout    string           `yaml:"readTimeout"`
	Logs           common.LogConfig `yaml:"logs"`
}

// LoadConfig parses a YAML config and applies defaults. Relative paths are
// resolved against the config file's directory.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if strings.TrimSpace(path) == "" {
		return cfg, errors.New("config path is empty")
	}
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	baseDir := filepath.Dir(path)
	resolvePath := func(p string) string {
		p = strings.TrimSpace(p)
		if p == "" {
			return ""
		}
		if filepath.IsAbs(p) {
			return filepath.Clean(p)
		}
		return filepath.Clean(filepath.Join(baseDir, p))
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	cfg.StorageDir = resolvePath(cfg.StorageDir)
	if cfg.StorageDir == "" {
		cfg.StorageDir = filepath.Join(baseDir, "data")
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	for i, p := range cfg.Preload {
		cfg.Preload[i] = resolvePath(p)
	}
	if cfg.ReadTimeout == "" {
		cfg.ReadTimeout = "60s"
	}
	cfg.Logs.Directory = resolvePath(cfg.Logs.Directory)
	if cfg.Logs.Directory == "" {
		cfg.Logs.Directory = filepath.Join(cfg.StorageDir, "logs")
	}
	if cfg.Logs.FileName == "" {
		cfg.Logs.FileName = "nitfd.log"
	}
	cfg.Logs = cfg.Logs.WithDefaults()
	return cfg, nil
}

// Options converts the config into server options.
func (c Config) Options() Options {
	return Options{
		StorageDir:     c.StorageDir,
		UseMmap:        c.UseMmap,
		MaxUploadBytes: c.MaxUploadBytes,
		Preload:        c.Preload,
	}
}
