// Package config provides layered configuration for botscope.
// Priority: defaults < user < project < explicit file < env < flags
package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/botscope/botscope/pkg/dataset"
	bserrors "github.com/botscope/botscope/pkg/errors"
)

// Config holds all botscope configuration.
type Config struct {
	Version int `yaml:"version"`

	Dataset DatasetConfig `yaml:"dataset"`
	Cache   CacheConfig   `yaml:"cache"`
	Log     LogConfig     `yaml:"log"`
	S3      S3Config      `yaml:"s3"`
	GCS     GCSConfig     `yaml:"gcs"`
	Azure   AzureConfig   `yaml:"azure"`
}

// DatasetConfig controls where the raw dataset lives and where it comes from.
type DatasetConfig struct {
	Root          string   `yaml:"root" validate:"required"`
	ArchiveURL    string   `yaml:"archive_url" validate:"required"`
	Files         []string `yaml:"files" validate:"required,min=1,dive,required,excludesall=/\\"`
	MountPoint    string   `yaml:"mount_point" validate:"required"`
	SharedSubpath string   `yaml:"shared_subpath"`
	Environment   string   `yaml:"environment" validate:"oneof=auto managed standalone"`
}

// CacheConfig controls the preprocessed artifact cache.
type CacheConfig struct {
	// Root defaults to the dataset root when empty.
	Root        string `yaml:"root"`
	Compression string `yaml:"compression" validate:"oneof=none snappy zstd gzip brotli"`
}

// LogConfig controls logging output.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=trace debug info warn error off"`
	Format string `yaml:"format" validate:"oneof=console json"`
}

// S3Config configures s3:// archive identifiers.
type S3Config struct {
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint" validate:"omitempty,url"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

// GCSConfig configures gs:// archive identifiers.
type GCSConfig struct {
	KeyFile string `yaml:"key_file"`
}

// AzureConfig configures az:// archive identifiers.
type AzureConfig struct {
	AccountKey string `yaml:"account_key"`
}

// Default returns the default configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	root := filepath.Join(homeDir, ".botscope", "dataset")

	return &Config{
		Version: 1,
		Dataset: DatasetConfig{
			Root:          root,
			ArchiveURL:    dataset.DefaultArchiveURL,
			Files:         dataset.DefaultManifest(),
			MountPoint:    dataset.DefaultMountPoint,
			SharedSubpath: dataset.DefaultSharedSubpath,
			Environment:   "auto",
		},
		Cache: CacheConfig{
			Compression: "snappy",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// CacheRoot returns the cache root, which is the dataset root unless set.
func (c *Config) CacheRoot() string {
	if c.Cache.Root != "" {
		return c.Cache.Root
	}
	return c.Dataset.Root
}

// Manager handles configuration loading and merging.
type Manager struct {
	mu     sync.RWMutex
	config *Config
	paths  []string // files that were loaded
	home   string
	cwd    string
	env    func(string) string
}

// NewManager creates a new configuration manager.
func NewManager() *Manager {
	home, _ := os.UserHomeDir()
	cwd, _ := os.Getwd()
	return &Manager{
		config: Default(),
		home:   home,
		cwd:    cwd,
		env:    os.Getenv,
	}
}

// Load rebuilds the configuration from defaults, the user and project files,
// the explicit file (if any) and the environment, then validates it.
// Missing user and project files are skipped; a missing explicit file is an
// error.
func (m *Manager) Load(explicit string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.config = Default()
	m.paths = nil

	for _, path := range m.configPaths() {
		if err := m.loadFile(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
		m.paths = append(m.paths, path)
	}

	if explicit != "" {
		if err := m.loadFile(explicit); err != nil {
			if os.IsNotExist(err) {
				return bserrors.InvalidConfig(err).WithContext("path", explicit)
			}
			return err
		}
		m.paths = append(m.paths, explicit)
	}

	m.loadEnv()

	return validate(m.config)
}

// configPaths returns implicit config file paths in priority order.
func (m *Manager) configPaths() []string {
	var paths []string
	if m.home != "" {
		paths = append(paths, filepath.Join(m.home, ".botscope", "config.yaml"))
	}
	if m.cwd != "" {
		paths = append(paths, filepath.Join(m.cwd, "botscope.yaml"))
	}
	return paths
}

// loadFile reads one YAML file and merges its non-zero values.
func (m *Manager) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var partial Config
	if err := yaml.Unmarshal(data, &partial); err != nil {
		return bserrors.InvalidConfig(err).WithContext("path", path)
	}

	m.merge(&partial)
	return nil
}

// merge merges non-zero values from src into config.
func (m *Manager) merge(src *Config) {
	d := &m.config.Dataset
	if src.Dataset.Root != "" {
		d.Root = src.Dataset.Root
	}
	if src.Dataset.ArchiveURL != "" {
		d.ArchiveURL = src.Dataset.ArchiveURL
	}
	if len(src.Dataset.Files) > 0 {
		d.Files = src.Dataset.Files
	}
	if src.Dataset.MountPoint != "" {
		d.MountPoint = src.Dataset.MountPoint
	}
	if src.Dataset.SharedSubpath != "" {
		d.SharedSubpath = src.Dataset.SharedSubpath
	}
	if src.Dataset.Environment != "" {
		d.Environment = src.Dataset.Environment
	}

	if src.Cache.Root != "" {
		m.config.Cache.Root = src.Cache.Root
	}
	if src.Cache.Compression != "" {
		m.config.Cache.Compression = src.Cache.Compression
	}

	if src.Log.Level != "" {
		m.config.Log.Level = src.Log.Level
	}
	if src.Log.Format != "" {
		m.config.Log.Format = src.Log.Format
	}

	if src.S3.Region != "" {
		m.config.S3.Region = src.S3.Region
	}
	if src.S3.Endpoint != "" {
		m.config.S3.Endpoint = src.S3.Endpoint
	}
	if src.S3.UsePathStyle {
		m.config.S3.UsePathStyle = true
	}

	if src.GCS.KeyFile != "" {
		m.config.GCS.KeyFile = src.GCS.KeyFile
	}
	if src.Azure.AccountKey != "" {
		m.config.Azure.AccountKey = src.Azure.AccountKey
	}
}

// loadEnv applies BOTSCOPE_* environment overrides.
func (m *Manager) loadEnv() {
	if v := m.env("BOTSCOPE_ROOT"); v != "" {
		m.config.Dataset.Root = v
	}
	if v := m.env("BOTSCOPE_ARCHIVE_URL"); v != "" {
		m.config.Dataset.ArchiveURL = v
	}
	if v := m.env("BOTSCOPE_CACHE_ROOT"); v != "" {
		m.config.Cache.Root = v
	}
	if v := m.env("BOTSCOPE_LOG_LEVEL"); v != "" {
		m.config.Log.Level = strings.ToLower(v)
	}
	if v := m.env("BOTSCOPE_ENV"); v != "" {
		m.config.Dataset.Environment = strings.ToLower(v)
	}
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetPaths returns the files that were loaded.
func (m *Manager) GetPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paths
}

// Save writes the current config to the user config file.
func (m *Manager) Save() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.home == "" {
		return bserrors.New(bserrors.CodeInvalidConfig, "home directory unknown")
	}
	configDir := filepath.Join(m.home, ".botscope")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return bserrors.FileSystem(err, "mkdir", configDir)
	}

	data, err := yaml.Marshal(m.config)
	if err != nil {
		return bserrors.Wrap(err, bserrors.CodeWriteFailed, "encode config")
	}

	path := filepath.Join(configDir, "config.yaml")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return bserrors.FileSystem(err, "write", path)
	}
	return nil
}

var structValidator = validator.New(validator.WithRequiredStructEnabled())

// Validate checks a configuration after flags were applied on top of Load.
func Validate(c *Config) error { return validate(c) }

func validate(c *Config) error {
	if err := structValidator.Struct(c); err != nil {
		return bserrors.InvalidConfig(err)
	}
	return nil
}
