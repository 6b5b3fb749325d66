package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for aupat.
type Config struct {
	ArchiveID  string           `toml:"archive_id"`
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	LogLevel   string           `toml:"log_level"`
	Archive    ArchiveConfig    `toml:"archive"`
	Staging    StagingConfig    `toml:"staging"`
	Database   DatabaseConfig   `toml:"database"`
	Pipeline   PipelineConfig   `toml:"pipeline"`
	Metadata   MetadataConfig   `toml:"metadata"`
	Hardware   HardwareConfig   `toml:"hardware"`
	Retry      RetryConfig      `toml:"retry"`
	Vaults     []VaultConfig    `toml:"vaults"`
	Encryption EncryptionConfig `toml:"encryption"`
	Catalog    CatalogConfig    `toml:"catalog"`
}

// ArchiveConfig locates the archive tree.
type ArchiveConfig struct {
	Root          string `toml:"root"`
	ShortIDLength int    `toml:"short_id_length"`
}

// StagingConfig locates the staging directory. Ignore holds extra patterns
// on top of the built-in list and any .aupatignore file.
type StagingConfig struct {
	Dir    string   `toml:"dir"`
	Ignore []string `toml:"ignore,omitempty"`
}

// DatabaseConfig represents configuration for the catalog database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// PipelineConfig tunes the ingestion engine.
type PipelineConfig struct {
	BatchSize     int      `toml:"batch_size"`
	Workers       int      `toml:"workers"`
	HashAlgorithm string   `toml:"hash_algorithm"` // "sha256" or "blake3"
	HashTimeout   Duration `toml:"hash_timeout"`   // per file, verification included
	CopyTimeout   Duration `toml:"copy_timeout"`   // per cross-device copy attempt
}

// MetadataConfig selects the device metadata tools.
// This uses a tagged union pattern - StillTool determines whether ExiftoolPath is relevant.
type MetadataConfig struct {
	StillTool    string   `toml:"still_tool"` // "exiftool", "goexif" or "none"
	ExiftoolPath string   `toml:"exiftool_path,omitempty"`
	FFProbePath  string   `toml:"ffprobe_path,omitempty"`
	Timeout      Duration `toml:"timeout"`
}

// HardwareConfig points at an optional YAML rule table.
type HardwareConfig struct {
	RulesFile string `toml:"rules_file,omitempty"`
}

// RetryConfig is the backoff applied to transient failures.
type RetryConfig struct {
	MaxAttempts  int      `toml:"max_attempts"`
	InitialDelay Duration `toml:"initial_delay"`
	Multiplier   float64  `toml:"multiplier"`
	MaxDelay     Duration `toml:"max_delay"`
}

// VaultConfig represents configuration for a catalog snapshot vault.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type VaultConfig struct {
	Type string `toml:"type"` // "memory", "s3", or "filesystem"
	Name string `toml:"name"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket   string `toml:"s3_bucket,omitempty"`
	S3Prefix   string `toml:"s3_prefix,omitempty"`
	S3Region   string `toml:"s3_region,omitempty"`
	S3Endpoint string `toml:"s3_endpoint,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSVaultRoot string `toml:"fs_vault_root,omitempty"`
}

// EncryptionConfig holds paths to the age key pair used for catalog snapshots.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "age" (default) or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// CatalogConfig controls catalog snapshots.
type CatalogConfig struct {
	BackupBeforeImport bool `toml:"backup_before_import"`
	Encrypt            bool `toml:"encrypt"`
}

// Duration is a time.Duration written as a Go duration string ("250ms").
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

const (
	DefaultLogLevel      = "info"
	DefaultShortIDLength = 12
	MinShortIDLength     = 8
	MaxShortIDLength     = 32
	DefaultBatchSize     = 50
	DefaultWorkers       = 1
	DefaultHashAlgorithm = "sha256"
	DefaultHashTimeout   = 10 * time.Minute
	DefaultCopyTimeout   = 30 * time.Minute
	DefaultStillTool     = "exiftool"
)

// NewConfig creates a Config for a fresh archive with every default filled in.
func NewConfig(archiveID, baseDir, archiveRoot string) *Config {
	cfg := &Config{
		ArchiveID: archiveID,
		BaseDir:   baseDir,
		Archive:   ArchiveConfig{Root: archiveRoot},
		Database:  DatabaseConfig{Type: "sqlite", DataDir: filepath.Join(baseDir, "db")},
		Encryption: EncryptionConfig{
			PublicKeyPath:  filepath.Join(baseDir, "keys", "aupat.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "aupat.key"),
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero values. Explicit values are left untouched.
func (c *Config) ApplyDefaults() {
	if c.LogDir == "" && c.BaseDir != "" {
		c.LogDir = filepath.Join(c.BaseDir, "log")
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.Archive.ShortIDLength == 0 {
		c.Archive.ShortIDLength = DefaultShortIDLength
	}
	if c.Staging.Dir == "" && c.Archive.Root != "" {
		c.Staging.Dir = filepath.Join(c.Archive.Root, ".staging")
	}
	if c.Database.Type == "" {
		c.Database.Type = "sqlite"
	}
	if c.Pipeline.BatchSize == 0 {
		c.Pipeline.BatchSize = DefaultBatchSize
	}
	if c.Pipeline.Workers == 0 {
		c.Pipeline.Workers = DefaultWorkers
	}
	if c.Pipeline.HashAlgorithm == "" {
		c.Pipeline.HashAlgorithm = DefaultHashAlgorithm
	}
	if c.Pipeline.HashTimeout.Duration == 0 {
		c.Pipeline.HashTimeout.Duration = DefaultHashTimeout
	}
	if c.Pipeline.CopyTimeout.Duration == 0 {
		c.Pipeline.CopyTimeout.Duration = DefaultCopyTimeout
	}
	if c.Metadata.StillTool == "" {
		c.Metadata.StillTool = DefaultStillTool
	}
	if c.Metadata.ExiftoolPath == "" {
		c.Metadata.ExiftoolPath = "exiftool"
	}
	if c.Metadata.FFProbePath == "" {
		c.Metadata.FFProbePath = "ffprobe"
	}
	if c.Metadata.Timeout.Duration == 0 {
		c.Metadata.Timeout.Duration = 10 * time.Second
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 3
	}
	if c.Retry.InitialDelay.Duration == 0 {
		c.Retry.InitialDelay.Duration = 200 * time.Millisecond
	}
	if c.Retry.Multiplier == 0 {
		c.Retry.Multiplier = 2
	}
	if c.Retry.MaxDelay.Duration == 0 {
		c.Retry.MaxDelay.Duration = 5 * time.Second
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.ArchiveID == "" {
		return fmt.Errorf("archive_id is required")
	}
	if c.Archive.Root == "" {
		return fmt.Errorf("archive.root is required")
	}
	if !filepath.IsAbs(c.Archive.Root) {
		return fmt.Errorf("archive.root must be absolute, got %q", c.Archive.Root)
	}
	if n := c.Archive.ShortIDLength; n < MinShortIDLength || n > MaxShortIDLength {
		return fmt.Errorf("archive.short_id_length must be between %d and %d, got %d", MinShortIDLength, MaxShortIDLength, n)
	}
	if c.Staging.Dir == "" {
		return fmt.Errorf("staging.dir is required")
	}
	if rel, err := filepath.Rel(c.Staging.Dir, c.Archive.Root); err == nil && rel == "." {
		return fmt.Errorf("staging.dir must differ from archive.root")
	}

	switch c.Database.Type {
	case "sqlite":
		if c.Database.DataDir == "" {
			return fmt.Errorf("database.data_dir is required for sqlite")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown database type: %q", c.Database.Type)
	}

	if c.Pipeline.BatchSize < 1 {
		return fmt.Errorf("pipeline.batch_size must be positive, got %d", c.Pipeline.BatchSize)
	}
	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("pipeline.workers must be positive, got %d", c.Pipeline.Workers)
	}
	switch c.Pipeline.HashAlgorithm {
	case "sha256", "blake3":
	default:
		return fmt.Errorf("unknown pipeline.hash_algorithm: %q", c.Pipeline.HashAlgorithm)
	}
	if c.Pipeline.HashTimeout.Duration <= 0 {
		return fmt.Errorf("pipeline.hash_timeout must be positive, got %s", c.Pipeline.HashTimeout.Duration)
	}
	if c.Pipeline.CopyTimeout.Duration <= 0 {
		return fmt.Errorf("pipeline.copy_timeout must be positive, got %s", c.Pipeline.CopyTimeout.Duration)
	}

	switch c.Metadata.StillTool {
	case "exiftool", "goexif", "none":
	default:
		return fmt.Errorf("unknown metadata.still_tool: %q", c.Metadata.StillTool)
	}

	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.InitialDelay.Duration < 0 || c.Retry.MaxDelay.Duration < 0 {
		return fmt.Errorf("retry delays must not be negative")
	}
	if c.Retry.Multiplier < 1 {
		return fmt.Errorf("retry.multiplier must be at least 1, got %g", c.Retry.Multiplier)
	}

	names := make(map[string]bool, len(c.Vaults))
	for _, v := range c.Vaults {
		if v.Name == "" {
			return fmt.Errorf("vault of type %q has no name", v.Type)
		}
		if names[v.Name] {
			return fmt.Errorf("duplicate vault name: %q", v.Name)
		}
		names[v.Name] = true
	}
	if c.Catalog.BackupBeforeImport && len(c.Vaults) == 0 {
		return fmt.Errorf("catalog.backup_before_import requires at least one vault")
	}
	return nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader and applies defaults.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init writes a new config file. It refuses to overwrite an existing one.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
