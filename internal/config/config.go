// Package config holds painter's process-wide settings: loaded once at
// startup, read-only afterwards.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the painter.yaml schema.
type Config struct {
	// Workers sizes the orchestrator pool; 0 means hardware parallelism.
	Workers int `yaml:"workers,omitempty"`
	// Toolchain pins the rustc toolchain for compilation (rustup name,
	// e.g. "1.67").
	Toolchain string `yaml:"toolchain,omitempty"`
	// LLVMMajor is the LLVM major version the pinned toolchain emits;
	// bitcode disassembly refuses a mismatched llvm-dis. 0 disables the
	// check.
	LLVMMajor int `yaml:"llvm_major,omitempty"`
	// MaxModuleBytes refuses oversized IR modules. 0 means no cap.
	MaxModuleBytes int64 `yaml:"max_module_bytes,omitempty"`
	// KeepIntraEdges persists intra-crate edges in sidecars for offline
	// studies. They never reach the graph.
	KeepIntraEdges bool `yaml:"keep_intra_edges,omitempty"`
	// DeleteBitcode removes IR artifacts after a successful export,
	// keeping only the sidecar and report. Disk use across a full
	// registry is otherwise proportional to retained bitcode.
	DeleteBitcode bool `yaml:"delete_bitcode,omitempty"`
	// Blocklist overrides the symbol noise filter.
	Blocklist []string `yaml:"blocklist,omitempty"`

	Graph GraphConfig `yaml:"graph,omitempty"`
}

// GraphConfig tunes the graph store.
type GraphConfig struct {
	Database      string   `yaml:"database,omitempty"`
	BatchSize     int      `yaml:"batch_size,omitempty"`
	RetryAttempts int      `yaml:"retry_attempts,omitempty"`
	RetryBase     Duration `yaml:"retry_base,omitempty"`
}

// Duration is a time.Duration that unmarshals from YAML strings like
// "250ms"; yaml.v3 has no native handling for durations.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Toolchain:      "1.67",
		LLVMMajor:      15,
		MaxModuleBytes: 1 << 30,
		Graph: GraphConfig{
			Database:      "neo4j",
			BatchSize:     256,
			RetryAttempts: 5,
			RetryBase:     Duration(250 * time.Millisecond),
		},
	}
}

// Load reads configuration from path, falling back to painter.yaml in the
// current directory and then to defaults when no file exists.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = "painter.yaml"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}

	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	cfg.merge(&file)
	return cfg, nil
}

// LoadFromDir loads painter.yaml from the given directory.
func LoadFromDir(dir string) (*Config, error) {
	return Load(filepath.Join(dir, "painter.yaml"))
}

// merge overlays non-zero file values onto the defaults.
func (c *Config) merge(other *Config) {
	if other.Workers != 0 {
		c.Workers = other.Workers
	}
	if other.Toolchain != "" {
		c.Toolchain = other.Toolchain
	}
	if other.LLVMMajor != 0 {
		c.LLVMMajor = other.LLVMMajor
	}
	if other.MaxModuleBytes != 0 {
		c.MaxModuleBytes = other.MaxModuleBytes
	}
	if other.KeepIntraEdges {
		c.KeepIntraEdges = true
	}
	if other.DeleteBitcode {
		c.DeleteBitcode = true
	}
	if len(other.Blocklist) > 0 {
		c.Blocklist = other.Blocklist
	}
	if other.Graph.Database != "" {
		c.Graph.Database = other.Graph.Database
	}
	if other.Graph.BatchSize != 0 {
		c.Graph.BatchSize = other.Graph.BatchSize
	}
	if other.Graph.RetryAttempts != 0 {
		c.Graph.RetryAttempts = other.Graph.RetryAttempts
	}
	if other.Graph.RetryBase != 0 {
		c.Graph.RetryBase = other.Graph.RetryBase
	}
}

// Credentials are the graph store connection settings. Flags win over the
// environment; a .env file in the working directory is honored.
type Credentials struct {
	Addr string
	User string
	Pass string
}

// CredentialsFromEnv loads any .env file and reads PAINTER_DB_* variables
// for values the flags left empty.
func CredentialsFromEnv(flags Credentials) Credentials {
	_ = godotenv.Load()

	if flags.Addr == "" {
		flags.Addr = os.Getenv("PAINTER_DB_ADDR")
	}
	if flags.User == "" {
		flags.User = os.Getenv("PAINTER_DB_USER")
	}
	if flags.Pass == "" {
		flags.Pass = os.Getenv("PAINTER_DB_PASS")
	}
	return flags
}
