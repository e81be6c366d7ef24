// Package config handles configuration loading and validation for vaultnode.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/vaultnode/vaultnode/internal/resource"
	"github.com/vaultnode/vaultnode/pkg/bytesize"
	"gopkg.in/yaml.v3"
)

// Resource context keys understood besides resource.HighWaterMarkKey.
const (
	DirModeKey  = "default_vault_directory_mode_kw"
	FileModeKey = "default_vault_file_mode_kw"
)

// DefaultCopyBufferSize matches the vault default tier copy chunk.
const DefaultCopyBufferSize = 4 * bytesize.MB

// ResourceConfig describes one storage resource served by this node.
type ResourceConfig struct {
	Name          string `yaml:"name"`
	Location      string `yaml:"location"`        // Host the resource is served from; defaults to host
	Status        string `yaml:"status"`          // "up" or "down"
	VaultPath     string `yaml:"vault_path"`      // Storage root
	Context       string `yaml:"context"`         // "key=value;key=value" resource context string
	HighWaterMark string `yaml:"high_water_mark"` // Overrides the context key when set, e.g. "950GB"
	DirMode       string `yaml:"dir_mode"`        // Octal, e.g. "0755"
	FileMode      string `yaml:"file_mode"`       // Octal, e.g. "0644"
}

// Config is the node configuration.
type Config struct {
	Host                    string           `yaml:"host"`
	LogLevel                string           `yaml:"log_level"`
	CopyBufferSize          bytesize.Size    `yaml:"copy_buffer_size"`
	RejectDuplicateReplicas bool             `yaml:"reject_duplicate_replicas"`
	Resources               []ResourceConfig `yaml:"resources"`
}

// Load loads configuration from a YAML file and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	// Apply defaults
	if cfg.Host == "" {
		if hostname, err := os.Hostname(); err == nil {
			cfg.Host = hostname
		}
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.CopyBufferSize == 0 {
		cfg.CopyBufferSize = bytesize.Size(DefaultCopyBufferSize)
	}

	for i := range cfg.Resources {
		rc := &cfg.Resources[i]
		if rc.Location == "" {
			rc.Location = cfg.Host
		}
		if rc.Status == "" {
			rc.Status = "up"
		}
		// Expand home directory in vault path
		if strings.HasPrefix(rc.VaultPath, "~/") {
			homeDir, err := os.UserHomeDir()
			if err == nil {
				rc.VaultPath = filepath.Join(homeDir, rc.VaultPath[2:])
			}
		}
	}

	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.CopyBufferSize < 0 {
		return fmt.Errorf("copy_buffer_size must not be negative")
	}
	if len(c.Resources) == 0 {
		return fmt.Errorf("at least one resource is required")
	}

	seen := make(map[string]bool, len(c.Resources))
	for i, rc := range c.Resources {
		if rc.Name == "" {
			return fmt.Errorf("resources[%d].name is required", i)
		}
		if strings.Contains(rc.Name, "/") {
			return fmt.Errorf("resources[%d].name %q must not contain '/'", i, rc.Name)
		}
		if seen[rc.Name] {
			return fmt.Errorf("duplicate resource name %q", rc.Name)
		}
		seen[rc.Name] = true

		if rc.VaultPath == "" {
			return fmt.Errorf("resource %s: vault_path is required", rc.Name)
		}
		if _, err := resource.ParseStatus(rc.Status); err != nil {
			return fmt.Errorf("resource %s: %w", rc.Name, err)
		}
		if _, err := ParseContext(rc.Context); err != nil {
			return fmt.Errorf("resource %s: %w", rc.Name, err)
		}
		if rc.DirMode != "" {
			if _, err := ParseMode(rc.DirMode); err != nil {
				return fmt.Errorf("resource %s: dir_mode: %w", rc.Name, err)
			}
		}
		if rc.FileMode != "" {
			if _, err := ParseMode(rc.FileMode); err != nil {
				return fmt.Errorf("resource %s: file_mode: %w", rc.Name, err)
			}
		}
	}
	return nil
}

// ParseContext parses a resource context string of the form
// "key=value;key=value". Empty entries are ignored.
func ParseContext(s string) (map[string]string, error) {
	props := make(map[string]string)
	for _, entry := range strings.Split(s, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		key, value, ok := strings.Cut(entry, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid context entry %q: expected key=value", entry)
		}
		props[key] = strings.TrimSpace(value)
	}
	return props, nil
}

// ParseMode parses an octal permission string such as "0755".
func ParseMode(s string) (os.FileMode, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 8, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid mode %q: %w", s, err)
	}
	if n > 0o7777 {
		return 0, fmt.Errorf("invalid mode %q: out of range", s)
	}
	return os.FileMode(n), nil
}

// Nodes builds the resource nodes described by the configuration. The
// configuration must have passed Validate. A malformed high water mark or
// context mode is logged and ignored.
func (c *Config) Nodes(logger zerolog.Logger) ([]resource.Node, error) {
	nodes := make([]resource.Node, 0, len(c.Resources))
	for _, rc := range c.Resources {
		n, err := rc.node(logger)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// Node returns the named resource node.
func (c *Config) Node(name string, logger zerolog.Logger) (resource.Node, error) {
	for _, rc := range c.Resources {
		if rc.Name == name {
			return rc.node(logger)
		}
	}
	return resource.Node{}, fmt.Errorf("unknown resource %q", name)
}

func (rc ResourceConfig) node(logger zerolog.Logger) (resource.Node, error) {
	logger = logger.With().Str("resource", rc.Name).Logger()

	status, err := resource.ParseStatus(rc.Status)
	if err != nil {
		return resource.Node{}, fmt.Errorf("resource %s: %w", rc.Name, err)
	}
	props, err := ParseContext(rc.Context)
	if err != nil {
		return resource.Node{}, fmt.Errorf("resource %s: %w", rc.Name, err)
	}

	hwm := rc.HighWaterMark
	if hwm == "" {
		hwm = props[resource.HighWaterMarkKey]
	}

	n := resource.Node{
		Name:          rc.Name,
		Location:      rc.Location,
		Status:        status,
		VaultPath:     rc.VaultPath,
		HighWaterMark: resource.ParseHighWaterMark(hwm, logger),
		DirMode:       modeSetting(rc.DirMode, props[DirModeKey], logger),
		FileMode:      modeSetting(rc.FileMode, props[FileModeKey], logger),
		Properties:    props,
	}
	if err := n.Validate(); err != nil {
		return resource.Node{}, err
	}
	return n.WithDefaults(), nil
}

// modeSetting returns the explicit mode, else the context mode, else 0 so
// that the node default applies.
func modeSetting(explicit, fromContext string, logger zerolog.Logger) os.FileMode {
	for _, s := range []string{explicit, fromContext} {
		if s == "" {
			continue
		}
		mode, err := ParseMode(s)
		if err != nil {
			logger.Warn().Err(err).Msg("ignoring malformed mode")
			continue
		}
		return mode
	}
	return 0
}
