// Package config loads the daemon's two-tier YAML configuration: a
// user-level file (the global default) merged with an optional
// project-level override file found by walking up from the current
// working directory. Project settings win field-by-field.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ehrlich-b/edad/internal/snapshot"
)

// Config holds every tunable the daemon and launcher read at startup.
// Zero values mean "unset"; Manager.Load fills them in with defaults.
type Config struct {
	SocketPath string `yaml:"socket_path,omitempty"`

	AutosaveDebounceMs int `yaml:"autosave_debounce_ms,omitempty"`
	AutosaveMaxFlushMs int `yaml:"autosave_max_flush_ms,omitempty"`

	MaxReadBytes int64 `yaml:"max_read_bytes,omitempty"`

	SnapshotTTLHours     int   `yaml:"snapshot_ttl_hours,omitempty"`
	SnapshotMaxCount     int   `yaml:"snapshot_max_count,omitempty"`
	SnapshotMaxBytes     int64 `yaml:"snapshot_max_bytes,omitempty"`
	SnapshotMaxEntryBytes int64 `yaml:"snapshot_max_entry_bytes,omitempty"`

	OrphanSweepIntervalSec int `yaml:"orphan_sweep_interval_sec,omitempty"`
	OrphanIdleThresholdSec int `yaml:"orphan_idle_threshold_sec,omitempty"`

	HistoryRingMaxCount int   `yaml:"history_ring_max_count,omitempty"`
	HistoryRingMaxBytes int64 `yaml:"history_ring_max_bytes,omitempty"`

	ProtocolVersion    int `yaml:"protocol_version,omitempty"`
	MinProtocolVersion int `yaml:"min_protocol_version,omitempty"`

	MetricsAddr string `yaml:"metrics_addr,omitempty"`
	LogLevel    string `yaml:"log_level,omitempty"`
	LogFile     string `yaml:"log_file,omitempty"`

	TerminalBundleIDAllowlist string `yaml:"terminal_bundle_id_allowlist,omitempty"`

	// AgentCommand names the opaque text-in/text-out subprocess collaborators
	// use for AI-assisted edits. The core never invokes it; it is stored only
	// so the config file stays the single source of truth for the command.
	AgentCommand string `yaml:"agent_command,omitempty"`
}

// Defaults mirrors the spec's default knobs. Callers get these whenever a
// field is left unset in both the user and project config files.
func Defaults() Config {
	return Config{
		AutosaveDebounceMs:    50,
		AutosaveMaxFlushMs:    250,
		MaxReadBytes:          2 << 20,
		SnapshotTTLHours:      14 * 24,
		SnapshotMaxCount:      256,
		SnapshotMaxBytes:      1536 * 1024,
		SnapshotMaxEntryBytes: 512 * 1024,
		OrphanSweepIntervalSec: 60,
		OrphanIdleThresholdSec: 300,
		HistoryRingMaxCount:    snapshot.DefaultHistoryMaxCount,
		HistoryRingMaxBytes:    snapshot.DefaultHistoryMaxBytes,
		ProtocolVersion:        1,
		MinProtocolVersion:     1,
		LogLevel:               "info",
	}
}

// AutosaveDebounce returns the configured debounce as a time.Duration.
func (c Config) AutosaveDebounce() time.Duration {
	return time.Duration(c.AutosaveDebounceMs) * time.Millisecond
}

// AutosaveMaxFlush returns the configured max-flush delay as a
// time.Duration.
func (c Config) AutosaveMaxFlush() time.Duration {
	return time.Duration(c.AutosaveMaxFlushMs) * time.Millisecond
}

// OrphanSweepInterval returns the configured sweep interval.
func (c Config) OrphanSweepInterval() time.Duration {
	return time.Duration(c.OrphanSweepIntervalSec) * time.Second
}

// OrphanIdleThreshold returns the configured idle threshold.
func (c Config) OrphanIdleThreshold() time.Duration {
	return time.Duration(c.OrphanIdleThresholdSec) * time.Second
}

// Manager loads and merges the user and project config layers.
type Manager struct {
	userConfig    Config
	projectConfig Config
	merged        Config
}

// NewManager creates an empty Manager seeded with Defaults.
func NewManager() *Manager {
	return &Manager{merged: Defaults()}
}

// Load reads userConfigPath and, if found by walking up from
// projectSearchDir, a ".edad.yaml" project override, then merges them
// project-over-user-over-defaults.
func (m *Manager) Load(userConfigPath, projectSearchDir string) error {
	if err := loadYAML(userConfigPath, &m.userConfig); err != nil {
		return fmt.Errorf("config: load user config: %w", err)
	}

	projectPath := findProjectConfig(projectSearchDir)
	if projectPath != "" {
		if err := loadYAML(projectPath, &m.projectConfig); err != nil {
			return fmt.Errorf("config: load project config: %w", err)
		}
	}

	m.merged = merge(Defaults(), m.userConfig, m.projectConfig)
	return nil
}

// Get returns the merged configuration.
func (m *Manager) Get() Config {
	return m.merged
}

// SaveUser persists the user-level config layer to path.
func (m *Manager) SaveUser(path string) error {
	return saveYAML(path, m.userConfig)
}

func loadYAML(path string, dst *Config) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, dst)
}

func saveYAML(path string, c Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// findProjectConfig walks up from dir looking for a ".edad.yaml" file,
// stopping at the filesystem root. It returns "" if none is found.
func findProjectConfig(dir string) string {
	if dir == "" {
		return ""
	}
	for {
		candidate := filepath.Join(dir, ".edad.yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// merge layers project over user over defaults, field by field, treating
// the zero value as "unset" for scalar fields.
func merge(base, user, project Config) Config {
	out := base
	applyNonZero(&out, user)
	applyNonZero(&out, project)
	return out
}

func applyNonZero(out *Config, layer Config) {
	if layer.SocketPath != "" {
		out.SocketPath = layer.SocketPath
	}
	if layer.AutosaveDebounceMs != 0 {
		out.AutosaveDebounceMs = layer.AutosaveDebounceMs
	}
	if layer.AutosaveMaxFlushMs != 0 {
		out.AutosaveMaxFlushMs = layer.AutosaveMaxFlushMs
	}
	if layer.MaxReadBytes != 0 {
		out.MaxReadBytes = layer.MaxReadBytes
	}
	if layer.SnapshotTTLHours != 0 {
		out.SnapshotTTLHours = layer.SnapshotTTLHours
	}
	if layer.SnapshotMaxCount != 0 {
		out.SnapshotMaxCount = layer.SnapshotMaxCount
	}
	if layer.SnapshotMaxBytes != 0 {
		out.SnapshotMaxBytes = layer.SnapshotMaxBytes
	}
	if layer.SnapshotMaxEntryBytes != 0 {
		out.SnapshotMaxEntryBytes = layer.SnapshotMaxEntryBytes
	}
	if layer.OrphanSweepIntervalSec != 0 {
		out.OrphanSweepIntervalSec = layer.OrphanSweepIntervalSec
	}
	if layer.OrphanIdleThresholdSec != 0 {
		out.OrphanIdleThresholdSec = layer.OrphanIdleThresholdSec
	}
	if layer.HistoryRingMaxCount != 0 {
		out.HistoryRingMaxCount = layer.HistoryRingMaxCount
	}
	if layer.HistoryRingMaxBytes != 0 {
		out.HistoryRingMaxBytes = layer.HistoryRingMaxBytes
	}
	if layer.ProtocolVersion != 0 {
		out.ProtocolVersion = layer.ProtocolVersion
	}
	if layer.MinProtocolVersion != 0 {
		out.MinProtocolVersion = layer.MinProtocolVersion
	}
	if layer.MetricsAddr != "" {
		out.MetricsAddr = layer.MetricsAddr
	}
	if layer.LogLevel != "" {
		out.LogLevel = layer.LogLevel
	}
	if layer.LogFile != "" {
		out.LogFile = layer.LogFile
	}
	if layer.TerminalBundleIDAllowlist != "" {
		out.TerminalBundleIDAllowlist = layer.TerminalBundleIDAllowlist
	}
	if layer.AgentCommand != "" {
		out.AgentCommand = layer.AgentCommand
	}
}
