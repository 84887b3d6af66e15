package config

import (
	"os"
	"path/filepath"
)

const appDirName = "edad"

// AppSupportDir returns the per-user application-support directory under
// which the daemon keeps its socket, config, recovery log, and telemetry
// output (spec §6.4). It honors EDAD_HOME for tests and unusual setups.
func AppSupportDir() (string, error) {
	if dir := os.Getenv("EDAD_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "."+appDirName), nil
}

// SocketPath returns the path of the daemon's Unix domain socket.
func SocketPath(appDir string) string {
	return filepath.Join(appDir, "rpc.sock")
}

// RecoveryDir returns the directory holding per-file snapshot logs.
func RecoveryDir(appDir string) string {
	return filepath.Join(appDir, "recovery")
}

// TelemetryDir returns the directory holding append-only latency JSONL
// files.
func TelemetryDir(appDir string) string {
	return filepath.Join(appDir, "telemetry")
}

// RegistryPath returns the path of the sqlite-backed session registry.
func RegistryPath(appDir string) string {
	return filepath.Join(appDir, "registry.db")
}

// ConfigPath returns the path of the user-level YAML config file,
// honoring the EDAD_CONFIG override.
func ConfigPath(appDir string) string {
	if override := os.Getenv("EDAD_CONFIG"); override != "" {
		return override
	}
	return filepath.Join(appDir, "config.yaml")
}
