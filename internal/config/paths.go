package config

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
)

// Paths resolves the on-disk locations the Config Store reads and writes,
// grounded on original_source's ConfigPath.cpp: prefer XDG_CONFIG_HOME,
// else $HOME/.config, else the user database's home directory, else a
// temporary directory. The FIFO path prefers XDG_RUNTIME_DIR, else a
// temporary directory.
type Paths struct {
	ConfigDir string
	FifoPath  string
}

// ResolvePaths computes the configuration directory and FIFO path using
// the environment and (as a last resort) the user database, exactly as
// ConfigPath::getConfigDir/getFifoPath do.
func ResolvePaths() Paths {
	return Paths{
		ConfigDir: resolveConfigDir(),
		FifoPath:  resolveFifoPath(),
	}
}

func resolveConfigDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "g13")
	}
	if home := os.Getenv("HOME"); home != "" {
		return filepath.Join(home, ".config", "g13")
	}
	if u, err := user.Current(); err == nil && u.HomeDir != "" {
		return filepath.Join(u.HomeDir, ".config", "g13")
	}
	return filepath.Join(os.TempDir(), "g13-fallback")
}

func resolveFifoPath() string {
	if v := os.Getenv("XDG_RUNTIME_DIR"); v != "" {
		return filepath.Join(v, "g13-lcd")
	}
	return filepath.Join(os.TempDir(), "g13-lcd")
}

// EnsureConfigDir creates the configuration directory (0755) if absent.
func (p Paths) EnsureConfigDir() error {
	if err := os.MkdirAll(p.ConfigDir, 0o755); err != nil {
		return fmt.Errorf("config: ensure config dir: %w", err)
	}
	return nil
}

// BindingsPath returns the path of the bindings file for profile (0..3).
func (p Paths) BindingsPath(profile int) string {
	return filepath.Join(p.ConfigDir, fmt.Sprintf("bindings-%d.properties", profile))
}

// MacroPath returns the path of the macro file for a macro id (0..199).
func (p Paths) MacroPath(id int) string {
	return filepath.Join(p.ConfigDir, fmt.Sprintf("macro-%d.properties", id))
}
