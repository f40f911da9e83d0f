package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveConfigDirPrefersXDGConfigHome(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	t.Setenv("HOME", "/home/someone")
	require.Equal(t, filepath.Join("/xdg", "g13"), resolveConfigDir())
}

func TestResolveConfigDirFallsBackToHome(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("HOME", "/home/someone")
	require.Equal(t, filepath.Join("/home/someone", ".config", "g13"), resolveConfigDir())
}

func TestResolveFifoPathPrefersXDGRuntimeDir(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	require.Equal(t, filepath.Join("/run/user/1000", "g13-lcd"), resolveFifoPath())
}

func TestBindingsAndMacroPaths(t *testing.T) {
	p := Paths{ConfigDir: "/cfg"}
	require.Equal(t, "/cfg/bindings-2.properties", p.BindingsPath(2))
	require.Equal(t, "/cfg/macro-17.properties", p.MacroPath(17))
}
