package projectmap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolve_LongestPrefixWins(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "project_map.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(
		"/work/monorepo: monorepo\n/work/monorepo/sub: monorepo-sub\n"), 0o644))

	m, err := Load(yamlPath)
	require.NoError(t, err)

	name, _ := m.Resolve("/work/monorepo/sub/deeper")
	require.Equal(t, "monorepo-sub", name)

	name, _ = m.Resolve("/work/monorepo/other")
	require.Equal(t, "monorepo", name)
}

func TestResolve_FallsBackToBasename(t *testing.T) {
	m, err := Load("")
	require.NoError(t, err)
	name, path := m.Resolve("/some/where/chronicle")
	require.Equal(t, "chronicle", name)
	require.Equal(t, "/some/where/chronicle", path)
}

func TestLoad_MissingFileIsNotError(t *testing.T) {
	m, err := Load("/nonexistent/project_map.yaml")
	require.NoError(t, err)
	require.NotNil(t, m)
}
