// Package projectmap resolves a working directory into a configured
// project name, so entries can be scored and filtered by project context
// without depending on any particular directory naming convention.
package projectmap

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Map associates working-directory prefixes with project names. Longest
// matching prefix wins, so a mapping can have both a broad entry for a
// monorepo root and a narrower one for a subdirectory checked out as its
// own project.
type Map struct {
	entries map[string]string // path prefix -> project name
}

// Load reads a YAML document of {path: projectName} pairs. A missing
// file is not an error — it yields an empty Map, and Resolve falls back
// to directory-basename inference.
func Load(path string) (*Map, error) {
	m := &Map{entries: map[string]string{}}
	if path == "" {
		return m, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, err
	}
	var raw map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	for k, v := range raw {
		m.entries[filepath.Clean(k)] = v
	}
	return m, nil
}

// Resolve returns the project name and canonical path for workingDir.
// When no configured prefix matches, the project name falls back to the
// working directory's basename so every entry still carries a usable
// project_name rather than an empty one.
func (m *Map) Resolve(workingDir string) (projectName, projectPath string) {
	projectName, projectPath, _ = m.ResolveWithConfidence(workingDir)
	return projectName, projectPath
}

// ResolveWithConfidence is Resolve plus a matched flag distinguishing an
// explicit configured mapping from the directory-basename fallback, for
// callers (detect_current_project) that need to report confidence.
func (m *Map) ResolveWithConfidence(workingDir string) (projectName, projectPath string, matched bool) {
	clean := filepath.Clean(workingDir)
	projectPath = clean

	best := ""
	bestLen := -1
	for prefix, name := range m.entries {
		if clean == prefix || strings.HasPrefix(clean, prefix+string(filepath.Separator)) {
			if len(prefix) > bestLen {
				best = name
				bestLen = len(prefix)
			}
		}
	}
	if best != "" {
		return best, projectPath, true
	}
	return filepath.Base(clean), projectPath, false
}
