package config

import (
	"os"
	"path/filepath"
	"strings"
)

// ExpandPath expands a leading ~ and $VAR references in a path.
func ExpandPath(path string) string {
	if path == "" {
		return path
	}

	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
		}
	}

	return os.ExpandEnv(path)
}

// ProjectPath resolves p against the project directory unless it is already absolute.
// An empty projectDir means the current working directory.
func ProjectPath(projectDir, p string) string {
	p = ExpandPath(p)
	if filepath.IsAbs(p) {
		return p
	}
	if projectDir == "" {
		if wd, err := os.Getwd(); err == nil {
			projectDir = wd
		}
	}
	return filepath.Join(projectDir, p)
}
