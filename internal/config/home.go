package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DirName is the per-project ptw directory
	DirName = ".ptw"

	// FileName is the config file inside DirName
	FileName = "config.yaml"

	// EnvHome overrides the project root used to find DirName
	EnvHome = "PTW_HOME"
)

// ProjectRoot returns the directory whose .ptw/ holds config and permits
// Priority order:
//  1. PTW_HOME environment variable (if set)
//  2. Nearest ancestor of the working directory containing .ptw/
//  3. Current working directory (fallback)
func ProjectRoot() (string, error) {
	if home := os.Getenv(EnvHome); home != "" {
		return home, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}

	for current := cwd; ; {
		if info, err := os.Stat(filepath.Join(current, DirName)); err == nil && info.IsDir() {
			return current, nil
		}
		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}

	return cwd, nil
}

// Load finds the project root and loads its configuration.
func Load() (*Config, string, error) {
	root, err := ProjectRoot()
	if err != nil {
		return nil, "", err
	}
	cfg, err := LoadConfigFromDir(root)
	if err != nil {
		return nil, "", err
	}
	return cfg, root, nil
}
