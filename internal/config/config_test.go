package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

// TestDefaultConfig verifies default configuration values
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if cfg.Store.Driver != DriverFile {
		t.Errorf("Store.Driver = %q, want %q", cfg.Store.Driver, DriverFile)
	}
	if cfg.Store.Path != filepath.Join(".ptw", "permits") {
		t.Errorf("Store.Path = %q, want .ptw/permits", cfg.Store.Path)
	}
	if cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled = true, want false")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

// TestLoadConfigValidFile tests loading a full YAML config file
func TestLoadConfigValidFile(t *testing.T) {
	path := writeConfig(t, `log_level: debug
operator: j.smith
schema_dir: schemas
store:
  driver: postgres
  dsn: postgres://ptw@localhost/ptw?sslmode=disable
metrics:
  enabled: true
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.Operator != "j.smith" {
		t.Errorf("Operator = %q, want j.smith", cfg.Operator)
	}
	if cfg.SchemaDir != "schemas" {
		t.Errorf("SchemaDir = %q, want schemas", cfg.SchemaDir)
	}
	if cfg.Store.Driver != DriverPostgres {
		t.Errorf("Store.Driver = %q, want postgres", cfg.Store.Driver)
	}
	if cfg.Store.Path != "" {
		t.Errorf("Store.Path = %q, want empty for postgres", cfg.Store.Path)
	}
	if !strings.HasPrefix(cfg.Store.DSN, "postgres://") {
		t.Errorf("Store.DSN = %q", cfg.Store.DSN)
	}
	if !cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled = false, want true")
	}
}

// TestLoadConfigFileNotExists tests fallback to defaults when file doesn't exist
func TestLoadConfigFileNotExists(t *testing.T) {
	cfg, err := LoadConfig("/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("LoadConfig() should not error on missing file, got: %v", err)
	}
	if cfg.LogLevel != "info" || cfg.Store.Driver != DriverFile {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}

// TestLoadConfigInvalidYAML tests error handling for malformed YAML
func TestLoadConfigInvalidYAML(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
store: [this is not valid
`)
	if _, err := LoadConfig(path); err == nil {
		t.Error("LoadConfig() expected error for invalid YAML, got nil")
	}
}

// TestLoadConfigPartialStoreSection keeps defaults for keys the file omits
func TestLoadConfigPartialStoreSection(t *testing.T) {
	tests := []struct {
		name       string
		content    string
		wantDriver string
		wantPath   string
	}{
		{
			name:       "driver only picks driver default path",
			content:    "store:\n  driver: sqlite\n",
			wantDriver: DriverSQLite,
			wantPath:   filepath.Join(".ptw", "permits.db"),
		},
		{
			name:       "path only keeps default driver",
			content:    "store:\n  path: /var/lib/ptw\n",
			wantDriver: DriverFile,
			wantPath:   "/var/lib/ptw",
		},
		{
			name:       "explicit empty path wins",
			content:    "store:\n  path: \"\"\n",
			wantDriver: DriverFile,
			wantPath:   "",
		},
		{
			name:       "no store section",
			content:    "log_level: warn\n",
			wantDriver: DriverFile,
			wantPath:   filepath.Join(".ptw", "permits"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadConfig(writeConfig(t, tt.content))
			if err != nil {
				t.Fatalf("LoadConfig() error = %v", err)
			}
			if cfg.Store.Driver != tt.wantDriver {
				t.Errorf("Store.Driver = %q, want %q", cfg.Store.Driver, tt.wantDriver)
			}
			if cfg.Store.Path != tt.wantPath {
				t.Errorf("Store.Path = %q, want %q", cfg.Store.Path, tt.wantPath)
			}
		})
	}
}

// TestLoadConfigFromDir resolves relative paths against the project root
func TestLoadConfigFromDir(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, DirName), 0755); err != nil {
		t.Fatal(err)
	}
	content := "schema_dir: custom\nstore:\n  driver: sqlite\n"
	if err := os.WriteFile(filepath.Join(root, DirName, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfigFromDir(root)
	if err != nil {
		t.Fatalf("LoadConfigFromDir() error = %v", err)
	}
	if want := filepath.Join(root, ".ptw", "permits.db"); cfg.Store.Path != want {
		t.Errorf("Store.Path = %q, want %q", cfg.Store.Path, want)
	}
	if want := filepath.Join(root, "custom"); cfg.SchemaDir != want {
		t.Errorf("SchemaDir = %q, want %q", cfg.SchemaDir, want)
	}
}

// TestMergeWithFlags tests that non-nil flags override config values
func TestMergeWithFlags(t *testing.T) {
	cfg := DefaultConfig()
	level := "trace"
	operator := "supervisor"
	driver := DriverSQLite

	cfg.MergeWithFlags(&level, &operator, &driver, nil, nil)

	if cfg.LogLevel != "trace" {
		t.Errorf("LogLevel = %q, want trace", cfg.LogLevel)
	}
	if cfg.Operator != "supervisor" {
		t.Errorf("Operator = %q, want supervisor", cfg.Operator)
	}
	if cfg.Store.Path != filepath.Join(".ptw", "permits.db") {
		t.Errorf("Store.Path = %q, want sqlite default", cfg.Store.Path)
	}

	path := "/tmp/ptw.db"
	cfg.MergeWithFlags(nil, nil, nil, &path, nil)
	if cfg.Store.Path != path || cfg.LogLevel != "trace" {
		t.Errorf("unexpected merge result %+v", cfg)
	}
}

// TestValidate covers every rejection rule
func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid default", func(*Config) {}, ""},
		{"bad level", func(c *Config) { c.LogLevel = "verbose" }, "invalid log_level"},
		{"unknown driver", func(c *Config) { c.Store.Driver = "mongo" }, "invalid store.driver"},
		{"file without path", func(c *Config) { c.Store.Path = "" }, "store.path cannot be empty"},
		{"postgres without dsn", func(c *Config) { c.Store.Driver = DriverPostgres }, "store.dsn cannot be empty"},
		{"postgres with dsn", func(c *Config) {
			c.Store.Driver = DriverPostgres
			c.Store.DSN = "postgres://localhost/ptw"
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

// TestProjectRootPrefersEnv tests PTW_HOME takes precedence
func TestProjectRootPrefersEnv(t *testing.T) {
	home := t.TempDir()
	t.Setenv(EnvHome, home)

	root, err := ProjectRoot()
	if err != nil {
		t.Fatalf("ProjectRoot() error = %v", err)
	}
	if root != home {
		t.Errorf("ProjectRoot() = %q, want %q", root, home)
	}
}

// TestProjectRootFindsAncestor walks up to the nearest .ptw directory
func TestProjectRootFindsAncestor(t *testing.T) {
	t.Setenv(EnvHome, "")
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, DirName), 0755); err != nil {
		t.Fatal(err)
	}
	nested := filepath.Join(root, "site", "north")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	prevWD, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(nested); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(prevWD) })

	got, err := ProjectRoot()
	if err != nil {
		t.Fatalf("ProjectRoot() error = %v", err)
	}
	want, _ := filepath.EvalSymlinks(root)
	gotResolved, _ := filepath.EvalSymlinks(got)
	if gotResolved != want {
		t.Errorf("ProjectRoot() = %q, want %q", got, root)
	}
}
