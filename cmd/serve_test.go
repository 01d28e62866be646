package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

var serveEnvKeys = []string{
	"LBSIM_ADDR", "LBSIM_TICK_INTERVAL", "LBSIM_CONFIG", "LBSIM_PRESET",
	"LBSIM_LOG_LEVEL", "LBSIM_AUTOSTART", "LBSIM_ACCESS_LOG",
}

// clearServeEnv unsets every LBSIM_* variable and restores them after the test.
// Values loaded from dotenv files are removed by the same cleanup.
func clearServeEnv(t *testing.T) {
	t.Helper()
	for _, k := range serveEnvKeys {
		prev, ok := os.LookupEnv(k)
		os.Unsetenv(k)
		t.Cleanup(func() {
			if ok {
				os.Setenv(k, prev)
			} else {
				os.Unsetenv(k)
			}
		})
	}
}

func TestLoadServeSettings_Defaults(t *testing.T) {
	clearServeEnv(t)
	s, err := loadServeSettings("")
	if err != nil {
		t.Fatal(err)
	}
	if s.Addr != ":8080" || s.TickInterval != 100*time.Millisecond || s.LogLevel != "info" {
		t.Errorf("unexpected defaults: %+v", s)
	}
	if s.AutoStart || s.AccessLog {
		t.Errorf("autostart and access log must default to false: %+v", s)
	}
}

func TestLoadServeSettings_Environment(t *testing.T) {
	clearServeEnv(t)
	t.Setenv("LBSIM_TICK_INTERVAL", "250ms")
	t.Setenv("LBSIM_AUTOSTART", "true")
	t.Setenv("LBSIM_PRESET", "under-attack")

	s, err := loadServeSettings("")
	if err != nil {
		t.Fatal(err)
	}
	if s.TickInterval != 250*time.Millisecond || !s.AutoStart || s.Preset != "under-attack" {
		t.Errorf("environment not applied: %+v", s)
	}
}

func TestLoadServeSettings_DotenvFile(t *testing.T) {
	clearServeEnv(t)
	// GIVEN a dotenv file and an environment variable that conflicts with it
	path := filepath.Join(t.TempDir(), ".env")
	content := "LBSIM_ADDR=:9999\nLBSIM_LOG_LEVEL=debug\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LBSIM_ADDR", ":7000")

	// WHEN loading settings
	s, err := loadServeSettings(path)
	if err != nil {
		t.Fatal(err)
	}

	// THEN the file fills gaps and the environment wins conflicts
	if s.LogLevel != "debug" {
		t.Errorf("log level = %q, want debug from file", s.LogLevel)
	}
	if s.Addr != ":7000" {
		t.Errorf("addr = %q, want :7000 from environment", s.Addr)
	}
}

func TestLoadServeSettings_MissingDotenvIgnored(t *testing.T) {
	clearServeEnv(t)
	if _, err := loadServeSettings(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Errorf("missing dotenv file should be ignored, got %v", err)
	}
}

func TestLoadServeSettings_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"zero interval", map[string]string{"LBSIM_TICK_INTERVAL": "0s"}},
		{"unparseable interval", map[string]string{"LBSIM_TICK_INTERVAL": "often"}},
		{"unparseable bool", map[string]string{"LBSIM_AUTOSTART": "maybe"}},
		{"config and preset", map[string]string{"LBSIM_CONFIG": "a.yaml", "LBSIM_PRESET": "baseline"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			clearServeEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := loadServeSettings(""); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestServerConfig(t *testing.T) {
	cfg, err := serverConfig(ServeSettings{Preset: "heterogeneous"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Seed != 99 {
		t.Errorf("seed = %d, want preset seed 99", cfg.Seed)
	}

	cfg, err = serverConfig(ServeSettings{})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Seed != 42 {
		t.Errorf("seed = %d, want default 42", cfg.Seed)
	}

	if _, err := serverConfig(ServeSettings{ConfigPath: filepath.Join(t.TempDir(), "none.yaml")}); err == nil {
		t.Error("expected error for missing config file")
	}
}
