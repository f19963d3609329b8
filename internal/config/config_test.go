package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Registry.Backend != BackendMemory {
		t.Errorf("Registry.Backend = %q, want %q", cfg.Registry.Backend, BackendMemory)
	}
	if cfg.Workflow.DispatchTimeout != 10*time.Second {
		t.Errorf("DispatchTimeout = %v, want 10s", cfg.Workflow.DispatchTimeout)
	}
	if cfg.Workflow.MaxLifetime != 15*time.Minute {
		t.Errorf("MaxLifetime = %v, want 15m", cfg.Workflow.MaxLifetime)
	}
	if cfg.Robot.MakeTime != 3*time.Second {
		t.Errorf("MakeTime = %v, want 3s", cfg.Robot.MakeTime)
	}
	if cfg.HTTP.Addr() != ":8083" {
		t.Errorf("HTTP.Addr() = %q, want :8083", cfg.HTTP.Addr())
	}
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("DB_URL", "postgres://db/test")
	t.Setenv("ORCH_PORT", "9090")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("SMOOTHIE_REGISTRY_BACKEND", "redis")
	t.Setenv("SMOOTHIE_WORKFLOW_DISPATCH_TIMEOUT", "250ms")
	t.Setenv("SMOOTHIE_ROBOT_NAMES", "alpha,beta")
	t.Setenv("SMOOTHIE_ROBOT_SILENT", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Database.URL != "postgres://db/test" {
		t.Errorf("Database.URL = %q", cfg.Database.URL)
	}
	if cfg.HTTP.Port != 9090 {
		t.Errorf("HTTP.Port = %d, want 9090", cfg.HTTP.Port)
	}
	if cfg.Log.Level != "DEBUG" {
		t.Errorf("Log.Level = %q, want DEBUG", cfg.Log.Level)
	}
	if cfg.Registry.Backend != BackendRedis {
		t.Errorf("Registry.Backend = %q, want redis", cfg.Registry.Backend)
	}
	if cfg.Workflow.DispatchTimeout != 250*time.Millisecond {
		t.Errorf("DispatchTimeout = %v, want 250ms", cfg.Workflow.DispatchTimeout)
	}
	if !reflect.DeepEqual(cfg.Robot.Names, []string{"alpha", "beta"}) {
		t.Errorf("Robot.Names = %v", cfg.Robot.Names)
	}
	if !cfg.Robot.Silent {
		t.Error("Robot.Silent = false, want true")
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "smoothie.yaml")
	data := `
registry:
  backend: sqlite
  fleet_file: fleet.yaml
sqlite:
  path: /tmp/robots.db
workflow:
  dispatch_timeout: 5s
  sweep_schedule: "*/2 * * * *"
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	// окружение важнее файла
	t.Setenv("SMOOTHIE_SQLITE_PATH", "/var/lib/robots.db")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Registry.Backend != BackendSQLite {
		t.Errorf("Registry.Backend = %q, want sqlite", cfg.Registry.Backend)
	}
	if cfg.Registry.FleetFile != "fleet.yaml" {
		t.Errorf("FleetFile = %q", cfg.Registry.FleetFile)
	}
	if cfg.SQLite.Path != "/var/lib/robots.db" {
		t.Errorf("SQLite.Path = %q, want env value", cfg.SQLite.Path)
	}
	if cfg.Workflow.DispatchTimeout != 5*time.Second {
		t.Errorf("DispatchTimeout = %v, want 5s", cfg.Workflow.DispatchTimeout)
	}
	if cfg.Workflow.SweepSchedule != "*/2 * * * *" {
		t.Errorf("SweepSchedule = %q", cfg.Workflow.SweepSchedule)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			HTTP:     HTTPConfig{Port: 8083},
			Registry: RegistryConfig{Backend: BackendPostgres},
			Orders:   OrdersConfig{Backend: BackendPostgres},
			Workflow: WorkflowConfig{
				DispatchTimeout: 10 * time.Second,
				MaxLifetime:     time.Minute,
				DrainTimeout:    time.Second,
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"unknown registry", func(c *Config) { c.Registry.Backend = "etcd" }, "registry.backend"},
		{"redis orders", func(c *Config) { c.Orders.Backend = BackendRedis }, "orders.backend"},
		{"zero timeout", func(c *Config) { c.Workflow.DispatchTimeout = 0 }, "workflow.dispatch_timeout"},
		{"negative drain", func(c *Config) { c.Workflow.DrainTimeout = -time.Second }, "workflow.drain_timeout"},
		{"lifetime too short", func(c *Config) { c.Workflow.MaxLifetime = 5 * time.Second }, "max_lifetime must exceed"},
		{"bad port", func(c *Config) { c.HTTP.Port = 70000 }, "http.port"},
		{"fail rate", func(c *Config) { c.Robot.FailRate = 1.5 }, "robot.fail_rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()

			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want containing %q", err, tt.wantErr)
			}
		})
	}
}
