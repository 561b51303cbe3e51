package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func validConfig() *Config {
	return &Config{
		Addr:          ":8080",
		Env:           EnvDevelopment,
		JWTSecret:     insecureJWTSecret,
		APITimeout:    5 * time.Second,
		TokenDuration: time.Hour,
		Admin:         AdminConfig{Username: "admin", Password: "secret"},
		Workbook:      WorkbookConfig{Path: "staffdir.xlsx"},
	}
}

func TestValidate_InsecureJWT_FailsWhenNotDevelopment(t *testing.T) {
	cfg := validConfig()
	cfg.Env = EnvProduction
	cfg.Admin.PasswordHash = "$2a$10$abcdefghijklmnopqrstuv"

	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected Validate to fail for insecure JWT in non-development env")
	}
}

func TestValidate_InsecureJWT_AllowsDevelopment(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected Validate to succeed in development env, got: %v", err)
	}
}

func TestValidate_ProductionNeedsPasswordHash(t *testing.T) {
	cfg := validConfig()
	cfg.Env = EnvProduction
	cfg.JWTSecret = "a-real-secret"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected plain password to be rejected in production")
	}
	cfg.Admin.PasswordHash = "$2a$10$abcdefghijklmnopqrstuv"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := map[string]func(c *Config){
		"no addr":        func(c *Config) { c.Addr = "" },
		"no username":    func(c *Config) { c.Admin.Username = "" },
		"no password":    func(c *Config) { c.Admin.Password = "" },
		"no workbook":    func(c *Config) { c.Workbook.Path = "" },
		"unknown driver": func(c *Config) { c.Assets.Driver = "ftp" },
		"s3 no bucket":   func(c *Config) { c.Assets = AssetsConfig{Driver: "s3", Endpoint: "minio:9000"} },
		"s3 no creds":    func(c *Config) { c.Assets = AssetsConfig{Driver: "s3", Endpoint: "minio:9000", Bucket: "b"} },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig()
			mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestValidate_DefaultsPopulated(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed unexpectedly: %v", err)
	}
	if cfg.Assets.Driver != "local" || cfg.Assets.Root != "assets" || cfg.Assets.URLPrefix != "/v1/assets/" {
		t.Fatalf("asset defaults not populated: %+v", cfg.Assets)
	}
	if cfg.Assets.MaxUploadBytes != 10<<20 {
		t.Fatalf("expected 10MB upload limit, got %d", cfg.Assets.MaxUploadBytes)
	}
	if cfg.Guard.Timeout <= 0 || cfg.Guard.CircuitFailureThreshold <= 0 || cfg.Guard.CircuitReset <= 0 {
		t.Fatalf("guard defaults not populated: %+v", cfg.Guard)
	}
	if cfg.Jobs.Workers != 2 || cfg.Jobs.DatabasePath == "" {
		t.Fatalf("jobs defaults not populated: %+v", cfg.Jobs)
	}
	if cfg.Reorder.SessionTTL != 30*time.Minute || cfg.Reorder.MaxSessions != 64 {
		t.Fatalf("reorder defaults not populated: %+v", cfg.Reorder)
	}
	if cfg.Login.Rate <= 0 || cfg.Login.Burst <= 0 {
		t.Fatalf("login defaults not populated: %+v", cfg.Login)
	}
}

func TestLoadConfig_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	y := "addr: \":9090\"\n" +
		"timeout: 3s\n" +
		"admin:\n  username: root\n  password: pw\n" +
		"workbook:\n  path: /data/staff.xlsx\n" +
		"guard:\n  retries: 4\n  circuit_reset: 1m\n" +
		"reorder:\n  session_ttl: 10m\n"
	if err := os.WriteFile(path, []byte(y), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("STAFFDIR_ADDR", ":7070")
	t.Setenv("STAFFDIR_JOBS_WORKERS", "6")
	t.Setenv("STAFFDIR_TOKEN_DURATION", "45m")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Addr != ":7070" {
		t.Fatalf("env must override file, got %q", cfg.Addr)
	}
	if cfg.APITimeout != 3*time.Second || cfg.TokenDuration != 45*time.Minute {
		t.Fatalf("durations: timeout=%v token=%v", cfg.APITimeout, cfg.TokenDuration)
	}
	if cfg.Admin.Username != "root" || cfg.Workbook.Path != "/data/staff.xlsx" {
		t.Fatalf("file values lost: %+v", cfg)
	}
	if cfg.Guard.Retries != 4 || cfg.Guard.CircuitReset != time.Minute || cfg.Guard.Timeout <= 0 {
		t.Fatalf("guard: %+v", cfg.Guard)
	}
	if cfg.Reorder.SessionTTL != 10*time.Minute || cfg.Jobs.Workers != 6 {
		t.Fatalf("reorder=%+v jobs=%+v", cfg.Reorder, cfg.Jobs)
	}
}

func TestLoadConfig_BadEnv(t *testing.T) {
	t.Setenv("STAFFDIR_JOBS_WORKERS", "many")
	if _, err := LoadConfig(""); err == nil {
		t.Fatalf("expected error for non-numeric worker count")
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("STAFFDIR_ADMIN_USERNAME=fromdotenv\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Setenv("STAFFDIR_ADMIN_USERNAME", "")
	os.Unsetenv("STAFFDIR_ADMIN_USERNAME")
	if err := loadDotEnv(path); err != nil {
		t.Fatalf("loadDotEnv: %v", err)
	}
	if got := os.Getenv("STAFFDIR_ADMIN_USERNAME"); got != "fromdotenv" {
		t.Fatalf("expected value from .env, got %q", got)
	}
	if err := loadDotEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("missing .env must be ignored: %v", err)
	}
}
