package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/garnizeh/staffdir/internal/repository/guard"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	insecureJWTSecret = "supersecretkey"
	envPrefix         = "STAFFDIR_"
)

type Config struct {
	Addr          string        `yaml:"addr"`
	Env           string        `yaml:"env"`
	LogLevel      string        `yaml:"log_level"`
	JWTSecret     string        `yaml:"jwt_secret"`
	APITimeout    time.Duration `yaml:"timeout"`
	TokenDuration time.Duration `yaml:"token_duration"`

	Admin    AdminConfig    `yaml:"admin"`
	Workbook WorkbookConfig `yaml:"workbook"`
	Assets   AssetsConfig   `yaml:"assets"`
	Guard    guard.Config   `yaml:"guard"`
	Jobs     JobsConfig     `yaml:"jobs"`
	Reorder  ReorderConfig  `yaml:"reorder"`
	Labels   LabelsConfig   `yaml:"labels"`
	Login    LoginConfig    `yaml:"login"`
}

// AdminConfig is the single admin credential pair. PasswordHash is a bcrypt
// hash; Password is accepted in development only.
type AdminConfig struct {
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	PasswordHash string `yaml:"password_hash"`
}

type WorkbookConfig struct {
	Path string `yaml:"path"`
}

type AssetsConfig struct {
	// Driver is "local" or "s3"
	Driver          string `yaml:"driver"`
	Root            string `yaml:"root"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	UseSSL          bool   `yaml:"use_ssl"`
	Prefix          string `yaml:"prefix"`
	URLPrefix       string `yaml:"url_prefix"`
	MaxUploadBytes  int64  `yaml:"max_upload_bytes"`
}

type JobsConfig struct {
	DatabasePath string `yaml:"database_path"`
	Workers      int    `yaml:"workers"`
}

type ReorderConfig struct {
	SessionTTL  time.Duration `yaml:"session_ttl"`
	MaxSessions int           `yaml:"max_sessions"`
}

type LabelsConfig struct {
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

type LoginConfig struct {
	// Rate is the sustained number of login attempts per second
	Rate  float64 `yaml:"rate"`
	Burst int     `yaml:"burst"`
}

// LoadConfig builds the configuration from defaults, the optional YAML file at
// path and STAFFDIR_* environment variables, in that order. A .env file in
// the working directory is loaded first when present.
func LoadConfig(path string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	cfg := &Config{
		Addr:          ":8080",
		Env:           EnvDevelopment,
		LogLevel:      "info",
		JWTSecret:     insecureJWTSecret,
		APITimeout:    15 * time.Second,
		TokenDuration: 8 * time.Hour,
		Admin:         AdminConfig{Username: "admin"},
		Workbook:      WorkbookConfig{Path: "staffdir.xlsx"},
		Assets:        AssetsConfig{Driver: "local", Root: "assets"},
		Guard:         guard.DefaultConfig(),
		Jobs:          JobsConfig{DatabasePath: "staffdir-jobs.db", Workers: 2},
		Reorder:       ReorderConfig{SessionTTL: 30 * time.Minute, MaxSessions: 64},
		Labels:        LabelsConfig{CacheTTL: time.Minute},
		Login:         LoginConfig{Rate: 0.5, Burst: 5},
	}
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load %s: %w", path, err)
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"ADDR":                     &c.Addr,
		"ENV":                      &c.Env,
		"LOG_LEVEL":                &c.LogLevel,
		"JWT_SECRET":               &c.JWTSecret,
		"ADMIN_USERNAME":           &c.Admin.Username,
		"ADMIN_PASSWORD":           &c.Admin.Password,
		"ADMIN_PASSWORD_HASH":      &c.Admin.PasswordHash,
		"WORKBOOK_PATH":            &c.Workbook.Path,
		"ASSETS_DRIVER":            &c.Assets.Driver,
		"ASSETS_ROOT":              &c.Assets.Root,
		"ASSETS_ENDPOINT":          &c.Assets.Endpoint,
		"ASSETS_ACCESS_KEY_ID":     &c.Assets.AccessKeyID,
		"ASSETS_SECRET_ACCESS_KEY": &c.Assets.SecretAccessKey,
		"ASSETS_BUCKET":            &c.Assets.Bucket,
		"ASSETS_REGION":            &c.Assets.Region,
		"ASSETS_PREFIX":            &c.Assets.Prefix,
		"ASSETS_URL_PREFIX":        &c.Assets.URLPrefix,
		"JOBS_DATABASE_PATH":       &c.Jobs.DatabasePath,
	}
	for key, dst := range strs {
		if v, ok := lookupEnv(key); ok {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"TIMEOUT":        &c.APITimeout,
		"TOKEN_DURATION": &c.TokenDuration,
	}
	for key, dst := range durations {
		if v, ok := lookupEnv(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", envPrefix, key, err)
			}
			*dst = d
		}
	}

	if v, ok := lookupEnv("ASSETS_USE_SSL"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sASSETS_USE_SSL: %w", envPrefix, err)
		}
		c.Assets.UseSSL = b
	}
	if v, ok := lookupEnv("JOBS_WORKERS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sJOBS_WORKERS: %w", envPrefix, err)
		}
		c.Jobs.Workers = n
	}
	return nil
}

func lookupEnv(key string) (string, bool) {
	v := os.Getenv(envPrefix + key)
	return v, v != ""
}

// IsDevelopment reports whether the process runs in the development env.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Env, EnvDevelopment)
}

// Validate checks the configuration and fills nested defaults.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.New("addr is required")
	}
	if c.Env == "" {
		c.Env = EnvDevelopment
	}
	if !c.IsDevelopment() {
		if c.JWTSecret == "" || c.JWTSecret == insecureJWTSecret {
			return errors.New("jwt_secret must be set to a non-default value outside development")
		}
		if c.Admin.PasswordHash == "" {
			return errors.New("admin.password_hash is required outside development")
		}
	}
	if c.JWTSecret == "" {
		c.JWTSecret = insecureJWTSecret
	}
	if c.Admin.Username == "" {
		return errors.New("admin.username is required")
	}
	if c.Admin.Password == "" && c.Admin.PasswordHash == "" {
		return errors.New("admin.password or admin.password_hash is required")
	}
	if c.APITimeout <= 0 {
		c.APITimeout = 15 * time.Second
	}
	if c.TokenDuration <= 0 {
		c.TokenDuration = 8 * time.Hour
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	if c.Workbook.Path == "" {
		return errors.New("workbook.path is required")
	}

	switch strings.ToLower(c.Assets.Driver) {
	case "", "local":
		c.Assets.Driver = "local"
		if c.Assets.Root == "" {
			c.Assets.Root = "assets"
		}
		if c.Assets.URLPrefix == "" {
			c.Assets.URLPrefix = "/v1/assets/"
		}
	case "s3":
		c.Assets.Driver = "s3"
		if c.Assets.Endpoint == "" || c.Assets.Bucket == "" {
			return errors.New("assets.endpoint and assets.bucket are required for the s3 driver")
		}
		if c.Assets.AccessKeyID == "" || c.Assets.SecretAccessKey == "" {
			return errors.New("assets credentials are required for the s3 driver")
		}
		if c.Assets.URLPrefix == "" {
			c.Assets.URLPrefix = "/v1/assets/"
		}
	default:
		return fmt.Errorf("unknown assets.driver %q", c.Assets.Driver)
	}
	if c.Assets.MaxUploadBytes <= 0 {
		c.Assets.MaxUploadBytes = 10 << 20
	}

	d := guard.DefaultConfig()
	if c.Guard.Timeout <= 0 {
		c.Guard.Timeout = d.Timeout
	}
	if c.Guard.Retries < 0 {
		c.Guard.Retries = 0
	}
	if c.Guard.Backoff <= 0 {
		c.Guard.Backoff = d.Backoff
	}
	if c.Guard.CircuitFailureThreshold <= 0 {
		c.Guard.CircuitFailureThreshold = d.CircuitFailureThreshold
	}
	if c.Guard.CircuitReset <= 0 {
		c.Guard.CircuitReset = d.CircuitReset
	}

	if c.Jobs.DatabasePath == "" {
		c.Jobs.DatabasePath = "staffdir-jobs.db"
	}
	if c.Jobs.Workers <= 0 {
		c.Jobs.Workers = 2
	}
	if c.Reorder.SessionTTL <= 0 {
		c.Reorder.SessionTTL = 30 * time.Minute
	}
	if c.Reorder.MaxSessions <= 0 {
		c.Reorder.MaxSessions = 64
	}
	if c.Labels.CacheTTL < 0 {
		c.Labels.CacheTTL = 0
	}
	if c.Login.Rate <= 0 {
		c.Login.Rate = 0.5
	}
	if c.Login.Burst <= 0 {
		c.Login.Burst = 5
	}
	return nil
}
