package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultProjectFile is the optional YAML project file read from the working directory.
const DefaultProjectFile = "docuflow.yaml"

// DefaultFunctionName is the Edge Function deployed and smoke-tested when none is given.
const DefaultFunctionName = "process-emails"

// DatabaseConfig holds PostgreSQL database connection settings.
// URL takes precedence over the individual components when set.
type DatabaseConfig struct {
	URL                string `yaml:"url"`
	Host               string `yaml:"host"`
	Port               string `yaml:"port"`
	User               string `yaml:"user"`
	Password           string `yaml:"-"`
	Name               string `yaml:"name"`
	SSLMode            string `yaml:"sslmode"`
	MaxOpenConns       int    `yaml:"max_open_conns"`
	MaxIdleConns       int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeSec int    `yaml:"conn_max_lifetime_sec"`
}

// Configured reports whether enough is set to attempt a connection.
func (c DatabaseConfig) Configured() bool {
	return c.URL != "" || c.Host != ""
}

// MinIOConfig holds object storage settings for the migration archive.
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"-"`
	SecretKey string `yaml:"-"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// Configured reports whether the archive should be used.
func (c MinIOConfig) Configured() bool {
	return c.Endpoint != ""
}

// PlatformConfig holds the backend platform (Supabase) settings.
type PlatformConfig struct {
	URL            string `yaml:"url"`
	ServiceRoleKey string `yaml:"-"`
	ProjectRef     string `yaml:"project_ref"`
	FunctionName   string `yaml:"function_name"`
	RPCFunction    string `yaml:"rpc_function"`
	HTTPTimeoutSec int    `yaml:"http_timeout_sec"`
}

// GitConfig holds defaults for remote setup.
type GitConfig struct {
	Remote string `yaml:"remote"`
	Branch string `yaml:"branch"`
}

// AppConfig is the centralized configuration struct for the tool.
// Values come from defaults, then the YAML project file, then environment variables.
// Secrets are never read from the project file.
type AppConfig struct {
	Platform       PlatformConfig    `yaml:"platform"`
	Database       DatabaseConfig    `yaml:"database"`
	MinIO          MinIOConfig       `yaml:"minio"`
	Git            GitConfig         `yaml:"git"`
	Migrations     map[string]string `yaml:"migrations"`
	PushgatewayURL string            `yaml:"pushgateway_url"`
	LogLevel       string            `yaml:"log_level"`
	TimeZone       string            `yaml:"time_zone"`
}

// Defaults returns the configuration used when nothing else is provided.
func Defaults() *AppConfig {
	return &AppConfig{
		Platform: PlatformConfig{
			FunctionName:   DefaultFunctionName,
			RPCFunction:    "exec_sql",
			HTTPTimeoutSec: 30,
		},
		Database: DatabaseConfig{
			Port:               "5432",
			SSLMode:            "require",
			MaxOpenConns:       2,
			MaxIdleConns:       1,
			ConnMaxLifetimeSec: 300,
		},
		Git: GitConfig{
			Remote: "origin",
		},
		Migrations: map[string]string{},
		LogLevel:   "info",
		TimeZone:   "UTC",
	}
}

// Load builds the configuration. path names the YAML project file; a missing
// file at the default path is not an error, a missing explicit path is.
// Dotenv files are not read here; call LoadEnvFiles first.
func Load(path string) (*AppConfig, error) {
	cfg := Defaults()

	explicit := path != ""
	if !explicit {
		path = DefaultProjectFile
	}
	if err := mergeFile(cfg, path); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			err = nil
		}
		if err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	if cfg.Platform.ProjectRef == "" {
		cfg.Platform.ProjectRef = ProjectRefFromURL(cfg.Platform.URL)
	}
	return cfg, nil
}

// LoadEnvFiles loads dotenv files that exist, skipping the rest.
// A variable is taken from a file only when the environment leaves it unset
// or empty; earlier files win over later ones.
func LoadEnvFiles(files ...string) ([]string, error) {
	var loaded []string
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		vars, err := godotenv.Read(f)
		if err != nil {
			return loaded, fmt.Errorf("load %s: %w", f, err)
		}
		for k, v := range vars {
			if os.Getenv(k) != "" {
				continue
			}
			if err := os.Setenv(k, v); err != nil {
				return loaded, fmt.Errorf("set %s from %s: %w", k, f, err)
			}
		}
		loaded = append(loaded, f)
	}
	return loaded, nil
}

func mergeFile(cfg *AppConfig, path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read project file: %w", err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("parse project file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *AppConfig) {
	p := &cfg.Platform
	p.URL = getEnv("SUPABASE_URL", getEnv("NEXT_PUBLIC_SUPABASE_URL", p.URL))
	p.ServiceRoleKey = getEnv("SUPABASE_SERVICE_ROLE_KEY", p.ServiceRoleKey)
	p.ProjectRef = getEnv("SUPABASE_PROJECT_REF", p.ProjectRef)
	p.FunctionName = getEnv("DOCUFLOW_FUNCTION_NAME", p.FunctionName)
	p.RPCFunction = getEnv("DOCUFLOW_RPC_FUNCTION", p.RPCFunction)
	p.HTTPTimeoutSec = getEnvInt("HTTP_TIMEOUT_SEC", p.HTTPTimeoutSec)

	d := &cfg.Database
	d.URL = getEnv("DATABASE_URL", d.URL)
	d.Host = getEnv("DB_HOST", d.Host)
	d.Port = getEnv("DB_PORT", d.Port)
	d.User = getEnv("DB_USER", d.User)
	d.Password = getEnv("DB_PASSWORD", d.Password)
	d.Name = getEnv("DB_NAME", d.Name)
	d.SSLMode = getEnv("DB_SSLMODE", d.SSLMode)
	d.MaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", d.MaxOpenConns)
	d.MaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", d.MaxIdleConns)
	d.ConnMaxLifetimeSec = getEnvInt("DB_CONN_MAX_LIFETIME_SEC", d.ConnMaxLifetimeSec)

	m := &cfg.MinIO
	m.Endpoint = getEnv("MINIO_ENDPOINT", m.Endpoint)
	m.AccessKey = getEnv("MINIO_ACCESS_KEY", m.AccessKey)
	m.SecretKey = getEnv("MINIO_SECRET_KEY", m.SecretKey)
	m.Bucket = getEnv("MINIO_BUCKET", m.Bucket)
	m.UseSSL = getEnvBool("MINIO_USE_SSL", m.UseSSL)

	cfg.Git.Remote = getEnv("GIT_REMOTE", cfg.Git.Remote)
	cfg.Git.Branch = getEnv("GIT_BRANCH", cfg.Git.Branch)
	cfg.PushgatewayURL = getEnv("PUSHGATEWAY_URL", cfg.PushgatewayURL)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.TimeZone = getEnv("TZ", cfg.TimeZone)
}

// ProjectRefFromURL extracts the project reference from a platform URL of the
// form https://<ref>.supabase.co. It returns "" for anything else.
func ProjectRefFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	host := u.Hostname()
	if !strings.HasSuffix(host, ".supabase.co") {
		return ""
	}
	ref, _, _ := strings.Cut(host, ".")
	return ref
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}
