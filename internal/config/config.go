// Package config loads the server configuration.
//
// Sources are layered, later ones winning:
//  1. built-in defaults (setDefaults)
//  2. an optional YAML file
//  3. a .env file in the working directory, if present
//  4. real environment variables, matched through `env` struct tags
//
// godotenv never overrides variables that are already set, so step 4 always
// beats step 3.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Storage drivers.
const (
	StorageLocal = "local"
	StorageDrive = "drive"
)

// Config is the full server configuration.
type Config struct {
	Server struct {
		Port           int      `yaml:"port" env:"PORT"`
		PublicURL      string   `yaml:"public_url" env:"PUBLIC_URL"`
		AllowedOrigins []string `yaml:"allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
	} `yaml:"server"`

	Database struct {
		Path string `yaml:"path" env:"DB_PATH"`
	} `yaml:"database"`

	Logging struct {
		Level  string `yaml:"level" env:"LOG_LEVEL"`
		Format string `yaml:"format" env:"LOG_FORMAT"`
	} `yaml:"logging"`

	Auth struct {
		JWTSecret          string        `yaml:"jwt_secret" env:"JWT_SECRET"`
		SessionTTL         time.Duration `yaml:"session_ttl" env:"SESSION_TTL"`
		AdminSessionTTL    time.Duration `yaml:"admin_session_ttl" env:"ADMIN_SESSION_TTL"`
		CookieSecure       bool          `yaml:"cookie_secure" env:"COOKIE_SECURE"`
		GoogleClientID     string        `yaml:"google_client_id" env:"GOOGLE_CLIENT_ID"`
		GoogleClientSecret string        `yaml:"google_client_secret" env:"GOOGLE_CLIENT_SECRET"`
		GoogleCallbackURL  string        `yaml:"google_callback_url" env:"GOOGLE_CALLBACK_URL"`
		AllowedEmailDomain string        `yaml:"allowed_email_domain" env:"ALLOWED_EMAIL_DOMAIN"`
		// Where the browser lands after a successful sign-in.
		LoginRedirect string `yaml:"login_redirect" env:"LOGIN_REDIRECT"`
	} `yaml:"auth"`

	Admin struct {
		Username     string `yaml:"username" env:"ADMIN_USERNAME"`
		PasswordHash string `yaml:"password_hash" env:"ADMIN_PASSWORD_HASH"` // bcrypt
	} `yaml:"admin"`

	Storage struct {
		Driver string `yaml:"driver" env:"STORAGE_DRIVER"`

		Local struct {
			Dir     string `yaml:"dir" env:"STORAGE_LOCAL_DIR"`
			BaseURL string `yaml:"base_url" env:"STORAGE_LOCAL_BASE_URL"`
		} `yaml:"local"`

		Drive struct {
			ClientID     string `yaml:"client_id" env:"GOOGLE_DRIVE_CLIENT_ID"`
			ClientSecret string `yaml:"client_secret" env:"GOOGLE_DRIVE_CLIENT_SECRET"`
			RefreshToken string `yaml:"refresh_token" env:"GOOGLE_DRIVE_REFRESH_TOKEN"`
			FolderID     string `yaml:"folder_id" env:"GOOGLE_DRIVE_FOLDER_ID"`
		} `yaml:"drive"`
	} `yaml:"storage"`

	Upload struct {
		MaxBytes int64 `yaml:"max_bytes" env:"UPLOAD_MAX_BYTES"`
	} `yaml:"upload"`
}

// Load builds a Config from all sources. path may be empty, in which case no
// YAML file is read; a non-empty path that does not exist is an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	setDefaults(cfg)

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	if err := processStructFields(cfg); err != nil {
		return nil, fmt.Errorf("loading from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func setDefaults(cfg *Config) {
	cfg.Server.Port = 8080
	cfg.Server.AllowedOrigins = []string{"http://localhost:3000"}

	cfg.Database.Path = "data/exam-archive.db"

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"

	cfg.Auth.SessionTTL = 7 * 24 * time.Hour
	cfg.Auth.AdminSessionTTL = 12 * time.Hour
	cfg.Auth.AllowedEmailDomain = "g.ntu.edu.tw"
	cfg.Auth.LoginRedirect = "/"

	cfg.Storage.Driver = StorageLocal
	cfg.Storage.Local.Dir = "data/files"
	cfg.Storage.Local.BaseURL = "/files"

	cfg.Upload.MaxBytes = 32 << 20
}

// Validate checks the settings that would otherwise only fail at request time.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if len(c.Auth.JWTSecret) < 16 {
		return errors.New("JWT secret must be at least 16 characters")
	}
	if c.Auth.SessionTTL <= 0 || c.Auth.AdminSessionTTL <= 0 {
		return errors.New("session lifetimes must be positive")
	}

	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Logging.Format)
	}

	switch c.Storage.Driver {
	case StorageLocal:
		if c.Storage.Local.Dir == "" {
			return errors.New("local storage directory is required")
		}
	case StorageDrive:
		d := c.Storage.Drive
		if d.ClientID == "" || d.ClientSecret == "" || d.RefreshToken == "" {
			return errors.New("drive storage requires client id, client secret and refresh token")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	return nil
}

// GoogleEnabled reports whether Google sign-in is configured.
func (c *Config) GoogleEnabled() bool {
	return c.Auth.GoogleClientID != "" && c.Auth.GoogleClientSecret != ""
}

// AdminEnabled reports whether the moderation login is configured.
func (c *Config) AdminEnabled() bool {
	return c.Admin.Username != "" && c.Admin.PasswordHash != ""
}

// CallbackURL returns the OAuth redirect URL, derived from the public URL
// when not set explicitly.
func (c *Config) CallbackURL() string {
	if c.Auth.GoogleCallbackURL != "" {
		return c.Auth.GoogleCallbackURL
	}
	base := c.Server.PublicURL
	if base == "" {
		base = fmt.Sprintf("http://localhost:%d", c.Server.Port)
	}
	return strings.TrimRight(base, "/") + "/auth/google/callback"
}
