// Package config handles external configuration loading from JSON or YAML files and environment variables.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// DevAdminPassword is accepted in debug mode when no admin hash is configured
const DevAdminPassword = "admin123"

// Config holds all application configuration
type Config struct {
	Debug    bool     `json:"debug" yaml:"debug"`
	Server   Server   `json:"server" yaml:"server"`
	Database Database `json:"database" yaml:"database"`
	Site     Site     `json:"site" yaml:"site"`
	JWT      JWT      `json:"jwt" yaml:"jwt"`
	Admin    Admin    `json:"admin" yaml:"admin"`
	Redis    Redis    `json:"redis" yaml:"redis"`
	SMTP     SMTP     `json:"smtp" yaml:"smtp"`
	Uploads  Uploads  `json:"uploads" yaml:"uploads"`
	Log      Log      `json:"log" yaml:"log"`
	Checkout Checkout `json:"checkout" yaml:"checkout"`
}

// Server holds HTTP server configuration
type Server struct {
	Port         int    `json:"port" yaml:"port"`
	Host         string `json:"host" yaml:"host"`
	ReadTimeout  int    `json:"readTimeout" yaml:"read_timeout"`
	WriteTimeout int    `json:"writeTimeout" yaml:"write_timeout"`
}

// Database holds database configuration
type Database struct {
	Path string `json:"path" yaml:"path"`
}

// Site holds storefront branding and payment defaults
type Site struct {
	Name          string `json:"name" yaml:"name"`
	URL           string `json:"url" yaml:"url"`
	DefaultPixKey string `json:"defaultPixKey" yaml:"default_pix_key"`
}

// JWT holds admin session token configuration
type JWT struct {
	Secret          string `json:"secret" yaml:"secret"`
	ExpirationHours int    `json:"expirationHours" yaml:"expiration_hours"`
}

// Admin holds the single administrator's credentials
type Admin struct {
	Username     string `json:"username" yaml:"username"`
	PasswordHash string `json:"passwordHash" yaml:"password_hash"`
}

// Redis is optional; without it revoked sessions live in process memory
type Redis struct {
	URL string `json:"url" yaml:"url"`
}

// SMTP is optional; without a host emails are only logged
type SMTP struct {
	Host     string `json:"host" yaml:"host"`
	Port     string `json:"port" yaml:"port"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	From     string `json:"from" yaml:"from"`
	FromName string `json:"fromName" yaml:"from_name"`
}

// Uploads holds thumbnail upload settings
type Uploads struct {
	Dir       string `json:"dir" yaml:"dir"`
	MaxSizeMB int    `json:"maxSizeMB" yaml:"max_size_mb"`
}

// Log holds logging settings
type Log struct {
	Level string `json:"level" yaml:"level"`
}

// Checkout holds PIX session housekeeping settings
type Checkout struct {
	SessionTTLMinutes int `json:"sessionTTLMinutes" yaml:"session_ttl_minutes"`
}

// Load reads configuration from a JSON or YAML file (by extension) and
// overrides it with environment variables. A missing file is not an error.
func Load(configPath string) (*Config, error) {
	var cfg Config

	cleanPath := filepath.Clean(configPath)

	data, err := os.ReadFile(cleanPath)
	if err == nil {
		if err := decode(cleanPath, data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return json.Unmarshal(data, cfg)
	}
}

// applyEnvOverrides overrides config values with environment variables if set
func (c *Config) applyEnvOverrides() {
	if debug := os.Getenv("DEBUG"); debug != "" {
		c.Debug = debug == "true" || debug == "1"
	}

	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	setString(&c.Server.Host, "HOST")
	setString(&c.Database.Path, "DATABASE_PATH")
	setString(&c.JWT.Secret, "JWT_SECRET")
	setString(&c.Redis.URL, "REDIS_URL")
	setString(&c.Admin.Username, "ADMIN_USERNAME")
	setString(&c.Admin.PasswordHash, "ADMIN_PASSWORD_HASH")
	setString(&c.SMTP.Host, "SMTP_HOST")
	setString(&c.SMTP.Port, "SMTP_PORT")
	setString(&c.SMTP.Username, "SMTP_USERNAME")
	setString(&c.SMTP.Password, "SMTP_PASSWORD")
	setString(&c.SMTP.From, "SMTP_FROM")
	setString(&c.SMTP.FromName, "SMTP_FROM_NAME")
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Uploads.Dir, "UPLOAD_DIR")
	setString(&c.Site.DefaultPixKey, "DEFAULT_PIX_KEY")
	setString(&c.Site.URL, "SITE_URL")
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 15
	}
	if c.JWT.ExpirationHours == 0 {
		c.JWT.ExpirationHours = 12
	}
	if c.Site.Name == "" {
		c.Site.Name = "StreamingPlus"
	}
	if c.Site.URL == "" {
		c.Site.URL = fmt.Sprintf("http://localhost:%d", c.Server.Port)
	}
	if c.Admin.Username == "" {
		c.Admin.Username = "admin"
	}
	if c.SMTP.Port == "" {
		c.SMTP.Port = "587"
	}
	if c.SMTP.FromName == "" {
		c.SMTP.FromName = c.Site.Name
	}
	if c.Uploads.Dir == "" {
		c.Uploads.Dir = "uploads"
	}
	if c.Uploads.MaxSizeMB == 0 {
		c.Uploads.MaxSizeMB = 5
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
		if c.Debug {
			c.Log.Level = "debug"
		}
	}
	if c.Checkout.SessionTTLMinutes == 0 {
		c.Checkout.SessionTTLMinutes = 30
	}
}

// validate checks that all required configuration values are present
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}

	cleanDBPath := filepath.Clean(c.Database.Path)
	if !filepath.IsLocal(cleanDBPath) && !filepath.IsAbs(cleanDBPath) {
		return fmt.Errorf("invalid database path: potential path traversal detected")
	}

	if c.JWT.Secret == "" || c.JWT.Secret == "CHANGE_THIS_SECRET_IN_PRODUCTION" {
		if !c.Debug {
			return fmt.Errorf("JWT secret must be changed for production")
		}
	}

	if c.JWT.ExpirationHours < 0 {
		return fmt.Errorf("invalid jwt expiration: %d hours", c.JWT.ExpirationHours)
	}

	if c.Admin.PasswordHash == "" {
		if !c.Debug {
			return fmt.Errorf("admin password hash is required")
		}
	} else if _, err := bcrypt.Cost([]byte(c.Admin.PasswordHash)); err != nil {
		return fmt.Errorf("admin password hash is not a bcrypt hash: %w", err)
	}

	if c.SMTP.Host != "" && c.SMTP.From == "" {
		return fmt.Errorf("smtp from address is required when smtp host is set")
	}

	if c.Uploads.MaxSizeMB < 0 {
		return fmt.Errorf("invalid upload size limit: %d", c.Uploads.MaxSizeMB)
	}

	return nil
}

// Address returns the full server address (host:port)
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// GetDatabasePath returns the cleaned and validated database path
func (c *Config) GetDatabasePath() string {
	return filepath.Clean(c.Database.Path)
}

// AdminPasswordHash returns the configured hash, or a hash of DevAdminPassword
// when running in debug mode without one.
func (c *Config) AdminPasswordHash() ([]byte, error) {
	if c.Admin.PasswordHash != "" {
		return []byte(c.Admin.PasswordHash), nil
	}
	return bcrypt.GenerateFromPassword([]byte(DevAdminPassword), bcrypt.DefaultCost)
}
