// Package config handles application configuration loading from a YAML file
// with environment variable overrides.
package config

import (
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	contextutils "qrfeedback/internal/utils"

	"gopkg.in/yaml.v3"
)

// IssueOption is one selectable checklist entry for a location category.
type IssueOption struct {
	ID    string `json:"id" yaml:"id" validate:"required"`
	Label string `json:"label" yaml:"label" validate:"required"`
}

// CatalogEntry binds a location category to its ordered issue checklist.
type CatalogEntry struct {
	Category string        `json:"category" yaml:"category" validate:"required"`
	Aliases  []string      `json:"aliases,omitempty" yaml:"aliases,omitempty"`
	Issues   []IssueOption `json:"issues" yaml:"issues" validate:"required,dive"`
}

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig `json:"server" yaml:"server"`

	// Database configuration
	Database DatabaseConfig `json:"database" yaml:"database"`

	// Issue catalog: category -> ordered checklist, loaded once at startup
	Catalog []CatalogEntry `json:"catalog" yaml:"catalog"`

	// Notification channels
	Telegram TelegramConfig `json:"telegram" yaml:"telegram"`
	Email    EmailConfig    `json:"email" yaml:"email"`

	// QR artifact generation
	QR QRConfig `json:"qr" yaml:"qr"`

	// OpenTelemetry Configuration
	OpenTelemetry OpenTelemetryConfig `json:"open_telemetry" yaml:"open_telemetry"`

	// Internal fields
	IsTest bool `json:"is_test" yaml:"is_test"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Port          string   `json:"port" yaml:"port"`
	AdminUsername string   `json:"admin_username" yaml:"admin_username"`
	AdminPassword string   `json:"admin_password" yaml:"admin_password"`
	SessionSecret string   `json:"session_secret" yaml:"session_secret"`
	Debug         bool     `json:"debug" yaml:"debug"`
	LogLevel      string   `json:"log_level" yaml:"log_level"`
	AppBaseURL    string   `json:"app_base_url" yaml:"app_base_url"`
	CORSOrigins   []string `json:"cors_origins" yaml:"cors_origins"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	// Path is the SQLite database file path (":memory:" for an in-memory database)
	Path            string        `json:"path" yaml:"path"`
	MaxOpenConns    int           `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`
}

// TelegramConfig represents the outward Telegram notification channel.
// An empty bot token or chat id silently disables the channel.
type TelegramConfig struct {
	BotToken string `json:"bot_token" yaml:"bot_token"`
	ChatID   string `json:"chat_id" yaml:"chat_id"`
	// APIBaseURL overrides the Telegram API host, used in tests
	APIBaseURL string `json:"api_base_url" yaml:"api_base_url"`
}

// EmailConfig represents the optional SMTP notification channel
type EmailConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	Host        string `json:"host" yaml:"host"`
	Port        int    `json:"port" yaml:"port"`
	Username    string `json:"username" yaml:"username"`
	Password    string `json:"password" yaml:"password"`
	FromAddress string `json:"from_address" yaml:"from_address"`
	ToAddress   string `json:"to_address" yaml:"to_address"`
}

// QRConfig represents QR artifact generation settings
type QRConfig struct {
	// Dir is the directory QR PNG files are written to
	Dir string `json:"dir" yaml:"dir"`
	// Size is the generated image size in pixels
	Size int `json:"size" yaml:"size"`
}

// OpenTelemetryConfig holds all OpenTelemetry-related configuration
type OpenTelemetryConfig struct {
	Endpoint       string            `json:"endpoint" yaml:"endpoint"`
	Protocol       string            `json:"protocol" yaml:"protocol"` // "grpc" or "http"
	Insecure       bool              `json:"insecure" yaml:"insecure"`
	Headers        map[string]string `json:"headers" yaml:"headers"`
	ServiceName    string            `json:"service_name" yaml:"service_name"`
	ServiceVersion string            `json:"service_version" yaml:"service_version"`
	EnableTracing  bool              `json:"enable_tracing" yaml:"enable_tracing"`
	EnableMetrics  bool              `json:"enable_metrics" yaml:"enable_metrics"`
	EnableLogging  bool              `json:"enable_logging" yaml:"enable_logging"`
	SamplingRate   float64           `json:"sampling_rate" yaml:"sampling_rate"`
}

// DefaultCatalog returns the compiled-in category checklists. A config file
// may replace them wholesale; categories not listed fall back to the generic
// cleaning issue.
func DefaultCatalog() []CatalogEntry {
	return []CatalogEntry{
		{
			Category: "toilet",
			Aliases:  []string{"tuvalet"},
			Issues: []IssueOption{
				{ID: "dirty", Label: "Tuvalet genel temizliği gerekli"},
				{ID: "paper_out", Label: "Tuvalet kağıdı bitmiş"},
				{ID: "soap_out", Label: "Sıvı sabun tükenmiş"},
				{ID: "floor_wet", Label: "Zemin ıslak / kaygan"},
			},
		},
		{
			Category: "room",
			Aliases:  []string{"oda"},
			Issues: []IssueOption{
				{ID: "cleaning_needed", Label: "Oda temizliği gerekli"},
				{ID: "linen_change", Label: "Çarşaf / nevresim değişimi gerekli"},
				{ID: "room_vacated", Label: "Oda boşaldı (kontrol/temizlik gerekli)"},
				{ID: "trash_full", Label: "Çöp torbası dolu / boşaltılması gerekli"},
				{ID: "bathroom_issue", Label: "Oda içi lavabo/tuvalet ile ilgili problem"},
			},
		},
	}
}

// FallbackIssue is returned for categories without a catalog entry.
var FallbackIssue = IssueOption{ID: "dirty", Label: "Genel temizlik gerekli"}

// OptionsForCategory returns the ordered checklist for a location category.
// Category matching is case-insensitive and honors entry aliases; unknown
// categories get the single generic fallback issue.
func (c *Config) OptionsForCategory(category string) []IssueOption {
	normalized := strings.ToLower(strings.TrimSpace(category))
	for _, entry := range c.Catalog {
		if entry.Category == normalized {
			return entry.Issues
		}
		for _, alias := range entry.Aliases {
			if alias == normalized {
				return entry.Issues
			}
		}
	}
	return []IssueOption{FallbackIssue}
}

// IssueLabels returns the id -> label mapping for a location category.
func (c *Config) IssueLabels(category string) map[string]string {
	options := c.OptionsForCategory(category)
	labels := make(map[string]string, len(options))
	for _, opt := range options {
		labels[opt.ID] = opt.Label
	}
	return labels
}

// PublicFeedbackURL computes the public feedback URL for a location code,
// deterministically from the configured base URL.
func (c *Config) PublicFeedbackURL(code string) string {
	base := strings.TrimRight(c.Server.AppBaseURL, "/")
	return base + "/feedback?loc=" + code
}

// defaultConfig returns the built-in configuration used when no config file
// is present; environment variables still override every field.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:          "8080",
			AdminUsername: "admin",
			AdminPassword: "secret",
			SessionSecret: "dev-secret-change-it",
			LogLevel:      "info",
			AppBaseURL:    "http://localhost:8080",
		},
		Database: DatabaseConfig{
			Path:            "data.db",
			MaxOpenConns:    1,
			MaxIdleConns:    1,
			ConnMaxLifetime: DatabaseConnMaxLifetime,
		},
		Catalog: DefaultCatalog(),
		QR: QRConfig{
			Dir:  "static/qrcodes",
			Size: 256,
		},
		OpenTelemetry: OpenTelemetryConfig{
			Endpoint:       "localhost:4317",
			Protocol:       "grpc",
			Insecure:       true,
			ServiceName:    "qrfeedback",
			ServiceVersion: "dev",
			SamplingRate:   1.0,
		},
	}
}

// NewConfig loads configuration from a YAML file first, then overrides with
// environment variables. A missing config file is not an error: the built-in
// defaults are used, which matches the env-only deployment mode.
func NewConfig() (result0 *Config, err error) {
	config, err := loadConfigWithOverrides()
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to load config: %w", err)
	}

	config.overrideFromEnv()

	if len(config.Catalog) == 0 {
		config.Catalog = DefaultCatalog()
	}
	if err := config.validateCatalog(); err != nil {
		return nil, err
	}

	return config, nil
}

// validateCatalog checks every catalog entry against its validate tags and
// normalizes category names and aliases to lower case.
func (c *Config) validateCatalog() error {
	for i := range c.Catalog {
		entry := &c.Catalog[i]
		entry.Category = strings.ToLower(strings.TrimSpace(entry.Category))
		for j, alias := range entry.Aliases {
			entry.Aliases[j] = strings.ToLower(strings.TrimSpace(alias))
		}
		if err := contextutils.ValidateStruct(entry); err != nil {
			return contextutils.NewAppErrorWithCause(
				contextutils.ErrorCodeInvalidInput,
				contextutils.SeverityError,
				"Invalid issue catalog entry",
				entry.Category,
				err,
			)
		}
	}
	return nil
}

// overrideFromEnv overrides config values with environment variables using reflection
func (c *Config) overrideFromEnv() {
	overrideStructFromEnvWithPrefix(c, "")
}

// overrideStructFromEnvWithPrefix recursively overrides struct fields with environment variables
func overrideStructFromEnvWithPrefix(v interface{}, prefix string) {
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}

	if val.Kind() != reflect.Struct {
		return
	}

	typ := val.Type()
	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		// Skip unexported fields
		if !field.CanSet() {
			continue
		}

		// Get the yaml tag for the field
		yamlTag := fieldType.Tag.Get("yaml")
		if yamlTag == "" || yamlTag == "-" {
			continue
		}
		yamlTag = strings.Split(yamlTag, ",")[0]

		// Convert yaml tag to environment variable name
		envKey := strings.ToUpper(strings.ReplaceAll(yamlTag, "-", "_"))
		if prefix != "" {
			envKey = prefix + "_" + envKey
		}

		switch field.Kind() {
		case reflect.String:
			if envVal := os.Getenv(envKey); envVal != "" {
				field.SetString(envVal)
			}
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if envVal := os.Getenv(envKey); envVal != "" {
				if field.Type() == reflect.TypeOf(time.Duration(0)) {
					if d, err := time.ParseDuration(envVal); err == nil {
						field.SetInt(int64(d))
					}
				} else if intVal, err := strconv.ParseInt(envVal, 10, 64); err == nil {
					field.SetInt(intVal)
				}
			}
		case reflect.Float32, reflect.Float64:
			if envVal := os.Getenv(envKey); envVal != "" {
				if floatVal, err := strconv.ParseFloat(envVal, 64); err == nil {
					field.SetFloat(floatVal)
				}
			}
		case reflect.Bool:
			if envVal := os.Getenv(envKey); envVal != "" {
				if boolVal, err := strconv.ParseBool(envVal); err == nil {
					field.SetBool(boolVal)
				}
			}
		case reflect.Slice:
			if envVal := os.Getenv(envKey); envVal != "" {
				// Handle string slices (like CORS_ORIGINS)
				if field.Type().Elem().Kind() == reflect.String {
					slice := strings.Split(envVal, ",")
					field.Set(reflect.ValueOf(slice))
				}
			}
		case reflect.Struct:
			if field.CanAddr() {
				fieldPrefix := strings.ToUpper(strings.ReplaceAll(yamlTag, "-", "_"))
				if prefix != "" {
					fieldPrefix = prefix + "_" + fieldPrefix
				}
				overrideStructFromEnvWithPrefix(field.Addr().Interface(), fieldPrefix)
			}
		}
	}
}

// loadConfigWithOverrides loads the config file with potential local overrides
func loadConfigWithOverrides() (result0 *Config, err error) {
	path := os.Getenv("FEEDBACK_CONFIG_FILE")
	if path == "" {
		path = "config.yaml"
	}

	config, err := loadConfigFromFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaultConfig(), nil
		}
		return nil, err
	}

	// Fill unset scalar fields from defaults so a partial file stays usable
	config.applyDefaults()
	return config, nil
}

// applyDefaults fills zero-valued required fields from the built-in defaults
func (c *Config) applyDefaults() {
	defaults := defaultConfig()
	if c.Server.Port == "" {
		c.Server.Port = defaults.Server.Port
	}
	if c.Server.AdminUsername == "" {
		c.Server.AdminUsername = defaults.Server.AdminUsername
	}
	if c.Server.AdminPassword == "" {
		c.Server.AdminPassword = defaults.Server.AdminPassword
	}
	if c.Server.SessionSecret == "" {
		c.Server.SessionSecret = defaults.Server.SessionSecret
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = defaults.Server.LogLevel
	}
	if c.Server.AppBaseURL == "" {
		c.Server.AppBaseURL = defaults.Server.AppBaseURL
	}
	if c.Database.Path == "" {
		c.Database.Path = defaults.Database.Path
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = defaults.Database.MaxOpenConns
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = defaults.Database.MaxIdleConns
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = defaults.Database.ConnMaxLifetime
	}
	if c.QR.Dir == "" {
		c.QR.Dir = defaults.QR.Dir
	}
	if c.QR.Size == 0 {
		c.QR.Size = defaults.QR.Size
	}
	if c.OpenTelemetry.ServiceName == "" {
		c.OpenTelemetry.ServiceName = defaults.OpenTelemetry.ServiceName
	}
	if c.OpenTelemetry.ServiceVersion == "" {
		c.OpenTelemetry.ServiceVersion = defaults.OpenTelemetry.ServiceVersion
	}
	if c.OpenTelemetry.Protocol == "" {
		c.OpenTelemetry.Protocol = defaults.OpenTelemetry.Protocol
	}
	if c.OpenTelemetry.SamplingRate == 0 {
		c.OpenTelemetry.SamplingRate = defaults.OpenTelemetry.SamplingRate
	}
}

// loadConfigFromFile loads configuration from a specific file
func loadConfigFromFile(path string) (result0 *Config, err error) {
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := yaml.Unmarshal(yamlFile, &config); err != nil {
		return nil, err
	}

	return &config, nil
}
