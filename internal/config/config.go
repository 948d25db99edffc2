package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/livetemplate/tinkercalc/internal/security"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// Config represents the tinkercalc configuration
type Config struct {
	Title       string         `yaml:"title"`
	Description string         `yaml:"description"`
	Server      ServerConfig   `yaml:"server"`
	Display     DisplayConfig  `yaml:"display"`
	Features    FeaturesConfig `yaml:"features"`
	Template    string         `yaml:"template,omitempty"` // Custom display template (relative to the served directory)
	Help        string         `yaml:"help,omitempty"`     // Custom help markdown (relative to the served directory)
	API         *APIConfig     `yaml:"api,omitempty"`
	Sessions    SessionsConfig `yaml:"sessions"`
	Metrics     MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port  int    `yaml:"port"`
	Host  string `yaml:"host"`
	Debug bool   `yaml:"debug"`
}

// DisplayConfig controls how operands are rendered
type DisplayConfig struct {
	Locale    string `yaml:"locale"`    // BCP 47 tag used for thousands separators (default: "en")
	Operators string `yaml:"operators"` // "unicode" (× ÷) or "ascii" (* /)
}

// FeaturesConfig holds feature flags
type FeaturesConfig struct {
	HotReload bool `yaml:"hot_reload"`
	Keyboard  bool `yaml:"keyboard"` // Accept keyboard input in the browser keypad
}

// SessionsConfig bounds the REST API's in-memory calculators
type SessionsConfig struct {
	TTL string `yaml:"ttl"` // Idle time before a session is dropped (e.g., "30m")
	Max int    `yaml:"max"` // Maximum concurrent sessions
}

// MetricsConfig toggles the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// APIConfig holds REST API configuration
type APIConfig struct {
	Enabled   bool             `yaml:"enabled"` // Enable REST API endpoints (default: false)
	CORS      *CORSConfig      `yaml:"cors,omitempty"`
	RateLimit *RateLimitConfig `yaml:"rate_limit,omitempty"`
	Auth      *AuthConfig      `yaml:"auth,omitempty"`
}

// AuthConfig holds authentication configuration for the API
type AuthConfig struct {
	// APIKey is the required API key for authentication.
	// Supports environment variable expansion (e.g., "${API_KEY}" or "$API_KEY")
	APIKey string `yaml:"api_key,omitempty"`
	// HeaderName is the HTTP header name for the API key (default: "X-API-Key")
	// Also supports "Authorization: Bearer <token>" format when set to "Authorization"
	HeaderName string `yaml:"header_name,omitempty"`
}

// CORSConfig holds CORS configuration for the API
type CORSConfig struct {
	Origins []string `yaml:"origins,omitempty"` // Allowed origins (e.g., ["http://localhost:3000", "*"])
}

// RateLimitConfig holds rate limiting configuration for the API
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"` // Rate limit in requests per second (default: 10)
	Burst             int     `yaml:"burst,omitempty"`               // Burst size (default: 20)
	MaxTrackedIPs     int     `yaml:"max_tracked_ips,omitempty"`     // Unique client IPs tracked before LRU eviction (default: 10000)
}

// GetCORSOrigins returns the configured CORS origins, or nil if not configured
func (c *APIConfig) GetCORSOrigins() []string {
	if c == nil || c.CORS == nil {
		return nil
	}
	return c.CORS.Origins
}

// GetRateLimitRPS returns the rate limit in requests per second (default: 10)
func (c *APIConfig) GetRateLimitRPS() float64 {
	if c == nil || c.RateLimit == nil || c.RateLimit.RequestsPerSecond <= 0 {
		return 10
	}
	return c.RateLimit.RequestsPerSecond
}

// GetRateLimitBurst returns the burst size (default: 20)
func (c *APIConfig) GetRateLimitBurst() int {
	if c == nil || c.RateLimit == nil || c.RateLimit.Burst <= 0 {
		return 20
	}
	return c.RateLimit.Burst
}

// GetMaxTrackedIPs returns how many client IPs the rate limiter tracks (default: 10000)
func (c *APIConfig) GetMaxTrackedIPs() int {
	if c == nil || c.RateLimit == nil || c.RateLimit.MaxTrackedIPs <= 0 {
		return 10000
	}
	return c.RateLimit.MaxTrackedIPs
}

// IsAuthEnabled returns true if API authentication is configured
func (c *APIConfig) IsAuthEnabled() bool {
	if c == nil || c.Auth == nil {
		return false
	}
	return c.Auth.GetAPIKey() != ""
}

// GetAPIKey returns the configured API key with environment variable expansion
func (c *AuthConfig) GetAPIKey() string {
	if c == nil || c.APIKey == "" {
		return ""
	}
	return os.ExpandEnv(c.APIKey)
}

// GetHeaderName returns the header name for authentication (default: "X-API-Key")
func (c *AuthConfig) GetHeaderName() string {
	if c == nil || c.HeaderName == "" {
		return "X-API-Key"
	}
	return c.HeaderName
}

// IsAPIEnabled returns whether the API is enabled
func (c *Config) IsAPIEnabled() bool {
	return c.API != nil && c.API.Enabled
}

// GetLocale returns the display locale (default: English)
func (c *Config) GetLocale() language.Tag {
	if c.Display.Locale == "" {
		return language.English
	}
	tag, err := language.Parse(c.Display.Locale)
	if err != nil {
		return language.English
	}
	return tag
}

// UseASCIIOperators returns true if × and ÷ should render as * and /
func (c *Config) UseASCIIOperators() bool {
	return c.Display.Operators == "ascii"
}

// GetSessionTTL returns the idle session lifetime (default: 30m)
func (c *Config) GetSessionTTL() time.Duration {
	if c.Sessions.TTL == "" {
		return 30 * time.Minute
	}
	d, err := time.ParseDuration(c.Sessions.TTL)
	if err != nil || d <= 0 {
		return 30 * time.Minute
	}
	return d
}

// GetMaxSessions returns the session cap (default: 1000)
func (c *Config) GetMaxSessions() int {
	if c.Sessions.Max <= 0 {
		return 1000
	}
	return c.Sessions.Max
}

// Validate checks values that cannot be silently defaulted.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Display.Locale != "" {
		if _, err := language.Parse(c.Display.Locale); err != nil {
			return fmt.Errorf("display.locale %q: %w", c.Display.Locale, err)
		}
	}
	switch c.Display.Operators {
	case "", "unicode", "ascii":
	default:
		return fmt.Errorf("display.operators must be \"unicode\" or \"ascii\", got %q", c.Display.Operators)
	}
	if c.Sessions.TTL != "" {
		if _, err := time.ParseDuration(c.Sessions.TTL); err != nil {
			return fmt.Errorf("sessions.ttl %q: %w", c.Sessions.TTL, err)
		}
	}
	for _, origin := range c.API.GetCORSOrigins() {
		if err := security.ValidateOrigin(origin); err != nil {
			return fmt.Errorf("api.cors.origins: %w", err)
		}
	}
	return nil
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Title:       "Calculator",
		Description: "A four-function calculator",
		Server: ServerConfig{
			Port:  8080,
			Host:  "localhost",
			Debug: false,
		},
		Display: DisplayConfig{
			Locale:    "en",
			Operators: "unicode",
		},
		Features: FeaturesConfig{
			HotReload: true,
			Keyboard:  true,
		},
		Sessions: SessionsConfig{
			TTL: "30m",
			Max: 1000,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Load loads configuration from a YAML file
// If the file doesn't exist, returns the default configuration
func Load(configPath string) (*Config, error) {
	// If no config path provided, use default
	if configPath == "" {
		return DefaultConfig(), nil
	}

	// Check if file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	// Read the config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML
	config := DefaultConfig() // Start with defaults
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}

	return config, nil
}

// LoadFromDir looks for tinkercalc.yaml or calc.yaml in the given directory
// If none is found, returns the default configuration
func LoadFromDir(dir string) (*Config, error) {
	for _, name := range ConfigFileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return DefaultConfig(), nil
}

// ConfigFileNames lists the file names LoadFromDir checks, in order.
var ConfigFileNames = []string{"tinkercalc.yaml", "calc.yaml"}

// Save writes the configuration to a YAML file
func (c *Config) Save(configPath string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
