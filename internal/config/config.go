package config

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Database       DatabaseConfig       `yaml:"database"`
	Auth           AuthConfig           `yaml:"auth"`
	AdminBootstrap AdminBootstrapConfig `yaml:"admin_bootstrap"`
	Logging        LoggingConfig        `yaml:"logging"`
	Tracing        TracingConfig        `yaml:"tracing"`
	Venue          VenueConfig          `yaml:"venue"`
	CSRF           CSRFConfig           `yaml:"csrf"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	CORS           CORSConfig           `yaml:"cors"`
	Environment    string               `yaml:"environment"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	BaseURL         string        `yaml:"base_url"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL            string `yaml:"url"`
	MaxConnections int    `yaml:"max_connections"`
	MaxIdle        int    `yaml:"max_idle"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	JWTExpiry time.Duration `yaml:"jwt_expiry"`
	Issuer    string        `yaml:"issuer"`
	// SessionIdle is how long an unused browser session is kept.
	SessionIdle time.Duration `yaml:"session_idle"`
}

// AdminBootstrapConfig creates the first admin account at startup when
// both Email and Password are set and the account does not exist yet.
type AdminBootstrapConfig struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	ServiceName  string  `yaml:"service_name"`
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate"`
}

// VenueConfig locates the hall on the map.
type VenueConfig struct {
	Name       string  `yaml:"name"`
	Address    string  `yaml:"address"`
	Latitude   float64 `yaml:"latitude"`
	Longitude  float64 `yaml:"longitude"`
	What3Words string  `yaml:"what3words"`
	// Geocode resolves Address through Nominatim instead of using the
	// configured coordinates.
	Geocode        bool   `yaml:"geocode"`
	NominatimURL   string `yaml:"nominatim_url"`
	NominatimEmail string `yaml:"nominatim_email"`
}

type CSRFConfig struct {
	Key string `yaml:"key"`
}

// RateLimitConfig throttles sign-in attempts per client address.
type RateLimitConfig struct {
	LoginAttempts int           `yaml:"login_attempts"`
	LoginWindow   time.Duration `yaml:"login_window"`
	// TrustedProxyCIDRs lists proxies whose X-Forwarded-For is believed.
	TrustedProxyCIDRs []string `yaml:"trusted_proxy_cidrs"`
}

// CORSConfig lists the sites allowed to read the public schedule from a
// browser, e.g. the parish church pages embedding upcoming events.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// IsProduction reports whether the server runs in production.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// CSRFKey returns the 32-byte key for form protection. Outside production
// an unset key is derived from the JWT secret.
func (c Config) CSRFKey() []byte {
	if len(c.CSRF.Key) >= 32 {
		return []byte(c.CSRF.Key[:32])
	}
	sum := sha256.Sum256([]byte("csrf:" + c.Auth.JWTSecret))
	return sum[:]
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			BaseURL:         "http://localhost:8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			MaxConnections: 10,
			MaxIdle:        2,
		},
		Auth: AuthConfig{
			JWTExpiry:   24 * time.Hour,
			Issuer:      "penmaen-hall",
			SessionIdle: 12 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Exporter:    "stdout",
			ServiceName: "penmaen-hall",
			SampleRate:  1.0,
		},
		Venue: VenueConfig{
			Name:         "Penmaen Parish Hall",
			Address:      "Penmaen, Gower, Swansea SA3 2HH",
			Latitude:     51.575396,
			Longitude:    -4.129141,
			What3Words:   "listed.wisdom.dividers",
			NominatimURL: "https://nominatim.openstreetmap.org",
		},
		RateLimit: RateLimitConfig{
			LoginAttempts: 5,
			LoginWindow:   15 * time.Minute,
		},
		Environment: "development",
	}
}

// Load reads configuration from defaults, an optional YAML file, a .env file
// in the working directory and the environment, in increasing precedence.
// An empty path skips the YAML file.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Host = getEnv("SERVER_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvInt("SERVER_PORT", cfg.Server.Port)
	cfg.Server.BaseURL = getEnv("SERVER_BASE_URL", cfg.Server.BaseURL)
	cfg.Server.ShutdownTimeout = getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)

	cfg.Database.URL = getEnv("DATABASE_URL", cfg.Database.URL)
	cfg.Database.MaxConnections = getEnvInt("DATABASE_MAX_CONNECTIONS", cfg.Database.MaxConnections)
	cfg.Database.MaxIdle = getEnvInt("DATABASE_MAX_IDLE_CONNECTIONS", cfg.Database.MaxIdle)

	cfg.Auth.JWTSecret = getEnv("JWT_SECRET", cfg.Auth.JWTSecret)
	if hours := getEnvInt("JWT_EXPIRY_HOURS", 0); hours > 0 {
		cfg.Auth.JWTExpiry = time.Duration(hours) * time.Hour
	}
	cfg.Auth.Issuer = getEnv("JWT_ISSUER", cfg.Auth.Issuer)
	cfg.Auth.SessionIdle = getEnvDuration("SESSION_IDLE_TIMEOUT", cfg.Auth.SessionIdle)

	cfg.AdminBootstrap.Email = getEnv("ADMIN_EMAIL", cfg.AdminBootstrap.Email)
	cfg.AdminBootstrap.Password = getEnv("ADMIN_PASSWORD", cfg.AdminBootstrap.Password)
	cfg.AdminBootstrap.Name = getEnv("ADMIN_NAME", cfg.AdminBootstrap.Name)

	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("LOG_FORMAT", cfg.Logging.Format)

	cfg.Tracing.Enabled = getEnvBool("TRACING_ENABLED", cfg.Tracing.Enabled)
	cfg.Tracing.Exporter = getEnv("TRACING_EXPORTER", cfg.Tracing.Exporter)
	cfg.Tracing.ServiceName = getEnv("TRACING_SERVICE_NAME", cfg.Tracing.ServiceName)
	cfg.Tracing.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Tracing.OTLPEndpoint)
	cfg.Tracing.SampleRate = getEnvFloat("TRACING_SAMPLE_RATE", cfg.Tracing.SampleRate)

	cfg.Venue.Name = getEnv("VENUE_NAME", cfg.Venue.Name)
	cfg.Venue.Address = getEnv("VENUE_ADDRESS", cfg.Venue.Address)
	cfg.Venue.Latitude = getEnvFloat("VENUE_LATITUDE", cfg.Venue.Latitude)
	cfg.Venue.Longitude = getEnvFloat("VENUE_LONGITUDE", cfg.Venue.Longitude)
	cfg.Venue.What3Words = getEnv("VENUE_WHAT3WORDS", cfg.Venue.What3Words)
	cfg.Venue.Geocode = getEnvBool("VENUE_GEOCODE", cfg.Venue.Geocode)
	cfg.Venue.NominatimURL = getEnv("NOMINATIM_API_URL", cfg.Venue.NominatimURL)
	cfg.Venue.NominatimEmail = getEnv("NOMINATIM_USER_EMAIL", cfg.Venue.NominatimEmail)

	cfg.CSRF.Key = getEnv("CSRF_KEY", cfg.CSRF.Key)

	cfg.RateLimit.LoginAttempts = getEnvInt("RATE_LIMIT_LOGIN_ATTEMPTS", cfg.RateLimit.LoginAttempts)
	cfg.RateLimit.LoginWindow = getEnvDuration("RATE_LIMIT_LOGIN_WINDOW", cfg.RateLimit.LoginWindow)
	if proxies := getEnv("TRUSTED_PROXY_CIDRS", ""); proxies != "" {
		cfg.RateLimit.TrustedProxyCIDRs = splitList(proxies)
	}
	if origins := getEnv("CORS_ALLOWED_ORIGINS", ""); origins != "" {
		cfg.CORS.AllowedOrigins = splitList(origins)
	}
	cfg.Environment = getEnv("ENVIRONMENT", cfg.Environment)
}

// Validate reports missing or unsafe settings.
func (c Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.IsProduction() {
		if len(c.Auth.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
		}
		if len(c.CSRF.Key) < 32 {
			return fmt.Errorf("CSRF_KEY must be at least 32 characters in production")
		}
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("TRACING_SAMPLE_RATE must be between 0 and 1")
	}
	if c.Venue.Latitude < -90 || c.Venue.Latitude > 90 || c.Venue.Longitude < -180 || c.Venue.Longitude > 180 {
		return fmt.Errorf("venue coordinates out of range")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
