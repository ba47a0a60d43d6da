package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	HTTPPort string        `koanf:"http_port"`
	Redis    RedisConfig   `koanf:"redis"`
	Session  SessionConfig `koanf:"session"`
	Backend  BackendConfig `koanf:"backend"`
	Email    EmailConfig   `koanf:"email"`
	Geo      GeoConfig     `koanf:"geo"`
	Catalog  CatalogConfig `koanf:"catalog"`
	Upload   UploadConfig  `koanf:"upload"`
	CORS     CORSConfig    `koanf:"cors"`
}

type RedisConfig struct {
	Addr string `koanf:"addr"`
	// Empty Addr keeps sessions in process memory.
	LoginLimit  int           `koanf:"login_limit"`
	LoginWindow time.Duration `koanf:"login_window"`
}

type SessionConfig struct {
	JWTSecret  string        `koanf:"jwt_secret"`
	CookieName string        `koanf:"cookie_name"`
	TTL        time.Duration `koanf:"ttl"`
	Secure     bool          `koanf:"secure"`
}

type BackendConfig struct {
	URL     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`
}

type EmailConfig struct {
	URL     string `koanf:"url"`
	Enabled bool   `koanf:"enabled"`
	Subject string `koanf:"subject"`
}

type GeoConfig struct {
	GeocodeURL   string  `koanf:"geocode_url"`
	IPLookupURL  string  `koanf:"ip_lookup_url"`
	RatePerSec   float64 `koanf:"rate_per_sec"`
	Burst        int     `koanf:"burst"`
	SuggestLimit int     `koanf:"suggest_limit"`
}

type CatalogConfig struct {
	Refresh  string        `koanf:"refresh"`
	CacheTTL time.Duration `koanf:"cache_ttl"`
}

type UploadConfig struct {
	Presign   bool          `koanf:"presign"`
	Tick      time.Duration `koanf:"tick"`
	Step      int           `koanf:"step"`
	// Retain is how long a finished job can still be reconciled.
	Retain    time.Duration `koanf:"retain"`
	MaxMemory int64         `koanf:"max_memory"`
}

type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

func Default() *Config {
	return &Config{
		HTTPPort: "8080",
		Redis: RedisConfig{
			Addr:        "localhost:6379",
			LoginLimit:  10,
			LoginWindow: time.Minute,
		},
		Session: SessionConfig{
			JWTSecret:  "dev-secret-change-me",
			CookieName: "kx_session",
			TTL:        24 * time.Hour,
		},
		Backend: BackendConfig{
			URL:     "http://localhost:3001/",
			Timeout: 5 * time.Second,
		},
		Email: EmailConfig{
			URL:     "http://localhost:5000",
			Subject: "Votre commande Kodak Express",
		},
		Geo: GeoConfig{
			GeocodeURL:   "https://data.geopf.fr/geocodage",
			IPLookupURL:  "https://ipwho.is",
			RatePerSec:   5,
			Burst:        10,
			SuggestLimit: 5,
		},
		Catalog: CatalogConfig{
			Refresh:  "@every 5m",
			CacheTTL: 5 * time.Minute,
		},
		Upload: UploadConfig{
			Tick:      150 * time.Millisecond,
			Step:      10,
			Retain:    30 * time.Minute,
			MaxMemory: 32 << 20,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
		},
	}
}

// legacyEnv maps the gateway's original variable names onto config keys.
var legacyEnv = map[string]string{
	"HTTP_PORT":   "http_port",
	"REDIS_ADDR":  "redis.addr",
	"JWT_SECRET":  "session.jwt_secret",
	"BACKEND_URL": "backend.url",
}

// Load layers defaults, the optional YAML file at path, then environment
// overrides (STOREFRONT_BACKEND_URL -> backend.url).
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("accessing config %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue("", ".", func(key, value string) (string, interface{}) {
		if mapped, ok := legacyEnv[key]; ok {
			return mapped, value
		}
		return "", nil
	}), nil); err != nil {
		return nil, fmt.Errorf("loading legacy env: %w", err)
	}

	if err := k.Load(env.Provider("STOREFRONT_", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if !strings.HasSuffix(cfg.Backend.URL, "/") {
		cfg.Backend.URL += "/"
	}
	return cfg, nil
}

// envKey turns STOREFRONT_SESSION_JWT_SECRET into session.jwt_secret. Only the
// first underscore after the prefix separates the section from the field.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, "STOREFRONT_"))
	if section, field, ok := strings.Cut(s, "_"); ok && sections[section] {
		return section + "." + field
	}
	return s
}

var sections = map[string]bool{
	"redis": true, "session": true, "backend": true, "email": true,
	"geo": true, "catalog": true, "upload": true, "cors": true,
}

func (c *Config) Validate() error {
	if c.HTTPPort == "" {
		return fmt.Errorf("http_port is required")
	}
	if c.Backend.URL == "" {
		return fmt.Errorf("backend.url is required")
	}
	if len(c.Session.JWTSecret) < 8 {
		return fmt.Errorf("session.jwt_secret must be at least 8 characters")
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session.ttl must be positive")
	}
	if c.Upload.Step <= 0 || c.Upload.Step > 100 {
		return fmt.Errorf("upload.step must be in 1..100")
	}
	if c.Upload.Tick <= 0 {
		return fmt.Errorf("upload.tick must be positive")
	}
	if c.Geo.RatePerSec <= 0 {
		return fmt.Errorf("geo.rate_per_sec must be positive")
	}
	return nil
}
