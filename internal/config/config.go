package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/blacktop/crosspub/internal/xpost"
	"github.com/blacktop/crosspub/internal/xpost/tiktok"
)

// DefaultPath is read when no config file is named; it may be absent.
const DefaultPath = "crosspub.yaml"

const envPrefix = "CROSSPUB_"

// Config contains runtime configuration values.
type Config struct {
	Environment string        `yaml:"environment"`
	Server      Server        `yaml:"server"`
	HTTPTimeout time.Duration `yaml:"http_timeout"`
	Polling     Polling       `yaml:"polling"`
	TikTok      TikTok        `yaml:"tiktok"`
	Verbose     bool          `yaml:"verbose"`
	LogFormat   string        `yaml:"log_format"`
}

// Server configures the HTTP API.
type Server struct {
	Addr               string        `yaml:"addr"`
	MaxBodyBytes       int64         `yaml:"max_body_bytes"`
	CORSAllowedOrigins []string      `yaml:"cors_allowed_origins"`
	HideInternalErrors bool          `yaml:"hide_internal_errors"`
	ReadTimeout        time.Duration `yaml:"read_timeout"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
}

// Polling bounds the media processing status loops.
type Polling struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	XDefaultDelay  time.Duration `yaml:"x_default_delay"`
	InstagramDelay time.Duration `yaml:"instagram_delay"`
}

// TikTok holds direct-post settings.
type TikTok struct {
	PrivacyLevel string `yaml:"privacy_level"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Environment: "development",
		Server: Server{
			Addr:               ":8080",
			MaxBodyBytes:       256 << 20,
			CORSAllowedOrigins: []string{"*"},
			ReadTimeout:        2 * time.Minute,
			WriteTimeout:       10 * time.Minute,
		},
		HTTPTimeout: 60 * time.Second,
		Polling: Polling{
			MaxAttempts:    xpost.DefaultMaxAttempts,
			XDefaultDelay:  5 * time.Second,
			InstagramDelay: 3 * time.Second,
		},
		TikTok:    TikTok{PrivacyLevel: tiktok.DefaultPrivacyLevel},
		LogFormat: "auto",
	}
}

// Load layers the YAML file at path, a .env file and CROSSPUB_* variables
// over the defaults. An empty path means DefaultPath.
func Load(path string) (Config, error) {
	cfg := Default()

	optional := path == ""
	if optional {
		path = DefaultPath
	}
	data, err := os.ReadFile(filepath.Clean(path))
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file: %w", err)
		}
	case optional && errors.Is(err, fs.ErrNotExist):
	default:
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	_ = godotenv.Load()

	cfg.Environment = getEnv("ENV", cfg.Environment)
	cfg.Server.Addr = getEnv("ADDR", cfg.Server.Addr)
	cfg.Server.MaxBodyBytes = int64(getInt("MAX_BODY_BYTES", int(cfg.Server.MaxBodyBytes)))
	cfg.Server.CORSAllowedOrigins = getList("CORS_ALLOWED_ORIGINS", cfg.Server.CORSAllowedOrigins)
	cfg.Server.HideInternalErrors = getBool("HIDE_INTERNAL_ERRORS", cfg.Server.HideInternalErrors)
	cfg.Server.ReadTimeout = getDuration("READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = getDuration("WRITE_TIMEOUT", cfg.Server.WriteTimeout)
	cfg.HTTPTimeout = getDuration("HTTP_TIMEOUT", cfg.HTTPTimeout)
	cfg.Polling.MaxAttempts = getInt("POLL_MAX_ATTEMPTS", cfg.Polling.MaxAttempts)
	cfg.Polling.XDefaultDelay = getDuration("X_POLL_DELAY", cfg.Polling.XDefaultDelay)
	cfg.Polling.InstagramDelay = getDuration("INSTAGRAM_POLL_DELAY", cfg.Polling.InstagramDelay)
	cfg.TikTok.PrivacyLevel = getEnv("TIKTOK_PRIVACY_LEVEL", cfg.TikTok.PrivacyLevel)
	cfg.Verbose = getBool("VERBOSE", cfg.Verbose)
	cfg.LogFormat = getEnv("LOG_FORMAT", cfg.LogFormat)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the adapters cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, fmt.Errorf("server.max_body_bytes must be positive"))
	}
	if c.Polling.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("polling.max_attempts must be positive"))
	}
	if c.HTTPTimeout < 0 {
		errs = append(errs, fmt.Errorf("http_timeout must not be negative"))
	}
	if !lo.Contains(tiktok.PrivacyLevels, c.TikTok.PrivacyLevel) {
		errs = append(errs, fmt.Errorf("tiktok.privacy_level %q must be one of %s", c.TikTok.PrivacyLevel, strings.Join(tiktok.PrivacyLevels, ", ")))
	}
	if !lo.Contains([]string{"auto", "text", "json"}, c.LogFormat) {
		errs = append(errs, fmt.Errorf("log_format %q must be auto, text or json", c.LogFormat))
	}
	return errors.Join(errs...)
}

// Credentials are the OAuth client settings for one platform.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// AccessToken reads CROSSPUB_<PLATFORM>_ACCESS_TOKEN.
func AccessToken(p xpost.Platform) (string, error) {
	key := EnvKey(p, "ACCESS_TOKEN")
	token := strings.TrimSpace(os.Getenv(key))
	if token == "" {
		return "", xpost.MissingEnvError{Provider: string(p), Variables: []string{key}}
	}
	return token, nil
}

// ClientCredentials reads the client id, secret and redirect URI for p. The
// secret may be empty so that callers can prompt for it.
func ClientCredentials(p xpost.Platform) (Credentials, error) {
	creds := Credentials{
		ClientID:     strings.TrimSpace(os.Getenv(EnvKey(p, "CLIENT_ID"))),
		ClientSecret: os.Getenv(EnvKey(p, "CLIENT_SECRET")),
		RedirectURI:  strings.TrimSpace(os.Getenv(EnvKey(p, "REDIRECT_URI"))),
	}
	var missing []string
	if creds.ClientID == "" {
		missing = append(missing, EnvKey(p, "CLIENT_ID"))
	}
	if creds.RedirectURI == "" {
		missing = append(missing, EnvKey(p, "REDIRECT_URI"))
	}
	if len(missing) > 0 {
		return Credentials{}, xpost.MissingEnvError{Provider: string(p), Variables: missing}
	}
	return creds, nil
}

// EnvKey names the CROSSPUB_<PLATFORM>_<SUFFIX> variable.
func EnvKey(p xpost.Platform, suffix string) string {
	return envPrefix + strings.ToUpper(string(p)) + "_" + suffix
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(envPrefix + key); ok {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(envPrefix + key); ok {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(envPrefix + key); ok {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(envPrefix + key); ok {
		switch strings.ToLower(v) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
	}
	return def
}

func getList(key string, def []string) []string {
	if v, ok := os.LookupEnv(envPrefix + key); ok {
		parts := strings.Split(v, ",")
		var cleaned []string
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				cleaned = append(cleaned, trimmed)
			}
		}
		if len(cleaned) > 0 {
			return cleaned
		}
	}
	return def
}
