package app

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"docqa/cmd/internal/auth/credstore"
	"docqa/cmd/internal/auth/session"
	"docqa/cmd/internal/forms"
	"docqa/cmd/security/password"
)

// ErrConfig is returned for invalid runtime configuration.
var ErrConfig = errors.New("invalid configuration")

// MemoryCredentials selects the in-process credential store.
const MemoryCredentials = ":memory:"

// Config contains all runtime configuration.
type Config struct {
	APIBaseURL  string        `yaml:"api_base_url"`
	HTTPTimeout time.Duration `yaml:"http_timeout"`

	// LogLevel and LogFormat default per command when empty.
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// CredentialsPath is the token file. MemoryCredentials keeps tokens in process.
	CredentialsPath string `yaml:"credentials_path"`
	// CredentialsDatabaseURL, when set, stores tokens in Postgres instead of a file.
	CredentialsDatabaseURL string `yaml:"credentials_database_url"`
	CredentialsProfile     string `yaml:"credentials_profile"`
	DBMaxConns             int32  `yaml:"db_max_conns"`
	DBMinConns             int32  `yaml:"db_min_conns"`

	ExpiryMargin   time.Duration `yaml:"expiry_margin"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`

	Portal PortalConfig `yaml:"portal"`

	Password password.Config `yaml:"-"`
}

// PortalConfig configures the local HTTP portal started by `docqa serve`.
type PortalConfig struct {
	Addr string `yaml:"addr"`
	// AllowRemote permits binding a non-loopback address.
	AllowRemote bool `yaml:"allow_remote"`

	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	MaxHeaderBytes    int           `yaml:"max_header_bytes"`
	MaxBodyBytes      int64         `yaml:"max_body_bytes"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		APIBaseURL:         "http://localhost:8000",
		HTTPTimeout:        30 * time.Second,
		CredentialsProfile: credstore.DefaultProfile,
		DBMaxConns:         4,
		ExpiryMargin:       session.DefaultConfig().ExpiryMargin,
		MaxUploadBytes:     forms.DefaultMaxUploadBytes,
		Portal: PortalConfig{
			Addr:              "127.0.0.1:8090",
			ReadHeaderTimeout: 5 * time.Second,
			// Uploads and answers can take a while upstream.
			ReadTimeout:    2 * time.Minute,
			WriteTimeout:   2 * time.Minute,
			IdleTimeout:    60 * time.Second,
			MaxHeaderBytes: 1 << 20,
			MaxBodyBytes:   1 << 20,
		},
		Password: password.DefaultConfig(),
	}
}

// LoadConfig layers defaults, the YAML file at path (or DOCQA_CONFIG), a
// .env file in the working directory, and environment variables.
// Real environment variables always win over .env entries.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = strings.TrimSpace(os.Getenv("DOCQA_CONFIG"))
	}
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("%w: .env: %w", ErrConfig, err)
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: read %s: %w", ErrConfig, path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: parse %s: %w", ErrConfig, path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.APIBaseURL = EnvString("DOCQA_API_BASE_URL", cfg.APIBaseURL)
	cfg.HTTPTimeout = EnvDuration("DOCQA_HTTP_TIMEOUT", cfg.HTTPTimeout)
	cfg.LogLevel = EnvString("DOCQA_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = EnvString("DOCQA_LOG_FORMAT", cfg.LogFormat)

	cfg.CredentialsPath = EnvString("DOCQA_CREDENTIALS_PATH", cfg.CredentialsPath)
	cfg.CredentialsDatabaseURL = EnvString("DOCQA_CREDENTIALS_DATABASE_URL", cfg.CredentialsDatabaseURL)
	cfg.CredentialsProfile = EnvString("DOCQA_CREDENTIALS_PROFILE", cfg.CredentialsProfile)
	cfg.DBMaxConns = EnvInt32("DOCQA_DB_MAX_CONNS", cfg.DBMaxConns)
	cfg.DBMinConns = EnvInt32("DOCQA_DB_MIN_CONNS", cfg.DBMinConns)

	cfg.MaxUploadBytes = EnvInt64("DOCQA_MAX_UPLOAD_BYTES", cfg.MaxUploadBytes)

	cfg.Portal.Addr = EnvString("DOCQA_PORTAL_ADDR", cfg.Portal.Addr)
	cfg.Portal.AllowRemote = EnvBool("DOCQA_PORTAL_ALLOW_REMOTE", cfg.Portal.AllowRemote)
	cfg.Portal.ReadHeaderTimeout = EnvDuration("DOCQA_PORTAL_READ_HEADER_TIMEOUT", cfg.Portal.ReadHeaderTimeout)
	cfg.Portal.ReadTimeout = EnvDuration("DOCQA_PORTAL_READ_TIMEOUT", cfg.Portal.ReadTimeout)
	cfg.Portal.WriteTimeout = EnvDuration("DOCQA_PORTAL_WRITE_TIMEOUT", cfg.Portal.WriteTimeout)
	cfg.Portal.IdleTimeout = EnvDuration("DOCQA_PORTAL_IDLE_TIMEOUT", cfg.Portal.IdleTimeout)
	cfg.Portal.MaxHeaderBytes = EnvInt("DOCQA_PORTAL_MAX_HEADER_BYTES", cfg.Portal.MaxHeaderBytes)
	cfg.Portal.MaxBodyBytes = EnvInt64("DOCQA_PORTAL_MAX_BODY_BYTES", cfg.Portal.MaxBodyBytes)

	// The owning packages validate their own variables strictly.
	if os.Getenv("DOCQA_EXPIRY_MARGIN") != "" {
		sc, err := session.LoadConfigFromEnv()
		if err != nil {
			return fmt.Errorf("%w: DOCQA_EXPIRY_MARGIN: %w", ErrConfig, err)
		}
		cfg.ExpiryMargin = sc.ExpiryMargin
	}
	pw, err := password.FromEnv()
	if err != nil {
		return fmt.Errorf("%w: password policy: %w", ErrConfig, err)
	}
	cfg.Password = pw
	return nil
}

// Validate checks values that cannot be defaulted.
func (c Config) Validate() error {
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: api base url must be an absolute http(s) URL, got %q", ErrConfig, c.APIBaseURL)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("%w: http timeout must be positive", ErrConfig)
	}
	if c.ExpiryMargin < 0 {
		return fmt.Errorf("%w: expiry margin must not be negative", ErrConfig)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("%w: max upload bytes must be positive", ErrConfig)
	}
	if c.DBMaxConns > 0 && c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("%w: db min conns exceeds max conns", ErrConfig)
	}
	switch strings.ToLower(c.LogFormat) {
	case "", formatJSON, formatPretty:
	default:
		return fmt.Errorf("%w: unknown log format %q", ErrConfig, c.LogFormat)
	}
	return ValidateSecurityConfig(c)
}
