package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends selectable through STORE_BACKEND.
const (
	BackendFile  = "file"
	BackendRedis = "redis"
)

// Defaults applied when the matching variable is unset.
const (
	DefaultZoomHost        = "https://zoom.us"
	DefaultAppName         = "zoom-app"
	DefaultPort            = "3000"
	DefaultRecallAPIBase   = "https://us-east-1.recall.ai/api"
	DefaultHTTPCallTimeout = 30 * time.Second
	DefaultPipelineTimeout = 10 * time.Minute
	DefaultPageSize        = 25
)

// Zoom holds the Zoom App OAuth client settings.
type Zoom struct {
	Host          string
	ClientID      string
	ClientSecret  string
	RedirectURL   string
	WebhookSecret string
}

// Recall holds the Recall.ai bot service settings.
type Recall struct {
	APIKey       string
	AuthToken    string
	OAuthAppID   string
	CallbackBase string
	APIBase      string
}

// AWS holds the credentials and bucket used for transcript uploads.
type AWS struct {
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	Region          string
}

// Deposition holds the downstream deposition API settings.
type Deposition struct {
	APIBaseURL  string
	TOTPSecret  string
	TOTPCommand string
	CaseID      string
	UserID      string
}

// Storage selects and configures the shared key-value backend.
type Storage struct {
	Backend       string
	DataDir       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	EncryptionKey []byte
}

// Pipeline tunes the webhook-triggered pipeline.
type Pipeline struct {
	HTTPCallTimeout time.Duration
	PipelineTimeout time.Duration
	PageSize        int
}

// Config is the immutable process configuration. It is built once by Load
// and passed to every component constructor.
type Config struct {
	AppName       string
	AppEnv        string
	Port          string
	SessionSecret string
	LogLevel      string
	LogFormat     string

	Zoom       Zoom
	Recall     Recall
	AWS        AWS
	Deposition Deposition
	Storage    Storage
	Pipeline   Pipeline
}

// LoadDotEnv loads a .env file into the process environment unless
// APP_ENV is production. A missing file is not an error.
func LoadDotEnv(paths ...string) error {
	if os.Getenv("APP_ENV") == "production" {
		return nil
	}
	err := godotenv.Load(paths...)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// Load builds a Config from getenv (usually os.Getenv) and validates the
// settings every command needs.
func Load(getenv func(string) string) (*Config, error) {
	env := lookup(getenv)

	cfg := &Config{
		AppName:       env.str("APP_NAME", DefaultAppName),
		AppEnv:        env.str("APP_ENV", "development"),
		Port:          env.str("PORT", DefaultPort),
		SessionSecret: env.str("SESSION_SECRET", ""),
		LogLevel:      env.str("LOG_LEVEL", "info"),
		LogFormat:     env.str("LOG_FORMAT", "text"),
		Zoom: Zoom{
			Host:          strings.TrimRight(env.str("ZM_HOST", DefaultZoomHost), "/"),
			ClientID:      env.str("ZM_CLIENT_ID", ""),
			ClientSecret:  env.str("ZM_CLIENT_SECRET", ""),
			RedirectURL:   env.str("ZM_REDIRECT_URL", ""),
			WebhookSecret: env.str("ZM_WEBHOOK_SECRET", ""),
		},
		Recall: Recall{
			APIKey:       env.str("RECALL_API_KEY", ""),
			AuthToken:    env.str("RECALL_AUTH_TOKEN", ""),
			OAuthAppID:   env.str("RECALL_OAUTH_APP_ID", ""),
			CallbackBase: strings.TrimRight(env.str("RECALL_CALLBACK_BASE", ""), "/"),
			APIBase:      strings.TrimRight(env.str("RECALL_API_BASE", DefaultRecallAPIBase), "/"),
		},
		AWS: AWS{
			AccessKeyID:     env.str("TEMP_AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: env.str("TEMP_AWS_SECRET_ACCESS_KEY", ""),
			Bucket:          env.str("TEMP_S3_BUCKET_NAME", ""),
			Region:          env.str("TEMP_AWS_REGION", ""),
		},
		Deposition: LoadDeposition(getenv),
		Storage: Storage{
			Backend:       strings.ToLower(env.str("STORE_BACKEND", BackendFile)),
			DataDir:       env.str("DATA_DIR", "."),
			RedisAddr:     env.str("REDIS_ADDR", "localhost:6379"),
			RedisPassword: env.str("REDIS_PASSWORD", ""),
		},
	}

	var errs []error

	var err error
	if cfg.Storage.RedisDB, err = env.integer("REDIS_DB", 0); err != nil {
		errs = append(errs, err)
	}
	if cfg.Pipeline.PageSize, err = env.integer("PAGE_SIZE", DefaultPageSize); err != nil {
		errs = append(errs, err)
	}
	if cfg.Pipeline.HTTPCallTimeout, err = env.duration("HTTP_CALL_TIMEOUT", DefaultHTTPCallTimeout); err != nil {
		errs = append(errs, err)
	}
	if cfg.Pipeline.PipelineTimeout, err = env.duration("PIPELINE_TIMEOUT", DefaultPipelineTimeout); err != nil {
		errs = append(errs, err)
	}
	if key := env.str("TOKEN_ENCRYPTION_KEY", ""); key != "" {
		cfg.Storage.EncryptionKey, err = base64.StdEncoding.DecodeString(key)
		if err != nil || len(cfg.Storage.EncryptionKey) != 32 {
			errs = append(errs, fmt.Errorf("TOKEN_ENCRYPTION_KEY must be a base64-encoded 32-byte key"))
		}
	}

	if err := cfg.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

// LoadDeposition reads only the deposition API group. Commands that
// generate one-time codes use it without the full Zoom configuration.
func LoadDeposition(getenv func(string) string) Deposition {
	env := lookup(getenv)
	return Deposition{
		APIBaseURL:  strings.TrimRight(env.str("API_BASE_URL", ""), "/"),
		TOTPSecret:  env.str("TOTP_SECRET", ""),
		TOTPCommand: env.str("TOTP_COMMAND", ""),
		CaseID:      env.str("DEPOSITION_CASE_ID", ""),
		UserID:      env.str("DEPOSITION_USER_ID", ""),
	}
}

// Validate checks the settings required by every entry point.
func (c *Config) Validate() error {
	var errs []error
	required := []struct {
		name, value string
	}{
		{"ZM_CLIENT_ID", c.Zoom.ClientID},
		{"ZM_CLIENT_SECRET", c.Zoom.ClientSecret},
		{"ZM_REDIRECT_URL", c.Zoom.RedirectURL},
		{"SESSION_SECRET", c.SessionSecret},
	}
	for _, r := range required {
		if r.value == "" {
			errs = append(errs, fmt.Errorf("%s is required", r.name))
		}
	}

	if c.Zoom.RedirectURL != "" {
		if err := validateAbsoluteURL(c.Zoom.RedirectURL); err != nil {
			errs = append(errs, fmt.Errorf("invalid ZM_REDIRECT_URL: %w", err))
		}
	}
	if err := validateAbsoluteURL(c.Zoom.Host); err != nil {
		errs = append(errs, fmt.Errorf("invalid ZM_HOST: %w", err))
	}

	switch c.Storage.Backend {
	case BackendFile, BackendRedis:
	default:
		errs = append(errs, fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", BackendFile, BackendRedis, c.Storage.Backend))
	}

	if c.Pipeline.PageSize <= 0 {
		errs = append(errs, fmt.Errorf("PAGE_SIZE must be positive"))
	}

	return errors.Join(errs...)
}

// ValidatePipeline checks the settings needed to run the webhook pipeline:
// the bot service, blob storage and deposition API groups.
func (c *Config) ValidatePipeline() error {
	var errs []error
	required := []struct {
		name, value string
	}{
		{"RECALL_API_KEY", c.Recall.APIKey},
		{"RECALL_AUTH_TOKEN", c.Recall.AuthToken},
		{"TEMP_AWS_ACCESS_KEY_ID", c.AWS.AccessKeyID},
		{"TEMP_AWS_SECRET_ACCESS_KEY", c.AWS.SecretAccessKey},
		{"TEMP_S3_BUCKET_NAME", c.AWS.Bucket},
		{"TEMP_AWS_REGION", c.AWS.Region},
		{"API_BASE_URL", c.Deposition.APIBaseURL},
		{"DEPOSITION_CASE_ID", c.Deposition.CaseID},
		{"DEPOSITION_USER_ID", c.Deposition.UserID},
	}
	for _, r := range required {
		if r.value == "" {
			errs = append(errs, fmt.Errorf("%s is required", r.name))
		}
	}
	if c.Deposition.TOTPSecret == "" && c.Deposition.TOTPCommand == "" {
		errs = append(errs, fmt.Errorf("one of TOTP_SECRET or TOTP_COMMAND is required"))
	}
	if c.Recall.OAuthAppID != "" && c.Recall.CallbackBase == "" {
		errs = append(errs, fmt.Errorf("RECALL_CALLBACK_BASE is required when RECALL_OAUTH_APP_ID is set"))
	}
	return errors.Join(errs...)
}

// Production reports whether the process runs with APP_ENV=production.
func (c *Config) Production() bool {
	return c.AppEnv == "production"
}

func validateAbsoluteURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%q is not an absolute URL", raw)
	}
	return nil
}

type lookup func(string) string

func (l lookup) str(key, def string) string {
	if v := strings.TrimSpace(l(key)); v != "" {
		return v
	}
	return def
}

func (l lookup) integer(key string, def int) (int, error) {
	v := l.str(key, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func (l lookup) duration(key string, def time.Duration) (time.Duration, error) {
	v := l.str(key, "")
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("%s must be a duration: %w", key, err)
	}
	return d, nil
}
