package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the bridge process.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Twilio    TwilioConfig
	Realtime  RealtimeConfig
	Functions FunctionsConfig
	Calls     CallsConfig
	Summary   SummaryConfig
}

type AppConfig struct {
	Env  string
	Port int

	// PublicBaseURL is the externally reachable https base of this process.
	// Used to build the wss:// media-stream URL and to validate Twilio signatures.
	PublicBaseURL string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host string
	Port int
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// StreamTokenTTL bounds how long a media-stream token minted by the voice
	// webhook stays valid. The stream normally connects within seconds.
	StreamTokenTTL time.Duration
}

type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
	APIBaseURL string

	// ValidateSignatures turns on X-Twilio-Signature checks for webhooks.
	ValidateSignatures bool
}

type RealtimeConfig struct {
	APIKey           string
	URL              string
	DefaultModel     string
	DefaultVoice     string
	HandshakeTimeout time.Duration
}

type FunctionsConfig struct {
	DefaultTimeout time.Duration
}

type CallsConfig struct {
	// MaxConcurrentPerTenant caps simultaneous bridged calls per tenant; 0 disables the cap.
	MaxConcurrentPerTenant int
	SlotTTL                time.Duration
}

type SummaryConfig struct {
	// Provider is one of openai, gemini, none.
	Provider     string
	Model        string
	OpenAIAPIKey string
	GeminiAPIKey string
	Timeout      time.Duration
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}
	c.App.PublicBaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("PUBLIC_BASE_URL")), "/")

	db, dbErrs := loadDB()
	c.DB = db
	parseErrs = append(parseErrs, dbErrs...)

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	// Duration env vars are optional; defaults applied in Validate().
	c.Auth.AccessTokenTTL = mustDuration("JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL = mustDuration("JWT_REFRESH_TTL")
	c.Auth.StreamTokenTTL = mustDuration("STREAM_TOKEN_TTL")

	c.Twilio.AccountSID = strings.TrimSpace(os.Getenv("TWILIO_ACCOUNT_SID"))
	c.Twilio.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	c.Twilio.FromNumber = strings.TrimSpace(os.Getenv("TWILIO_FROM_NUMBER"))
	c.Twilio.APIBaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("TWILIO_API_BASE_URL")), "/")
	c.Twilio.ValidateSignatures = mustBool("TWILIO_VALIDATE_SIGNATURES")

	c.Realtime.APIKey = os.Getenv("REALTIME_API_KEY")
	c.Realtime.URL = strings.TrimSpace(os.Getenv("REALTIME_URL"))
	c.Realtime.DefaultModel = strings.TrimSpace(os.Getenv("REALTIME_MODEL"))
	c.Realtime.DefaultVoice = strings.TrimSpace(os.Getenv("REALTIME_VOICE"))
	c.Realtime.HandshakeTimeout = mustDuration("REALTIME_HANDSHAKE_TIMEOUT")

	c.Functions.DefaultTimeout = mustDuration("FUNCTION_TIMEOUT")

	if v := strings.TrimSpace(os.Getenv("MAX_CONCURRENT_CALLS_PER_TENANT")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			parseErrs = append(parseErrs, fmt.Errorf("MAX_CONCURRENT_CALLS_PER_TENANT must be an integer, got %q", v))
		}
		c.Calls.MaxConcurrentPerTenant = n
	}
	c.Calls.SlotTTL = mustDuration("CALL_SLOT_TTL")

	c.Summary.Provider = strings.ToLower(strings.TrimSpace(os.Getenv("SUMMARY_PROVIDER")))
	c.Summary.Model = strings.TrimSpace(os.Getenv("SUMMARY_MODEL"))
	c.Summary.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	c.Summary.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	c.Summary.Timeout = mustDuration("SUMMARY_TIMEOUT")

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// LoadDB reads only the database section. Used by tooling that does not need
// the full API configuration.
func LoadDB() (DBConfig, error) {
	db, errs := loadDB()
	if err := joinErrors(errs); err != nil {
		return DBConfig{}, err
	}
	if err := db.validate(false); err != nil {
		return DBConfig{}, err
	}
	if db.SSLMode == "" {
		db.SSLMode = "disable"
	}
	return db, nil
}

func loadDB() (DBConfig, []error) {
	var errs []error
	db := DBConfig{}
	db.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, errs = appendParseErr(errs, n, err)
		db.Port = n
	}
	db.User = strings.TrimSpace(os.Getenv("DB_USER"))
	db.Password = os.Getenv("DB_PASSWORD")
	db.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	db.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))
	return db, errs
}

// Validate checks required values and fills defaults in place.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}
	if c.App.PublicBaseURL == "" {
		errs = append(errs, errors.New("PUBLIC_BASE_URL is required"))
	} else if u, err := url.Parse(c.App.PublicBaseURL); err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		errs = append(errs, fmt.Errorf("PUBLIC_BASE_URL must be an absolute http(s) URL, got %q", c.App.PublicBaseURL))
	}

	if err := c.DB.validate(c.IsProduction()); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" && !c.IsProduction() {
		// Local-friendly default; production must be explicit.
		c.DB.SSLMode = "disable"
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}
	if c.Auth.StreamTokenTTL <= 0 {
		c.Auth.StreamTokenTTL = 2 * time.Minute
	}

	if c.Twilio.AccountSID == "" {
		errs = append(errs, errors.New("TWILIO_ACCOUNT_SID is required"))
	}
	if c.Twilio.AuthToken == "" {
		errs = append(errs, errors.New("TWILIO_AUTH_TOKEN is required"))
	}
	if c.Twilio.APIBaseURL == "" {
		c.Twilio.APIBaseURL = "https://api.twilio.com"
	}
	if c.IsProduction() && !c.Twilio.ValidateSignatures {
		errs = append(errs, errors.New("TWILIO_VALIDATE_SIGNATURES must be true in production"))
	}

	if c.Realtime.APIKey == "" {
		errs = append(errs, errors.New("REALTIME_API_KEY is required"))
	}
	if c.Realtime.URL == "" {
		c.Realtime.URL = "wss://api.openai.com/v1/realtime"
	}
	if c.Realtime.DefaultModel == "" {
		c.Realtime.DefaultModel = "gpt-realtime"
	}
	if c.Realtime.DefaultVoice == "" {
		c.Realtime.DefaultVoice = "alloy"
	}
	if c.Realtime.HandshakeTimeout <= 0 {
		c.Realtime.HandshakeTimeout = 5 * time.Second
	}

	if c.Functions.DefaultTimeout <= 0 {
		c.Functions.DefaultTimeout = 10 * time.Second
	}

	if c.Calls.MaxConcurrentPerTenant < 0 {
		errs = append(errs, fmt.Errorf("MAX_CONCURRENT_CALLS_PER_TENANT must be >= 0, got %d", c.Calls.MaxConcurrentPerTenant))
	}
	if c.Calls.SlotTTL <= 0 {
		// Upper bound on a single call; protects the counter from leaked slots.
		c.Calls.SlotTTL = 2 * time.Hour
	}

	switch c.Summary.Provider {
	case "":
		c.Summary.Provider = "none"
	case "none":
	case "openai":
		if c.Summary.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required when SUMMARY_PROVIDER=openai"))
		}
	case "gemini":
		if c.Summary.GeminiAPIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY is required when SUMMARY_PROVIDER=gemini"))
		}
	default:
		errs = append(errs, fmt.Errorf("SUMMARY_PROVIDER must be one of openai, gemini, none, got %q", c.Summary.Provider))
	}
	if c.Summary.Timeout <= 0 {
		c.Summary.Timeout = 30 * time.Second
	}

	return joinErrors(errs)
}

func (d DBConfig) validate(production bool) error {
	var errs []error
	if d.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if d.Port <= 0 || d.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if d.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(d.SSLMode) == "" && production {
		errs = append(errs, errors.New("DB_SSLMODE is required in production"))
	}
	if d.SSLMode != "" && !isValidSSLMode(d.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", d.SSLMode))
	}
	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

// MediaStreamURL is the wss:// URL the telephony platform connects its media stream to.
func (c Config) MediaStreamURL() string {
	base := c.App.PublicBaseURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/media-stream"
}

func (c Config) PostgresDSN() string {
	return c.DB.DSN()
}

// DSN must not be logged; it contains secrets.
func (d DBConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host,
		d.Port,
		d.User,
		d.Password,
		d.Name,
		d.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func mustDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func mustBool(key string) bool {
	v := strings.TrimSpace(os.Getenv(key))
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false
	}
	return b
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
