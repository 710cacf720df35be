// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"agency-checkout/internal/domain"
)

const (
	defaultPayPhoneAPIURL = "https://pay.payphonetodoesposible.com/api/Links"
	// DefaultTaxRate is the VAT rate applied when payment.payphone.tax_rate is unset.
	DefaultTaxRate = "0.12"
)

type RuntimeConfig struct {
	Dev bool
}

type HTTPConfig struct {
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// TrustedProxies may set X-Forwarded-For / X-Real-IP (CIDR or address).
	TrustedProxies []string      `yaml:"trusted_proxies"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"` // empty disables cache, locks, rate limits and uses in-process events
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"` // plan catalog cache TTL
}

type PayPhoneConfig struct {
	APIKey    string        `yaml:"api_key"`
	StoreID   string        `yaml:"store_id"`
	ClientURL string        `yaml:"client_url"` // base for payment-success / payment-cancelled
	APIURL    string        `yaml:"api_url"`
	Currency  string        `yaml:"currency"`
	Timeout   time.Duration `yaml:"timeout"`
	// TaxRateRaw is the single authoritative VAT rate used to split the
	// charged amount into base and tax ("0.12" = 12%). "0" sends the whole
	// amount untaxed. Parsed into TaxRate by LoadConfig.
	TaxRateRaw string          `yaml:"tax_rate"`
	TaxRate    decimal.Decimal `yaml:"-"`
}

type PaymentConfig struct {
	// Gateway selects the link provider: "payphone" (default) or "noop" for
	// local runs without credentials.
	Gateway  string         `yaml:"gateway"`
	PayPhone PayPhoneConfig `yaml:"payphone"`
}

type CheckoutConfig struct {
	RateLimit        int           `yaml:"rate_limit"`   // checkouts per window per client
	RateWindow       time.Duration `yaml:"rate_window"`
	WaitTimeout      time.Duration `yaml:"wait_timeout"` // max long-poll for confirmation
	ReconcileLockTTL time.Duration `yaml:"reconcile_lock_ttl"`
	// AbandonAfter marks pending purchases older than this as failed. 0 keeps
	// them pending forever.
	AbandonAfter time.Duration `yaml:"abandon_after"`
}

type AdminConfig struct {
	APIKey       string        `yaml:"api_key"`
	JWTSecret    string        `yaml:"jwt_secret"`
	SessionTTL   time.Duration `yaml:"session_ttl"`
	SecureCookie bool          `yaml:"secure_cookie"`
}

type TelegramConfig struct {
	Token    string  `yaml:"token"` // empty disables owner notifications
	AdminIDs []int64 `yaml:"admin_ids"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Workers  int            `yaml:"workers"`
}

type SchedulerConfig struct {
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Payment   PaymentConfig   `yaml:"payment"`
	Checkout  CheckoutConfig  `yaml:"checkout"`
	Admin     AdminConfig     `yaml:"admin"`
	Notify    NotifyConfig    `yaml:"notify"`
	Scheduler SchedulerConfig `yaml:"scheduler"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads .env (if present), the YAML file at path and environment
// overrides, then applies defaults. Only database.url is required; missing
// gateway credentials disable checkout, see PayPhoneConfig.Validate.
func LoadConfig(path string, dev bool) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && path == "config.yaml":
		// env-only deployment
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)

	rate, err := decimal.NewFromString(cfg.Payment.PayPhone.TaxRateRaw)
	if err != nil {
		return nil, fmt.Errorf("payment.payphone.tax_rate: %w", err)
	}
	cfg.Payment.PayPhone.TaxRate = rate

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	for _, p := range cfg.HTTP.TrustedProxies {
		if !validProxy(p) {
			return nil, fmt.Errorf("http.trusted_proxies: %q is not an IP or CIDR", p)
		}
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	envStr("DATABASE_URL", &cfg.Database.URL)
	envStr("REDIS_URL", &cfg.Redis.URL)
	envStr("REDIS_PASSWORD", &cfg.Redis.Password)
	envStr("PAYPHONE_API_KEY", &cfg.Payment.PayPhone.APIKey)
	envStr("PAYPHONE_STORE_ID", &cfg.Payment.PayPhone.StoreID)
	envStr("CLIENT_URL", &cfg.Payment.PayPhone.ClientURL)
	envStr("PAYPHONE_TAX_RATE", &cfg.Payment.PayPhone.TaxRateRaw)
	envStr("ADMIN_API_KEY", &cfg.Admin.APIKey)
	envStr("ADMIN_JWT_SECRET", &cfg.Admin.JWTSecret)
	envStr("TELEGRAM_BOT_TOKEN", &cfg.Notify.Telegram.Token)
	if v := strings.TrimSpace(os.Getenv("TRUSTED_PROXIES")); v != "" {
		cfg.HTTP.TrustedProxies = strings.Split(v, ",")
	}
}

func envStr(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

func applyDefaults(cfg *Config) {
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.HTTP.RequestTimeout <= 0 {
		cfg.HTTP.RequestTimeout = 30 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)

	if cfg.Payment.Gateway == "" {
		cfg.Payment.Gateway = "payphone"
	}
	pp := &cfg.Payment.PayPhone
	if pp.APIURL == "" {
		pp.APIURL = defaultPayPhoneAPIURL
	}
	if pp.Currency == "" {
		pp.Currency = "USD"
	}
	if pp.TaxRateRaw == "" {
		pp.TaxRateRaw = DefaultTaxRate
	}
	if pp.Timeout <= 0 {
		pp.Timeout = 15 * time.Second
	}
	pp.ClientURL = strings.TrimRight(pp.ClientURL, "/")

	if cfg.Checkout.RateLimit <= 0 {
		cfg.Checkout.RateLimit = 10
	}
	if cfg.Checkout.RateWindow <= 0 {
		cfg.Checkout.RateWindow = time.Minute
	}
	if cfg.Checkout.WaitTimeout <= 0 {
		cfg.Checkout.WaitTimeout = 25 * time.Second
	}
	if cfg.Checkout.ReconcileLockTTL <= 0 {
		cfg.Checkout.ReconcileLockTTL = 10 * time.Second
	}
	if cfg.Admin.SessionTTL <= 0 {
		cfg.Admin.SessionTTL = 30 * time.Minute
	}
	if cfg.Notify.Workers <= 0 {
		cfg.Notify.Workers = 2
	}
	if cfg.Scheduler.SweepInterval <= 0 {
		cfg.Scheduler.SweepInterval = 10 * time.Minute
	}
}

// Validate reports the settings the checkout feature cannot run without.
func (c PayPhoneConfig) Validate() error {
	var ce domain.ConfigurationError
	if c.APIKey == "" {
		ce.Missing = append(ce.Missing, "payment.payphone.api_key")
	}
	if c.StoreID == "" {
		ce.Missing = append(ce.Missing, "payment.payphone.store_id")
	}
	if c.ClientURL == "" {
		ce.Missing = append(ce.Missing, "payment.payphone.client_url")
	}
	if u, err := url.ParseRequestURI(c.APIURL); err != nil || u.Host == "" {
		ce.Invalid = append(ce.Invalid, "payment.payphone.api_url: not an absolute URL")
	}
	if c.TaxRate.IsNegative() {
		ce.Invalid = append(ce.Invalid, "payment.payphone.tax_rate: must not be negative")
	}
	if len(ce.Missing) > 0 || len(ce.Invalid) > 0 {
		return &ce
	}
	return nil
}

func (c PayPhoneConfig) SuccessURL() string { return c.ClientURL + "/payment-success" }

func (c PayPhoneConfig) CancelURL() string { return c.ClientURL + "/payment-cancelled" }

func validProxy(s string) bool {
	s = strings.TrimSpace(s)
	if _, _, err := net.ParseCIDR(s); err == nil {
		return true
	}
	return net.ParseIP(s) != nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return 5 * time.Minute
	}
	return d
}
