package config

import (
	"fmt"
	"net/netip"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"spendwise/internal/core"
)

const minJWTSecretLen = 16

type Config struct {
	// HTTP Server
	Port          string
	PublicBaseURL string

	// Storage
	DataBackend  string
	SQLiteDBPath string
	ReceiptsDir  string

	// Identity
	JWTSecret string
	JWTIssuer string
	TokenTTL  time.Duration

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets mirror
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountFile string
	GoogleServiceAccountJSON string

	// HTTP limits
	RateLimitPerMinute int

	// TrustedProxies are the peers whose X-Forwarded-For is honoured. Nil
	// means the built-in private ranges.
	TrustedProxies []netip.Prefix
	badProxies     []string

	// Display
	DefaultCurrency string
	DefaultLocale   string

	LogLevel string
}

var defaults = map[string]any{
	"PORT":                        "8081",
	"PUBLIC_BASE_URL":             "http://localhost:8081",
	"DATA_BACKEND":                "sqlite",
	"SQLITE_DB_PATH":              "./data/spendwise.db",
	"RECEIPTS_DIR":                "./data/receipts",
	"JWT_SECRET":                  "",
	"JWT_ISSUER":                  "spendwise",
	"TOKEN_TTL":                   "24h",
	"AMQP_URL":                    "",
	"AMQP_EXCHANGE":               "spendwise",
	"AMQP_QUEUE":                  "expense_events",
	"GOOGLE_SPREADSHEET_ID":       "",
	"GOOGLE_SHEET_NAME":           "Expenses",
	"GOOGLE_SERVICE_ACCOUNT_FILE": "",
	"GOOGLE_SERVICE_ACCOUNT_JSON": "",
	"RATE_LIMIT_PER_MINUTE":       120,
	"TRUSTED_PROXIES":             "",
	"DEFAULT_CURRENCY":            "USD",
	"DEFAULT_LOCALE":              "en-US",
	"LOG_LEVEL":                   "info",
}

// Load reads the configuration from the environment.
func Load() *Config {
	return LoadFrom(viper.New())
}

// LoadFrom reads the configuration through v, which may carry values from
// flags or a config file on top of the environment.
func LoadFrom(v *viper.Viper) *Config {
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.AutomaticEnv()

	cfg := &Config{
		Port:          v.GetString("PORT"),
		PublicBaseURL: strings.TrimRight(v.GetString("PUBLIC_BASE_URL"), "/"),

		DataBackend:  strings.ToLower(v.GetString("DATA_BACKEND")),
		SQLiteDBPath: v.GetString("SQLITE_DB_PATH"),
		ReceiptsDir:  v.GetString("RECEIPTS_DIR"),

		JWTSecret: v.GetString("JWT_SECRET"),
		JWTIssuer: v.GetString("JWT_ISSUER"),
		TokenTTL:  v.GetDuration("TOKEN_TTL"),

		AMQPURL:      v.GetString("AMQP_URL"),
		AMQPExchange: v.GetString("AMQP_EXCHANGE"),
		AMQPQueue:    v.GetString("AMQP_QUEUE"),

		GoogleSpreadsheetID:      v.GetString("GOOGLE_SPREADSHEET_ID"),
		GoogleSheetName:          v.GetString("GOOGLE_SHEET_NAME"),
		GoogleServiceAccountFile: v.GetString("GOOGLE_SERVICE_ACCOUNT_FILE"),
		GoogleServiceAccountJSON: v.GetString("GOOGLE_SERVICE_ACCOUNT_JSON"),

		RateLimitPerMinute: v.GetInt("RATE_LIMIT_PER_MINUTE"),

		DefaultCurrency: strings.ToUpper(v.GetString("DEFAULT_CURRENCY")),
		DefaultLocale:   v.GetString("DEFAULT_LOCALE"),

		LogLevel: v.GetString("LOG_LEVEL"),
	}
	cfg.TrustedProxies, cfg.badProxies = parseProxies(v.GetString("TRUSTED_PROXIES"))
	return cfg
}

// parseProxies splits a comma separated CIDR list. Entries that do not parse
// are returned separately so Validate can report them.
func parseProxies(raw string) ([]netip.Prefix, []string) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	good := []netip.Prefix{}
	var bad []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		p, err := netip.ParsePrefix(part)
		if err != nil {
			bad = append(bad, part)
			continue
		}
		good = append(good, p.Masked())
	}
	return good, bad
}

// MirrorEnabled reports whether a Google Sheets mirror is configured.
func (c *Config) MirrorEnabled() bool {
	return c.GoogleSpreadsheetID != ""
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	// Validate data backend
	validBackends := []string{"memory", "sqlite"}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.DataBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else if err := ensureDir(filepath.Dir(c.SQLiteDBPath)); err != nil {
			errors = append(errors, fmt.Sprintf("cannot create SQLite database directory: %v", err))
		}
	}

	if c.ReceiptsDir == "" {
		errors = append(errors, "receipts directory cannot be empty")
	}
	if c.PublicBaseURL != "" {
		if u, err := url.Parse(c.PublicBaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errors = append(errors, fmt.Sprintf("invalid public base URL '%s': must be an http(s) URL", c.PublicBaseURL))
		}
	}

	if len(c.JWTSecret) < minJWTSecretLen {
		errors = append(errors, fmt.Sprintf("JWT secret must be at least %d characters", minJWTSecretLen))
	}
	if c.TokenTTL <= 0 {
		errors = append(errors, fmt.Sprintf("invalid token TTL %v: must be positive", c.TokenTTL))
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.MirrorEnabled() {
		if c.GoogleSheetName == "" {
			errors = append(errors, "Google Sheet name is required when a spreadsheet is configured")
		}
		if c.GoogleServiceAccountFile != "" {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
	}

	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1", c.RateLimitPerMinute))
	}

	for _, p := range c.badProxies {
		errors = append(errors, fmt.Sprintf("invalid trusted proxy '%s': must be a CIDR like 10.0.0.0/8", p))
	}

	if _, ok := core.LookupCurrency(c.DefaultCurrency); !ok {
		errors = append(errors, fmt.Sprintf("unsupported default currency '%s'", c.DefaultCurrency))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func ensureDir(dir string) error {
	if dir == "." || dir == "" {
		return nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}
