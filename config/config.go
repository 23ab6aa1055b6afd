package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/master-pd/MARPD-MAX/database"
)

// Config holds all application configuration
type Config struct {
	// Database configuration
	DatabaseURL  string
	DatabaseName string

	// Wallet configuration
	Currencies       []string         // Supported currencies; the first is the default
	WithdrawalLimits map[string]int64 // Per-currency withdrawal limit per period, 0 for none
	LimitResetHour   int              // Hour in UTC when withdrawal and daily bonus periods start (0-23)
	MinDeposit       int64
	MinWithdrawal    int64

	// Payment request configuration
	PaymentExpiry  time.Duration
	PaymentMethods map[string]*PaymentMethod

	// Bonus configuration
	WelcomeBonus    int64
	DailyBonus      int64
	DailyStreakStep int64 // Extra credited per consecutive day after the first
	DailyStreakCap  int64 // Maximum streak extra

	// Game configuration
	Games                 map[string]*GameTable
	GameTablesFile        string
	RoundResolutionWindow time.Duration

	// Worker configuration
	SweepInterval     time.Duration
	ReconcileInterval time.Duration

	// NATS configuration
	NATSServers string // NATS server addresses (comma-separated), empty disables forwarding

	// OpenTelemetry configuration
	OTelEnabled              bool
	OTelExporterType         string // "console", "otlp" or "none"
	OTelOTLPEndpoint         string
	OTelServiceName          string
	OTelExportIntervalMillis int

	// Logging
	LogLevel  string
	LogFormat string // "text" or "json"

	// Environment
	Environment string // "development", "production" or "test"
}

var (
	instance *Config
	once     sync.Once
	mu       sync.Mutex // Protects instance for test setup
)

// Get returns the global configuration instance
func Get() *Config {
	mu.Lock()
	defer mu.Unlock()

	if instance != nil {
		return instance
	}

	once.Do(func() {
		var err error
		instance, err = load()
		if err != nil {
			if os.Getenv("ENVIRONMENT") == "test" {
				instance = NewTestConfig()
			} else {
				panic(fmt.Sprintf("failed to load config: %v", err))
			}
		}
	})
	return instance
}

// GetDatabaseURL constructs the full database URL by combining base URL and database name
func (c *Config) GetDatabaseURL() string {
	return database.ConstructDatabaseURL(c.DatabaseURL, c.DatabaseName)
}

// DefaultCurrency returns the currency used for bonuses and games when none is given
func (c *Config) DefaultCurrency() string {
	if len(c.Currencies) == 0 {
		return ""
	}
	return c.Currencies[0]
}

// IsSupportedCurrency reports whether the currency is configured
func (c *Config) IsSupportedCurrency(currency string) bool {
	return slices.Contains(c.Currencies, currency)
}

// WithdrawalLimit returns the per-period withdrawal limit for a currency, 0 meaning unlimited
func (c *Config) WithdrawalLimit(currency string) int64 {
	return c.WithdrawalLimits[currency]
}

// load loads configuration from environment variables
func load() (*Config, error) {
	config := &Config{
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		DatabaseName: os.Getenv("DATABASE_NAME"),

		Currencies:       parseList(getEnvWithDefault("SUPPORTED_CURRENCIES", "BDT")),
		WithdrawalLimits: map[string]int64{},
		LimitResetHour:   getEnvInt("LIMIT_RESET_HOUR", 0),
		MinDeposit:       getEnvInt64("MIN_DEPOSIT", 1000),
		MinWithdrawal:    getEnvInt64("MIN_WITHDRAWAL", 5000),

		PaymentExpiry:  getEnvDuration("PAYMENT_EXPIRY", 24*time.Hour),
		PaymentMethods: DefaultPaymentMethods(),

		WelcomeBonus:    getEnvInt64("WELCOME_BONUS", 50000),
		DailyBonus:      getEnvInt64("DAILY_BONUS", 10000),
		DailyStreakStep: getEnvInt64("DAILY_STREAK_STEP", 2000),
		DailyStreakCap:  getEnvInt64("DAILY_STREAK_CAP", 20000),

		Games:                 DefaultGameTables(),
		GameTablesFile:        os.Getenv("GAME_TABLES_FILE"),
		RoundResolutionWindow: getEnvDuration("ROUND_RESOLUTION_WINDOW", 5*time.Minute),

		SweepInterval:     getEnvDuration("SWEEP_INTERVAL", time.Minute),
		ReconcileInterval: getEnvDuration("RECONCILE_INTERVAL", time.Hour),

		NATSServers: os.Getenv("NATS_SERVERS"),

		OTelEnabled:              os.Getenv("OTEL_ENABLED") == "true",
		OTelExporterType:         getEnvWithDefault("OTEL_EXPORTER_TYPE", "console"),
		OTelOTLPEndpoint:         getEnvWithDefault("OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:          getEnvWithDefault("OTEL_SERVICE_NAME", "marpd-core"),
		OTelExportIntervalMillis: getEnvInt("OTEL_EXPORT_INTERVAL_MS", 60000),

		LogLevel:  getEnvWithDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvWithDefault("LOG_FORMAT", "text"),

		Environment: os.Getenv("ENVIRONMENT"),
	}

	limits, err := parseLimits(getEnvWithDefault("WITHDRAWAL_LIMITS", "BDT:1000000"))
	if err != nil {
		return nil, err
	}
	config.WithdrawalLimits = limits

	if config.GameTablesFile != "" {
		games, err := LoadGameTables(config.GameTablesFile)
		if err != nil {
			return nil, err
		}
		config.Games = games
	}

	if config.Environment == "" {
		config.Environment = "development"
	}

	if config.Environment != "test" {
		if config.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
		if config.DatabaseName != "" && strings.TrimSpace(config.DatabaseName) == "" {
			return nil, fmt.Errorf("DATABASE_NAME cannot be empty when provided")
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks cross-field constraints such as game table house edges
func (c *Config) Validate() error {
	if len(c.Currencies) == 0 {
		return fmt.Errorf("at least one currency must be supported")
	}
	if c.LimitResetHour < 0 || c.LimitResetHour > 23 {
		return fmt.Errorf("LIMIT_RESET_HOUR must be between 0 and 23, got %d", c.LimitResetHour)
	}
	for currency := range c.WithdrawalLimits {
		if !c.IsSupportedCurrency(currency) {
			return fmt.Errorf("withdrawal limit configured for unsupported currency %s", currency)
		}
	}
	for name, table := range c.Games {
		if err := table.Validate(); err != nil {
			return fmt.Errorf("game %s: %w", name, err)
		}
	}
	for name, method := range c.PaymentMethods {
		if err := method.Validate(); err != nil {
			return fmt.Errorf("payment method %s: %w", name, err)
		}
	}
	return nil
}

// parseLimits parses "BDT:1000000,USD:50000" into a limit map
func parseLimits(value string) (map[string]int64, error) {
	limits := make(map[string]int64)
	for _, part := range parseList(value) {
		currency, amount, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("invalid withdrawal limit %q, expected CURRENCY:AMOUNT", part)
		}
		parsed, err := strconv.ParseInt(strings.TrimSpace(amount), 10, 64)
		if err != nil || parsed < 0 {
			return nil, fmt.Errorf("invalid withdrawal limit amount %q", amount)
		}
		limits[strings.TrimSpace(currency)] = parsed
	}
	return limits, nil
}

func parseList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			items = append(items, item)
		}
	}
	return items
}

// getEnvWithDefault returns the environment variable value or a default if not set
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// Test helpers - only use in tests

// SetTestConfig overrides the global config instance for testing
func SetTestConfig(testConfig *Config) {
	mu.Lock()
	defer mu.Unlock()
	instance = testConfig
}

// ResetConfig resets the global config instance and sync.Once for testing
func ResetConfig() {
	mu.Lock()
	defer mu.Unlock()
	instance = nil
	once = sync.Once{}
}

// NewTestConfig creates a config suitable for unit tests
func NewTestConfig() *Config {
	return &Config{
		Environment:           "test",
		Currencies:            []string{"BDT", "USD"},
		WithdrawalLimits:      map[string]int64{"BDT": 1000000},
		LimitResetHour:        0,
		MinDeposit:            1000,
		MinWithdrawal:         5000,
		PaymentExpiry:         24 * time.Hour,
		PaymentMethods:        DefaultPaymentMethods(),
		WelcomeBonus:          50000,
		DailyBonus:            10000,
		DailyStreakStep:       2000,
		DailyStreakCap:        20000,
		Games:                 DefaultGameTables(),
		RoundResolutionWindow: 5 * time.Minute,
		SweepInterval:         time.Minute,
		ReconcileInterval:     time.Hour,
		OTelExporterType:      "none",
		OTelServiceName:       "marpd-core-test",
		LogLevel:              "debug",
		LogFormat:             "text",
	}
}
