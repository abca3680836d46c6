package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"lanlink/internal/cipher"
	"lanlink/internal/console"
	"lanlink/internal/transport"
)

const (
	// DefaultName is the placeholder nickname. Sending is refused until
	// the operator changes it with /nick.
	DefaultName = "anonymoose"
	// DefaultKey is the built-in shared passphrase. It is public knowledge
	// and offers no real confidentiality; use /key or LANLINK_KEY.
	DefaultKey = "sit2020"
	// DefaultBroadcast is the subnet broadcast address peers have used.
	DefaultBroadcast = "10.0.0.255"
	// DefaultLogFile is where the TUI build writes its log.
	DefaultLogFile = "lanlink.log"
)

// Config holds all configuration for the application.
type Config struct {
	Broadcast   string
	Port        int
	Name        string
	Key         string
	KDF         string
	LogFile     string
	Debug       bool
	MetricsAddr string // empty disables the metrics endpoint
	Scrollback  int
}

// Load reads configuration from LANLINK_* environment variables, after
// loading a .env file from the working directory if one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Broadcast:   getEnv("LANLINK_BROADCAST", DefaultBroadcast),
		Name:        getEnv("LANLINK_NAME", DefaultName),
		Key:         getEnv("LANLINK_KEY", DefaultKey),
		KDF:         getEnv("LANLINK_KDF", cipher.KDFMD5),
		LogFile:     getEnv("LANLINK_LOG_FILE", DefaultLogFile),
		Debug:       getEnv("LANLINK_DEBUG", "false") == "true",
		MetricsAddr: os.Getenv("LANLINK_METRICS_ADDR"),
	}

	var err error
	if cfg.Port, err = getEnvInt("LANLINK_PORT", transport.DefaultPort); err != nil {
		return nil, err
	}
	if cfg.Scrollback, err = getEnvInt("LANLINK_SCROLLBACK", console.DefaultScrollback); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail deep inside startup.
func (c *Config) Validate() error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if ip := net.ParseIP(c.Broadcast); ip == nil || ip.To4() == nil {
		errs = append(errs, fmt.Errorf("broadcast address %q is not an IPv4 address", c.Broadcast))
	}
	if !cipher.ValidKDF(c.KDF) {
		errs = append(errs, fmt.Errorf("unknown kdf %q (want %s or %s)", c.KDF, cipher.KDFMD5, cipher.KDFHKDF))
	}
	if c.Scrollback <= 0 {
		errs = append(errs, fmt.Errorf("scrollback must be positive, got %d", c.Scrollback))
	}
	if c.Name == "" {
		errs = append(errs, errors.New("name must not be empty"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// WeakKey reports whether the shared key is still the built-in default.
func (c *Config) WeakKey() bool {
	return c.Key == DefaultKey
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}
