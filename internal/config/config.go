// Package config provides configuration loading for keycortex-wallet. It
// handles environment variable parsing and provides default values for the
// optional settings; WALLET_ENCRYPTION_KEY has no default and is required.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// init loads environment variables from .env files during package
// initialization. godotenv.Load does not override already-set environment
// variables, preserving OS env > .env precedence.
func init() {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to load .env file: %v\n", err)
		}
	}
	if _, err := os.Stat(".env.local"); err == nil {
		if err := godotenv.Load(".env.local"); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to load .env.local file: %v\n", err)
		}
	}
}

// Config captures environment-driven settings for keycortex-wallet.
type Config struct {
	Env            string // Deployment environment (dev, staging, prod)
	Address        string // HTTP server address
	MetricsAddress string // Metrics server address

	KeystorePath   string // bbolt file path for the embedded store
	DatabaseDSN    string // Postgres connection string; empty => single-store mode
	MigrationDir   string // directory of ordered .sql schema files; empty => bundled defaults

	EncryptionKey []byte // server-scoped key for at-rest secret wrapping
	KDFRounds     int    // SHA-256 rounds for passphrase-derived keypairs

	JWKSURL      string
	JWKSFile     string
	JWKSInline   string
	JWKSInterval time.Duration
	HMACSecret   []byte
	ExpectedIss  string
	ExpectedAud  string

	Chain        string
	CallbackURL  string
}

// Default configuration values used when environment variables are not set.
const (
	defaultAddress        = ":8080"
	defaultMetricsAddress = ":9090"
	defaultKeystorePath   = "./wallet.db"
	defaultKDFRounds      = 1000
	defaultJWKSInterval   = 60 * time.Second
	minJWKSInterval       = 10 * time.Second
	defaultChain          = "flowcortex-l1"
)

// Load reads environment variables and produces a Config.
func Load() (Config, error) {
	cfg := Config{}

	cfg.Env = getEnv("WALLET_ENV", "dev")
	cfg.Address = getEnv("WALLET_HTTP_ADDR", defaultAddress)
	cfg.MetricsAddress = getEnv("WALLET_METRICS_ADDR", defaultMetricsAddress)
	cfg.KeystorePath = getEnv("WALLET_KEYSTORE_PATH", defaultKeystorePath)
	cfg.DatabaseDSN = getEnv("WALLET_DB_DSN", "")
	cfg.MigrationDir = getEnv("WALLET_MIGRATION_DIR", "")
	cfg.Chain = getEnv("WALLET_CHAIN", defaultChain)
	cfg.CallbackURL = getEnv("WALLET_BIND_CALLBACK_URL", "")
	cfg.JWKSURL = getEnv("WALLET_JWKS_URL", "")
	cfg.JWKSFile = getEnv("WALLET_JWKS_FILE", "")
	cfg.JWKSInline = getEnv("WALLET_JWKS_INLINE", "")
	cfg.ExpectedIss = getEnv("WALLET_JWT_ISS", "")
	cfg.ExpectedAud = getEnv("WALLET_JWT_AUD", "")

	if rounds, exists := os.LookupEnv("WALLET_KDF_ROUNDS"); exists {
		n, err := strconv.Atoi(rounds)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid WALLET_KDF_ROUNDS: %s", rounds)
		}
		cfg.KDFRounds = n
	} else {
		cfg.KDFRounds = defaultKDFRounds
	}

	if interval, exists := os.LookupEnv("WALLET_JWKS_REFRESH_SECONDS"); exists {
		d, err := parseSeconds(interval)
		if err != nil {
			return Config{}, fmt.Errorf("invalid WALLET_JWKS_REFRESH_SECONDS: %w", err)
		}
		if d < minJWKSInterval {
			d = minJWKSInterval
		}
		cfg.JWKSInterval = d
	} else {
		cfg.JWKSInterval = defaultJWKSInterval
	}

	encKey, exists := os.LookupEnv("WALLET_ENCRYPTION_KEY")
	if !exists || encKey == "" {
		return Config{}, errors.New("WALLET_ENCRYPTION_KEY is required")
	}
	cfg.EncryptionKey = []byte(encKey)

	if secret, exists := os.LookupEnv("WALLET_HMAC_SECRET"); exists {
		cfg.HMACSecret = []byte(secret)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, exists := os.LookupEnv(key); exists && v != "" {
		return v
	}
	return fallback
}

func parseSeconds(raw string) (time.Duration, error) {
	seconds, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	if seconds <= 0 {
		return 0, errors.New("value must be > 0")
	}
	return time.Duration(seconds) * time.Second, nil
}
