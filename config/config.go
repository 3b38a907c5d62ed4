package config

import (
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"gopkg.in/yaml.v3"
)

// Config is the process configuration, loaded once at startup from
// environment variables per the external interfaces contract.
type Config struct {
	JWTAlg            string
	JWTSecret         []byte
	JWTPrivateKey     *rsa.PrivateKey
	JWTPublicKey      *rsa.PublicKey
	JWTExpireMinutes  int
	PoliciesPath      string
	DBPath            string
	LogLevel          string
	HTTPPort          string
	RedisAddr         string
}

func (c *Config) TTL() time.Duration {
	return time.Duration(c.JWTExpireMinutes) * time.Minute
}

// Error wraps a startup misconfiguration; main maps it to a non-zero
// exit code without starting the listener.
type Error struct {
	Message string
}

func (e *Error) Error() string { return e.Message }

func fail(format string, a ...any) error {
	return &Error{Message: fmt.Sprintf(format, a...)}
}

// overlay holds the subset of Config fields a local-development YAML
// file may seed; any field also set as an environment variable is
// overridden by the environment, which always wins.
type overlay struct {
	JWTAlg           string `yaml:"jwtAlg"`
	PoliciesPath     string `yaml:"policiesPath"`
	DBPath           string `yaml:"dbPath"`
	LogLevel         string `yaml:"logLevel"`
	HTTPPort         string `yaml:"httpPort"`
	RedisAddr        string `yaml:"redisAddr"`
	JWTExpireMinutes int    `yaml:"jwtExpireMinutes"`
}

// loadOverlay reads an optional local-development YAML file named by
// IDENTITYD_CONFIG_FILE. Absence of the file (or the env var) is
// not an error — environment variables alone are a complete config.
func loadOverlay() (*overlay, error) {
	path := os.Getenv("IDENTITYD_CONFIG_FILE")
	if path == "" {
		return &overlay{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fail("reading IDENTITYD_CONFIG_FILE %q: %v", path, err)
	}
	var ov overlay
	if err := yaml.Unmarshal(data, &ov); err != nil {
		return nil, fail("parsing IDENTITYD_CONFIG_FILE %q: %v", path, err)
	}
	return &ov, nil
}

// Load reads and validates the configuration: an optional YAML
// overlay file is applied first, then environment variables, which
// always take precedence.
func Load() (*Config, error) {
	ov, err := loadOverlay()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		JWTAlg:           getenvOr(ov.JWTAlg, "JWT_ALG", "HS256"),
		PoliciesPath:     getenvOr(ov.PoliciesPath, "POLICIES_PATH", "policies.json"),
		DBPath:           getenvOr(ov.DBPath, "DB_PATH", ""),
		LogLevel:         getenvOr(ov.LogLevel, "LOG_LEVEL", "INFO"),
		HTTPPort:         getenvOr(ov.HTTPPort, "HTTP_PORT", "8000"),
		RedisAddr:        getenvOr(ov.RedisAddr, "REDIS_ADDR", ""),
		JWTExpireMinutes: 15,
	}
	if ov.JWTExpireMinutes > 0 {
		cfg.JWTExpireMinutes = ov.JWTExpireMinutes
	}

	if raw := os.Getenv("JWT_EXPIRE_MINUTES"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return nil, fail("JWT_EXPIRE_MINUTES must be a positive integer, got %q", raw)
		}
		cfg.JWTExpireMinutes = n
	}

	switch cfg.JWTAlg {
	case "HS256":
		secret := os.Getenv("JWT_SECRET")
		if secret == "" {
			return nil, fail("JWT_SECRET is required for HS256")
		}
		cfg.JWTSecret = []byte(secret)
	case "RS256":
		priv, pub, err := loadRSAKeys()
		if err != nil {
			return nil, err
		}
		cfg.JWTPrivateKey, cfg.JWTPublicKey = priv, pub
	default:
		return nil, fail("JWT_ALG must be HS256 or RS256, got %q", cfg.JWTAlg)
	}

	switch cfg.LogLevel {
	case "DEBUG", "INFO", "WARNING", "ERROR":
	default:
		return nil, fail("LOG_LEVEL must be one of DEBUG, INFO, WARNING, ERROR, got %q", cfg.LogLevel)
	}

	return cfg, nil
}

// loadRSAKeys loads the RS256 keypair from JWT_PRIVATE_KEY/
// JWT_PUBLIC_KEY (optionally base64-wrapped PEM, detected via the
// "LS0t" prefix test — that string is the base64 encoding of
// "-----"). Both are required; startup aborts otherwise.
func loadRSAKeys() (*rsa.PrivateKey, *rsa.PublicKey, error) {
	privRaw := os.Getenv("JWT_PRIVATE_KEY")
	pubRaw := os.Getenv("JWT_PUBLIC_KEY")
	if privRaw == "" || pubRaw == "" {
		return nil, nil, fail("JWT_PRIVATE_KEY/JWT_PUBLIC_KEY are required for RS256")
	}
	privPEM, err := maybeDecodeBase64PEM(privRaw)
	if err != nil {
		return nil, nil, fail("JWT_PRIVATE_KEY is not valid PEM: %v", err)
	}
	pubPEM, err := maybeDecodeBase64PEM(pubRaw)
	if err != nil {
		return nil, nil, fail("JWT_PUBLIC_KEY is not valid PEM: %v", err)
	}
	priv, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(privPEM))
	if err != nil {
		return nil, nil, fail("parsing JWT_PRIVATE_KEY: %v", err)
	}
	pub, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pubPEM))
	if err != nil {
		return nil, nil, fail("parsing JWT_PUBLIC_KEY: %v", err)
	}
	return priv, pub, nil
}

func maybeDecodeBase64PEM(s string) (string, error) {
	if strings.HasPrefix(s, "LS0t") {
		decoded, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return "", err
		}
		return string(decoded), nil
	}
	return s, nil
}

// getenvOr resolves a setting with environment-variable precedence
// over the YAML overlay value, falling back to fallback if neither
// supplies it.
func getenvOr(overlayVal, key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	if overlayVal != "" {
		return overlayVal
	}
	return fallback
}
