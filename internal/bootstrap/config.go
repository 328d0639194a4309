package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nebryx/authz"
	"github.com/nebryx/authz/fieldcrypt"
	"gopkg.in/yaml.v3"
)

// akamaiClientIPHeader carries the end user address behind the Akamai edge.
const akamaiClientIPHeader = "True-Client-IP"

// Config is the resolved daemon configuration. Authz holds the engine
// settings; the remaining fields wire the stores around it.
type Config struct {
	AppName  string
	HTTPPort int

	DatabaseURL string
	RedisURL    string
	MaxDBConns  int

	JWTPrivateKeyPath string
	JWTPublicKeyPath  string

	EncryptionKey string
	HashSalt      string

	Gateway           string
	SeedPermissions   bool
	ActivityBatchSize int

	Authz authz.Config
}

// configFile mirrors config/authzd.yaml.
type configFile struct {
	Service struct {
		Name     string `yaml:"name"`
		HTTPPort int    `yaml:"http_port"`
		Gateway  string `yaml:"gateway"`
	} `yaml:"service"`
	Dependencies struct {
		PostgresURL string `yaml:"postgres_url"`
		RedisURL    string `yaml:"redis_url"`
		MaxDBConns  int    `yaml:"max_db_conns"`
	} `yaml:"dependencies"`
	Session struct {
		ExpireSeconds  int   `yaml:"expire_seconds"`
		CSRFProtection *bool `yaml:"csrf_protection"`
		CookieSecure   *bool `yaml:"cookie_secure"`
	} `yaml:"session"`
	JWT struct {
		PrivateKeyPath string `yaml:"private_key_path"`
		PublicKeyPath  string `yaml:"public_key_path"`
		ExpireSeconds  int    `yaml:"expire_seconds"`
		Issuer         string `yaml:"issuer"`
		Audience       string `yaml:"audience"`
	} `yaml:"jwt"`
	Permissions struct {
		RulesFile string `yaml:"rules_file"`
		BasePath  string `yaml:"base_path"`
		Watch     *bool  `yaml:"watch"`
		Seed      *bool  `yaml:"seed"`
	} `yaml:"permissions"`
	Identifiers struct {
		UserPrefix           string `yaml:"user_prefix"`
		ServiceAccountPrefix string `yaml:"service_account_prefix"`
	} `yaml:"identifiers"`
}

// LoadConfig resolves configuration in priority order: defaults -> file -> env.
// A missing file is not an error.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		AppName:           "authzd",
		HTTPPort:          8001,
		MaxDBConns:        20,
		SeedPermissions:   true,
		ActivityBatchSize: 100,
		Authz:             authz.DefaultConfig(),
	}
	cfg.Authz.Permission.WatchRulesFile = true

	if path != "" {
		raw, err := os.ReadFile(path)
		if err == nil {
			if err := applyFile(&cfg, raw); err != nil {
				return Config{}, err
			}
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	applyEnv(&cfg)

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("missing DB_URL")
	}
	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("missing REDIS_URL")
	}
	if cfg.EncryptionKey == "" {
		return Config{}, fmt.Errorf("missing ENCRYPTION_KEY")
	}
	if err := loadKeys(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Authz.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid authz config: %w", err)
	}
	return cfg, nil
}

func applyFile(cfg *Config, raw []byte) error {
	var f configFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	if f.Service.Name != "" {
		cfg.AppName = f.Service.Name
	}
	if f.Service.HTTPPort > 0 {
		cfg.HTTPPort = f.Service.HTTPPort
	}
	if f.Service.Gateway != "" {
		cfg.Gateway = f.Service.Gateway
	}
	if f.Dependencies.PostgresURL != "" {
		cfg.DatabaseURL = f.Dependencies.PostgresURL
	}
	if f.Dependencies.RedisURL != "" {
		cfg.RedisURL = f.Dependencies.RedisURL
	}
	if f.Dependencies.MaxDBConns > 0 {
		cfg.MaxDBConns = f.Dependencies.MaxDBConns
	}
	if f.Session.ExpireSeconds > 0 {
		cfg.Authz.Session.Lifetime = time.Duration(f.Session.ExpireSeconds) * time.Second
	}
	if f.Session.CSRFProtection != nil {
		cfg.Authz.Session.CSRFProtection = *f.Session.CSRFProtection
	}
	if f.Session.CookieSecure != nil {
		cfg.Authz.Session.CookieSecure = *f.Session.CookieSecure
	}
	if f.JWT.PrivateKeyPath != "" {
		cfg.JWTPrivateKeyPath = f.JWT.PrivateKeyPath
	}
	if f.JWT.PublicKeyPath != "" {
		cfg.JWTPublicKeyPath = f.JWT.PublicKeyPath
	}
	if f.JWT.ExpireSeconds > 0 {
		cfg.Authz.JWT.TTL = time.Duration(f.JWT.ExpireSeconds) * time.Second
	}
	if f.JWT.Issuer != "" {
		cfg.Authz.JWT.Issuer = f.JWT.Issuer
	}
	if f.JWT.Audience != "" {
		cfg.Authz.JWT.Audience = f.JWT.Audience
	}
	if f.Permissions.RulesFile != "" {
		cfg.Authz.Permission.RulesFile = f.Permissions.RulesFile
	}
	if f.Permissions.BasePath != "" {
		cfg.Authz.Permission.BasePath = f.Permissions.BasePath
	}
	if f.Permissions.Watch != nil {
		cfg.Authz.Permission.WatchRulesFile = *f.Permissions.Watch
	}
	if f.Permissions.Seed != nil {
		cfg.SeedPermissions = *f.Permissions.Seed
	}
	if f.Identifiers.UserPrefix != "" {
		cfg.Authz.Identifier.UserPrefix = f.Identifiers.UserPrefix
	}
	if f.Identifiers.ServiceAccountPrefix != "" {
		cfg.Authz.Identifier.ServiceAccountPrefix = f.Identifiers.ServiceAccountPrefix
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.AppName = envOrDefault("APP_NAME", cfg.AppName)
	cfg.HTTPPort = envInt("HTTP_PORT", envInt("PORT", cfg.HTTPPort))
	cfg.DatabaseURL = envOrDefault("DB_URL", envOrDefault("DATABASE_URL", cfg.DatabaseURL))
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.MaxDBConns = envInt("DB_MAX_CONNS", cfg.MaxDBConns)
	cfg.JWTPrivateKeyPath = envOrDefault("JWT_PRIVATE_KEY_PATH", cfg.JWTPrivateKeyPath)
	cfg.JWTPublicKeyPath = envOrDefault("JWT_PUBLIC_KEY_PATH", cfg.JWTPublicKeyPath)
	cfg.EncryptionKey = envOrDefault("ENCRYPTION_KEY", cfg.EncryptionKey)
	cfg.HashSalt = envOrDefault("CRC32_SALT", cfg.HashSalt)
	cfg.Gateway = strings.ToLower(strings.TrimSpace(envOrDefault("GATEWAY", cfg.Gateway)))
	cfg.SeedPermissions = envBool("SEED_PERMISSIONS", cfg.SeedPermissions)

	a := &cfg.Authz
	a.Session.CSRFProtection = envBool("CSRF_PROTECTION", a.Session.CSRFProtection)
	a.Session.CookieSecure = envBool("COOKIE_SECURE", a.Session.CookieSecure)
	a.Session.Lifetime = time.Duration(envInt("SESSION_EXPIRE_TIME", int(a.Session.Lifetime.Seconds()))) * time.Second
	a.APIKey.NonceLifetime = time.Duration(envInt("APIKEY_NONCE_LIFETIME", int(a.APIKey.NonceLifetime.Milliseconds()))) * time.Millisecond
	a.JWT.TTL = time.Duration(envInt("JWT_EXPIRE_TIME", int(a.JWT.TTL.Seconds()))) * time.Second
	a.JWT.KeyID = envOrDefault("JWT_KEY_ID", a.JWT.KeyID)
	a.Identifier.UserPrefix = envOrDefault("UID_PREFIX", a.Identifier.UserPrefix)
	a.Identifier.ServiceAccountPrefix = envOrDefault("SERVICE_ACCOUNT_UID_PREFIX", a.Identifier.ServiceAccountPrefix)
	a.Permission.RulesFile = envOrDefault("AUTHZ_RULES_FILE", a.Permission.RulesFile)
	a.Permission.BasePath = envOrDefault("API_BASE_PATH", a.Permission.BasePath)
	a.TOTP.Issuer = envOrDefault("APP_NAME", a.TOTP.Issuer)

	if cfg.Gateway == "akamai" {
		a.Network.TrustedClientIPHeader = akamaiClientIPHeader
	}
}

func loadKeys(cfg *Config) error {
	if cfg.JWTPrivateKeyPath == "" || cfg.JWTPublicKeyPath == "" {
		return fmt.Errorf("missing JWT_PRIVATE_KEY_PATH or JWT_PUBLIC_KEY_PATH")
	}
	private, err := os.ReadFile(cfg.JWTPrivateKeyPath)
	if err != nil {
		return fmt.Errorf("read jwt private key: %w", err)
	}
	public, err := os.ReadFile(cfg.JWTPublicKeyPath)
	if err != nil {
		return fmt.Errorf("read jwt public key: %w", err)
	}
	cfg.Authz.JWT.PrivateKey = private
	cfg.Authz.JWT.PublicKey = public
	return nil
}

// Codec builds the attribute codec from ENCRYPTION_KEY and CRC32_SALT.
func (c Config) Codec() (*fieldcrypt.Codec, error) {
	cipher, err := fieldcrypt.NewCipher(c.EncryptionKey)
	if err != nil {
		return nil, err
	}
	return fieldcrypt.NewCodec(cipher, fieldcrypt.NewIndexHasher(c.HashSalt))
}

// envOrDefault returns an env var when present, otherwise the provided fallback.
func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

// envInt parses integer env vars with safe fallback on empty/invalid values.
func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func envBool(name string, fallback bool) bool {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return fallback
	}
}
