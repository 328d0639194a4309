package authz

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nebryx/authz/apikey"
	"github.com/nebryx/authz/internal/audit"
	"github.com/nebryx/authz/internal/rate"
	"github.com/nebryx/authz/jwt"
	"github.com/nebryx/authz/password"
	"github.com/nebryx/authz/permission"
	"github.com/nebryx/authz/rules"
	"github.com/nebryx/authz/session"
	"github.com/nebryx/authz/totp"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an Engine. Configure it during initialization, call Build
// once, and discard it.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	directory      Directory
	keys           KeyStore
	ruleStore      RuleStore
	rules          *rules.Store
	activityWriter ActivityWriter
	logger         *slog.Logger

	built bool
}

// New returns a Builder holding the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the configuration. The value is copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the cache used for sessions, TOTP secrets and limiters.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithDirectory(d Directory) *Builder {
	b.directory = d
	return b
}

func (b *Builder) WithKeyStore(k KeyStore) *Builder {
	b.keys = k
	return b
}

// WithRuleStore sets the backing store of the permission table.
func (b *Builder) WithRuleStore(rs RuleStore) *Builder {
	b.ruleStore = rs
	return b
}

// WithRules sets the pass/block rules directly instead of loading
// Permission.RulesFile.
func (b *Builder) WithRules(s *rules.Store) *Builder {
	b.rules = s
	return b
}

// WithActivityWriter sets where the activity log is persisted. Without one,
// activities are discarded.
func (b *Builder) WithActivityWriter(w ActivityWriter) *Builder {
	b.activityWriter = w
	return b
}

func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// Build validates the configuration and wires every component.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}

	cfg := cloneConfig(b.config)
	if b.redis == nil {
		return nil, fmt.Errorf("%w: redis client", ErrMissingDependency)
	}
	if b.directory == nil {
		return nil, fmt.Errorf("%w: directory", ErrMissingDependency)
	}
	if b.keys == nil {
		return nil, fmt.Errorf("%w: key store", ErrMissingDependency)
	}
	if b.ruleStore == nil {
		return nil, fmt.Errorf("%w: rule store", ErrMissingDependency)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	hasher, err := password.NewHasher(cfg.passwordConfig())
	if err != nil {
		return nil, fmt.Errorf("password hasher: %w", err)
	}

	tokens, err := jwt.NewManager(jwt.Config{
		TTL:           cfg.JWT.TTL,
		SigningMethod: cfg.JWT.SigningMethod,
		PrivateKey:    cfg.JWT.PrivateKey,
		PublicKey:     cfg.JWT.PublicKey,
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
	})
	if err != nil {
		return nil, fmt.Errorf("token manager: %w", err)
	}

	ruleSet := b.rules
	if ruleSet == nil && cfg.Permission.RulesFile != "" {
		ruleSet, err = rules.NewStore(cfg.Permission.RulesFile, logger)
		if err != nil {
			return nil, fmt.Errorf("rules file: %w", err)
		}
	}
	if ruleSet == nil && cfg.Permission.WatchRulesFile {
		return nil, errors.New("WatchRulesFile requires a rules file")
	}

	e := &Engine{
		config: cfg,
		logger: logger.With("module", "authz", "layer", "engine"),

		sessions: session.NewStore(b.redis, cfg.Session.RedisPrefix),
		rateLimiter: rate.New(b.redis, rate.Config{
			EnableIPThrottle:      cfg.Security.EnableIPThrottle,
			MaxLoginAttempts:      cfg.Security.MaxLoginAttempts,
			LoginCooldownDuration: cfg.Security.LoginCooldownDuration,
		}),
		totp: totp.NewService(b.redis, totp.Config{
			Issuer:    cfg.TOTP.Issuer,
			SecretTTL: cfg.TOTP.SecretTTL,
			UsedTTL:   cfg.TOTP.UsedCodeTTL,
			Skew:      cfg.TOTP.Skew,
			QRSize:    cfg.TOTP.QRSize,
		}),
		totpLimiter: totp.NewLimiter(b.redis, totp.LimiterConfig{
			MaxAttempts: cfg.TOTP.MaxAttempts,
			Cooldown:    cfg.TOTP.AttemptWindow,
		}),
		tokens:      tokens,
		passwords:   hasher,
		permissions: permission.NewTable(b.ruleStore),
		rules:       ruleSet,

		directory: b.directory,
		keys:      b.keys,
		ruleStore: b.ruleStore,

		audit: audit.NewDispatcher(audit.Config{
			Enabled:       cfg.Audit.Enabled,
			BufferSize:    cfg.Audit.BufferSize,
			DropIfFull:    cfg.Audit.DropIfFull,
			BatchSize:     cfg.Audit.BatchSize,
			FlushInterval: cfg.Audit.FlushInterval,
		}, b.activityWriter, logger),
		metrics: NewMetrics(cfg.Metrics),

		now: time.Now,
	}

	e.verifier = apikey.NewVerifier(cfg.APIKey.NonceLifetime, func() time.Time { return e.now() })

	b.built = true
	return e, nil
}
