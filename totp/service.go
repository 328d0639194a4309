package totp

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"strings"
	"time"

	"github.com/pquerna/otp"
	pqtotp "github.com/pquerna/otp/totp"
	"github.com/redis/go-redis/v9"
)

const (
	secretPrefix = "totp:keys:"
	usedPrefix   = "totp:code:"

	DefaultSecretTTL = 365 * 24 * time.Hour
	DefaultUsedTTL   = 60 * time.Second
	DefaultSkew      = 2
	DefaultPeriod    = 30
	DefaultDigits    = 6
)

var (
	// ErrRedisUnavailable wraps every cache failure.
	ErrRedisUnavailable = errors.New("totp: redis unavailable")
	// ErrSecretNotFound is returned when a principal has no enrolled secret.
	ErrSecretNotFound = errors.New("totp: secret not found")
	// ErrSecretExists is returned by Create when a secret is already stored.
	ErrSecretExists = errors.New("totp: secret already exists")
)

// Config controls TOTP enrollment and verification.
type Config struct {
	Issuer    string
	SecretTTL time.Duration
	UsedTTL   time.Duration
	Skew      uint
	Period    uint
	Digits    int
	QRSize    int
}

// Enrollment is returned once at creation. Secret and URL must be shown to
// the principal and never logged.
type Enrollment struct {
	Secret string
	URL    string
	// QRCode is a data:image/png;base64 URL; empty when QR rendering is disabled.
	QRCode string
}

// Service stores TOTP secrets in redis and validates codes against them.
type Service struct {
	redis  redis.UniversalClient
	config Config
	now    func() time.Time
}

// NewService applies defaults to cfg and returns a Service.
func NewService(client redis.UniversalClient, cfg Config) *Service {
	if cfg.SecretTTL <= 0 {
		cfg.SecretTTL = DefaultSecretTTL
	}
	if cfg.UsedTTL <= 0 {
		cfg.UsedTTL = DefaultUsedTTL
	}
	if cfg.Skew == 0 {
		cfg.Skew = DefaultSkew
	}
	if cfg.Period == 0 {
		cfg.Period = DefaultPeriod
	}
	if cfg.Digits == 0 {
		cfg.Digits = DefaultDigits
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "nebryx"
	}
	return &Service{redis: client, config: cfg, now: time.Now}
}

func secretKey(uid string) string { return secretPrefix + uid }

func usedKey(uid, code string) string { return usedPrefix + uid + ":" + code }

// Exists reports whether uid has a stored secret.
func (s *Service) Exists(ctx context.Context, uid string) (bool, error) {
	n, err := s.redis.Exists(ctx, secretKey(uid)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n > 0, nil
}

// Create generates and stores a new secret for uid. account is the label
// shown in authenticator apps, typically the email.
func (s *Service) Create(ctx context.Context, uid, account string) (*Enrollment, error) {
	key, err := pqtotp.Generate(pqtotp.GenerateOpts{
		Issuer:      s.config.Issuer,
		AccountName: account,
		Period:      s.config.Period,
		Digits:      otp.Digits(s.config.Digits),
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("totp: generate: %w", err)
	}

	ok, err := s.redis.SetNX(ctx, secretKey(uid), key.Secret(), s.config.SecretTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if !ok {
		return nil, ErrSecretExists
	}

	out := &Enrollment{Secret: key.Secret(), URL: key.URL()}
	if s.config.QRSize > 0 {
		qr, err := renderQR(key, s.config.QRSize)
		if err != nil {
			return nil, err
		}
		out.QRCode = qr
	}
	return out, nil
}

// Validate checks code against the stored secret. It fails closed: a missing
// secret, a backend error, or a replayed code all yield false. Only backend
// failures are returned as errors.
func (s *Service) Validate(ctx context.Context, uid, code string) (bool, error) {
	code = strings.TrimSpace(code)
	if len(code) != s.config.Digits {
		return false, nil
	}

	secret, err := s.redis.Get(ctx, secretKey(uid)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	valid, err := pqtotp.ValidateCustom(code, secret, s.now().UTC(), pqtotp.ValidateOpts{
		Period:    s.config.Period,
		Skew:      s.config.Skew,
		Digits:    otp.Digits(s.config.Digits),
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil || !valid {
		return false, nil
	}

	// SETNX marks the code used; a concurrent second caller loses the race.
	fresh, err := s.redis.SetNX(ctx, usedKey(uid, code), "1", s.config.UsedTTL).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return fresh, nil
}

// Delete removes the secret for uid. Deleting a missing secret is not an error.
func (s *Service) Delete(ctx context.Context, uid string) error {
	if err := s.redis.Del(ctx, secretKey(uid)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func renderQR(key *otp.Key, size int) (string, error) {
	img, err := key.Image(size, size)
	if err != nil {
		return "", fmt.Errorf("totp: qr image: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("totp: qr encode: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
