package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/nebryx/authz"
	"github.com/nebryx/authz/fieldcrypt"
	"gorm.io/gorm"
)

// KeyStore implements authz.KeyStore. Secrets are stored encrypted.
type KeyStore struct {
	db    *gorm.DB
	codec *fieldcrypt.Codec
}

var _ authz.KeyStore = (*KeyStore)(nil)

// APIKeyByKID loads the key and decrypts its secret.
func (k *KeyStore) APIKeyByKID(ctx context.Context, kid string) (*authz.APIKey, error) {
	var rec apiKeyModel
	err := k.db.WithContext(ctx).
		Where("kid = ? AND key_holder_account_type = ?", kid, keyHolderUser).
		Take(&rec).Error
	if err != nil {
		if isNotFound(err) {
			return nil, authz.ErrKeyNotFound
		}
		return nil, fmt.Errorf("%w: %v", authz.ErrDirectoryFailure, err)
	}

	secret, err := k.codec.Decrypt(rec.SecretEncrypted)
	if err != nil {
		return nil, fmt.Errorf("decrypt api key %s: %w", kid, err)
	}
	key := toAPIKey(rec)
	key.Secret = secret
	return key, nil
}

// CreateAPIKey encrypts key.Secret and inserts the row, filling key.ID and
// the timestamps.
func (k *KeyStore) CreateAPIKey(ctx context.Context, key *authz.APIKey) error {
	sealed, err := k.codec.Encrypt(key.Secret)
	if err != nil {
		return fmt.Errorf("encrypt api key: %w", err)
	}

	now := time.Now().UTC()
	rec := apiKeyModel{
		HolderID:        key.OwnerID,
		HolderType:      keyHolderUser,
		KID:             key.KID,
		Algorithm:       key.Algorithm,
		Scope:           optional(key.Scope),
		SecretEncrypted: sealed,
		State:           key.State,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := k.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("%w: %v", authz.ErrDirectoryFailure, err)
	}
	key.ID = rec.ID
	key.CreatedAt = rec.CreatedAt
	key.UpdatedAt = rec.UpdatedAt
	return nil
}

// ListAPIKeys returns the owner's keys without secrets.
func (k *KeyStore) ListAPIKeys(ctx context.Context, ownerID int64) ([]authz.APIKey, error) {
	var rows []apiKeyModel
	err := k.db.WithContext(ctx).
		Where("key_holder_account_id = ? AND key_holder_account_type = ?", ownerID, keyHolderUser).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", authz.ErrDirectoryFailure, err)
	}

	out := make([]authz.APIKey, 0, len(rows))
	for _, r := range rows {
		out = append(out, *toAPIKey(r))
	}
	return out, nil
}

func (k *KeyStore) SetAPIKeyState(ctx context.Context, ownerID int64, kid, state string) error {
	res := k.db.WithContext(ctx).
		Model(&apiKeyModel{}).
		Where("kid = ? AND key_holder_account_id = ? AND key_holder_account_type = ?", kid, ownerID, keyHolderUser).
		Updates(map[string]any{"state": state, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return fmt.Errorf("%w: %v", authz.ErrDirectoryFailure, res.Error)
	}
	if res.RowsAffected == 0 {
		return authz.ErrKeyNotFound
	}
	return nil
}

func toAPIKey(m apiKeyModel) *authz.APIKey {
	return &authz.APIKey{
		ID:        m.ID,
		OwnerID:   m.HolderID,
		KID:       m.KID,
		Algorithm: m.Algorithm,
		Scope:     deref(m.Scope),
		State:     m.State,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}
