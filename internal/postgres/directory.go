package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nebryx/authz"
	"github.com/nebryx/authz/uid"
	"gorm.io/gorm"
)

// Directory implements authz.Directory over the users and service_accounts
// tables.
type Directory struct {
	db       *gorm.DB
	ids      *uid.Generator
	prefix   string
	saPrefix string
}

var _ authz.Directory = (*Directory)(nil)

func (d *Directory) PrincipalByUID(ctx context.Context, id string) (*authz.Principal, error) {
	if d.saPrefix != "" && strings.HasPrefix(id, d.saPrefix) {
		var sa serviceAccountModel
		if err := d.db.WithContext(ctx).Where("uid = ?", id).Take(&sa).Error; err != nil {
			return nil, lookupError(err)
		}
		return serviceAccountPrincipal(sa), nil
	}

	var rec userModel
	if err := d.db.WithContext(ctx).Where("uid = ?", id).Take(&rec).Error; err != nil {
		return nil, lookupError(err)
	}
	return toPrincipal(rec), nil
}

func (d *Directory) PrincipalByID(ctx context.Context, id int64) (*authz.Principal, error) {
	var rec userModel
	if err := d.db.WithContext(ctx).Where("id = ?", id).Take(&rec).Error; err != nil {
		return nil, lookupError(err)
	}
	return toPrincipal(rec), nil
}

func (d *Directory) PrincipalByEmail(ctx context.Context, email string) (*authz.Principal, error) {
	var rec userModel
	if err := d.db.WithContext(ctx).Where("email = ?", email).Take(&rec).Error; err != nil {
		return nil, lookupError(err)
	}
	return toPrincipal(rec), nil
}

// CreatePrincipal assigns a uid unique across users and service accounts and
// inserts the row. A duplicate email or username is ErrPrincipalExists.
func (d *Directory) CreatePrincipal(ctx context.Context, in authz.NewPrincipal) (*authz.Principal, error) {
	id, err := d.ids.Generate(ctx, d.prefix, d.uidTaken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", authz.ErrDirectoryFailure, err)
	}

	now := time.Now().UTC()
	rec := userModel{
		UID:            id,
		Username:       optional(in.Username),
		Email:          in.Email,
		PasswordDigest: in.PasswordDigest,
		Role:           in.Role,
		State:          in.State,
		ReferralID:     in.ReferralID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := d.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, authz.ErrPrincipalExists
		}
		return nil, fmt.Errorf("%w: %v", authz.ErrDirectoryFailure, err)
	}
	return toPrincipal(rec), nil
}

func (d *Directory) UpdatePasswordDigest(ctx context.Context, id int64, digest string) error {
	return d.updateUser(ctx, id, map[string]any{"password_digest": digest})
}

func (d *Directory) SetOTP(ctx context.Context, id int64, enabled bool) error {
	return d.updateUser(ctx, id, map[string]any{"otp": enabled})
}

func (d *Directory) updateUser(ctx context.Context, id int64, fields map[string]any) error {
	fields["updated_at"] = time.Now().UTC()
	res := d.db.WithContext(ctx).Model(&userModel{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("%w: %v", authz.ErrDirectoryFailure, res.Error)
	}
	if res.RowsAffected == 0 {
		return authz.ErrPrincipalNotFound
	}
	return nil
}

func (d *Directory) uidTaken(ctx context.Context, candidate string) (bool, error) {
	var users, accounts int64
	if err := d.db.WithContext(ctx).Model(&userModel{}).Where("uid = ?", candidate).Count(&users).Error; err != nil {
		return false, err
	}
	if err := d.db.WithContext(ctx).Model(&serviceAccountModel{}).Where("uid = ?", candidate).Count(&accounts).Error; err != nil {
		return false, err
	}
	return users+accounts > 0, nil
}

func lookupError(err error) error {
	if isNotFound(err) {
		return authz.ErrPrincipalNotFound
	}
	return fmt.Errorf("%w: %v", authz.ErrDirectoryFailure, err)
}
