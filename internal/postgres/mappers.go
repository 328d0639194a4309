package postgres

import (
	"errors"

	"github.com/nebryx/authz"
	"github.com/nebryx/authz/permission"
	"gorm.io/gorm"
)

func toPrincipal(m userModel) *authz.Principal {
	p := &authz.Principal{
		ID:             m.ID,
		UID:            m.UID,
		Email:          m.Email,
		Role:           m.Role,
		Level:          m.Level,
		State:          m.State,
		OTP:            m.OTP,
		PasswordDigest: m.PasswordDigest,
		ReferralID:     m.ReferralID,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
	if m.Username != nil {
		p.Username = *m.Username
	}
	return p
}

// Service accounts carry no password and cannot log in; they authenticate
// with API keys only.
func serviceAccountPrincipal(m serviceAccountModel) *authz.Principal {
	return &authz.Principal{
		ID:        m.ID,
		UID:       m.UID,
		Email:     m.Email,
		Role:      m.Role,
		Level:     m.Level,
		State:     m.State,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func toRule(m permissionModel) permission.Rule {
	r := permission.Rule{
		ID:     m.ID,
		Role:   m.Role,
		Verb:   m.Verb,
		Path:   m.Path,
		Action: m.Action,
	}
	if m.Topic != nil {
		r.Topic = *m.Topic
	}
	return r
}

func fromRule(r permission.Rule) permissionModel {
	return permissionModel{
		ID:     r.ID,
		Role:   r.Role,
		Verb:   r.Verb,
		Path:   r.Path,
		Action: r.Action,
		Topic:  optional(r.Topic),
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
