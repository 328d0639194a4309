package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nebryx/authz"
	"github.com/nebryx/authz/permission"
	"gorm.io/gorm"
)

// RuleStore implements authz.RuleStore over the permissions table.
type RuleStore struct {
	db *gorm.DB
}

var _ authz.RuleStore = (*RuleStore)(nil)

func (s *RuleStore) RulesForRole(ctx context.Context, role string) ([]permission.Rule, error) {
	var rows []permissionModel
	if err := s.db.WithContext(ctx).Where("role = ?", role).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", authz.ErrDirectoryFailure, err)
	}
	out := make([]permission.Rule, 0, len(rows))
	for _, r := range rows {
		out = append(out, toRule(r))
	}
	return out, nil
}

func (s *RuleStore) ListRules(ctx context.Context, offset, limit int) ([]permission.Rule, int64, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&permissionModel{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("%w: %v", authz.ErrDirectoryFailure, err)
	}

	var rows []permissionModel
	if err := s.db.WithContext(ctx).Order("id").Offset(offset).Limit(limit).Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("%w: %v", authz.ErrDirectoryFailure, err)
	}
	out := make([]permission.Rule, 0, len(rows))
	for _, r := range rows {
		out = append(out, toRule(r))
	}
	return out, total, nil
}

func (s *RuleStore) RuleByID(ctx context.Context, id int64) (*permission.Rule, error) {
	var rec permissionModel
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&rec).Error; err != nil {
		if isNotFound(err) {
			return nil, authz.ErrRuleNotFound
		}
		return nil, fmt.Errorf("%w: %v", authz.ErrDirectoryFailure, err)
	}
	r := toRule(rec)
	return &r, nil
}

func (s *RuleStore) CreateRule(ctx context.Context, rule *permission.Rule) error {
	rec := fromRule(*rule)
	rec.ID = 0
	now := time.Now().UTC()
	rec.CreatedAt, rec.UpdatedAt = now, now

	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if isUniqueViolation(err) {
			return authz.ErrRuleExists
		}
		return fmt.Errorf("%w: %v", authz.ErrDirectoryFailure, err)
	}
	rule.ID = rec.ID
	return nil
}

func (s *RuleStore) UpdateRule(ctx context.Context, rule *permission.Rule) error {
	res := s.db.WithContext(ctx).
		Model(&permissionModel{}).
		Where("id = ?", rule.ID).
		Updates(map[string]any{
			"role":       rule.Role,
			"verb":       rule.Verb,
			"path":       rule.Path,
			"action":     rule.Action,
			"topic":      optional(rule.Topic),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return authz.ErrRuleExists
		}
		return fmt.Errorf("%w: %v", authz.ErrDirectoryFailure, res.Error)
	}
	if res.RowsAffected == 0 {
		return authz.ErrRuleNotFound
	}
	return nil
}

func (s *RuleStore) DeleteRule(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&permissionModel{})
	if res.Error != nil {
		return fmt.Errorf("%w: %v", authz.ErrDirectoryFailure, res.Error)
	}
	if res.RowsAffected == 0 {
		return authz.ErrRuleNotFound
	}
	return nil
}

// Seed installs permission.Seeds(base) when the table is empty and reports
// how many rules were written.
func (s *RuleStore) Seed(ctx context.Context, base string) (int, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&permissionModel{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("%w: %v", authz.ErrDirectoryFailure, err)
	}
	if count > 0 {
		return 0, nil
	}

	seeds := permission.Seeds(base)
	now := time.Now().UTC()
	rows := make([]permissionModel, 0, len(seeds))
	for _, r := range seeds {
		m := fromRule(r)
		m.CreatedAt, m.UpdatedAt = now, now
		rows = append(rows, m)
	}
	if err := s.db.WithContext(ctx).CreateInBatches(rows, 100).Error; err != nil {
		return 0, fmt.Errorf("%w: %v", authz.ErrDirectoryFailure, err)
	}

	slog.Default().InfoContext(ctx, "permissions seeded",
		"module", "postgres",
		"layer", "adapter",
		"operation", "seed_permissions",
		"outcome", "success",
		"count", len(rows),
	)
	return len(rows), nil
}
