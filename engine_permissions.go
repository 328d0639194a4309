package authz

import (
	"context"
	"errors"
	"strconv"

	"github.com/nebryx/authz/permission"
)

const (
	defaultPageLimit = 25
	maxPageLimit     = 100

	topicPermission = "permission"
)

// RulePage is one page of the permission table.
type RulePage struct {
	Rules []permission.Rule
	Page  int
	Limit int
	Total int64
}

// RulePatch holds the fields of an update; nil fields are left unchanged.
type RulePatch struct {
	Role   *string
	Verb   *string
	Path   *string
	Action *string
	Topic  *string
}

// ListPermissions returns rules ordered by id. page starts at 1; limit
// defaults to 25 and is capped at 100.
func (e *Engine) ListPermissions(ctx context.Context, page, limit int) (*RulePage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	rules, total, err := e.ruleStore.ListRules(ctx, (page-1)*limit, limit)
	if err != nil {
		return nil, err
	}
	return &RulePage{Rules: rules, Page: page, Limit: limit, Total: total}, nil
}

// CreatePermission validates and stores rule. A rule with the same role, verb
// and path already present is rejected.
func (e *Engine) CreatePermission(ctx context.Context, actor *Principal, rule permission.Rule) (*permission.Rule, error) {
	rule.ID = 0
	if err := validateRule(&rule); err != nil {
		return nil, err
	}
	if err := e.ruleStore.CreateRule(ctx, &rule); err != nil {
		if errors.Is(err, ErrRuleExists) {
			return nil, ErrPermissionExists
		}
		return nil, err
	}

	e.permissionsChanged(ctx, actor, "permission::create", rule.ID)
	return &rule, nil
}

// UpdatePermission applies patch to the rule with id.
func (e *Engine) UpdatePermission(ctx context.Context, actor *Principal, id int64, patch RulePatch) (*permission.Rule, error) {
	rule, err := e.ruleStore.RuleByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrRuleNotFound) {
			return nil, ErrPermissionNotFound
		}
		return nil, err
	}

	if patch.Role != nil && *patch.Role != "" {
		rule.Role = *patch.Role
	}
	if patch.Verb != nil && *patch.Verb != "" {
		rule.Verb = *patch.Verb
	}
	if patch.Path != nil && *patch.Path != "" {
		rule.Path = *patch.Path
	}
	if patch.Action != nil && *patch.Action != "" {
		rule.Action = *patch.Action
	}
	if patch.Topic != nil {
		rule.Topic = *patch.Topic
	}
	if err := validateRule(rule); err != nil {
		return nil, err
	}

	if err := e.ruleStore.UpdateRule(ctx, rule); err != nil {
		switch {
		case errors.Is(err, ErrRuleNotFound):
			return nil, ErrPermissionNotFound
		case errors.Is(err, ErrRuleExists):
			return nil, ErrPermissionExists
		}
		return nil, err
	}

	e.permissionsChanged(ctx, actor, "permission::update", rule.ID)
	return rule, nil
}

// DeletePermission removes the rule with id.
func (e *Engine) DeletePermission(ctx context.Context, actor *Principal, id int64) error {
	if err := e.ruleStore.DeleteRule(ctx, id); err != nil {
		if errors.Is(err, ErrRuleNotFound) {
			return ErrPermissionNotFound
		}
		return err
	}
	e.permissionsChanged(ctx, actor, "permission::delete", id)
	return nil
}

func (e *Engine) permissionsChanged(ctx context.Context, actor *Principal, action string, id int64) {
	e.permissions.Invalidate()
	e.metricInc(MetricPermissionWrite)
	e.emitActivity(ctx, activity{
		principal: actor,
		category:  CategoryAdmin,
		topic:     topicPermission,
		action:    action,
		result:    ResultSucceed,
		data:      map[string]string{"id": strconv.FormatInt(id, 10)},
	})
}

func validateRule(rule *permission.Rule) error {
	err := rule.Validate()
	switch {
	case err == nil:
		return nil
	case errors.Is(err, permission.ErrInvalidVerb):
		return ErrPermissionInvalidVerb
	case errors.Is(err, permission.ErrInvalidAction):
		return ErrPermissionInvalidAction
	default:
		return ErrPermissionMissingFields
	}
}
