package authz

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nebryx/authz/apikey"
)

const (
	topicAPIKey = "apikey"

	defaultKeyAlgorithm = "HS256"
)

// CreateAPIKey issues a new active key for p. The returned secret is the only
// copy the caller will ever see; the store keeps it encrypted.
func (e *Engine) CreateAPIKey(ctx context.Context, p *Principal, algorithm, scope string) (*CreatedAPIKey, error) {
	algorithm = strings.ToUpper(strings.TrimSpace(algorithm))
	if algorithm == "" {
		algorithm = defaultKeyAlgorithm
	}
	if !apikey.ValidAlgorithm(algorithm) {
		return nil, ErrAPIKeyAlgorithm
	}

	creds, err := apikey.NewCredentials()
	if err != nil {
		return nil, fmt.Errorf("generate api key: %w", err)
	}

	key := &APIKey{
		OwnerID:   p.ID,
		KID:       creds.KID,
		Algorithm: algorithm,
		Scope:     strings.TrimSpace(scope),
		Secret:    creds.Secret,
		State:     KeyStateActive,
	}
	if err := e.keys.CreateAPIKey(ctx, key); err != nil {
		return nil, err
	}

	e.metricInc(MetricAPIKeyCreated)
	e.emitActivity(ctx, activity{
		principal: p,
		topic:     topicAPIKey,
		action:    "apikey::create",
		result:    ResultSucceed,
		data:      map[string]string{"kid": key.KID},
	})
	return &CreatedAPIKey{
		KID:       key.KID,
		Secret:    creds.Secret,
		Algorithm: key.Algorithm,
		Scope:     key.Scope,
		State:     key.State,
	}, nil
}

// ListAPIKeys returns p's keys with secrets cleared.
func (e *Engine) ListAPIKeys(ctx context.Context, p *Principal) ([]APIKey, error) {
	keys, err := e.keys.ListAPIKeys(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	for i := range keys {
		keys[i].Secret = ""
	}
	return keys, nil
}

// DeactivateAPIKey marks one of p's keys inactive. Keys owned by someone else
// are reported as not found.
func (e *Engine) DeactivateAPIKey(ctx context.Context, p *Principal, kid string) error {
	kid = strings.TrimSpace(kid)
	if kid == "" {
		return ErrAPIKeyNotFound
	}
	if err := e.keys.SetAPIKeyState(ctx, p.ID, kid, KeyStateInactive); err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return ErrAPIKeyNotFound
		}
		return err
	}

	e.metricInc(MetricAPIKeyRevoked)
	e.emitActivity(ctx, activity{
		principal: p,
		topic:     topicAPIKey,
		action:    "apikey::delete",
		result:    ResultSucceed,
		data:      map[string]string{"kid": kid},
	})
	return nil
}
