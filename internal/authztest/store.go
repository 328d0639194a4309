// Package authztest provides in-memory stores and key material for tests of
// packages layered on top of the engine.
package authztest

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/nebryx/authz"
	"github.com/nebryx/authz/permission"
)

// Store implements authz.Directory, authz.KeyStore and authz.RuleStore over
// maps. The rule table starts with permission.Seeds(base).
type Store struct {
	mu         sync.Mutex
	principals map[int64]*authz.Principal
	keys       map[string]*authz.APIKey
	rules      map[int64]permission.Rule
	nextRule   int64
}

func NewStore(base string) *Store {
	s := &Store{
		principals: make(map[int64]*authz.Principal),
		keys:       make(map[string]*authz.APIKey),
		rules:      make(map[int64]permission.Rule),
	}
	for _, r := range permission.Seeds(base) {
		s.nextRule++
		r.ID = s.nextRule
		s.rules[r.ID] = r
	}
	return s
}

// Update applies fn to the stored principal.
func (s *Store) Update(id int64, fn func(*authz.Principal)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.principals[id]
	if !ok {
		return authz.ErrPrincipalNotFound
	}
	fn(p)
	return nil
}

func (s *Store) find(match func(*authz.Principal) bool) (*authz.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.principals {
		if match(p) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, authz.ErrPrincipalNotFound
}

func (s *Store) PrincipalByUID(_ context.Context, uid string) (*authz.Principal, error) {
	return s.find(func(p *authz.Principal) bool { return p.UID == uid })
}

func (s *Store) PrincipalByID(_ context.Context, id int64) (*authz.Principal, error) {
	return s.find(func(p *authz.Principal) bool { return p.ID == id })
}

func (s *Store) PrincipalByEmail(_ context.Context, email string) (*authz.Principal, error) {
	return s.find(func(p *authz.Principal) bool { return p.Email == email })
}

func (s *Store) CreatePrincipal(_ context.Context, in authz.NewPrincipal) (*authz.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.principals {
		if p.Email == in.Email {
			return nil, authz.ErrPrincipalExists
		}
	}
	id := int64(len(s.principals) + 1)
	p := &authz.Principal{
		ID:             id,
		UID:            fmt.Sprintf("ID%010X", id),
		Email:          in.Email,
		Username:       in.Username,
		PasswordDigest: in.PasswordDigest,
		Role:           in.Role,
		State:          in.State,
		ReferralID:     in.ReferralID,
	}
	s.principals[id] = p
	cp := *p
	return &cp, nil
}

func (s *Store) UpdatePasswordDigest(_ context.Context, id int64, digest string) error {
	return s.Update(id, func(p *authz.Principal) { p.PasswordDigest = digest })
}

func (s *Store) SetOTP(_ context.Context, id int64, enabled bool) error {
	return s.Update(id, func(p *authz.Principal) { p.OTP = enabled })
}

func (s *Store) APIKeyByKID(_ context.Context, kid string) (*authz.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[kid]
	if !ok {
		return nil, authz.ErrKeyNotFound
	}
	cp := *k
	return &cp, nil
}

func (s *Store) CreateAPIKey(_ context.Context, key *authz.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key.ID = int64(len(s.keys) + 1)
	cp := *key
	s.keys[key.KID] = &cp
	return nil
}

func (s *Store) ListAPIKeys(_ context.Context, ownerID int64) ([]authz.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []authz.APIKey
	for _, k := range s.keys {
		if k.OwnerID == ownerID {
			out = append(out, *k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) SetAPIKeyState(_ context.Context, ownerID int64, kid, state string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[kid]
	if !ok || k.OwnerID != ownerID {
		return authz.ErrKeyNotFound
	}
	k.State = state
	return nil
}

func (s *Store) sortedRules() []permission.Rule {
	out := make([]permission.Rule, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) RulesForRole(_ context.Context, role string) ([]permission.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []permission.Rule
	for _, r := range s.sortedRules() {
		if r.Role == role {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) ListRules(_ context.Context, offset, limit int) ([]permission.Rule, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.sortedRules()
	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (s *Store) RuleByID(_ context.Context, id int64) (*permission.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[id]
	if !ok {
		return nil, authz.ErrRuleNotFound
	}
	return &r, nil
}

func (s *Store) duplicate(rule *permission.Rule) bool {
	for _, r := range s.rules {
		if r.ID != rule.ID && r.Role == rule.Role && r.Verb == rule.Verb && r.Path == rule.Path {
			return true
		}
	}
	return false
}

func (s *Store) CreateRule(_ context.Context, rule *permission.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.duplicate(rule) {
		return authz.ErrRuleExists
	}
	s.nextRule++
	rule.ID = s.nextRule
	s.rules[rule.ID] = *rule
	return nil
}

func (s *Store) UpdateRule(_ context.Context, rule *permission.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[rule.ID]; !ok {
		return authz.ErrRuleNotFound
	}
	if s.duplicate(rule) {
		return authz.ErrRuleExists
	}
	s.rules[rule.ID] = *rule
	return nil
}

func (s *Store) DeleteRule(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[id]; !ok {
		return authz.ErrRuleNotFound
	}
	delete(s.rules, id)
	return nil
}

// RSAKeys returns a PEM encoded RS256 key pair.
func RSAKeys(t testing.TB) (private, public []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("MarshalPKIXPublicKey: %v", err)
	}
	private = pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	public = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
	return private, public
}

// TestConfig returns the default configuration with fresh RSA keys, cheap
// argon2 costs, no rules file and the activity log disabled.
func TestConfig(t testing.TB) authz.Config {
	t.Helper()
	cfg := authz.DefaultConfig()
	cfg.JWT.PrivateKey, cfg.JWT.PublicKey = RSAKeys(t)
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Permission.RulesFile = ""
	cfg.Audit.Enabled = false
	return cfg
}
