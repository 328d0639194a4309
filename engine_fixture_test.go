package authz

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
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/nebryx/authz/permission"
	"github.com/nebryx/authz/rules"
	"github.com/redis/go-redis/v9"
)

const (
	testBase      = "/api/v2/nebryx"
	testUserAgent = "Mozilla/5.0 (X11; Linux x86_64)"
	testIP        = "10.20.30.40"
	testPassword  = "correct horse battery"
)

var (
	rsaOnce sync.Once
	rsaPriv []byte
	rsaPub  []byte
)

func testKeys(t testing.TB) ([]byte, []byte) {
	t.Helper()
	rsaOnce.Do(func() {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			t.Fatalf("rsa.GenerateKey: %v", err)
		}
		rsaPriv = pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
		der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
		if err != nil {
			t.Fatalf("MarshalPKIXPublicKey: %v", err)
		}
		rsaPub = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
	})
	return append([]byte(nil), rsaPriv...), append([]byte(nil), rsaPub...)
}

func testConfig(t testing.TB) Config {
	t.Helper()
	priv, pub := testKeys(t)
	cfg := DefaultConfig()
	cfg.JWT.PrivateKey = priv
	cfg.JWT.PublicKey = pub
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Permission.RulesFile = ""
	cfg.Audit.FlushInterval = 10 * time.Millisecond
	cfg.TOTP.QRSize = 0
	return cfg
}

/*
====================================
IN-MEMORY STORES
====================================
*/

type memDirectory struct {
	mu     sync.Mutex
	byID   map[int64]*Principal
	nextID int64
}

func newMemDirectory() *memDirectory {
	return &memDirectory{byID: make(map[int64]*Principal)}
}

func (d *memDirectory) put(p Principal) *Principal {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p.ID == 0 {
		d.nextID++
		p.ID = d.nextID
	}
	cp := p
	d.byID[p.ID] = &cp
	out := cp
	return &out
}

func (d *memDirectory) get(id int64) *Principal {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.byID[id]
	if !ok {
		return nil
	}
	cp := *p
	return &cp
}

func (d *memDirectory) remove(id int64) {
	d.mu.Lock()
	delete(d.byID, id)
	d.mu.Unlock()
}

func (d *memDirectory) find(match func(*Principal) bool) (*Principal, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, p := range d.byID {
		if match(p) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrPrincipalNotFound
}

func (d *memDirectory) PrincipalByUID(_ context.Context, uid string) (*Principal, error) {
	return d.find(func(p *Principal) bool { return p.UID == uid })
}

func (d *memDirectory) PrincipalByID(_ context.Context, id int64) (*Principal, error) {
	if p := d.get(id); p != nil {
		return p, nil
	}
	return nil, ErrPrincipalNotFound
}

func (d *memDirectory) PrincipalByEmail(_ context.Context, email string) (*Principal, error) {
	return d.find(func(p *Principal) bool { return p.Email == email })
}

func (d *memDirectory) CreatePrincipal(ctx context.Context, in NewPrincipal) (*Principal, error) {
	if _, err := d.PrincipalByEmail(ctx, in.Email); err == nil {
		return nil, ErrPrincipalExists
	}
	d.mu.Lock()
	uid := "ID" + string(rune('A'+len(d.byID))) + "000000001"
	d.mu.Unlock()
	return d.put(Principal{
		UID:            uid,
		Email:          in.Email,
		Username:       in.Username,
		PasswordDigest: in.PasswordDigest,
		Role:           in.Role,
		State:          in.State,
		ReferralID:     in.ReferralID,
	}), nil
}

func (d *memDirectory) UpdatePasswordDigest(_ context.Context, id int64, digest string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.byID[id]
	if !ok {
		return ErrPrincipalNotFound
	}
	p.PasswordDigest = digest
	return nil
}

func (d *memDirectory) SetOTP(_ context.Context, id int64, enabled bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.byID[id]
	if !ok {
		return ErrPrincipalNotFound
	}
	p.OTP = enabled
	return nil
}

type memKeys struct {
	mu   sync.Mutex
	keys map[string]*APIKey
}

func newMemKeys() *memKeys {
	return &memKeys{keys: make(map[string]*APIKey)}
}

func (k *memKeys) APIKeyByKID(_ context.Context, kid string) (*APIKey, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	key, ok := k.keys[kid]
	if !ok {
		return nil, ErrKeyNotFound
	}
	cp := *key
	return &cp, nil
}

func (k *memKeys) CreateAPIKey(_ context.Context, key *APIKey) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	key.ID = int64(len(k.keys) + 1)
	key.CreatedAt = time.Now()
	key.UpdatedAt = key.CreatedAt
	cp := *key
	k.keys[key.KID] = &cp
	return nil
}

func (k *memKeys) ListAPIKeys(_ context.Context, ownerID int64) ([]APIKey, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	var out []APIKey
	for _, key := range k.keys {
		if key.OwnerID == ownerID {
			out = append(out, *key)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (k *memKeys) SetAPIKeyState(_ context.Context, ownerID int64, kid, state string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	key, ok := k.keys[kid]
	if !ok || key.OwnerID != ownerID {
		return ErrKeyNotFound
	}
	key.State = state
	return nil
}

type memRules struct {
	mu     sync.Mutex
	rules  []permission.Rule
	nextID int64
	loads  int
}

func newMemRules(seed ...permission.Rule) *memRules {
	m := &memRules{}
	for _, r := range seed {
		_ = m.CreateRule(context.Background(), &r)
	}
	return m
}

func (m *memRules) RulesForRole(_ context.Context, role string) ([]permission.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	var out []permission.Rule
	for _, r := range m.rules {
		if r.Role == role {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memRules) ListRules(_ context.Context, offset, limit int) ([]permission.Rule, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := int64(len(m.rules))
	if offset >= len(m.rules) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(m.rules) {
		end = len(m.rules)
	}
	return append([]permission.Rule(nil), m.rules[offset:end]...), total, nil
}

func (m *memRules) RuleByID(_ context.Context, id int64) (*permission.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rules {
		if r.ID == id {
			cp := r
			return &cp, nil
		}
	}
	return nil, ErrRuleNotFound
}

func (m *memRules) CreateRule(_ context.Context, rule *permission.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rules {
		if r.Role == rule.Role && r.Verb == rule.Verb && r.Path == rule.Path {
			return ErrRuleExists
		}
	}
	m.nextID++
	rule.ID = m.nextID
	m.rules = append(m.rules, *rule)
	return nil
}

func (m *memRules) UpdateRule(_ context.Context, rule *permission.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rules {
		if m.rules[i].ID == rule.ID {
			m.rules[i] = *rule
			return nil
		}
	}
	return ErrRuleNotFound
}

func (m *memRules) DeleteRule(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rules {
		if m.rules[i].ID == id {
			m.rules = append(m.rules[:i], m.rules[i+1:]...)
			return nil
		}
	}
	return ErrRuleNotFound
}

type recordingActivities struct {
	mu     sync.Mutex
	events []Activity
}

func (r *recordingActivities) WriteBatch(_ context.Context, events []Activity) error {
	r.mu.Lock()
	r.events = append(r.events, events...)
	r.mu.Unlock()
	return nil
}

func (r *recordingActivities) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Action+"/"+ev.Result)
	}
	return out
}

/*
====================================
FIXTURE
====================================
*/

type fixture struct {
	engine     *Engine
	mr         *miniredis.Miniredis
	directory  *memDirectory
	keys       *memKeys
	rules      *memRules
	activities *recordingActivities
	seq        int
}

func newFixture(t testing.TB, mutate func(*Config), set *rules.Set) *fixture {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := testConfig(t)
	if mutate != nil {
		mutate(&cfg)
	}

	f := &fixture{
		mr:         mr,
		directory:  newMemDirectory(),
		keys:       newMemKeys(),
		rules:      newMemRules(permission.Seeds(testBase)...),
		activities: &recordingActivities{},
	}

	b := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithDirectory(f.directory).
		WithKeyStore(f.keys).
		WithRuleStore(f.rules).
		WithActivityWriter(f.activities)
	if set != nil {
		b.WithRules(rules.NewStaticStore(set))
	}

	f.engine, err = b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(f.engine.Close)
	return f
}

// member stores an active member with testPassword.
func (f *fixture) member(t testing.TB, email string) *Principal {
	t.Helper()
	digest, err := f.engine.passwords.Hash(testPassword)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	f.seq++
	return f.directory.put(Principal{
		UID:            fmt.Sprintf("ID%010X", f.seq),
		Email:          email,
		Username:       email[:1],
		Role:           RoleMember,
		State:          StateActive,
		PasswordDigest: digest,
	})
}

func clientCtx() context.Context {
	ctx := WithClientIP(context.Background(), testIP)
	return WithUserAgent(ctx, testUserAgent)
}

// login opens a session for p from the default client.
func (f *fixture) login(t testing.TB, p *Principal) *LoginResult {
	t.Helper()
	res, err := f.engine.Login(clientCtx(), LoginInput{Email: p.Email, Password: testPassword})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	return res
}

func sessionRequest(method, path string, p *Principal, res *LoginResult) *Request {
	return &Request{
		Method:     method,
		Path:       path,
		UserAgent:  testUserAgent,
		ClientIP:   testIP,
		SessionUID: p.UID,
		SessionID:  res.SessionID,
		CSRFToken:  res.CSRFToken,
	}
}

func assertCode(t *testing.T, err error, want *CodeError) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s, got nil", want.Code)
	}
	got := Classify(err)
	if got != want {
		t.Fatalf("expected %s (%d), got %s (%d): %v", want.Code, want.Status, got.Code, got.Status, err)
	}
}
