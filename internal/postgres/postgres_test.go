package postgres

import (
	"context"
	"database/sql/driver"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/nebryx/authz"
	"github.com/nebryx/authz/fieldcrypt"
	"github.com/nebryx/authz/permission"
	"github.com/nebryx/authz/uid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

var userColumns = []string{
	"id", "uid", "username", "email", "password_digest", "role", "data",
	"level", "otp", "state", "referral_id", "created_at", "updated_at",
}

func newMockRepos(t *testing.T) (Repositories, sqlmock.Sqlmock) {
	t.Helper()
	return newMockReposWithPrefixes(t, "ID", "SI")
}

func newMockReposWithPrefixes(t *testing.T, userPrefix, saPrefix string) (Repositories, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		TranslateError:         true,
		Logger:                 logger.Discard,
	})
	if err != nil {
		t.Fatalf("gorm.Open: %v", err)
	}

	cipher, err := fieldcrypt.NewCipher(testKey)
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	codec, err := fieldcrypt.NewCodec(cipher, fieldcrypt.NewIndexHasher("salt"))
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	repos := NewRepositories(db, Options{
		Codec:                codec,
		IDs:                  uid.New(3),
		UserPrefix:           userPrefix,
		ServiceAccountPrefix: saPrefix,
	})
	return repos, mock
}

func expectationsMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// captureArg matches any value and remembers the last string it saw.
type captureArg struct {
	value string
}

func (c *captureArg) Match(v driver.Value) bool {
	if s, ok := v.(string); ok {
		c.value = s
	}
	return true
}

func TestPrincipalByUIDMapsRow(t *testing.T) {
	repos, mock := newMockRepos(t)
	now := time.Now().UTC()
	ref := int64(7)

	mock.ExpectQuery(`SELECT \* FROM "users" WHERE uid = \$1`).
		WillReturnRows(sqlmock.NewRows(userColumns).
			AddRow(42, "ID0A1B2C3D4E", nil, "alice@example.com", "$argon2id$x", "member", nil, 1, true, "active", ref, now, now))

	p, err := repos.Directory.PrincipalByUID(context.Background(), "ID0A1B2C3D4E")
	if err != nil {
		t.Fatalf("PrincipalByUID: %v", err)
	}
	if p.ID != 42 || p.Email != "alice@example.com" || !p.OTP || p.Level != 1 || p.Username != "" {
		t.Fatalf("unexpected principal: %+v", p)
	}
	if p.ReferralID == nil || *p.ReferralID != ref {
		t.Fatalf("expected referral id %d, got %v", ref, p.ReferralID)
	}
	expectationsMet(t, mock)
}

func TestPrincipalByUIDServiceAccount(t *testing.T) {
	repos, mock := newMockRepos(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT \* FROM "service_accounts" WHERE uid = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "uid", "owner_id", "email", "role", "level", "state", "created_at", "updated_at"}).
			AddRow(3, "SI0000000001", 42, "bot@example.com", "service_account", 2, "active", now, now))

	p, err := repos.Directory.PrincipalByUID(context.Background(), "SI0000000001")
	if err != nil {
		t.Fatalf("PrincipalByUID: %v", err)
	}
	if p.Role != "service_account" || p.PasswordDigest != "" || !p.Live() {
		t.Fatalf("unexpected service account: %+v", p)
	}
	expectationsMet(t, mock)
}

func TestServiceAccountPrefixIgnoresCase(t *testing.T) {
	repos, mock := newMockReposWithPrefixes(t, "id", " si ")
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT \* FROM "service_accounts" WHERE uid = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "uid", "owner_id", "email", "role", "level", "state", "created_at", "updated_at"}).
			AddRow(4, "SI00000000AB", 42, "cron@example.com", "service_account", 1, "active", now, now))

	p, err := repos.Directory.PrincipalByUID(context.Background(), "SI00000000AB")
	if err != nil {
		t.Fatalf("PrincipalByUID: %v", err)
	}
	if p.UID != "SI00000000AB" || p.Role != "service_account" {
		t.Fatalf("expected service account lookup, got %+v", p)
	}
	expectationsMet(t, mock)
}

func TestPrincipalLookupErrors(t *testing.T) {
	repos, mock := newMockRepos(t)

	mock.ExpectQuery(`SELECT \* FROM "users" WHERE email = \$1`).
		WillReturnRows(sqlmock.NewRows(userColumns))
	if _, err := repos.Directory.PrincipalByEmail(context.Background(), "nobody@example.com"); !errors.Is(err, authz.ErrPrincipalNotFound) {
		t.Fatalf("expected ErrPrincipalNotFound, got %v", err)
	}

	mock.ExpectQuery(`SELECT \* FROM "users" WHERE id = \$1`).
		WillReturnError(errors.New("connection reset"))
	if _, err := repos.Directory.PrincipalByID(context.Background(), 1); !errors.Is(err, authz.ErrDirectoryFailure) {
		t.Fatalf("expected ErrDirectoryFailure, got %v", err)
	}
	expectationsMet(t, mock)
}

func TestCreatePrincipal(t *testing.T) {
	repos, mock := newMockRepos(t)
	captured := &captureArg{}

	mock.ExpectQuery(`SELECT count\(\*\) FROM "users" WHERE uid = \$1`).
		WithArgs(captured).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "service_accounts" WHERE uid = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`INSERT INTO "users"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(9))

	p, err := repos.Directory.CreatePrincipal(context.Background(), authz.NewPrincipal{
		Email:          "new@example.com",
		PasswordDigest: "$argon2id$x",
		Role:           authz.RoleMember,
		State:          authz.StatePending,
	})
	if err != nil {
		t.Fatalf("CreatePrincipal: %v", err)
	}
	if p.ID != 9 || p.UID != captured.value || !strings.HasPrefix(p.UID, "ID") || len(p.UID) != 12 {
		t.Fatalf("unexpected principal: id=%d uid=%q checked=%q", p.ID, p.UID, captured.value)
	}
	expectationsMet(t, mock)
}

func TestCreatePrincipalDuplicate(t *testing.T) {
	repos, mock := newMockRepos(t)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "users"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "service_accounts"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`INSERT INTO "users"`).
		WillReturnError(gorm.ErrDuplicatedKey)

	_, err := repos.Directory.CreatePrincipal(context.Background(), authz.NewPrincipal{Email: "dup@example.com"})
	if !errors.Is(err, authz.ErrPrincipalExists) {
		t.Fatalf("expected ErrPrincipalExists, got %v", err)
	}
	expectationsMet(t, mock)
}

func TestSetOTPMissingPrincipal(t *testing.T) {
	repos, mock := newMockRepos(t)

	mock.ExpectExec(`UPDATE "users" SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	if err := repos.Directory.SetOTP(context.Background(), 404, true); !errors.Is(err, authz.ErrPrincipalNotFound) {
		t.Fatalf("expected ErrPrincipalNotFound, got %v", err)
	}

	mock.ExpectExec(`UPDATE "users" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := repos.Directory.UpdatePasswordDigest(context.Background(), 1, "$argon2id$y"); err != nil {
		t.Fatalf("UpdatePasswordDigest: %v", err)
	}
	expectationsMet(t, mock)
}

func TestAPIKeySecretEncryptedAtRest(t *testing.T) {
	repos, mock := newMockRepos(t)
	sealed := &captureArg{}
	a := sqlmock.AnyArg()

	mock.ExpectQuery(`INSERT INTO "apikeys"`).
		WithArgs(a, a, a, a, a, sealed, a, a, a).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))

	key := &authz.APIKey{
		OwnerID:   42,
		KID:       "0123456789abcdef",
		Algorithm: "HS256",
		Secret:    "s3cr3t-material",
		State:     authz.KeyStateActive,
	}
	if err := repos.Keys.CreateAPIKey(context.Background(), key); err != nil {
		t.Fatalf("CreateAPIKey: %v", err)
	}
	if key.ID != 5 {
		t.Fatalf("expected id 5, got %d", key.ID)
	}
	if sealed.value == "" || strings.Contains(sealed.value, key.Secret) || strings.Count(sealed.value, ":") != 2 {
		t.Fatalf("secret not sealed: %q", sealed.value)
	}

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT \* FROM "apikeys" WHERE kid = \$1 AND key_holder_account_type = \$2`).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "key_holder_account_id", "key_holder_account_type", "kid", "algorithm",
			"scope", "secret_encrypted", "state", "created_at", "updated_at",
		}).AddRow(5, 42, "User", key.KID, "HS256", nil, sealed.value, "active", now, now))

	loaded, err := repos.Keys.APIKeyByKID(context.Background(), key.KID)
	if err != nil {
		t.Fatalf("APIKeyByKID: %v", err)
	}
	if loaded.Secret != key.Secret || loaded.OwnerID != 42 || !loaded.Active() {
		t.Fatalf("unexpected key: %+v", loaded)
	}
	expectationsMet(t, mock)
}

func TestAPIKeyLookupErrors(t *testing.T) {
	repos, mock := newMockRepos(t)

	mock.ExpectQuery(`SELECT \* FROM "apikeys"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	if _, err := repos.Keys.APIKeyByKID(context.Background(), "missing"); !errors.Is(err, authz.ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}

	mock.ExpectExec(`UPDATE "apikeys" SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	if err := repos.Keys.SetAPIKeyState(context.Background(), 1, "someone-elses", authz.KeyStateInactive); !errors.Is(err, authz.ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
	expectationsMet(t, mock)
}

func TestRuleStoreCRUD(t *testing.T) {
	repos, mock := newMockRepos(t)
	ctx := context.Background()
	columns := []string{"id", "action", "role", "verb", "path", "topic", "created_at", "updated_at"}
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT \* FROM "permissions" WHERE role = \$1 ORDER BY id`).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(1, "ACCEPT", "member", "GET", "/api/v2/nebryx/resource/users/me", "user", now, now).
			AddRow(2, "DROP", "member", "ALL", "/api/v2/nebryx/resource/documents", nil, now, now))
	rules, err := repos.Rules.RulesForRole(ctx, "member")
	if err != nil {
		t.Fatalf("RulesForRole: %v", err)
	}
	if len(rules) != 2 || rules[0].Topic != "user" || rules[1].Topic != "" || rules[1].Action != permission.ActionDrop {
		t.Fatalf("unexpected rules: %+v", rules)
	}

	mock.ExpectQuery(`INSERT INTO "permissions"`).
		WillReturnError(gorm.ErrDuplicatedKey)
	if err := repos.Rules.CreateRule(ctx, &permission.Rule{Role: "member", Verb: "GET", Path: "/x", Action: "ACCEPT"}); !errors.Is(err, authz.ErrRuleExists) {
		t.Fatalf("expected ErrRuleExists, got %v", err)
	}

	mock.ExpectQuery(`INSERT INTO "permissions"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(77))
	rule := &permission.Rule{Role: "member", Verb: "GET", Path: "/y", Action: "ACCEPT"}
	if err := repos.Rules.CreateRule(ctx, rule); err != nil || rule.ID != 77 {
		t.Fatalf("CreateRule: id=%d err=%v", rule.ID, err)
	}

	mock.ExpectExec(`UPDATE "permissions" SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	if err := repos.Rules.UpdateRule(ctx, &permission.Rule{ID: 999, Role: "member"}); !errors.Is(err, authz.ErrRuleNotFound) {
		t.Fatalf("expected ErrRuleNotFound, got %v", err)
	}

	mock.ExpectExec(`DELETE FROM "permissions" WHERE id = \$1`).
		WithArgs(int64(77)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := repos.Rules.DeleteRule(ctx, 77); err != nil {
		t.Fatalf("DeleteRule: %v", err)
	}
	expectationsMet(t, mock)
}

func TestListRulesReturnsTotal(t *testing.T) {
	repos, mock := newMockRepos(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT count\(\*\) FROM "permissions"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(30))
	mock.ExpectQuery(`SELECT \* FROM "permissions" ORDER BY id`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "action", "role", "verb", "path", "topic", "created_at", "updated_at"}).
			AddRow(26, "ACCEPT", "admin", "ALL", "/api/v2/nebryx", "admin", now, now))

	rules, total, err := repos.Rules.ListRules(context.Background(), 25, 25)
	if err != nil {
		t.Fatalf("ListRules: %v", err)
	}
	if total != 30 || len(rules) != 1 || rules[0].ID != 26 {
		t.Fatalf("unexpected page: total=%d rules=%+v", total, rules)
	}
	expectationsMet(t, mock)
}

func TestSeedOnlyWhenEmpty(t *testing.T) {
	repos, mock := newMockRepos(t)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "permissions"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	n, err := repos.Rules.Seed(context.Background(), "/api/v2/nebryx")
	if err != nil || n != 0 {
		t.Fatalf("expected no seeding on populated table, got n=%d err=%v", n, err)
	}

	mock.ExpectQuery(`SELECT count\(\*\) FROM "permissions"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`INSERT INTO "permissions"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	n, err = repos.Rules.Seed(context.Background(), "/api/v2/nebryx")
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if want := len(permission.Seeds("/api/v2/nebryx")); n != want {
		t.Fatalf("expected %d seeded rules, got %d", want, n)
	}
	expectationsMet(t, mock)
}

func TestActivityWriterBatchInsert(t *testing.T) {
	repos, mock := newMockRepos(t)

	mock.ExpectQuery(`INSERT INTO "activities" .* VALUES \(.+\),\(.+\)`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1).AddRow(2))

	err := repos.Activities.WriteBatch(context.Background(), []authz.Activity{
		{UserID: 1, Category: "user", Topic: "session", Action: "login", Result: "succeed", IP: "10.0.0.1", UserAgent: "ua"},
		{UserID: 1, Category: "user", Topic: "apikey", Action: "apikey::create", Result: "succeed", IP: "10.0.0.1", UserAgent: "ua", Data: map[string]string{"kid": "abc"}},
	})
	if err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}
	if err := repos.Activities.WriteBatch(context.Background(), nil); err != nil {
		t.Fatalf("empty batch must be a no-op, got %v", err)
	}
	expectationsMet(t, mock)
}
