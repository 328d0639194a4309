package permission

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestDropWinsOverAccept(t *testing.T) {
	rules := []Rule{
		{Role: "member", Verb: VerbAll, Path: "/resource", Action: ActionAccept},
		{Role: "member", Verb: VerbPost, Path: "/resource/documents", Action: ActionDrop},
	}
	if _, err := Resolve(rules, "POST", "/resource/documents"); !errors.Is(err, ErrDenied) {
		t.Fatalf("expected POST to be denied, got %v", err)
	}
	if _, err := Resolve(rules, "GET", "/resource/documents"); err != nil {
		t.Fatalf("expected GET to be allowed, got %v", err)
	}
}

func TestResolveRequiresMatchAndAccept(t *testing.T) {
	rules := []Rule{
		{Verb: VerbGet, Path: "/a", Action: ActionAccept},
		{Verb: VerbGet, Path: "/zz-audit", Action: ActionAudit, Topic: "x"},
	}
	cases := []struct {
		verb, path string
		allow      bool
	}{
		{"GET", "/a/b?x=1", true},
		{"get", "/a", true},
		{"POST", "/a", false},
		{"GET", "/b", false},
		{"GET", "/zz-audit", false},
		{"GET", "/a-prefixed", true},
		{"GET", "/?/a", false},
	}
	for _, tc := range cases {
		_, err := Resolve(rules, tc.verb, tc.path)
		if (err == nil) != tc.allow {
			t.Fatalf("%s %s: allow=%v, err=%v", tc.verb, tc.path, tc.allow, err)
		}
	}
}

func TestResolveReturnsFirstAuditTopic(t *testing.T) {
	rules := []Rule{
		{Verb: VerbAll, Path: "/api", Action: ActionAccept},
		{Verb: VerbGet, Path: "/api/users", Action: ActionAudit, Topic: "first"},
		{Verb: VerbAll, Path: "/api", Action: ActionAudit, Topic: "second"},
	}
	d, err := Resolve(rules, "GET", "/api/users/me")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !d.Audit || d.Topic != "first" {
		t.Fatalf("expected first audit topic, got %+v", d)
	}

	d, err = Resolve(rules[:1], "GET", "/api/users")
	if err != nil || d.Audit || d.Topic != "" {
		t.Fatalf("expected no topic, got %+v %v", d, err)
	}
}

func TestValidateNormalizes(t *testing.T) {
	r := Rule{Role: "member", Verb: " post", Path: "/x", Action: "accept "}
	if err := r.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if r.Verb != "POST" || r.Action != "ACCEPT" {
		t.Fatalf("expected uppercase, got %+v", r)
	}
	bad := []struct {
		r    Rule
		want error
	}{
		{Rule{Role: "m", Path: "/", Verb: "TRACE", Action: "ACCEPT"}, ErrInvalidVerb},
		{Rule{Role: "m", Path: "/", Verb: "GET", Action: "ALLOW"}, ErrInvalidAction},
		{Rule{Path: "/", Verb: "GET", Action: "ACCEPT"}, ErrInvalidRule},
	}
	for _, tc := range bad {
		if err := tc.r.Validate(); !errors.Is(err, tc.want) {
			t.Fatalf("expected %v, got %v", tc.want, err)
		}
	}
}

func TestSeedsGrantAdminsEverything(t *testing.T) {
	var admin []Rule
	for _, r := range Seeds("") {
		if err := r.Validate(); err != nil {
			t.Fatalf("seed %+v invalid: %v", r, err)
		}
		if r.Role == "admin" {
			admin = append(admin, r)
		}
	}
	if _, err := Resolve(admin, "DELETE", "/api/v2/nebryx/admin/permissions/1"); err != nil {
		t.Fatalf("expected admin access, got %v", err)
	}
}

type countingSource struct {
	calls atomic.Int32
	rules map[string][]Rule
}

func (s *countingSource) RulesForRole(_ context.Context, role string) ([]Rule, error) {
	s.calls.Add(1)
	out := append([]Rule(nil), s.rules[role]...)
	return out, nil
}

func TestTableMemoizesUntilInvalidated(t *testing.T) {
	src := &countingSource{rules: map[string][]Rule{
		"member": {{Role: "member", Verb: "get", Path: "/r", Action: "accept"}},
	}}
	table := NewTable(src)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := table.Resolve(ctx, "member", "GET", "/r/x"); err != nil {
			t.Fatalf("Resolve: %v", err)
		}
	}
	if got := src.calls.Load(); got != 1 {
		t.Fatalf("expected one load, got %d", got)
	}

	src.rules["member"] = []Rule{{Role: "member", Verb: "GET", Path: "/r", Action: "DROP"}}
	table.Invalidate()
	if table.Len() != 0 {
		t.Fatal("expected empty table after Invalidate")
	}
	if _, err := table.Resolve(ctx, "member", "GET", "/r/x"); !errors.Is(err, ErrDenied) {
		t.Fatalf("expected reloaded DROP to deny, got %v", err)
	}
}

func TestTableConcurrentAccess(t *testing.T) {
	src := &countingSource{rules: map[string][]Rule{
		"member": {{Verb: VerbAll, Path: "/", Action: ActionAccept}},
	}}
	table := NewTable(src)
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%8 == 0 {
				table.Invalidate()
				return
			}
			if _, err := table.Resolve(context.Background(), "member", "GET", "/x"); err != nil {
				t.Errorf("Resolve: %v", err)
			}
		}(i)
	}
	wg.Wait()
}
