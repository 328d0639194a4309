package authz

import (
	"context"
	"testing"
	"time"
)

func BenchmarkAuthorizeSession(b *testing.B) {
	f := newFixture(b, func(c *Config) { c.Audit.Enabled = false }, nil)
	p := f.member(b, "bench@example.com")
	login := f.login(b, p)
	req := sessionRequest("GET", usersMe, p, login)
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := f.engine.Authorize(ctx, req); err != nil {
			b.Fatalf("Authorize: %v", err)
		}
	}
}

func BenchmarkAuthorizeAPIKey(b *testing.B) {
	f, _, key := apiKeyFixture(b)
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		call := signedCall{kid: key.KID, secret: key.Secret, method: "GET", path: usersMe, nonce: time.Now().UnixMilli()}
		if _, err := f.engine.Authorize(ctx, call.request()); err != nil {
			b.Fatalf("Authorize: %v", err)
		}
	}
}

func BenchmarkVerifyBearer(b *testing.B) {
	f := newFixture(b, nil, nil)
	p := f.member(b, "bearer-bench@example.com")
	token, err := f.engine.issueToken(p)
	if err != nil {
		b.Fatalf("issueToken: %v", err)
	}
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := f.engine.VerifyBearer(ctx, token); err != nil {
			b.Fatalf("VerifyBearer: %v", err)
		}
	}
}

func BenchmarkMetricsIncParallel(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			m.Inc(MetricAuthorizeSuccess)
		}
	})
}

func BenchmarkMetricsObserveParallel(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	d := 3 * time.Millisecond
	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			m.Observe(MetricAuthorizeLatency, d)
		}
	})
}
