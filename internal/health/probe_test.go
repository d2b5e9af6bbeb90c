package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestFixed(t *testing.T) {
	if err := Fixed(true, "").Check(context.Background()); err != nil {
		t.Fatalf("Fixed(true) = %v", err)
	}
	err := Fixed(false, "").Check(context.Background())
	if err == nil || err.Error() != "unhealthy" {
		t.Fatalf("Fixed(false, \"\") = %v, want unhealthy", err)
	}
}

func TestAll_FirstFailureWins(t *testing.T) {
	p := All(Fixed(true, ""), nil, Fixed(false, "store down"), Fixed(false, "cache down"))
	err := p.Check(context.Background())
	if err == nil || err.Error() != "store down" {
		t.Fatalf("All = %v, want store down", err)
	}
}

func TestAny(t *testing.T) {
	if err := Any(Fixed(false, "a"), Fixed(true, "")).Check(context.Background()); err != nil {
		t.Fatalf("Any with one passing probe = %v", err)
	}
	if err := Any(Fixed(false, "a"), Fixed(false, "b")).Check(context.Background()); err == nil || err.Error() != "b" {
		t.Fatalf("Any all failing = %v, want b", err)
	}
	if err := Any().Check(context.Background()); err == nil {
		t.Fatal("Any with no probes should fail")
	}
}

func TestNamed(t *testing.T) {
	err := Named("postgres", Fixed(false, "refused")).Check(context.Background())
	if err == nil || err.Error() != "postgres: refused" {
		t.Fatalf("Named = %v", err)
	}
	if err := Named("redis", Fixed(true, "")).Check(context.Background()); err != nil {
		t.Fatalf("Named passing = %v", err)
	}
}

type slowPinger struct{}

func (slowPinger) Ping(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestPing_Timeout(t *testing.T) {
	start := time.Now()
	err := Ping(slowPinger{}, 20*time.Millisecond).Check(context.Background())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Ping = %v, want deadline exceeded", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("Ping did not honor its timeout")
	}
}

func TestShutdownGate(t *testing.T) {
	var g ShutdownGate
	p := g.Probe()
	if err := p.Check(context.Background()); err != nil {
		t.Fatalf("open gate = %v", err)
	}
	g.Set("")
	if err := p.Check(context.Background()); err == nil || err.Error() != "draining" {
		t.Fatalf("closed gate = %v, want draining", err)
	}
	g.Clear()
	if err := p.Check(context.Background()); err != nil {
		t.Fatalf("cleared gate = %v", err)
	}
}

func TestHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	Handler(Fixed(false, "content: no active bundle"), "ready").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/-/ready", nil))
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "no active bundle") {
		t.Fatalf("failing probe: %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	Handler(nil, "ok").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/-/healthy", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok\n" {
		t.Fatalf("nil probe: %d %q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Cache-Control") != "no-store" {
		t.Fatal("health responses must not be cached")
	}
}
