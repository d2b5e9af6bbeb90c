package log

import (
	"bytes"
	"context"
	"testing"
)

func TestFromContext_Fallback(t *testing.T) {
	if _, ok := FromContext(context.Background()).(nopLogger); !ok {
		t.Fatal("empty context should yield the nop logger")
	}
	//nolint:staticcheck // nil context is tolerated on purpose
	if _, ok := FromContext(nil).(nopLogger); !ok {
		t.Fatal("nil context should yield the nop logger")
	}
}

func TestWithContext_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(t, &buf, Options{})
	ctx := WithContext(context.Background(), l)
	if FromContext(ctx) != l {
		t.Fatal("FromContext did not return the stored logger")
	}
}

func TestEnrich(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(t, &buf, Options{})
	ctx := Enrich(WithContext(context.Background(), l), "user_id", "u1")

	FromContext(ctx).Info(ctx, "enriched")

	if lastRecord(t, &buf)["user_id"] != "u1" {
		t.Fatal("Enrich did not add attrs")
	}
}

func TestNop_IsSafe(t *testing.T) {
	n := Nop().With("a", 1)
	n.Debug(context.Background(), "x")
	n.Info(context.Background(), "x")
	n.Warn(context.Background(), "x")
	n.Error(context.Background(), nil, "x")
	if err := n.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}
}
