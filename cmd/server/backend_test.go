package main

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/keithlinneman/sitecontent/internal/cfg"
	"github.com/keithlinneman/sitecontent/internal/content"
	"github.com/keithlinneman/sitecontent/internal/log"
	"github.com/keithlinneman/sitecontent/internal/metrics"
	"github.com/keithlinneman/sitecontent/internal/site"
)

func noAWS() (aws.Config, error) { return aws.Config{}, errors.New("aws not available in tests") }

func TestNewBackend_Seed(t *testing.T) {
	validation := content.DefaultValidationOptions()
	validation.Required = site.DefaultSlotTable().Required()

	be, err := newBackend(t.Context(), log.Nop(), cfg.App{Store: cfg.StoreSeed}, metrics.New(), validation, noAWS)
	if err != nil {
		t.Fatal(err)
	}
	defer be.close()

	if be.manager == nil || be.info == nil || len(be.readiness) != 1 {
		t.Fatalf("backend = %+v", be)
	}
	for _, p := range be.readiness {
		if err := p.Check(t.Context()); err != nil {
			t.Fatalf("readiness: %v", err)
		}
	}
	if _, err := be.store.Get(t.Context(), "faq", content.SingletonID, "en"); err != nil {
		t.Fatalf("seed faq: %v", err)
	}
	be.close() // idempotent
}

func TestNewBackend_BundleNeedsAWS(t *testing.T) {
	_, err := newBackend(t.Context(), log.Nop(), cfg.App{Store: cfg.StoreBundle}, metrics.New(), content.DefaultValidationOptions(), noAWS)
	if err == nil {
		t.Fatal("expected aws config error")
	}
}

func TestTokenSecret_Inline(t *testing.T) {
	called := false
	got, err := tokenSecret(context.Background(), cfg.App{JWTSecret: "abc"}, func() (aws.Config, error) {
		called = true
		return aws.Config{}, nil
	})
	if err != nil || string(got) != "abc" || called {
		t.Fatalf("secret = %q, err = %v, aws loaded = %v", got, err, called)
	}
}

func TestBundleVerifier_NoneConfigured(t *testing.T) {
	v, err := bundleVerifier(cfg.App{}, aws.Config{})
	if err != nil || v != nil {
		t.Fatalf("verifier = %v, err = %v", v, err)
	}
	if _, err := bundleVerifier(cfg.App{ContentSigningKey: "/does/not/exist.pem"}, aws.Config{}); err == nil {
		t.Fatal("expected error for missing key file")
	}
}
