package opshttp

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/keithlinneman/sitecontent/internal/health"
	"github.com/keithlinneman/sitecontent/internal/log"
)

func serve(h http.Handler, remote, path string, hdr map[string]string) int {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = remote
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestHandler_Routes(t *testing.T) {
	var gate health.ShutdownGate
	h := NewHandler(log.Nop(), Options{
		Metrics:   http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("m")) }),
		Health:    health.Fixed(true, ""),
		Readiness: gate.Probe(),
	})

	const local = "127.0.0.1:5555"
	if c := serve(h, local, "/-/healthy", nil); c != http.StatusOK {
		t.Fatalf("healthy = %d", c)
	}
	if c := serve(h, local, "/metrics", nil); c != http.StatusOK {
		t.Fatalf("metrics = %d", c)
	}
	if c := serve(h, local, "/debug/pprof/", nil); c != http.StatusNotFound {
		t.Fatalf("pprof disabled = %d", c)
	}
	gate.Set("draining")
	if c := serve(h, local, "/-/ready", nil); c != http.StatusServiceUnavailable {
		t.Fatalf("ready while draining = %d", c)
	}
}

func TestHandler_Pprof(t *testing.T) {
	h := NewHandler(log.Nop(), Options{EnablePprof: true})
	if c := serve(h, "10.0.0.1:1", "/debug/pprof/", nil); c != http.StatusOK {
		t.Fatalf("pprof = %d", c)
	}
}

func TestRequireNonPublicNetwork(t *testing.T) {
	h := NewHandler(log.Nop(), Options{})
	cases := []struct {
		remote string
		hdr    map[string]string
		want   int
	}{
		{"127.0.0.1:1", nil, http.StatusOK},
		{"[::1]:1", nil, http.StatusOK},
		{"10.1.2.3:1", nil, http.StatusOK},
		{"169.254.1.1:1", nil, http.StatusOK},
		{"[::ffff:10.0.0.1]:1", nil, http.StatusOK},
		{"8.8.8.8:1", nil, http.StatusForbidden},
		{"[::ffff:8.8.8.8]:1", nil, http.StatusForbidden},
		{"garbage", nil, http.StatusForbidden},
		{"10.1.2.3:1", map[string]string{"X-Forwarded-For": "8.8.8.8"}, http.StatusForbidden},
	}
	for _, tc := range cases {
		if got := serve(h, tc.remote, "/-/healthy", tc.hdr); got != tc.want {
			t.Errorf("%s %v: %d, want %d", tc.remote, tc.hdr, got, tc.want)
		}
	}
}

func TestHandler_RecoversPanics(t *testing.T) {
	panics := 0
	h := NewHandler(log.Nop(), Options{
		UseRecoverMW: true,
		OnPanic:      func() { panics++ },
		Metrics:      http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("collector") }),
	})
	if c := serve(h, "127.0.0.1:1", "/metrics", nil); c != http.StatusInternalServerError || panics != 1 {
		t.Fatalf("code=%d panics=%d", c, panics)
	}
}

func TestStart_StopIdempotent(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	stop, err := Start(context.Background(), log.Nop(), Options{Port: port})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/-/healthy", port))
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if err := stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := stop(context.Background()); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}
