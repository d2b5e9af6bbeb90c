package httpmw

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func clientIPFor(t *testing.T, hops int, remote, xff string) (ip string, xffSeen string) {
	t.Helper()
	h := ClientIPWithOptions(ClientIPOptions{TrustedHops: hops})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip = ClientIPFromContext(r.Context())
		xffSeen = r.Header.Get("X-Forwarded-For")
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = remote
	if xff != "" {
		req.Header.Set("X-Forwarded-For", xff)
	}
	h.ServeHTTP(httptest.NewRecorder(), req)
	return ip, xffSeen
}

func TestClientIP(t *testing.T) {
	cases := []struct {
		name    string
		hops    int
		remote  string
		xff     string
		want    string
		keepXFF bool
	}{
		{"no proxies ignores xff", 0, "10.0.0.5:1234", "1.2.3.4", "10.0.0.5", false},
		{"public peer ignores xff", 1, "8.8.8.8:1234", "1.2.3.4", "8.8.8.8", false},
		{"one hop takes rightmost", 1, "10.0.0.5:1234", "9.9.9.9, 1.2.3.4", "1.2.3.4", true},
		{"two hops", 2, "10.0.0.5:1234", "9.9.9.9, 1.2.3.4", "9.9.9.9", true},
		{"too few entries fails closed", 3, "10.0.0.5:1234", "1.2.3.4", "10.0.0.5", false},
		{"garbage entry falls back", 1, "10.0.0.5:1234", "not-an-ip", "10.0.0.5", true},
		{"mapped v6 peer", 0, "[::ffff:10.0.0.1]:80", "", "10.0.0.1", false},
		{"loopback peer trusted", 1, "127.0.0.1:80", "5.6.7.8", "5.6.7.8", true},
		{"malformed remote", 0, "nonsense", "", "nonsense", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ip, seen := clientIPFor(t, tc.hops, tc.remote, tc.xff)
			if ip != tc.want {
				t.Fatalf("ip = %q, want %q", ip, tc.want)
			}
			if (seen != "") != tc.keepXFF {
				t.Fatalf("X-Forwarded-For visible downstream = %q, want kept=%v", seen, tc.keepXFF)
			}
		})
	}
}
