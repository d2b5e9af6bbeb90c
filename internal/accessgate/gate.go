package accessgate

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/sitecontent/internal/log"
)

// TokenVerifier turns a raw bearer token into a principal.
type TokenVerifier interface {
	Verify(raw string) (Principal, error)
}

// Metrics counts rejections by reason.
type Metrics interface {
	IncAuthRejection(reason string)
}

// Gate guards handlers behind bearer token verification.
type Gate struct {
	verifier TokenVerifier
	metrics  Metrics
	realm    string
}

type Option func(*Gate)

// WithMetrics counts rejections by reason on m.
func WithMetrics(m Metrics) Option { return func(g *Gate) { g.metrics = m } }

// WithRealm sets the realm advertised in WWW-Authenticate challenges.
func WithRealm(realm string) Option { return func(g *Gate) { g.realm = realm } }

// New returns a Gate that admits requests whose bearer token v accepts.
// The realm defaults to "sitecontent".
func New(v TokenVerifier, opts ...Option) *Gate {
	g := &Gate{verifier: v, realm: "sitecontent"}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Authenticate runs extract and verify for one request.
func (g *Gate) Authenticate(r *http.Request) (Principal, error) {
	raw, err := BearerToken(r.Header.Get("Authorization"))
	if err != nil {
		return Principal{}, err
	}
	return g.verifier.Verify(raw)
}

// BearerToken extracts the token from an Authorization header value. A
// missing header, a header with no second field, or a scheme other than
// Bearer yields ErrTokenMissing.
func BearerToken(header string) (string, error) {
	fields := strings.Fields(header)
	if len(fields) < 2 || !strings.EqualFold(fields[0], "Bearer") {
		return "", ErrTokenMissing
	}
	return fields[1], nil
}

// Middleware admits authenticated requests and rejects the rest with 401.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		p, err := g.Authenticate(r)
		if err != nil {
			reason := reasonOf(err)
			if g.metrics != nil {
				g.metrics.IncAuthRejection(reason)
			}
			trace.SpanFromContext(ctx).SetAttributes(attribute.String("auth.rejected", reason))
			log.FromContext(ctx).Debug(ctx, "request rejected by access gate", "reason", reason, "err", err.Error())
			g.reject(w, err)
			return
		}

		trace.SpanFromContext(ctx).SetAttributes(attribute.String("enduser.id", p.UserID))
		ctx = WithPrincipal(ctx, p)
		ctx = log.Enrich(ctx, "user_id", p.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type errorBody struct {
	Data  any         `json:"data"`
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Status  int            `json:"status"`
	Name    string         `json:"name"`
	Message string         `json:"message"`
	Details map[string]any `json:"details"`
}

func (g *Gate) reject(w http.ResponseWriter, err error) {
	msg, challenge := "Token missing", `Bearer realm="`+g.realm+`"`
	if reasonOf(err) == ReasonTokenInvalid {
		msg = "Invalid token"
		challenge += `, error="invalid_token"`
	}
	h := w.Header()
	h.Set("WWW-Authenticate", challenge)
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{Status: http.StatusUnauthorized, Name: "UnauthorizedError", Message: msg, Details: map[string]any{}},
	})
}
