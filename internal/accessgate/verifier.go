package accessgate

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/keithlinneman/sitecontent/internal/xerrors"
)

// DefaultLeeway absorbs clock skew when checking exp and nbf.
const DefaultLeeway = 30 * time.Second

// UserID is the user_id claim. Issuers send it as a string or a number.
type UserID string

// UnmarshalJSON accepts a JSON string or number.
func (u *UserID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*u = UserID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return xerrors.Wrap(err, "user_id must be a string or number")
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return xerrors.Wrap(err, "user_id must be an integer")
	}
	*u = UserID(n.String())
	return nil
}

// Claims is the accepted token payload.
type Claims struct {
	UserID UserID `json:"user_id"`
	jwt.RegisteredClaims
}

// VerifierOptions configures token checks beyond the signature.
type VerifierOptions struct {
	Leeway time.Duration
	// Issuer and Audience are enforced when set.
	Issuer   string
	Audience string
	// RequireExpiry rejects tokens without an exp claim.
	RequireExpiry bool
}

// Verifier checks HS256 tokens signed with a shared secret.
type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewVerifier returns an HS256 Verifier for secret. Leeway defaults to
// DefaultLeeway; an empty secret is an error.
func NewVerifier(secret []byte, opts VerifierOptions) (*Verifier, error) {
	if len(secret) == 0 {
		return nil, xerrors.New("jwt secret is empty")
	}
	leeway := opts.Leeway
	if leeway == 0 {
		leeway = DefaultLeeway
	}
	popts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(leeway),
	}
	if opts.Issuer != "" {
		popts = append(popts, jwt.WithIssuer(opts.Issuer))
	}
	if opts.Audience != "" {
		popts = append(popts, jwt.WithAudience(opts.Audience))
	}
	if opts.RequireExpiry {
		popts = append(popts, jwt.WithExpirationRequired())
	}
	return &Verifier{secret: append([]byte(nil), secret...), parser: jwt.NewParser(popts...)}, nil
}

// Verify parses raw and returns the principal it names. Any failure,
// including an empty user_id, is ErrTokenInvalid.
func (v *Verifier) Verify(raw string) (Principal, error) {
	var c Claims
	_, err := v.parser.ParseWithClaims(raw, &c, func(*jwt.Token) (any, error) { return v.secret, nil })
	if err != nil {
		return Principal{}, xerrors.Mark(xerrors.Wrap(err, "verify token"), ErrTokenInvalid)
	}
	uid := strings.TrimSpace(string(c.UserID))
	if uid == "" {
		return Principal{}, xerrors.Mark(xerrors.New("token has no user_id"), ErrTokenInvalid)
	}
	p := Principal{UserID: uid, Subject: c.Subject}
	if c.ExpiresAt != nil {
		p.ExpiresAt = c.ExpiresAt.Time
	}
	return p, nil
}

// Sign issues an HS256 token for userID. Used by tooling and tests.
func Sign(secret []byte, userID string, ttl time.Duration) (string, error) {
	claims := Claims{UserID: UserID(userID)}
	now := time.Now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", xerrors.Wrap(err, "sign token")
	}
	return s, nil
}
