package accessgate

import "errors"

var (
	// ErrTokenMissing is returned when no bearer token is present.
	ErrTokenMissing = errors.New("token missing")

	// ErrTokenInvalid is returned when a token fails verification or
	// carries no user id.
	ErrTokenInvalid = errors.New("invalid token")
)

// Rejection reasons reported to Metrics.
const (
	ReasonTokenMissing = "token_missing"
	ReasonTokenInvalid = "token_invalid"
)

func reasonOf(err error) string {
	if errors.Is(err, ErrTokenMissing) {
		return ReasonTokenMissing
	}
	return ReasonTokenInvalid
}
