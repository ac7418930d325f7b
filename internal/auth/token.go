package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Actor identifies an authenticated caller. System-driven actions use the
// reserved SystemActor instead.
type Actor struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// SystemActor is attributed to actions triggered by the system itself
// (webhook intake, janitor sweeps).
var SystemActor = Actor{ID: "system", Email: "system", Role: "system"}

const tokenPrefix = "sv1"

var (
	ErrTokenInvalid = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// TokenSigner issues and verifies HMAC-signed bearer tokens of the form
// sv1.<unix-ts>.<hex sig>. The signature covers email|ts, so a token is
// bound to the operator it was issued for.
type TokenSigner struct {
	Secret []byte
	MaxAge time.Duration
	Clock  func() time.Time
}

func (s *TokenSigner) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}

// Sign issues a token for the given operator email.
func (s *TokenSigner) Sign(email string) string {
	ts := strconv.FormatInt(s.now().Unix(), 10)
	return fmt.Sprintf("%s.%s.%s", tokenPrefix, ts, s.signature(email, ts))
}

// Verify checks a presented token against the expected operator email and
// returns the authenticated actor. The comparison is constant-time.
func (s *TokenSigner) Verify(token, email string) (Actor, error) {
	parts := strings.SplitN(token, ".", 3)
	if len(parts) != 3 || parts[0] != tokenPrefix {
		return Actor{}, ErrTokenInvalid
	}
	ts, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return Actor{}, ErrTokenInvalid
	}
	maxAge := s.MaxAge
	if maxAge <= 0 {
		maxAge = 7 * 24 * time.Hour
	}
	if s.now().Sub(time.Unix(ts, 0)) > maxAge {
		return Actor{}, ErrTokenExpired
	}
	expected := s.signature(email, parts[1])
	if !hmac.Equal([]byte(expected), []byte(parts[2])) {
		return Actor{}, ErrTokenInvalid
	}
	return Actor{ID: "admin-1", Email: email, Role: "admin"}, nil
}

func (s *TokenSigner) signature(email, ts string) string {
	mac := hmac.New(sha256.New, s.Secret)
	_, _ = mac.Write([]byte(email + "|" + ts))
	return hex.EncodeToString(mac.Sum(nil))
}
