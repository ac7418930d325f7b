package auth

import (
	"errors"
	"net/http"
	"strings"
)

var (
	ErrNoAuthorization      = errors.New("authorization required")
	ErrInvalidAuthorization = errors.New("invalid authorization")
)

// ParseBearer pulls the bearer credential out of the Authorization header.
// The scheme match is case-insensitive and surrounding whitespace is ignored.
func ParseBearer(r *http.Request) (string, error) {
	hdr := strings.TrimSpace(r.Header.Get("Authorization"))
	if hdr == "" {
		return "", ErrNoAuthorization
	}
	scheme, cred, ok := strings.Cut(hdr, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", ErrInvalidAuthorization
	}
	cred = strings.TrimSpace(cred)
	if cred == "" {
		return "", ErrInvalidAuthorization
	}
	return cred, nil
}
