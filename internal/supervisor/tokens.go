package supervisor

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"jobsentry/internal/metrics"
)

// ErrInvalidConfirmToken covers every token refusal: unknown, expired,
// already used, wrong tool, or changed params. Callers never learn which,
// so a probing client cannot distinguish a guessed token from a spent one.
var ErrInvalidConfirmToken = errors.New("invalid_or_expired_confirm_token")

type confirmToken struct {
	tool       string
	paramsHash string
	expiresAt  time.Time
}

// TokenStore holds live confirm tokens in process memory. Tokens are bound
// to a tool and a params digest at issue time and die on first consumption
// attempt or at TTL, whichever comes first.
type TokenStore struct {
	mu     sync.Mutex
	tokens map[string]confirmToken
	TTL    time.Duration
	Clock  func() time.Time
}

func NewTokenStore(ttl time.Duration) *TokenStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &TokenStore{tokens: make(map[string]confirmToken), TTL: ttl}
}

func (s *TokenStore) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}

// Issue mints a single-use token for one exact (tool, params) pair.
func (s *TokenStore) Issue(tool, paramsHash string) (string, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token := uuid.NewString()
	expiresAt := s.now().Add(s.TTL)
	s.tokens[token] = confirmToken{tool: tool, paramsHash: paramsHash, expiresAt: expiresAt}
	metrics.ConfirmTokensTotal.WithLabelValues("issued").Inc()
	return token, expiresAt
}

// Consume validates and burns a token in one step under the lock, so of any
// number of concurrent callers exactly one wins. The token is deleted even
// when the binding check fails on an existing entry; a mismatched attempt
// spends it.
func (s *TokenStore) Consume(token, tool, paramsHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.tokens[token]
	if !ok {
		metrics.ConfirmTokensTotal.WithLabelValues("rejected").Inc()
		return ErrInvalidConfirmToken
	}
	delete(s.tokens, token)
	if s.now().After(entry.expiresAt) {
		metrics.ConfirmTokensTotal.WithLabelValues("expired").Inc()
		return ErrInvalidConfirmToken
	}
	if entry.tool != tool || entry.paramsHash != paramsHash {
		metrics.ConfirmTokensTotal.WithLabelValues("rejected").Inc()
		return ErrInvalidConfirmToken
	}
	metrics.ConfirmTokensTotal.WithLabelValues("consumed").Inc()
	return nil
}

// Sweep drops expired tokens and returns how many were removed.
func (s *TokenStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for token, entry := range s.tokens {
		if now.After(entry.expiresAt) {
			delete(s.tokens, token)
			removed++
		}
	}
	if removed > 0 {
		metrics.ConfirmTokensTotal.WithLabelValues("swept").Add(float64(removed))
	}
	return removed
}

// Len reports the live token count, expired entries included until swept.
func (s *TokenStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}
