package web

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"jobsentry/internal/auth"
)

type contextKey string

const (
	actorContextKey     contextKey = "actor"
	requestIDContextKey contextKey = "request_id"
)

// ActorFromContext returns the authenticated actor, or the system actor when
// the request reached the handler without one (webhook intake paths).
func ActorFromContext(ctx context.Context) auth.Actor {
	if actor, ok := ctx.Value(actorContextKey).(auth.Actor); ok {
		return actor
	}
	return auth.SystemActor
}

func requestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDContextKey).(string); ok {
		return id
	}
	return ""
}

// requireAuth accepts either an operator bearer token or the service token
// used by the tool server when it calls back into the API.
func (s *Server) requireAuth(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := auth.ParseBearer(r)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, CodeUnauthorized, "bearer token required", nil)
			return
		}
		if s.ServiceToken != "" && subtle.ConstantTimeCompare([]byte(token), []byte(s.ServiceToken)) == 1 {
			ctx := context.WithValue(r.Context(), actorContextKey, auth.Actor{ID: "toolserver", Email: "toolserver", Role: "service"})
			h.ServeHTTP(w, r.WithContext(ctx))
			return
		}
		actor, err := s.Signer.Verify(token, s.AdminEmail)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, CodeUnauthorized, "invalid or expired token", nil)
			return
		}
		ctx := context.WithValue(r.Context(), actorContextKey, actor)
		h.ServeHTTP(w, r.WithContext(ctx))
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string      `json:"token"`
	Actor auth.Actor  `json:"actor"`
}

// handleLogin exchanges admin credentials for a signed bearer token. The
// route sits behind the rate limiter; failed attempts burn bucket tokens
// like any other request.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, CodeUnclassifiable, "method not allowed", nil)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, CodeUnclassifiable, "invalid json", nil)
		return
	}
	email := strings.TrimSpace(strings.ToLower(req.Email))
	ok := email != "" && email == strings.ToLower(s.AdminEmail)
	if ok {
		ok = subtle.ConstantTimeCompare([]byte(req.Password), []byte(s.AdminPassword)) == 1
	}
	if !ok || s.AdminPassword == "" {
		writeError(w, r, http.StatusUnauthorized, CodeUnauthorized, "invalid credentials", nil)
		return
	}
	token := s.Signer.Sign(email)
	actor, err := s.Signer.Verify(token, email)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, CodeInfrastructureError, "token issue failed", nil)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: token, Actor: actor})
}
