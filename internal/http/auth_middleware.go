package httpx

import (
	"context"
	"errors"
	"net/http"
	"strings"

	jwtpkg "github.com/splax/peephost/pkg/jwt"
)

// ScopeRead limits a token to read-only routes.
const ScopeRead = "read"

type authContextKey struct{}

// authInfo is the verified identity behind a request.
type authInfo struct {
	Operator string
	Scope    string
}

var (
	errNoToken       = errors.New("no bearer token presented")
	errMalformedAuth = errors.New("authorization header is not a bearer token")
)

// contextSetter lets the audit recorder see the operator resolved further down.
type contextSetter interface {
	SetContext(context.Context)
}

// requireAuth rejects requests without a valid dashboard token.
func (r *Router) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if r.secret == "" {
			r.logger.Error("dashboard secret not configured", "path", req.URL.Path)
			writeError(w, http.StatusInternalServerError, "authentication misconfigured")
			return
		}
		token, err := tokenFromRequest(req)
		if err != nil {
			r.logger.Warn("request without usable token", "error", err, "path", req.URL.Path)
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		claims, err := jwtpkg.Parse(token, r.secret)
		if err != nil {
			r.logger.Warn("token rejected", "error", err, "path", req.URL.Path)
			writeError(w, http.StatusUnauthorized, "authentication failed")
			return
		}
		ctx := context.WithValue(req.Context(), authContextKey{}, authInfo{Operator: claims.Operator, Scope: claims.Scope})
		if setter, ok := w.(contextSetter); ok {
			setter.SetContext(ctx)
		}
		next(w, req.WithContext(ctx))
	}
}

// tokenFromRequest reads the bearer token. Browsers cannot set headers on a
// websocket handshake, so /ws/ routes also accept ?access_token=.
func tokenFromRequest(req *http.Request) (string, error) {
	header := strings.TrimSpace(req.Header.Get("Authorization"))
	if header == "" {
		if strings.HasPrefix(req.URL.Path, "/ws/") {
			if q := strings.TrimSpace(req.URL.Query().Get("access_token")); q != "" {
				return q, nil
			}
		}
		return "", errNoToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" || strings.ContainsAny(token, " \t") {
		return "", errMalformedAuth
	}
	return token, nil
}

func authInfoFromContext(ctx context.Context) (authInfo, bool) {
	info, ok := ctx.Value(authContextKey{}).(authInfo)
	return info, ok
}

// canWrite reports whether the caller may mutate projects.
func canWrite(ctx context.Context) bool {
	info, ok := authInfoFromContext(ctx)
	return ok && info.Scope != ScopeRead
}
