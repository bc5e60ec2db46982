package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/griffin-open-source/griffin-sub001/infrastructure/errors"
)

// AuthMode selects how incoming requests are authenticated.
type AuthMode string

const (
	AuthNone   AuthMode = "none"
	AuthAPIKey AuthMode = "api-key"
	AuthOIDC   AuthMode = "oidc"
)

// Principal is the authenticated caller attached to a request's context.
type Principal struct {
	UserID         string
	OrganizationID string
	Roles          []string
}

type principalKey struct{}

// PrincipalFromContext returns the caller attached by Authenticator, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// AuthConfig parameterizes Authenticator.
type AuthConfig struct {
	Mode         AuthMode
	APIKeys      []string
	OIDCIssuer   string
	OIDCAudience string
	// KeyFunc resolves the signing key for a token; cmd/hub supplies one that
	// returns the static OIDC_SIGNING_KEY value.
	KeyFunc jwt.Keyfunc
}

// Authenticator validates the Authorization header per Mode and, on
// success, attaches a Principal to the request context.
type Authenticator struct {
	cfg AuthConfig
}

// NewAuthenticator builds an Authenticator from cfg.
func NewAuthenticator(cfg AuthConfig) *Authenticator {
	return &Authenticator{cfg: cfg}
}

// RequireAuth enforces this Authenticator's mode, optionally restricting to
// allowedRoles (ignored when empty). In AuthNone mode every request passes.
func (a *Authenticator) RequireAuth(allowedRoles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := a.authenticate(r)
			if err != nil {
				writeError(w, err)
				return
			}
			if len(allowedRoles) > 0 && !hasAnyRole(principal.Roles, allowedRoles) {
				writeError(w, apperrors.InsufficientRole(strings.Join(allowedRoles, ",")))
				return
			}
			ctx := context.WithValue(r.Context(), principalKey{}, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (a *Authenticator) authenticate(r *http.Request) (Principal, error) {
	switch a.cfg.Mode {
	case "", AuthNone:
		return Principal{}, nil
	case AuthAPIKey:
		return a.authenticateAPIKey(r)
	case AuthOIDC:
		return a.authenticateOIDC(r)
	default:
		return Principal{}, apperrors.Unauthorized("unknown auth mode")
	}
}

func (a *Authenticator) authenticateAPIKey(r *http.Request) (Principal, error) {
	token := bearerToken(r)
	if token == "" {
		return Principal{}, apperrors.Unauthorized("missing bearer token")
	}
	for _, key := range a.cfg.APIKeys {
		if key == token {
			return Principal{}, nil
		}
	}
	return Principal{}, apperrors.InvalidToken(nil)
}

func (a *Authenticator) authenticateOIDC(r *http.Request) (Principal, error) {
	raw := bearerToken(r)
	if raw == "" {
		return Principal{}, apperrors.Unauthorized("missing bearer token")
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser(jwt.WithIssuer(a.cfg.OIDCIssuer), jwt.WithAudience(a.cfg.OIDCAudience))
	_, err := parser.ParseWithClaims(raw, claims, a.cfg.KeyFunc)
	if err != nil {
		return Principal{}, apperrors.InvalidToken(err)
	}

	sub, _ := claims["sub"].(string)
	org, _ := claims["org_id"].(string)
	if org == "" {
		org, _ = claims["organization_id"].(string)
	}
	return Principal{UserID: sub, OrganizationID: org, Roles: extractRoles(claims)}, nil
}

func extractRoles(claims jwt.MapClaims) []string {
	raw, ok := claims["roles"].([]interface{})
	if !ok {
		return nil
	}
	roles := make([]string, 0, len(raw))
	for _, r := range raw {
		if s, ok := r.(string); ok {
			roles = append(roles, s)
		}
	}
	return roles
}

func hasAnyRole(have, want []string) bool {
	for _, h := range have {
		for _, w := range want {
			if h == w {
				return true
			}
		}
	}
	return false
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimPrefix(header, prefix)
}
