package rpc

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// SubmitScope is the JWT scope required to submit transactions.
const SubmitScope = "registry:submit"

// JWTConfig guards the submission endpoint with HMAC-signed bearer tokens.
// The transaction signature already authenticates the caller's origin; the
// guard only controls who may reach the mempool.
type JWTConfig struct {
	Enable         bool
	HSSecretEnv    string
	Issuer         string
	Audience       []string
	MaxSkewSeconds int64
}

type jwtGuard struct {
	cfg    JWTConfig
	secret []byte
	skew   time.Duration
}

func newJWTGuard(cfg JWTConfig) (*jwtGuard, error) {
	if !cfg.Enable {
		return nil, nil
	}
	envName := strings.TrimSpace(cfg.HSSecretEnv)
	if envName == "" {
		return nil, fmt.Errorf("rpc: JWT enabled but no secret env var configured")
	}
	secret := strings.TrimSpace(os.Getenv(envName))
	if secret == "" {
		return nil, fmt.Errorf("rpc: JWT secret env %s is empty", envName)
	}
	skew := time.Duration(cfg.MaxSkewSeconds) * time.Second
	if skew <= 0 {
		skew = 2 * time.Minute
	}
	return &jwtGuard{cfg: cfg, secret: []byte(secret), skew: skew}, nil
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.auth == nil {
		return nil
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	token := extractBearer(header)
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	if err := s.auth.verify(token); err != nil {
		s.logger.Warn("rpc auth rejected", "reason", err.Error())
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
}

func (g *jwtGuard) verify(tokenString string) error {
	opts := []jwt.ParserOption{
		jwt.WithLeeway(g.skew),
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithExpirationRequired(),
	}
	if g.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(g.cfg.Issuer))
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return g.secret, nil
	}, opts...)
	if err != nil {
		return err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return errors.New("token invalid")
	}
	if len(g.cfg.Audience) > 0 {
		aud, err := claims.GetAudience()
		if err != nil || !overlaps(aud, g.cfg.Audience) {
			return errors.New("audience mismatch")
		}
	}
	if !overlaps(extractScopes(claims), []string{SubmitScope}) {
		return errors.New("insufficient scope")
	}
	return nil
}

func overlaps(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}

func extractScopes(claims jwt.MapClaims) []string {
	switch v := claims["scope"].(type) {
	case string:
		return strings.Fields(v)
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, entry := range v {
			if s, ok := entry.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func extractBearer(header string) string {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
