// Package auth verifies Supabase access tokens and mints development tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

const defaultLeeway = 30 * time.Second

// Supabase role claims.
const (
	RoleAuthenticated = "authenticated"
	RoleServiceRole   = "service_role"
)

// Claims is what handlers need from a verified token.
type Claims struct {
	Subject   string
	Email     string
	Role      string
	ExpiresAt time.Time
	Raw       jwt.MapClaims
}

// VerifierConfig selects which signing keys are trusted.
type VerifierConfig struct {
	// Secret is the project's HS256 JWT secret.
	Secret string
	// JWKSURL serves the project's asymmetric signing keys.
	JWKSURL string
	// Audience is checked when non-empty.
	Audience string
}

// Verifier validates Supabase JWTs signed with the shared secret or a JWKS key.
type Verifier struct {
	secret []byte
	jwks   keyfunc.Keyfunc
	parser *jwt.Parser
}

// NewVerifier builds a verifier. ctx bounds the JWKS background refresh.
func NewVerifier(ctx context.Context, cfg VerifierConfig) (*Verifier, error) {
	if cfg.Secret == "" && cfg.JWKSURL == "" {
		return nil, errors.New("a JWT secret or JWKS URL must be set")
	}

	v := &Verifier{secret: []byte(cfg.Secret)}
	methods := []string{}
	if cfg.Secret != "" {
		methods = append(methods, jwt.SigningMethodHS256.Name)
	}
	if cfg.JWKSURL != "" {
		k, err := keyfunc.NewDefaultCtx(ctx, []string{cfg.JWKSURL})
		if err != nil {
			return nil, fmt.Errorf("failed to init JWKS keyfunc: %w", err)
		}
		v.jwks = k
		methods = append(methods,
			jwt.SigningMethodRS256.Name,
			jwt.SigningMethodES256.Name,
		)
	}

	opts := []jwt.ParserOption{
		jwt.WithLeeway(defaultLeeway),
		jwt.WithValidMethods(methods),
		jwt.WithExpirationRequired(),
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	v.parser = jwt.NewParser(opts...)
	return v, nil
}

// Verify parses and validates a JWT, returning extracted claims.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	token, err := v.parser.Parse(tokenString, v.keyFor)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid token claims")
	}

	claims := &Claims{
		Subject: readString(mapClaims, "sub"),
		Email:   readString(mapClaims, "email"),
		Role:    readString(mapClaims, "role"),
		Raw:     mapClaims,
	}
	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}
	// Supabase service_role API keys carry no sub.
	if claims.Subject == "" && claims.Role != RoleServiceRole {
		return nil, errors.New("token missing sub")
	}
	return claims, nil
}

func (v *Verifier) keyFor(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); ok {
		if len(v.secret) == 0 {
			return nil, errors.New("HMAC tokens are not accepted")
		}
		return v.secret, nil
	}
	if v.jwks == nil {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return v.jwks.Keyfunc(token)
}

// TokenManager mints HS256 tokens shaped like Supabase access tokens. It is
// used by the CLI and tests; production tokens come from Supabase Auth.
type TokenManager struct {
	secret string
	issuer string
}

// NewTokenManager returns a manager signing with secret.
func NewTokenManager(secret, issuer string) *TokenManager {
	if issuer == "" {
		issuer = "personaops"
	}
	return &TokenManager{secret: secret, issuer: issuer}
}

// GenerateToken signs a token for userID valid for expiresIn.
func (tm *TokenManager) GenerateToken(userID, email, role string, expiresIn time.Duration) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("user_id required")
	}
	if tm.secret == "" {
		return "", fmt.Errorf("signing secret required")
	}
	if role == "" {
		role = RoleAuthenticated
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   userID,
		"email": email,
		"role":  role,
		"aud":   RoleAuthenticated,
		"iss":   tm.issuer,
		"iat":   now.Unix(),
		"exp":   now.Add(expiresIn).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(tm.secret))
}

// ExtractToken returns the token from a "Bearer <token>" header.
func ExtractToken(authHeader string) (string, error) {
	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", fmt.Errorf("invalid authorization header")
	}
	return parts[1], nil
}

func readString(claims jwt.MapClaims, key string) string {
	if s, ok := claims[key].(string); ok {
		return s
	}
	return ""
}
