package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/yungbote/candidate-intel-backend/internal/platform/ctxutil"
	"github.com/yungbote/candidate-intel-backend/internal/platform/logger"
)

const (
	RoleRecruiter    = "recruiter"
	RoleProfessional = "professional"
)

// JWTClaims is the token shape issued by the identity provider: the subject
// is the opaque identity string.
type JWTClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// IdentityResolver turns a bearer token into a caller identity. It only
// verifies tokens; issuing them belongs to the identity provider.
type IdentityResolver interface {
	SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error)
	IssueToken(subject, role string, ttl time.Duration) (string, error)
}

type identityResolver struct {
	log       *logger.Logger
	secretKey []byte
}

func NewIdentityResolver(baseLog *logger.Logger, jwtSecretKey string) IdentityResolver {
	return &identityResolver{
		log:       baseLog.With("service", "IdentityResolver"),
		secretKey: []byte(jwtSecretKey),
	}
}

func (r *identityResolver) SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return ctx, fmt.Errorf("missing token")
	}
	if len(r.secretKey) == 0 {
		return ctx, fmt.Errorf("token verification is not configured")
	}
	parsed, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return r.secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return ctx, fmt.Errorf("failed to parse token: %w", err)
	}
	claims, ok := parsed.Claims.(*JWTClaims)
	if !ok || !parsed.Valid {
		return ctx, fmt.Errorf("invalid or expired token")
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return ctx, fmt.Errorf("token has no subject")
	}
	role := strings.ToLower(strings.TrimSpace(claims.Role))
	if role != RoleRecruiter && role != RoleProfessional {
		return ctx, fmt.Errorf("token role %q is not recognised", claims.Role)
	}
	return ctxutil.WithIdentity(ctx, &ctxutil.Identity{
		ID:    subject,
		Role:  role,
		Token: tokenString,
	}), nil
}

func (r *identityResolver) IssueToken(subject, role string, ttl time.Duration) (string, error) {
	if len(r.secretKey) == 0 {
		return "", fmt.Errorf("token signing is not configured")
	}
	now := time.Now()
	claims := JWTClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  subject,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.secretKey)
}
