package services

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/yungbote/candidate-intel-backend/internal/data/repos/testutil"
	"github.com/yungbote/candidate-intel-backend/internal/platform/ctxutil"
)

func TestIdentityResolverRoundTrip(t *testing.T) {
	r := NewIdentityResolver(testutil.Logger(t), "secret")
	tok, err := r.IssueToken("rec@example.com", RoleRecruiter, time.Minute)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	ctx, err := r.SetContextFromToken(context.Background(), tok)
	if err != nil {
		t.Fatalf("SetContextFromToken: %v", err)
	}
	id := ctxutil.GetIdentity(ctx)
	if id == nil || id.ID != "rec@example.com" || id.Role != RoleRecruiter {
		t.Fatalf("identity: got=%+v", id)
	}
}

func TestIdentityResolverRejects(t *testing.T) {
	r := NewIdentityResolver(testutil.Logger(t), "secret")
	other := NewIdentityResolver(testutil.Logger(t), "other-secret")

	wrongKey, _ := other.IssueToken("a", RoleRecruiter, time.Minute)
	expired, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, JWTClaims{
		Role: RoleRecruiter,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "a",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}).SignedString([]byte("secret"))
	badRole, _ := r.IssueToken("a", "admin", time.Minute)
	noSubject, _ := r.IssueToken("", RoleProfessional, time.Minute)
	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, JWTClaims{Role: RoleRecruiter, RegisteredClaims: jwt.RegisteredClaims{Subject: "a"}}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)

	cases := map[string]string{
		"wrong key":  wrongKey,
		"expired":    expired,
		"bad role":   badRole,
		"no subject": noSubject,
		"alg none":   none,
		"garbage":    "not-a-token",
		"empty":      "",
	}
	for name, tok := range cases {
		if _, err := r.SetContextFromToken(context.Background(), tok); err == nil {
			t.Fatalf("%s: expected rejection", name)
		}
	}
}
