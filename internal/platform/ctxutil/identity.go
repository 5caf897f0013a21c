package ctxutil

import "context"

type identityKey struct{}

// Identity is the caller resolved by the auth middleware. ID is the opaque
// identity string (the token subject); Role is "recruiter" or "professional".
type Identity struct {
	ID    string
	Role  string
	Token string
}

func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func GetIdentity(ctx context.Context) *Identity {
	if ctx == nil {
		return nil
	}
	if id, ok := ctx.Value(identityKey{}).(*Identity); ok {
		return id
	}
	return nil
}
