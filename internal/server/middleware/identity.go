package middleware

import "context"

// Roles carried in participant tokens.
const (
	RoleOperator    = "operator"
	RoleParticipant = "participant"
)

// Identity is the authenticated caller of a request.
type Identity struct {
	Subject string
	Role    string
}

// IsOperator reports whether the caller may run administrative actions.
func (i Identity) IsOperator() bool {
	return i.Role == RoleOperator
}

type identityKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the caller identity stored by Auth. The boolean is
// false when authentication is disabled.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
