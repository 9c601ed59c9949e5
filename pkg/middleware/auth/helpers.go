package auth

import "context"

// GetUser is nil-safe: a nil *Middleware reports the anonymous user.
func (m *Middleware) GetUser(ctx context.Context) User {
	if user, ok := ctx.Value(userCtxKey).(User); ok {
		return user
	}
	return User{}
}

func (m *Middleware) IsAdmin(ctx context.Context) bool {
	if m == nil || m.adminRole == "" {
		return false
	}
	if u, ok := ctx.Value(userCtxKey).(User); ok {
		return u.Role.Name == m.adminRole
	}
	return false
}

func (m *Middleware) IsAuthenticated(ctx context.Context) bool {
	u, ok := ctx.Value(userCtxKey).(User)
	return ok && u.Username != ""
}
