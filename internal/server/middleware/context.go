package middleware

import "context"

type contextKey string

const (
	ContextKeyUserID    contextKey = "user_id"
	ContextKeyUserName  contextKey = "user_name"
	ContextKeyUserEmail contextKey = "user_email"
	ContextKeyUserRole  contextKey = "role"
)

func UserIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ContextKeyUserID).(string)
	return v, ok
}

func UserNameFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ContextKeyUserName).(string)
	return v, ok
}

func UserEmailFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ContextKeyUserEmail).(string)
	return v, ok
}

func RoleFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ContextKeyUserRole).(string)
	return v, ok
}
