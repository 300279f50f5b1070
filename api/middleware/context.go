package middleware

import "context"

type ctxKey int

const (
	ctxRequestID ctxKey = iota
	ctxOperator
	ctxRole
)

// RequestIDFromContext returns the id assigned by RequestID.
func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, ctxRequestID)
}

// OperatorFromContext returns the operator subject set by OperatorAuth.
func OperatorFromContext(ctx context.Context) string {
	return stringValue(ctx, ctxOperator)
}

func RoleFromContext(ctx context.Context) string {
	return stringValue(ctx, ctxRole)
}

// WithOperator injects the authenticated operator and role into the context.
func WithOperator(ctx context.Context, operator, role string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxOperator, operator)
	return context.WithValue(ctx, ctxRole, role)
}

func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxRequestID, id)
}

func stringValue(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}
