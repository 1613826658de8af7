package middleware

import "context"

const userHolderKey contextKey = "user_holder"

// userHolder lets outer middleware see the user id that APIKeyAuth resolves
// on an inner, derived request context.
type userHolder struct {
	userID string
}

func withUserHolder(ctx context.Context, h *userHolder) context.Context {
	if existing, ok := ctx.Value(userHolderKey).(*userHolder); ok && existing != nil {
		return ctx
	}
	return context.WithValue(ctx, userHolderKey, h)
}

func setHeldUser(ctx context.Context, userID string) {
	if h, ok := ctx.Value(userHolderKey).(*userHolder); ok && h != nil {
		h.userID = userID
	}
}

func heldUser(ctx context.Context) string {
	if h, ok := ctx.Value(userHolderKey).(*userHolder); ok && h != nil {
		return h.userID
	}
	return ""
}
