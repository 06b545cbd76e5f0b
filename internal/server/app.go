package server

// ContextKey is the type used for request context keys.
type ContextKey string

const (
	CtxUserID   ContextKey = "userID"
	CtxUsername ContextKey = "username"
	CtxRole     ContextKey = "role"
	CtxShopID   ContextKey = "shopID"
)
