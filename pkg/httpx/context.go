package httpx

import "context"

type ctxKey string

// CtxKeyAccountID carries the authenticated account id set by AuthnMiddleware.
const CtxKeyAccountID ctxKey = "account_id"

// AccountIDFromContext returns the authenticated account id, if any.
func AccountIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(CtxKeyAccountID).(string)
	return id, ok && id != ""
}
