package core

import "context"

type ctxKey int

const requestInfoKey ctxKey = iota

// RequestInfo describes the request a call is made on behalf of.
type RequestInfo struct {
	CorrelationID string
	IPAddress     string
	UserAgent     string
}

func WithRequestInfo(ctx context.Context, info RequestInfo) context.Context {
	return context.WithValue(ctx, requestInfoKey, info)
}

// RequestInfoFrom returns the RequestInfo stored in ctx, or a zero value.
func RequestInfoFrom(ctx context.Context) RequestInfo {
	info, _ := ctx.Value(requestInfoKey).(RequestInfo)
	return info
}
