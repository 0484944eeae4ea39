package audit

import (
	"context"
	"strings"
)

// RequestMeta describes the HTTP request that triggered an action.
type RequestMeta struct {
	RequestID string
	IPAddress string
	UserAgent string
}

type metaKey struct{}

// WithRequestMeta attaches request metadata to the context for audit logging.
func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	meta.RequestID = strings.TrimSpace(meta.RequestID)
	return context.WithValue(ctx, metaKey{}, meta)
}

// MetaFromContext extracts request metadata, returning the zero value when absent.
func MetaFromContext(ctx context.Context) RequestMeta {
	if ctx == nil {
		return RequestMeta{}
	}
	meta, _ := ctx.Value(metaKey{}).(RequestMeta)
	return meta
}
