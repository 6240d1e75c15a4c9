package adminlogs

import "context"

type clientKey struct{}

type clientInfo struct {
	ip        string
	userAgent string
}

// WithClient stores the caller's address and user agent for audit entries
// recorded later in the request.
func WithClient(ctx context.Context, ip, userAgent string) context.Context {
	return context.WithValue(ctx, clientKey{}, clientInfo{ip: ip, userAgent: userAgent})
}

func clientFrom(ctx context.Context) (clientInfo, bool) {
	if ctx == nil {
		return clientInfo{}, false
	}
	info, ok := ctx.Value(clientKey{}).(clientInfo)
	return info, ok
}
