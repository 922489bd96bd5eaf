package httpapi

import "context"

type cookieAuthKey struct{}

func withCookieAuth(ctx context.Context, v bool) context.Context {
	return context.WithValue(ctx, cookieAuthKey{}, v)
}

func isCookieAuth(ctx context.Context) bool {
	v, _ := ctx.Value(cookieAuthKey{}).(bool)
	return v
}
