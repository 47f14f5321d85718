package authapi

import (
	"context"
	"net/http"
	"sync"
)

type ctxKey string

const (
	forwardCookiesKey ctxKey = "authapi.forward_cookies"
	cookieRecorderKey ctxKey = "authapi.cookie_recorder"
)

// ForwardCookies attaches the browser's cookies to ctx so calls made with it
// are authenticated as that browser.
func ForwardCookies(ctx context.Context, cookies []*http.Cookie) context.Context {
	if len(cookies) == 0 {
		return ctx
	}
	return context.WithValue(ctx, forwardCookiesKey, cookies)
}

func forwardedCookies(ctx context.Context) []*http.Cookie {
	if v, ok := ctx.Value(forwardCookiesKey).([]*http.Cookie); ok {
		return v
	}
	return nil
}

// CookieRecorder collects Set-Cookie headers returned by the auth service so
// they can be relayed to the browser.
type CookieRecorder struct {
	mu      sync.Mutex
	cookies []*http.Cookie
}

// RecordCookies returns a context whose calls report Set-Cookie responses to
// the returned recorder.
func RecordCookies(ctx context.Context) (context.Context, *CookieRecorder) {
	rec := &CookieRecorder{}
	return context.WithValue(ctx, cookieRecorderKey, rec), rec
}

func (r *CookieRecorder) add(cookies []*http.Cookie) {
	if len(cookies) == 0 {
		return
	}
	r.mu.Lock()
	r.cookies = append(r.cookies, cookies...)
	r.mu.Unlock()
}

// Cookies returns what has been recorded so far.
func (r *CookieRecorder) Cookies() []*http.Cookie {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*http.Cookie, len(r.cookies))
	copy(out, r.cookies)
	return out
}

func recorderFrom(ctx context.Context) *CookieRecorder {
	if v, ok := ctx.Value(cookieRecorderKey).(*CookieRecorder); ok {
		return v
	}
	return nil
}
