package identity

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMiddlewareIssuesAndReusesCookie(t *testing.T) {
	var seen string
	h := Middleware(true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = DeviceIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if !IsValidDeviceID(seen) {
		t.Fatalf("device id = %q, want dev_ + 32 hex", seen)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Value != seen {
		t.Fatalf("cookie not issued: %+v", cookies)
	}
	if cookies[0].Secure {
		t.Error("dev cookie must not be Secure")
	}

	first := seen
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen != first {
		t.Errorf("device id changed: %q -> %q", first, seen)
	}
}

func TestMiddlewareReplacesForgedCookie(t *testing.T) {
	var seen string
	h := Middleware(false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = DeviceIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: DeviceCookieName, Value: "cli"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if seen == "cli" || !IsValidDeviceID(seen) {
		t.Errorf("forged device id accepted: %q", seen)
	}
	if c := rec.Result().Cookies(); len(c) != 1 || !c[0].Secure {
		t.Errorf("production cookie must be Secure: %+v", c)
	}
}

func TestDeviceIDFromEmptyContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := DeviceIDFromContext(req.Context()); got != "" {
		t.Errorf("DeviceIDFromContext() = %q, want empty", got)
	}
}
