package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestCSRFMiddleware_SafeMethods_PassAndIssueCookie(t *testing.T) {
	for _, method := range []string{http.MethodGet, http.MethodHead, http.MethodOptions} {
		called := false
		handler := NewCSRFMiddleware(CSRFConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
		}))

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(method, "/cart", nil))

		if !called {
			t.Errorf("%s: handler should have been called", method)
		}
		c := findCookie(w.Result(), csrfCookieName)
		if c == nil || len(c.Value) != 64 {
			t.Errorf("%s: expected 64-char csrf cookie, got %+v", method, c)
		}
		if c != nil && c.HttpOnly {
			t.Errorf("%s: csrf cookie must be readable from pages", method)
		}
	}
}

func TestCSRFMiddleware_SafeMethod_KeepsExistingCookie(t *testing.T) {
	handler := NewCSRFMiddleware(CSRFConfig{})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "existing"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if c := findCookie(w.Result(), csrfCookieName); c != nil {
		t.Errorf("cookie must not be reissued, got %q", c.Value)
	}
}

func TestCSRFMiddleware_POST_Validation(t *testing.T) {
	tests := []struct {
		name   string
		cookie string
		header string
		want   int
	}{
		{"matching tokens", "tok", "tok", http.StatusOK},
		{"no cookie", "", "tok", http.StatusForbidden},
		{"no header", "tok", "", http.StatusForbidden},
		{"mismatch", "tok", "other", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := NewCSRFMiddleware(CSRFConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodPost, "/session/logout", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: tt.cookie})
			}
			if tt.header != "" {
				req.Header.Set(CSRFHeaderName, tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
			if called != (tt.want == http.StatusOK) {
				t.Errorf("handler called = %v", called)
			}
		})
	}
}
