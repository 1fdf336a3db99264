package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func doRequest(m *Middleware, mutate func(*http.Request)) int {
	handler := m.RequireAuthFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodGet, "/sandbox/health", nil)
	if mutate != nil {
		mutate(req)
	}
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec.Code
}

func TestNoTokenDisablesAuth(t *testing.T) {
	m := NewMiddleware("")
	if code := doRequest(m, nil); code != http.StatusOK {
		t.Errorf("expected 200 without configured token, got %d", code)
	}
	if m.IsEnabled() {
		t.Error("expected auth disabled")
	}
}

func TestBearerToken(t *testing.T) {
	m := NewMiddleware("secret")

	code := doRequest(m, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer secret")
	})
	if code != http.StatusOK {
		t.Errorf("expected 200 with valid bearer, got %d", code)
	}

	code = doRequest(m, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer wrong")
	})
	if code != http.StatusUnauthorized {
		t.Errorf("expected 401 with bad bearer, got %d", code)
	}

	if code := doRequest(m, nil); code != http.StatusUnauthorized {
		t.Errorf("expected 401 with no credentials, got %d", code)
	}
}

func TestQueryToken(t *testing.T) {
	m := NewMiddleware("secret")

	code := doRequest(m, func(r *http.Request) {
		q := r.URL.Query()
		q.Set("token", "secret")
		r.URL.RawQuery = q.Encode()
	})
	if code != http.StatusOK {
		t.Errorf("expected 200 with valid query token, got %d", code)
	}

	code = doRequest(m, func(r *http.Request) {
		q := r.URL.Query()
		q.Set("token", "wrong")
		r.URL.RawQuery = q.Encode()
	})
	if code != http.StatusUnauthorized {
		t.Errorf("expected 401 with bad query token, got %d", code)
	}
}
