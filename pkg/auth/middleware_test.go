package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler(identity **Identity) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if identity != nil {
			*identity = IdentityFromContext(r.Context())
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddleware_AllowsAuthenticated(t *testing.T) {
	chain := &Chain{
		Authenticators: []Authenticator{
			&staticAuth{result: Result{Decision: Yes, Identity: &Identity{Subject: "alice"}}},
		},
	}

	var seen *Identity
	handler := Middleware(chain, nil)(okHandler(&seen))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/tasks", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if seen == nil || seen.Subject != "alice" {
		t.Errorf("identity in context = %+v", seen)
	}
}

func TestMiddleware_RejectsInvalid(t *testing.T) {
	chain := &Chain{
		Authenticators: []Authenticator{
			&staticAuth{result: Result{Decision: No, Err: ErrUnauthenticated}},
		},
	}

	handler := Middleware(chain, nil)(okHandler(nil))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/tasks", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestMiddleware_RejectsWhenDefaultNo(t *testing.T) {
	chain := &Chain{DefaultDecision: No}
	handler := Middleware(chain, nil)(okHandler(nil))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/tasks", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestMiddleware_BypassEndpoints(t *testing.T) {
	chain := &Chain{DefaultDecision: No}
	handler := Middleware(chain, DefaultBypassEndpoints)(okHandler(nil))

	for _, path := range DefaultBypassEndpoints {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", path, rec.Code)
		}
	}
}

func TestMiddleware_EmptySubjectIsServerError(t *testing.T) {
	chain := &Chain{
		Authenticators: []Authenticator{
			&staticAuth{result: Result{Decision: Yes, Identity: &Identity{}}},
		},
	}
	handler := Middleware(chain, nil)(okHandler(nil))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/tasks", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}
