package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAllowedOrigins(t *testing.T) {
	tests := []struct {
		name        string
		frontendURL string
		isDev       bool
		want        []string
	}{
		{"development keeps wildcard", "https://guardian.example.com", true, []string{"*"}},
		{"no frontend configured keeps wildcard", "", false, []string{"*"}},
		{"production pins frontend origin", "https://guardian.example.com", false, []string{"https://guardian.example.com"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AllowedOrigins(tt.frontendURL, tt.isDev)
			if len(got) != len(tt.want) || got[0] != tt.want[0] {
				t.Errorf("AllowedOrigins(%q, %v) = %v, want %v", tt.frontendURL, tt.isDev, got, tt.want)
			}
		})
	}
}

func TestCORSHeaders(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("explicit origin gets credentials", func(t *testing.T) {
		h := CORS([]string{"https://guardian.example.com"})(next)
		req := httptest.NewRequest(http.MethodGet, "/api/streak", nil)
		req.Header.Set("Origin", "https://guardian.example.com")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://guardian.example.com" {
			t.Errorf("Allow-Origin = %q", got)
		}
		if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
			t.Errorf("Allow-Credentials = %q, want true", got)
		}
	})

	t.Run("wildcard echoes origin without credentials", func(t *testing.T) {
		h := CORS([]string{"*"})(next)
		req := httptest.NewRequest(http.MethodGet, "/api/streak", nil)
		req.Header.Set("Origin", "https://anywhere.example.com")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://anywhere.example.com" {
			t.Errorf("Allow-Origin = %q", got)
		}
		if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "" {
			t.Errorf("Allow-Credentials = %q, want unset", got)
		}
	})

	t.Run("unlisted origin gets no headers", func(t *testing.T) {
		h := CORS([]string{"https://guardian.example.com"})(next)
		req := httptest.NewRequest(http.MethodGet, "/api/streak", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("Allow-Origin = %q, want unset", got)
		}
	})

	t.Run("preflight short-circuits", func(t *testing.T) {
		called := false
		h := CORS([]string{"*"})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			called = true
		}))
		req := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
		req.Header.Set("Origin", "https://anywhere.example.com")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("preflight status = %d", w.Code)
		}
		if called {
			t.Error("preflight must not reach the next handler")
		}
	})
}
