package vault

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestNewClient(t *testing.T) {
	baseURL := "http://localhost:8000/api"
	token := "test-token"

	t.Run("default client", func(t *testing.T) {
		c := NewClient(baseURL, token)
		if c.baseURL != baseURL {
			t.Errorf("baseURL = %v, want %v", c.baseURL, baseURL)
		}
		if c.token != token {
			t.Errorf("token = %v, want %v", c.token, token)
		}
		if c.httpClient == nil {
			t.Error("httpClient is nil")
		}
		if c.httpClient.Timeout != 30*time.Second {
			t.Errorf("timeout = %v, want %v", c.httpClient.Timeout, 30*time.Second)
		}
		if c.limiter != nil {
			t.Error("limiter should be nil by default")
		}
	})

	t.Run("with custom HTTP client", func(t *testing.T) {
		customClient := &http.Client{Timeout: 10 * time.Second}
		c := NewClient(baseURL, token, WithHTTPClient(customClient))
		if c.httpClient != customClient {
			t.Error("custom HTTP client not set")
		}
	})

	t.Run("with custom timeout", func(t *testing.T) {
		timeout := 5 * time.Second
		c := NewClient(baseURL, token, WithTimeout(timeout))
		if c.httpClient.Timeout != timeout {
			t.Errorf("timeout = %v, want %v", c.httpClient.Timeout, timeout)
		}
	})

	t.Run("with rate limit", func(t *testing.T) {
		c := NewClient(baseURL, token, WithRateLimit(rate.Limit(5), 2))
		if c.limiter == nil {
			t.Fatal("limiter not set")
		}
		if c.limiter.Burst() != 2 {
			t.Errorf("burst = %d, want 2", c.limiter.Burst())
		}
	})
}

func TestClient_doRequest(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer test-token" {
				t.Error("authorization header not set correctly")
			}
			if r.Header.Get("Accept") != "application/json" {
				t.Error("accept header not set correctly")
			}
			if r.Header.Get("User-Agent") != "vgo-test" {
				t.Errorf("user agent = %q, want vgo-test", r.Header.Get("User-Agent"))
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
		}))
		defer server.Close()

		c := NewClient(server.URL, "test-token", WithUserAgent("vgo-test"))
		var result map[string]string
		err := c.doRequest(context.Background(), "GET", "/test/", nil, nil, &result)
		if err != nil {
			t.Fatalf("doRequest failed: %v", err)
		}
		if result["status"] != "ok" {
			t.Errorf("status = %v, want ok", result["status"])
		}
	})

	t.Run("json body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Content-Type") != "application/json" {
				t.Errorf("content type = %q", r.Header.Get("Content-Type"))
			}
			var body map[string]string
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body["name"] != "x" {
				t.Errorf("name = %q, want x", body["name"])
			}
			w.WriteHeader(http.StatusNoContent)
		}))
		defer server.Close()

		c := NewClient(server.URL, "test-token")
		err := c.doRequest(context.Background(), "POST", "/test/", nil, nameBody{Name: "x"}, nil)
		if err != nil {
			t.Fatalf("doRequest failed: %v", err)
		}
	})

	t.Run("empty body with result", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))
		defer server.Close()

		c := NewClient(server.URL, "test-token")
		var result map[string]string
		if err := c.doRequest(context.Background(), "DELETE", "/test/", nil, nil, &result); err != nil {
			t.Fatalf("doRequest failed: %v", err)
		}
	})

	t.Run("404 error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte("Not Found"))
		}))
		defer server.Close()

		c := NewClient(server.URL, "test-token")
		err := c.doRequest(context.Background(), "GET", "/test/", nil, nil, nil)
		if err == nil {
			t.Fatal("expected error, got nil")
		}
		if !IsNotFound(err) {
			t.Errorf("expected 404 error, got %v", err)
		}
	})

	t.Run("401 error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"detail":"Given token not valid"}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "test-token")
		err := c.doRequest(context.Background(), "GET", "/test/", nil, nil, nil)
		if !IsUnauthorized(err) {
			t.Errorf("expected 401 error, got %v", err)
		}
	})

	t.Run("500 error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("Internal Server Error\n"))
		}))
		defer server.Close()

		c := NewClient(server.URL, "test-token")
		err := c.doRequest(context.Background(), "GET", "/test/", nil, nil, nil)
		if err == nil {
			t.Fatal("expected error, got nil")
		}
		apiErr, ok := err.(*Error)
		if !ok {
			t.Fatalf("expected *Error, got %T", err)
		}
		if apiErr.StatusCode != 500 {
			t.Errorf("status code = %d, want 500", apiErr.StatusCode)
		}
		if apiErr.Message != "Internal Server Error" {
			t.Errorf("message = %q, want trimmed body", apiErr.Message)
		}
	})

	t.Run("invalid JSON", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte("invalid json"))
		}))
		defer server.Close()

		c := NewClient(server.URL, "test-token")
		var result map[string]string
		err := c.doRequest(context.Background(), "GET", "/test/", nil, nil, &result)
		if err == nil {
			t.Fatal("expected error, got nil")
		}
	})

	t.Run("context cancellation", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(100 * time.Millisecond)
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		c := NewClient(server.URL, "test-token")
		ctx, cancel := context.WithCancel(context.Background())
		cancel() // Cancel immediately
		err := c.doRequest(ctx, "GET", "/test/", nil, nil, nil)
		if err == nil {
			t.Fatal("expected error, got nil")
		}
	})

	t.Run("rate limit wait honours context", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))
		defer server.Close()

		c := NewClient(server.URL, "test-token", WithRateLimit(rate.Every(time.Hour), 1))
		if err := c.doRequest(context.Background(), "GET", "/test/", nil, nil, nil); err != nil {
			t.Fatalf("first request failed: %v", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		if err := c.doRequest(ctx, "GET", "/test/", nil, nil, nil); err == nil {
			t.Fatal("expected rate limit error, got nil")
		}
	})
}

func TestClient_buildURL(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		path    string
		query   url.Values
		want    string
		wantErr bool
	}{
		{
			name:    "no query",
			baseURL: "http://localhost:8000",
			path:    "/documents/",
			want:    "http://localhost:8000/documents/",
		},
		{
			name:    "path prefix",
			baseURL: "http://localhost:8000/api",
			path:    "/folders/3/",
			want:    "http://localhost:8000/api/folders/3/",
		},
		{
			name:    "path prefix with trailing slash",
			baseURL: "http://localhost:8000/api/",
			path:    "/tags/",
			want:    "http://localhost:8000/api/tags/",
		},
		{
			name:    "with query",
			baseURL: "http://localhost:8000",
			path:    "/documents/",
			query:   url.Values{"search": {"tax 2024"}, "tags": {"1,2"}},
			want:    "http://localhost:8000/documents/?search=tax+2024&tags=1%2C2",
		},
		{
			name:    "invalid base URL",
			baseURL: "://bad",
			path:    "/documents/",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClient(tt.baseURL, "test-token")
			got, err := c.buildURL(tt.path, tt.query)
			if (err != nil) != tt.wantErr {
				t.Errorf("buildURL() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("buildURL() = %v, want %v", got, tt.want)
			}
		})
	}
}
