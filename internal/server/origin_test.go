package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOriginPolicy(t *testing.T) {
	p := newOriginPolicy([]string{"HTTP://LocalHost:5173", " ", "bogus"}, discardLogger())

	tests := []struct {
		origin string
		want   bool
	}{
		{"http://localhost:5173", true},
		{"http://LOCALHOST:5173/path", true},
		{"https://localhost:5173", false},
		{"http://localhost:8080", false},
		{"", false},
		{"not-a-url", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, p.allows(tt.origin), "origin %q", tt.origin)
	}
}

func TestOriginPolicyWildcard(t *testing.T) {
	p := newOriginPolicy([]string{"*"}, discardLogger())

	assert.True(t, p.allows("http://anything.example"))
	assert.False(t, p.allows(""))
}

func TestCORSSkipsDisallowedOrigin(t *testing.T) {
	p := newOriginPolicy([]string{"http://localhost:5173"}, discardLogger())
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/login", http.NoBody)
	req.Header.Set("Origin", "http://evil.example")
	rec := httptest.NewRecorder()
	p.cors(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
