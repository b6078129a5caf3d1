package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stelgent-web/internal/domain/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestPublicKeyFromRequest(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		query      string
		allowQuery bool
		want       string
	}{
		{name: "header", headers: map[string]string{"X-Public-Key": " GKEY "}, want: "GKEY"},
		{name: "bearer", headers: map[string]string{"Authorization": "Bearer GKEY"}, want: "GKEY"},
		{name: "any scheme", headers: map[string]string{"Authorization": "Stellar GKEY"}, want: "GKEY"},
		{name: "header wins", headers: map[string]string{"X-Public-Key": "GA", "Authorization": "Bearer GB"}, want: "GA"},
		{name: "malformed authorization", headers: map[string]string{"Authorization": "GKEY"}},
		{name: "query ignored", query: "token=GKEY"},
		{name: "query allowed", query: "token=GKEY", allowQuery: true, want: "GKEY"},
		{name: "nothing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/x?"+tt.query, nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, PublicKeyFromRequest(r, tt.allowQuery))
		})
	}
}

type stubAuthenticator map[string]error

func (s stubAuthenticator) Authenticate(_ context.Context, key string) (*models.User, error) {
	if err, ok := s[key]; ok {
		return nil, err
	}
	return &models.User{ID: "u-" + key, StellarPublicKey: key}, nil
}

func TestAuth(t *testing.T) {
	users := stubAuthenticator{
		"BAD":     models.ErrInvalidPublicKey,
		"UNKNOWN": fmt.Errorf("%w: no user", models.ErrUnauthenticated),
		"BROKEN":  fmt.Errorf("disk on fire"),
	}
	engine := gin.New()
	engine.Use(RequestID(), Auth(users, false))
	engine.GET("/me", func(c *gin.Context) {
		c.String(http.StatusOK, CurrentUser(c).ID)
	})

	tests := []struct {
		key    string
		status int
		body   string
	}{
		{key: "", status: http.StatusUnauthorized},
		{key: "BAD", status: http.StatusUnauthorized, body: "Invalid Stellar public key"},
		{key: "UNKNOWN", status: http.StatusUnauthorized, body: "User not found for this wallet"},
		{key: "BROKEN", status: http.StatusInternalServerError, body: "Internal server error"},
		{key: "GOOD", status: http.StatusOK, body: "u-GOOD"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.key != "" {
				r.Header.Set("X-Public-Key", tt.key)
			}
			w := httptest.NewRecorder()
			engine.ServeHTTP(w, r)

			require.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), tt.body)
			if tt.status == http.StatusUnauthorized {
				assert.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	engine := gin.New()
	engine.Use(RequestID())
	engine.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(RequestIDKey))
	})

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Request-ID", "abc")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, r)
	assert.Equal(t, "abc", w.Body.String())
	assert.Equal(t, "abc", w.Header().Get("X-Request-ID"))

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, w.Body.String(), 36)
}

func TestRecovery(t *testing.T) {
	engine := gin.New()
	engine.Use(RequestID(), Logger(), Recovery())
	engine.GET("/panic", func(*gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Internal server error"}`, w.Body.String())
}
