package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	ok     bool
	checks int
}

func (f *fakeSession) CheckAuth(ctx context.Context) bool {
	f.checks++
	return f.ok
}

func (f *fakeSession) UserID() string {
	if !f.ok {
		return ""
	}
	return "42"
}

func TestRequireSession_Rejects(t *testing.T) {
	s := &fakeSession{}
	r := gin.New()
	r.GET("/tasks", RequireSession(s, "/login"), func(c *gin.Context) {
		t.Fatal("handler must not run")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tasks", nil))

	require.Equal(t, http.StatusUnauthorized, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "/login", body["redirect"])
	assert.Equal(t, 1, s.checks)
}

func TestRequireSession_PassesUserID(t *testing.T) {
	s := &fakeSession{ok: true}
	r := gin.New()
	r.GET("/tasks", RequireSession(s, "/login"), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(UserIDKey))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tasks", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "42", w.Body.String())
}
