package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskboard/taskboard/frontend/go-services/internal/backendtest"
	"github.com/taskboard/taskboard/frontend/go-services/internal/models"
)

type staticToken string

func (s staticToken) Token() string { return string(s) }

func TestLoginAndMe(t *testing.T) {
	be := backendtest.New(t)
	be.AddUser("Alice", "alice@example.com", "secret-pass")
	c := NewClient(be.URL(), time.Second)
	ctx := context.Background()

	res, err := c.Login(ctx, "alice@example.com", "secret-pass")
	require.NoError(t, err)
	require.NotEmpty(t, res.Token)
	require.Equal(t, "Alice", res.User.Name)

	u, err := c.Me(ctx, res.Token)
	require.NoError(t, err)
	require.Equal(t, res.User.ID, u.ID)

	_, err = c.Me(ctx, "bogus")
	require.True(t, IsUnauthorized(err), "got %v", err)
}

func TestLogin_BadCredentialsCarriesMessage(t *testing.T) {
	be := backendtest.New(t)
	be.AddUser("Alice", "alice@example.com", "secret-pass")
	c := NewClient(be.URL(), time.Second)

	_, err := c.Login(context.Background(), "alice@example.com", "nope")
	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "Invalid credentials", apiErr.Message)
}

func TestRegister_FieldErrorsPreserved(t *testing.T) {
	be := backendtest.New(t)
	c := NewClient(be.URL(), time.Second)

	_, err := c.Register(context.Background(), RegisterRequest{Name: "Bob", Email: "bob@example.com", Password: "short", PasswordConfirmation: "other"})
	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
	require.Len(t, apiErr.Fields["password"], 2)
	require.Contains(t, apiErr.Error(), "password")
}

func TestTaskCRUDAndStatus(t *testing.T) {
	be := backendtest.New(t)
	be.AddUser("Alice", "alice@example.com", "secret-pass")
	tok := be.IssueToken(t, "alice@example.com")
	c := NewClient(be.URL(), time.Second).WithTokenSource(staticToken(tok))
	ctx := context.Background()

	created, err := c.CreateTask(ctx, models.TaskInput{Title: "Call client", Address: "Main St 1"})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.Equal(t, models.StatusPending, created.Status)

	list, err := c.ListTasks(ctx, ListParams{})
	require.NoError(t, err)
	require.Len(t, list, 1)

	patched, err := c.UpdateTaskStatus(ctx, created.ID, models.StatusInProgress)
	require.NoError(t, err)
	require.Equal(t, models.StatusInProgress, patched.Status)
	require.Equal(t, "Main St 1", patched.Address)

	filtered, err := c.ListTasks(ctx, ListParams{Status: models.StatusCompleted})
	require.NoError(t, err)
	require.Empty(t, filtered)

	updated, err := c.UpdateTask(ctx, created.ID, models.TaskInput{Title: "Call client back"})
	require.NoError(t, err)
	require.Equal(t, "Call client back", updated.Title)

	got, err := c.GetTask(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "Call client back", got.Title)

	require.NoError(t, c.DeleteTask(ctx, created.ID))
	_, err = c.GetTask(ctx, created.ID)
	require.Equal(t, http.StatusNotFound, StatusOf(err))
}

func TestListTasks_PaginatedEnvelope(t *testing.T) {
	be := backendtest.New(t)
	be.Paginate = true
	be.AddUser("Alice", "alice@example.com", "secret-pass")
	be.SetTasks(models.Task{ID: "1", Title: "a"}, models.Task{ID: "2", Title: "b"})
	c := NewClient(be.URL(), time.Second).WithTokenSource(staticToken(be.IssueToken(t, "alice@example.com")))

	list, err := c.ListTasks(context.Background(), ListParams{Page: 1, PerPage: 20})
	require.NoError(t, err)
	require.Len(t, list, 2)
}

func TestUpdateTaskStatus_RejectsUnknownStatusLocally(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", time.Second)
	_, err := c.UpdateTaskStatus(context.Background(), "1", models.Status("nowe"))
	require.Error(t, err)
	require.Equal(t, 0, StatusOf(err))
}

func TestRequestHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var gotAuth, gotReqID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotReqID = r.Header.Get("X-Request-ID")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second).WithTokenSource(staticToken("tkn"))
	_, err := c.ListTasks(context.Background(), ListParams{})
	require.NoError(t, err)
	require.Equal(t, "Bearer tkn", gotAuth)
	require.Len(t, gotReqID, 36)
}

func TestMe_NonRFC3339Timestamps(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"user":{"id":3,"name":"Ada","email":"ada@example.com","created_at":"2024-01-01 10:00:00","updated_at":"2024-01-02 08:30:00"}}`))
	}))
	defer srv.Close()

	u, err := NewClient(srv.URL, time.Second).Me(context.Background(), "t")
	require.NoError(t, err)
	require.Equal(t, models.ID("3"), u.ID)
	require.Equal(t, "2024-01-01 10:00:00", u.CreatedAt)
}

func TestTransportErrorHasNoStatus(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, time.Second).Me(context.Background(), "t")
	require.Error(t, err)
	require.Equal(t, 0, StatusOf(err))
	require.False(t, IsUnauthorized(err))
}

func TestNewError_Shapes(t *testing.T) {
	e := newError("POST", "/v1/auth/register", 422, []byte(`{"message":"bad","errors":{"email":"taken"}}`))
	require.Equal(t, "bad", e.Message)
	require.Equal(t, []string{"taken"}, e.Fields["email"])

	e = newError("POST", "/v1/auth/login", 400, []byte(`{"error":"missing"}`))
	require.Equal(t, "missing", e.Message)

	e = newError("GET", "/v1/tasks", 502, []byte(`<html>bad gateway</html>`))
	require.Empty(t, e.Message)
	require.Contains(t, e.Error(), "Bad Gateway")
}
