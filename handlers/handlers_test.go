package handlers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskboard/taskboard/frontend/go-services/internal/api"
	"github.com/taskboard/taskboard/frontend/go-services/internal/backendtest"
	"github.com/taskboard/taskboard/frontend/go-services/internal/models"
	"github.com/taskboard/taskboard/frontend/go-services/internal/poller"
	"github.com/taskboard/taskboard/frontend/go-services/internal/session"
	"github.com/taskboard/taskboard/frontend/go-services/pkg/middleware"
)

type fixture struct {
	be    *backendtest.Backend
	guard *session.Guard
	rec   *poller.Reconciler
	sched *poller.FakeScheduler
	hub   *Hub
	r     *gin.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	be := backendtest.New(t)
	be.AddUser("Ada", "ada@example.com", "password1")
	client := api.NewClient(be.URL(), 5*time.Second)
	g := session.NewGuard(client, nil, session.Options{})
	sched := poller.NewFakeScheduler()
	rec := poller.New(g, client.WithTokenSource(g), poller.Options{Scheduler: sched})
	hub := NewHub()
	hub.Bind(g, rec)

	r := gin.New()
	NewAuthHandler(g, rec, 30*time.Second).Register(r.Group("/"))
	NewEventsHandler(hub, g, rec).Register(r.Group("/"))
	NewTaskHandler(rec, 30*time.Second).Register(r.Group("/", middleware.RequireSession(g, LoginPath)), nil)
	return &fixture{be: be, guard: g, rec: rec, sched: sched, hub: hub, r: r}
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.r.ServeHTTP(w, req)
	return w
}

func (f *fixture) login(t *testing.T) {
	t.Helper()
	w := f.do(t, http.MethodPost, "/auth/login", gin.H{"email": "ada@example.com", "password": "password1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func TestLogin_ReturnsSessionAndStartsPolling(t *testing.T) {
	f := newFixture(t)
	f.be.SetTasks(models.Task{ID: "1", Title: "a"})

	w := f.do(t, http.MethodPost, "/auth/login", gin.H{"email": "ada@example.com", "password": "password1"})
	require.Equal(t, http.StatusOK, w.Code)
	var st session.State
	decode(t, w, &st)
	assert.True(t, st.IsAuthenticated)
	assert.Equal(t, "Ada", st.User.Name)

	assert.True(t, f.rec.IsPolling())
	assert.Equal(t, 1, f.sched.Active())
	assert.Len(t, f.rec.State().Tasks, 1)
}

func TestLogin_BadCredentials(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/auth/login", gin.H{"email": "ada@example.com", "password": "nope"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	var body map[string]interface{}
	decode(t, w, &body)
	assert.Equal(t, "Invalid credentials", body["error"])
	assert.False(t, f.rec.IsPolling())
}

func TestLogin_MissingFields(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/auth/login", gin.H{"email": "ada@example.com"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegister_FieldErrors(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/auth/register", gin.H{
		"name": "Ada", "email": "ada@example.com", "password": "short", "password_confirmation": "short",
	})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var body struct {
		Fields map[string][]string `json:"fields"`
	}
	decode(t, w, &body)
	assert.Equal(t, []string{"The email has already been taken."}, body.Fields["email"])
	assert.Equal(t, []string{"The password must be at least 8 characters."}, body.Fields["password"])
}

func TestRegister_Succeeds(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/auth/register", gin.H{
		"name": "Lin", "email": "lin@example.com", "password": "password1", "password_confirmation": "password1",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, f.guard.IsAuthenticated())
}

func TestTasks_RequireSession(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/tasks", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	var body map[string]string
	decode(t, w, &body)
	assert.Equal(t, LoginPath, body["redirect"])
}

func TestTasks_RefreshListAndFilter(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	f.be.SetTasks(
		models.Task{ID: "1", Title: "a", Status: models.StatusPending},
		models.Task{ID: "2", Title: "b", Status: models.StatusCompleted},
		models.Task{ID: "3", Title: "c"},
	)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/tasks/refresh", nil).Code)

	w := f.do(t, http.MethodGet, "/tasks?status=nowe", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var st poller.State
	decode(t, w, &st)
	require.Len(t, st.Tasks, 2)
	assert.Equal(t, models.ID("1"), st.Tasks[0].ID)
	assert.Equal(t, models.ID("3"), st.Tasks[1].ID)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/tasks?status=done", nil).Code)

	w = f.do(t, http.MethodGet, "/tasks/stats", nil)
	var stats poller.Stats
	decode(t, w, &stats)
	assert.Equal(t, poller.Stats{Total: 3, Pending: 2, Completed: 1}, stats)
}

func TestTasks_StatusPatch(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	f.be.SetTasks(models.Task{ID: "1", Title: "a", Phone: "123", Status: models.StatusPending})
	require.NoError(t, f.rec.RefreshOnce(context.Background()))

	w := f.do(t, http.MethodPatch, "/tasks/1/status", gin.H{"status": "zakonczone"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	local := f.rec.State().Tasks[0]
	assert.Equal(t, models.StatusCompleted, local.Status)
	assert.Equal(t, "123", local.Phone)
	assert.Equal(t, models.StatusCompleted, f.be.Tasks()[0].Status)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPatch, "/tasks/1/status", gin.H{"status": "done"}).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPatch, "/tasks/missing/status", gin.H{"status": "pending"}).Code)
}

func TestTasks_CreateUpdateDelete(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	w := f.do(t, http.MethodPost, "/tasks", gin.H{"title": "Ship order", "address": "Main St 1"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created models.Task
	decode(t, w, &created)
	assert.Equal(t, "Ship order", created.Title)
	assert.Equal(t, created.ID, f.rec.State().Tasks[0].ID)

	w = f.do(t, http.MethodPut, "/tasks/"+created.ID.String(), gin.H{"title": "Ship order today"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Ship order today", f.rec.State().Tasks[0].Title)

	w = f.do(t, http.MethodPost, "/tasks", gin.H{"title": ""})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	require.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/tasks/"+created.ID.String(), nil).Code)
	assert.Empty(t, f.rec.State().Tasks)
	assert.Empty(t, f.be.Tasks())
}

func TestTasks_RevokedTokenRedirects(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	f.be.RevokeAll()

	w := f.do(t, http.MethodPost, "/tasks/refresh", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	var body map[string]string
	decode(t, w, &body)
	assert.Equal(t, LoginPath, body["redirect"])
	assert.False(t, f.guard.IsAuthenticated())
	assert.False(t, f.rec.IsPolling())
}

func TestTasks_BackendFailureIsBadGateway(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	f.be.Fail("GET /v1/tasks", http.StatusInternalServerError, gin.H{"message": "Server Error"})

	w := f.do(t, http.MethodPost, "/tasks/refresh", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.True(t, f.guard.IsAuthenticated())
	assert.NotEmpty(t, f.rec.State().LastError)
}

func TestPolling_StartStop(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	f.do(t, http.MethodPost, "/polling/stop", nil)
	require.Equal(t, 0, f.sched.Active())

	w := f.do(t, http.MethodPost, "/polling/start", gin.H{"interval_seconds": 5})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []time.Duration{5 * time.Second}, f.sched.Intervals())

	w = f.do(t, http.MethodPost, "/polling/stop", nil)
	var st poller.State
	decode(t, w, &st)
	assert.False(t, st.IsPolling)
}

func TestLogout_StopsPollingAndClears(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	w := f.do(t, http.MethodPost, "/auth/logout", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, f.guard.IsAuthenticated())
	assert.False(t, f.rec.IsPolling())
	assert.Equal(t, 1, f.be.Calls("POST /v1/auth/logout"))

	w = f.do(t, http.MethodGet, "/auth/session", nil)
	var st session.State
	decode(t, w, &st)
	assert.False(t, st.IsAuthenticated)
}

// readEvent returns the data of the next event called name.
func readEvent(t *testing.T, sc *bufio.Scanner, name string) string {
	t.Helper()
	current := ""
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			current = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:") && current == name:
			return strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}
	t.Fatalf("stream ended before %q event: %v", name, sc.Err())
	return ""
}

func TestEvents_StreamsStateAndExpiry(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.r)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	sc := bufio.NewScanner(resp.Body)

	var st session.State
	require.NoError(t, json.Unmarshal([]byte(readEvent(t, sc, EventSession)), &st))
	assert.False(t, st.IsAuthenticated)
	require.Eventually(t, func() bool { return f.hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	_, err = f.guard.Login(ctx, "ada@example.com", "password1")
	require.NoError(t, err)
	f.rec.Start(ctx, time.Minute)
	f.be.RevokeAll()
	f.sched.Tick()

	var expired map[string]string
	require.NoError(t, json.Unmarshal([]byte(readEvent(t, sc, EventSessionExpired)), &expired))
	assert.Equal(t, LoginPath, expired["redirect"])
}

func TestTasks_GetOne(t *testing.T) {
	f := newFixture(t)
	f.be.SetTasks(models.Task{ID: "1", Title: "Call supplier", Phone: "+48 600 100 200"})
	f.login(t)

	w := f.do(t, http.MethodGet, "/tasks/1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var got models.Task
	decode(t, w, &got)
	assert.Equal(t, "+48 600 100 200", got.Phone)

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/tasks/stats", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/tasks/missing", nil).Code)

	f.be.RevokeAll()
	w = f.do(t, http.MethodGet, "/tasks/1", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, f.rec.IsPolling())
	assert.False(t, f.guard.IsAuthenticated())
}

// readUntil returns everything on the stream up to and including the data
// line of the next event called name.
func readUntil(t *testing.T, sc *bufio.Scanner, name string) string {
	t.Helper()
	var seen strings.Builder
	current := ""
	for sc.Scan() {
		line := sc.Text()
		seen.WriteString(line + "\n")
		switch {
		case strings.HasPrefix(line, "event:"):
			current = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:") && current == name:
			return seen.String()
		}
	}
	t.Fatalf("stream ended before %q event: %v", name, sc.Err())
	return ""
}

func TestLogout_EventStreamDoesNotLeakTasks(t *testing.T) {
	f := newFixture(t)
	f.be.SetTasks(models.Task{ID: "1", Title: "secret-task-of-ada"})
	f.login(t)
	require.Len(t, f.rec.State().Tasks, 1)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/auth/logout", nil).Code)
	assert.Empty(t, f.rec.State().Tasks)
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/tasks", nil).Code)

	srv := httptest.NewServer(f.r)
	defer srv.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	sc := bufio.NewScanner(resp.Body)

	require.Eventually(t, func() bool { return f.hub.Clients() == 1 }, time.Second, 10*time.Millisecond)
	f.hub.Publish(EventTasks, f.rec.State())
	f.hub.Publish("marker", gin.H{})

	out := readUntil(t, sc, "marker")
	assert.Contains(t, out, "event:"+EventSession)
	assert.NotContains(t, out, "event:"+EventTasks)
	assert.NotContains(t, out, "secret-task-of-ada")
}
