// Package backendtest runs an in-process stand-in for the REST task backend.
// Tests point api.Client at Backend.URL() and inspect call counts, injected
// failures and the server-side task list.
package backendtest

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/taskboard/taskboard/frontend/go-services/internal/models"
	"github.com/taskboard/taskboard/frontend/go-services/internal/tokens"
)

const secret = "backendtest-secret-32-bytes-xxxxxxxx"

type account struct {
	user     models.User
	password string
}

type failure struct {
	status int
	body   gin.H
}

// Backend is a fake of the task service's /v1 API.
type Backend struct {
	mu       sync.Mutex
	users    map[string]*account
	sessions map[string]models.User
	tasks    []models.Task
	calls    map[string]int
	failures map[string]failure

	// Paginate wraps GET /v1/tasks responses in {"data": [...]}.
	Paginate bool
	TokenTTL time.Duration

	server *httptest.Server
}

// New starts a backend and registers its shutdown with t.
func New(t testing.TB) *Backend {
	t.Helper()
	gin.SetMode(gin.TestMode)
	b := &Backend{
		users:    map[string]*account{},
		sessions: map[string]models.User{},
		calls:    map[string]int{},
		failures: map[string]failure{},
		TokenTTL: time.Hour,
	}
	r := gin.New()
	r.Use(b.count, b.inject)
	v1 := r.Group("/v1")
	v1.POST("/auth/login", b.login)
	v1.POST("/auth/register", b.register)

	authed := v1.Group("/", b.requireToken)
	authed.POST("/auth/logout", b.logout)
	authed.GET("/auth/me", b.me)
	authed.GET("/tasks", b.listTasks)
	authed.POST("/tasks", b.createTask)
	authed.GET("/tasks/:id", b.getTask)
	authed.PUT("/tasks/:id", b.updateTask)
	authed.DELETE("/tasks/:id", b.deleteTask)
	authed.PATCH("/tasks/:id/status", b.updateStatus)

	b.server = httptest.NewServer(r)
	t.Cleanup(b.server.Close)
	return b
}

// URL is the API root to hand to api.NewClient.
func (b *Backend) URL() string { return b.server.URL }

// AddUser creates an account that can log in.
func (b *Backend) AddUser(name, email, password string) models.User {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addUserLocked(name, email, password)
}

func (b *Backend) addUserLocked(name, email, password string) models.User {
	u := models.User{ID: models.ID(uuid.NewString()), Name: name, Email: email, CreatedAt: time.Now().UTC().Format(time.RFC3339)}
	b.users[strings.ToLower(email)] = &account{user: u, password: password}
	return u
}

// IssueToken mints a valid token for an existing account, as if it had
// logged in earlier and persisted the token.
func (b *Backend) IssueToken(t testing.TB, email string) string {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	acc, ok := b.users[strings.ToLower(email)]
	if !ok {
		t.Fatalf("backendtest: unknown user %s", email)
	}
	tok, err := b.mintLocked(acc.user)
	if err != nil {
		t.Fatalf("backendtest: mint token: %v", err)
	}
	return tok
}

// RevokeAll invalidates every issued token; the next authenticated call gets 401.
func (b *Backend) RevokeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessions = map[string]models.User{}
}

// SetTasks replaces the server-side task list.
func (b *Backend) SetTasks(tasks ...models.Task) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tasks = append([]models.Task(nil), tasks...)
}

// Tasks returns a copy of the server-side task list.
func (b *Backend) Tasks() []models.Task {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]models.Task(nil), b.tasks...)
}

// Calls returns how often route (e.g. "GET /v1/auth/me") was hit.
func (b *Backend) Calls(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[route]
}

// Fail makes route answer with status and body until ClearFailures.
func (b *Backend) Fail(route string, status int, body gin.H) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[route] = failure{status: status, body: body}
}

func (b *Backend) ClearFailures() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = map[string]failure{}
}

func routeKey(c *gin.Context) string {
	return c.Request.Method + " " + c.FullPath()
}

func (b *Backend) count(c *gin.Context) {
	b.mu.Lock()
	b.calls[routeKey(c)]++
	b.mu.Unlock()
	c.Next()
}

func (b *Backend) inject(c *gin.Context) {
	b.mu.Lock()
	f, ok := b.failures[routeKey(c)]
	b.mu.Unlock()
	if ok {
		c.AbortWithStatusJSON(f.status, f.body)
		return
	}
	c.Next()
}

func (b *Backend) mintLocked(u models.User) (string, error) {
	tok, err := tokens.GenerateAccessToken(secret, u, b.TokenTTL)
	if err != nil {
		return "", err
	}
	b.sessions[tok] = u
	return tok, nil
}

func (b *Backend) requireToken(c *gin.Context) {
	auth := c.GetHeader("Authorization")
	tok := strings.TrimPrefix(auth, "Bearer ")
	b.mu.Lock()
	u, ok := b.sessions[tok]
	b.mu.Unlock()
	if auth == "" || !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Unauthenticated."})
		return
	}
	c.Set("user", u)
	c.Set("token", tok)
	c.Next()
}

func (b *Backend) login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	acc, ok := b.users[strings.ToLower(req.Email)]
	if !ok || acc.password != req.Password {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid credentials"})
		return
	}
	tok, err := b.mintLocked(acc.user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": tok, "user": acc.user})
}

func (b *Backend) register(c *gin.Context) {
	var req struct {
		Name                 string `json:"name"`
		Email                string `json:"email"`
		Password             string `json:"password"`
		PasswordConfirmation string `json:"password_confirmation"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	fields := map[string][]string{}
	if req.Name == "" {
		fields["name"] = []string{"The name field is required."}
	}
	if req.Email == "" {
		fields["email"] = []string{"The email field is required."}
	}
	if len(req.Password) < 8 {
		fields["password"] = append(fields["password"], "The password must be at least 8 characters.")
	}
	if req.Password != req.PasswordConfirmation {
		fields["password"] = append(fields["password"], "The password confirmation does not match.")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, taken := b.users[strings.ToLower(req.Email)]; taken && req.Email != "" {
		fields["email"] = append(fields["email"], "The email has already been taken.")
	}
	if len(fields) > 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"errors": fields})
		return
	}
	u := b.addUserLocked(req.Name, req.Email, req.Password)
	tok, err := b.mintLocked(u)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"token": tok, "user": u})
}

func (b *Backend) logout(c *gin.Context) {
	b.mu.Lock()
	delete(b.sessions, c.GetString("token"))
	b.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

func (b *Backend) me(c *gin.Context) {
	u, _ := c.Get("user")
	c.JSON(http.StatusOK, gin.H{"user": u})
}

func (b *Backend) listTasks(c *gin.Context) {
	status := c.Query("status")
	b.mu.Lock()
	out := make([]models.Task, 0, len(b.tasks))
	for _, t := range b.tasks {
		if status != "" && string(t.EffectiveStatus()) != status {
			continue
		}
		out = append(out, t)
	}
	paginate := b.Paginate
	b.mu.Unlock()
	if paginate {
		c.JSON(http.StatusOK, gin.H{"data": out, "current_page": 1, "per_page": len(out), "total": len(out)})
		return
	}
	c.JSON(http.StatusOK, out)
}

func (b *Backend) indexLocked(id string) int {
	for i, t := range b.tasks {
		if t.ID.String() == id {
			return i
		}
	}
	return -1
}

func (b *Backend) getTask(c *gin.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.indexLocked(c.Param("id"))
	if i < 0 {
		c.JSON(http.StatusNotFound, gin.H{"message": "Task not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": b.tasks[i]})
}

func applyInput(t *models.Task, in models.TaskInput) {
	t.Title = in.Title
	t.Description = in.Description
	t.WebsiteURL = in.WebsiteURL
	t.Address = in.Address
	t.Phone = in.Phone
	t.Email = in.Email
	t.DueDate = in.DueDate
	t.DeliveryAddress = in.DeliveryAddress
	if in.Status != nil {
		t.Status = *in.Status
	}
}

func (b *Backend) createTask(c *gin.Context) {
	var in models.TaskInput
	if err := c.ShouldBindJSON(&in); err != nil || in.Title == "" {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"message": "The title field is required.", "errors": gin.H{"title": []string{"The title field is required."}}})
		return
	}
	now := time.Now().UTC().Format(time.RFC3339)
	t := models.Task{ID: models.ID(uuid.NewString()), Status: models.StatusPending, CreatedAt: now, UpdatedAt: now}
	applyInput(&t, in)
	b.mu.Lock()
	b.tasks = append([]models.Task{t}, b.tasks...)
	b.mu.Unlock()
	c.JSON(http.StatusCreated, gin.H{"data": t})
}

func (b *Backend) updateTask(c *gin.Context) {
	var in models.TaskInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.indexLocked(c.Param("id"))
	if i < 0 {
		c.JSON(http.StatusNotFound, gin.H{"message": "Task not found"})
		return
	}
	applyInput(&b.tasks[i], in)
	b.tasks[i].UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	c.JSON(http.StatusOK, b.tasks[i])
}

func (b *Backend) deleteTask(c *gin.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.indexLocked(c.Param("id"))
	if i < 0 {
		c.JSON(http.StatusNotFound, gin.H{"message": "Task not found"})
		return
	}
	b.tasks = append(b.tasks[:i], b.tasks[i+1:]...)
	c.Status(http.StatusNoContent)
}

func (b *Backend) updateStatus(c *gin.Context) {
	var req struct {
		Status string `json:"status"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	st, err := models.ParseStatus(req.Status, models.StrictOnly)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"message": err.Error()})
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.indexLocked(c.Param("id"))
	if i < 0 {
		c.JSON(http.StatusNotFound, gin.H{"message": "Task not found"})
		return
	}
	b.tasks[i].Status = st
	b.tasks[i].UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	c.JSON(http.StatusOK, gin.H{"data": b.tasks[i]})
}
