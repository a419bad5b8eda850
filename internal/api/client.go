package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/taskboard/taskboard/frontend/go-services/internal/models"
	"github.com/taskboard/taskboard/frontend/go-services/pkg/logger"
)

// TokenSource supplies the bearer token for task calls.
type TokenSource interface {
	Token() string
}

// Client talks to the REST task backend. Auth calls take the token
// explicitly; task calls read it from the bound TokenSource.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	log     *logger.Logger
}

// NewClient creates a backend client. baseURL is the API root
// (e.g. http://localhost:8000/api); endpoints are resolved under /v1.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     logger.Named("api"),
	}
}

// WithTokenSource returns a copy of c that authenticates task calls with ts.
func (c *Client) WithTokenSource(ts TokenSource) *Client {
	cp := *c
	cp.tokens = ts
	return &cp
}

// WithHTTPClient swaps the transport, mainly for tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	cp := *c
	cp.http = hc
	return &cp
}

// AuthResponse is returned by login and register.
type AuthResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

type RegisterRequest struct {
	Name                 string `json:"name"`
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

// ListParams are the optional filters of GET /v1/tasks.
type ListParams struct {
	Page                 int
	PerPage              int
	Status               models.Status
	ApplicationManagerID string
}

func (p ListParams) values() url.Values {
	v := url.Values{}
	if p.Page > 0 {
		v.Set("page", strconv.Itoa(p.Page))
	}
	if p.PerPage > 0 {
		v.Set("per_page", strconv.Itoa(p.PerPage))
	}
	if p.Status != "" {
		v.Set("status", string(p.Status))
	}
	if p.ApplicationManagerID != "" {
		v.Set("application_manager_id", p.ApplicationManagerID)
	}
	return v
}

func (c *Client) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	body := map[string]string{"email": email, "password": password}
	var out AuthResponse
	if err := c.do(ctx, http.MethodPost, "/v1/auth/login", "", nil, body, jsonInto(&out)); err != nil {
		return nil, err
	}
	if out.Token == "" || out.User == nil {
		return nil, fmt.Errorf("login: response missing token or user")
	}
	return &out, nil
}

func (c *Client) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	var out AuthResponse
	if err := c.do(ctx, http.MethodPost, "/v1/auth/register", "", nil, req, jsonInto(&out)); err != nil {
		return nil, err
	}
	if out.Token == "" || out.User == nil {
		return nil, fmt.Errorf("register: response missing token or user")
	}
	return &out, nil
}

func (c *Client) Logout(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPost, "/v1/auth/logout", token, nil, nil, nil)
}

// Me resolves the user behind token.
func (c *Client) Me(ctx context.Context, token string) (*models.User, error) {
	var out struct {
		User *models.User `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/auth/me", token, nil, nil, jsonInto(&out)); err != nil {
		return nil, err
	}
	if out.User == nil {
		return nil, fmt.Errorf("me: response missing user")
	}
	return out.User, nil
}

func (c *Client) ListTasks(ctx context.Context, p ListParams) ([]models.Task, error) {
	var tasks []models.Task
	decode := func(b []byte) error {
		var err error
		tasks, err = models.DecodeTaskList(b)
		return err
	}
	if err := c.do(ctx, http.MethodGet, "/v1/tasks", c.token(), p.values(), nil, decode); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (c *Client) GetTask(ctx context.Context, id models.ID) (models.Task, error) {
	var t models.Task
	err := c.do(ctx, http.MethodGet, taskPath(id), c.token(), nil, nil, taskInto(&t))
	return t, err
}

func (c *Client) CreateTask(ctx context.Context, in models.TaskInput) (models.Task, error) {
	var t models.Task
	err := c.do(ctx, http.MethodPost, "/v1/tasks", c.token(), nil, in, taskInto(&t))
	return t, err
}

func (c *Client) UpdateTask(ctx context.Context, id models.ID, in models.TaskInput) (models.Task, error) {
	var t models.Task
	err := c.do(ctx, http.MethodPut, taskPath(id), c.token(), nil, in, taskInto(&t))
	return t, err
}

func (c *Client) DeleteTask(ctx context.Context, id models.ID) error {
	return c.do(ctx, http.MethodDelete, taskPath(id), c.token(), nil, nil, nil)
}

// UpdateTaskStatus calls the dedicated PATCH /v1/tasks/{id}/status endpoint.
func (c *Client) UpdateTaskStatus(ctx context.Context, id models.ID, st models.Status) (models.Task, error) {
	if !st.Valid() {
		return models.Task{}, fmt.Errorf("update status: invalid status %q", st)
	}
	var t models.Task
	body := map[string]models.Status{"status": st}
	err := c.do(ctx, http.MethodPatch, taskPath(id)+"/status", c.token(), nil, body, taskInto(&t))
	return t, err
}

func taskPath(id models.ID) string {
	return "/v1/tasks/" + url.PathEscape(id.String())
}

func (c *Client) token() string {
	if c.tokens == nil {
		return ""
	}
	return c.tokens.Token()
}

func jsonInto(v interface{}) func([]byte) error {
	return func(b []byte) error {
		if len(bytes.TrimSpace(b)) == 0 {
			return fmt.Errorf("empty response body")
		}
		return json.Unmarshal(b, v)
	}
}

// taskInto decodes a task that may be wrapped in {"data": {...}}.
func taskInto(t *models.Task) func([]byte) error {
	return func(b []byte) error {
		var env struct {
			Data *models.Task `json:"data"`
		}
		if err := json.Unmarshal(b, &env); err == nil && env.Data != nil {
			*t = *env.Data
			return nil
		}
		return json.Unmarshal(b, t)
	}
}

func (c *Client) do(ctx context.Context, method, path, token string, query url.Values, body interface{}, decode func([]byte) error) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s %s: encode body: %w", method, path, err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	reqID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debugf("%s %s request_id=%s transport error: %v", method, path, reqID, err)
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w", method, path, err)
	}
	c.log.Debugf("%s %s request_id=%s status=%d took=%s", method, path, reqID, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newError(method, path, resp.StatusCode, b)
	}
	if decode == nil {
		return nil
	}
	if err := decode(b); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}
