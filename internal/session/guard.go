// Package session owns the client's authentication belief: the bearer token,
// the resolved user and when that pair was last confirmed by the backend.
package session

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/taskboard/taskboard/frontend/go-services/internal/api"
	"github.com/taskboard/taskboard/frontend/go-services/internal/credentials"
	"github.com/taskboard/taskboard/frontend/go-services/internal/models"
	"github.com/taskboard/taskboard/frontend/go-services/internal/tokens"
	"github.com/taskboard/taskboard/frontend/go-services/pkg/logger"
	"github.com/taskboard/taskboard/frontend/go-services/pkg/metrics"
)

// DefaultStaleAfter is how long a successful verification is trusted.
const DefaultStaleAfter = 5 * time.Minute

// Backend is the subset of the REST API the guard calls.
type Backend interface {
	Login(ctx context.Context, email, password string) (*api.AuthResponse, error)
	Register(ctx context.Context, req api.RegisterRequest) (*api.AuthResponse, error)
	Logout(ctx context.Context, token string) error
	Me(ctx context.Context, token string) (*models.User, error)
}

type Options struct {
	StaleAfter time.Duration
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// State is a read-only snapshot for rendering.
type State struct {
	User            *models.User        `json:"user"`
	IsAuthenticated bool                `json:"isAuthenticated"`
	Loading         bool                `json:"loading"`
	Error           string              `json:"error,omitempty"`
	FieldErrors     map[string][]string `json:"fieldErrors,omitempty"`
	LastVerifiedAt  *time.Time          `json:"lastVerifiedAt,omitempty"`
}

// Guard is the single writer of the session. Backend calls happen outside
// the lock; results are applied in one critical section when they complete.
type Guard struct {
	backend    Backend
	store      credentials.Store
	staleAfter time.Duration
	now        func() time.Time
	log        *logger.Logger
	verify     singleflight.Group

	mu             sync.Mutex
	token          string
	user           *models.User
	lastVerifiedAt time.Time
	loading        int
	lastErr        *AuthError
	subs           map[int]func(State)
	nextSub        int
}

func NewGuard(backend Backend, store credentials.Store, opts Options) *Guard {
	if store == nil {
		store = credentials.NewMemoryStore()
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultStaleAfter
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Guard{
		backend:    backend,
		store:      store,
		staleAfter: opts.StaleAfter,
		now:        opts.Now,
		log:        logger.Named("session"),
		subs:       map[int]func(State){},
	}
}

// Token returns the current bearer token ("" when logged out).
// It lets the API client authenticate task calls without owning the session.
func (g *Guard) Token() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.token
}

func (g *Guard) IsAuthenticated() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.token != "" && g.user != nil
}

// UserID is the signed-in user's id, or "".
func (g *Guard) UserID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.user == nil {
		return ""
	}
	return g.user.ID.String()
}

func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stateLocked()
}

func (g *Guard) stateLocked() State {
	st := State{
		IsAuthenticated: g.token != "" && g.user != nil,
		Loading:         g.loading > 0,
	}
	if g.user != nil {
		u := *g.user
		st.User = &u
	}
	if !g.lastVerifiedAt.IsZero() {
		t := g.lastVerifiedAt
		st.LastVerifiedAt = &t
	}
	if g.lastErr != nil {
		st.Error = g.lastErr.Error()
		st.FieldErrors = g.lastErr.Fields
	}
	return st
}

// Subscribe registers fn to receive a snapshot after every state change.
// The returned func removes the subscription.
func (g *Guard) Subscribe(fn func(State)) func() {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.nextSub
	g.nextSub++
	g.subs[id] = fn
	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		delete(g.subs, id)
	}
}

// update applies mutate under the lock and notifies subscribers outside it.
func (g *Guard) update(mutate func()) {
	g.mu.Lock()
	mutate()
	st := g.stateLocked()
	subs := make([]func(State), 0, len(g.subs))
	for _, fn := range g.subs {
		subs = append(subs, fn)
	}
	g.mu.Unlock()
	for _, fn := range subs {
		fn(st)
	}
}

func (g *Guard) clearLocked() {
	g.token = ""
	g.user = nil
	g.lastVerifiedAt = time.Time{}
}

// ClearError drops the last login/registration error.
func (g *Guard) ClearError() {
	g.update(func() { g.lastErr = nil })
}

func (g *Guard) Login(ctx context.Context, email, password string) (State, error) {
	g.update(func() { g.loading++; g.lastErr = nil })
	res, err := g.backend.Login(ctx, email, password)
	if err != nil {
		ae := authErrorFrom(err, "Login failed")
		g.log.Infof("login failed for %s: %v", email, err)
		g.update(func() { g.loading--; g.lastErr = ae })
		return g.State(), ae
	}
	g.establish(ctx, res)
	g.log.Infof("logged in as %s", email)
	return g.State(), nil
}

func (g *Guard) Register(ctx context.Context, name, email, password, confirmation string) (State, error) {
	g.update(func() { g.loading++; g.lastErr = nil })
	res, err := g.backend.Register(ctx, api.RegisterRequest{
		Name:                 name,
		Email:                email,
		Password:             password,
		PasswordConfirmation: confirmation,
	})
	if err != nil {
		ae := authErrorFrom(err, "Registration failed")
		g.log.Infof("registration failed for %s: %v", email, err)
		g.update(func() { g.loading--; g.lastErr = ae })
		return g.State(), ae
	}
	g.establish(ctx, res)
	g.log.Infof("registered %s", email)
	return g.State(), nil
}

func (g *Guard) establish(ctx context.Context, res *api.AuthResponse) {
	u := *res.User
	g.update(func() {
		g.loading--
		g.token = res.Token
		g.user = &u
		g.lastVerifiedAt = g.now()
	})
	if err := g.store.Set(ctx, res.Token); err != nil {
		g.log.Warnf("could not persist token %s: %v", logger.Redact(res.Token), err)
	}
}

// Logout asks the backend to end the session, then clears local state no
// matter what the backend answered.
func (g *Guard) Logout(ctx context.Context) {
	g.mu.Lock()
	tok := g.token
	g.loading++
	g.mu.Unlock()

	if tok != "" {
		if err := g.backend.Logout(ctx, tok); err != nil {
			g.log.Warnf("backend logout failed, clearing local session anyway: %v", err)
		}
	}
	g.update(func() {
		g.loading--
		g.clearLocked()
		g.lastErr = nil
	})
	if err := g.store.Clear(context.WithoutCancel(ctx)); err != nil {
		g.log.Warnf("could not clear persisted token: %v", err)
	}
}

// Restore loads a persisted token and verifies it with the backend.
// Call once at startup.
func (g *Guard) Restore(ctx context.Context) bool {
	tok, err := g.store.Get(ctx)
	if err != nil {
		g.log.Warnf("could not read persisted token: %v", err)
		return false
	}
	if tok == "" {
		return false
	}
	g.update(func() { g.loading++ })
	u, err := g.backend.Me(ctx, tok)
	if err != nil {
		g.log.Infof("persisted token %s rejected: %v", logger.Redact(tok), err)
		g.update(func() { g.loading-- })
		if cerr := g.store.Clear(context.WithoutCancel(ctx)); cerr != nil {
			g.log.Warnf("could not clear persisted token: %v", cerr)
		}
		return false
	}
	g.update(func() {
		g.loading--
		g.token = tok
		g.user = u
		g.lastVerifiedAt = g.now()
	})
	return true
}

// CheckAuth reports whether privileged calls may proceed. Within the
// freshness window a known user is trusted without a backend round trip;
// otherwise /auth/me decides, and any failure logs the client out.
func (g *Guard) CheckAuth(ctx context.Context) bool {
	ok, _ := g.checkAuth(ctx)
	return ok
}

// checkAuth is CheckAuth that tells a verdict apart from the caller giving
// up: a non-nil error is ctx.Err() and says nothing about the session.
func (g *Guard) checkAuth(ctx context.Context) (bool, error) {
	g.mu.Lock()
	tok := g.token
	if tok == "" {
		hadUser := g.user != nil
		g.mu.Unlock()
		if hadUser {
			g.update(g.clearLocked)
		}
		metrics.AuthChecks.WithLabelValues("no_token").Inc()
		return false, nil
	}
	now := g.now()
	fresh := g.user != nil && now.Sub(g.lastVerifiedAt) < g.staleAfter
	g.mu.Unlock()

	if fresh && !tokens.Expired(tok, now) {
		metrics.AuthChecks.WithLabelValues("cache_hit").Inc()
		return true, nil
	}

	// Concurrent checks of the same token share one /auth/me call; the shared
	// call applies its own result so a caller giving up early changes nothing.
	ch := g.verify.DoChan(tok, func() (interface{}, error) {
		vctx := context.WithoutCancel(ctx)
		u, err := g.backend.Me(vctx, tok)
		if err != nil {
			metrics.AuthChecks.WithLabelValues("rejected").Inc()
			g.expire(vctx, tok, err)
			return nil, err
		}
		metrics.AuthChecks.WithLabelValues("verified").Inc()
		g.update(func() {
			if g.token == tok {
				g.user = u
				g.lastVerifiedAt = g.now()
			}
		})
		return u, nil
	})
	select {
	case r := <-ch:
		return r.Err == nil, nil
	case <-ctx.Done():
		select {
		case r := <-ch:
			return r.Err == nil, nil
		default:
			return false, ctx.Err()
		}
	}
}

// expire clears the session if it still holds tok and reports whether it
// did. A login that completed in the meantime is left alone.
func (g *Guard) expire(ctx context.Context, tok string, cause error) bool {
	cleared := false
	g.update(func() {
		if g.token == tok {
			g.clearLocked()
			cleared = true
		}
	})
	if !cleared {
		return false
	}
	metrics.SessionsExpired.Inc()
	g.log.Infof("session cleared: %v", cause)
	if err := g.store.Clear(context.WithoutCancel(ctx)); err != nil {
		g.log.Warnf("could not clear persisted token: %v", err)
	}
	return true
}

// WithAuthCheck runs action only when the session checks out. A 401 from the
// action clears the session and yields ErrSessionExpired; every other error
// is returned exactly as the action produced it. If ctx ends while the
// session is being verified, ctx.Err() is returned and the session is kept.
//
// A 401 for a token that has since been replaced by a new login is returned
// as is: the session it belonged to is already gone.
func WithAuthCheck[T any](ctx context.Context, g *Guard, action func(context.Context) (T, error)) (T, error) {
	var zero T
	ok, err := g.checkAuth(ctx)
	if err != nil {
		return zero, err
	}
	if !ok {
		return zero, ErrSessionExpired
	}
	tok := g.Token()
	v, err := action(ctx)
	if err != nil {
		if api.IsUnauthorized(err) {
			if g.expire(ctx, tok, err) || !g.IsAuthenticated() {
				return zero, ErrSessionExpired
			}
			g.log.Infof("ignoring 401 for a replaced token: %v", err)
		}
		return zero, err
	}
	return v, nil
}

// Do is WithAuthCheck for actions without a result.
func (g *Guard) Do(ctx context.Context, action func(context.Context) error) error {
	_, err := WithAuthCheck(ctx, g, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, action(ctx)
	})
	return err
}
