package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/taskboard/taskboard/frontend/go-services/internal/poller"
	"github.com/taskboard/taskboard/frontend/go-services/internal/session"
	"github.com/taskboard/taskboard/frontend/go-services/pkg/logger"
)

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type RegisterRequest struct {
	Name                 string `json:"name"`
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

// AuthHandler exposes the session guard.
type AuthHandler struct {
	guard      *session.Guard
	reconciler *poller.Reconciler
	// autoPoll starts polling after a successful sign-in when non-zero.
	autoPoll time.Duration
}

func NewAuthHandler(g *session.Guard, rec *poller.Reconciler, autoPoll time.Duration) *AuthHandler {
	return &AuthHandler{guard: g, reconciler: rec, autoPoll: autoPoll}
}

// Register routes under /auth
func (h *AuthHandler) Register(rg *gin.RouterGroup) {
	a := rg.Group("/auth")
	a.POST("/login", h.Login)
	a.POST("/register", h.Signup)
	a.POST("/logout", h.Logout)
	a.GET("/session", h.Session)
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	st, err := h.guard.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeAuthError(c, http.StatusUnauthorized, err)
		return
	}
	h.signedIn(c)
	c.JSON(http.StatusOK, st)
}

// Signup handles POST /auth/register.
func (h *AuthHandler) Signup(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	st, err := h.guard.Register(c.Request.Context(), req.Name, req.Email, req.Password, req.PasswordConfirmation)
	if err != nil {
		writeAuthError(c, http.StatusUnprocessableEntity, err)
		return
	}
	h.signedIn(c)
	c.JSON(http.StatusCreated, st)
}

func (h *AuthHandler) signedIn(c *gin.Context) {
	if h.reconciler == nil || h.autoPoll <= 0 {
		return
	}
	h.reconciler.Start(c.Request.Context(), h.autoPoll)
}

func (h *AuthHandler) Logout(c *gin.Context) {
	if h.reconciler != nil {
		h.reconciler.Stop()
	}
	h.guard.Logout(c.Request.Context())
	if h.reconciler != nil {
		h.reconciler.Reset()
	}
	c.JSON(http.StatusOK, h.guard.State())
}

// Session re-checks the session (cheap while fresh) and returns its state.
func (h *AuthHandler) Session(c *gin.Context) {
	h.guard.CheckAuth(c.Request.Context())
	c.JSON(http.StatusOK, h.guard.State())
}

func writeAuthError(c *gin.Context, status int, err error) {
	var ae *session.AuthError
	if !errors.As(err, &ae) {
		logger.Errorf("unexpected auth failure: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	body := gin.H{"error": ae.Error()}
	if len(ae.Fields) > 0 {
		body["fields"] = ae.Fields
	}
	c.JSON(status, body)
}
