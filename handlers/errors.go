package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/taskboard/taskboard/frontend/go-services/internal/api"
	"github.com/taskboard/taskboard/frontend/go-services/internal/session"
)

// LoginPath is where clients are sent once the session is gone.
const LoginPath = "/login"

// writeError maps core errors onto responses. Backend 4xx answers keep their
// status; anything else from the backend is a bad gateway.
func writeError(c *gin.Context, err error) {
	if errors.Is(err, session.ErrSessionExpired) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "session expired", "redirect": LoginPath})
		return
	}
	var apiErr *api.Error
	if errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 {
		body := gin.H{"error": apiErr.Message}
		if apiErr.Message == "" {
			body["error"] = http.StatusText(apiErr.Status)
		}
		if len(apiErr.Fields) > 0 {
			body["fields"] = apiErr.Fields
		}
		c.JSON(apiErr.Status, body)
		return
	}
	c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
}
