package session

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/taskboard/taskboard/frontend/go-services/internal/api"
)

// ErrSessionExpired tells the caller to abandon the action and send the user
// back to the login entry point.
var ErrSessionExpired = errors.New("session expired")

// AuthError is a failed login or registration. Either Message or Fields (or
// both) is set; Fields keeps the backend's per-field messages intact.
type AuthError struct {
	Message string
	Fields  map[string][]string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, strings.Join(e.Fields[k], " ")))
	}
	return strings.Join(parts, "; ")
}

func (e *AuthError) Unwrap() error { return e.Err }

// authErrorFrom converts a backend or transport failure into an AuthError,
// using fallback when the backend said nothing useful.
func authErrorFrom(err error, fallback string) *AuthError {
	ae := &AuthError{Err: err}
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		ae.Message = apiErr.Message
		ae.Fields = apiErr.Fields
	}
	if ae.Message == "" && len(ae.Fields) == 0 {
		ae.Message = fallback
	}
	return ae
}
