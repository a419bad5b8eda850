package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Error is a non-2xx answer from the backend.
type Error struct {
	Method string
	Path   string
	Status int
	// Message is the backend's human readable message, if any.
	Message string
	// Fields holds per-field validation messages (e.g. a 422 on register).
	Fields map[string][]string
	Body   string
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		msg = "invalid fields: " + strings.Join(keys, ", ")
	}
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("%s %s returned %d: %s", e.Method, e.Path, e.Status, msg)
}

// IsUnauthorized reports whether err is a backend 401.
func IsUnauthorized(err error) bool {
	return StatusOf(err) == http.StatusUnauthorized
}

// StatusOf returns the HTTP status carried by err, or 0 for transport errors.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}

// errorBody covers the shapes the backend uses for failures:
// {"message": "..."}, {"error": "..."} and {"message": "...", "errors": {...}}.
type errorBody struct {
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Errors  json.RawMessage `json:"errors"`
}

func newError(method, path string, status int, body []byte) *Error {
	e := &Error{Method: method, Path: path, Status: status, Body: strings.TrimSpace(string(body))}
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return e
	}
	e.Message = eb.Message
	if e.Message == "" {
		e.Message = eb.Error
	}
	if len(eb.Errors) > 0 {
		e.Fields, e.Message = decodeFieldErrors(eb.Errors, e.Message)
	}
	return e
}

// decodeFieldErrors accepts {"field": ["a", "b"]}, {"field": "a"} or a plain
// string. A plain string becomes the message when none was set.
func decodeFieldErrors(raw json.RawMessage, msg string) (map[string][]string, string) {
	var multi map[string][]string
	if err := json.Unmarshal(raw, &multi); err == nil {
		return multi, msg
	}
	var single map[string]string
	if err := json.Unmarshal(raw, &single); err == nil {
		out := make(map[string][]string, len(single))
		for k, v := range single {
			out[k] = []string{v}
		}
		return out, msg
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && msg == "" {
		return nil, s
	}
	return nil, msg
}
