package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints for the front-end service.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg *gin.Engine) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>taskboard - Swagger</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "taskboard", "version": "v0.1.0" },
  "paths": {
    "/auth/login": {
      "post": {
        "summary": "Sign in with email and password",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","required":["email","password"],"properties":{"email":{"type":"string"},"password":{"type":"string"}}}}}},
        "responses": { "200": { "description": "session state" }, "401": { "description": "invalid credentials" } }
      }
    },
    "/auth/register": {
      "post": {
        "summary": "Create an account and sign in",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"name":{"type":"string"},"email":{"type":"string"},"password":{"type":"string"},"password_confirmation":{"type":"string"}}}}}},
        "responses": { "201": { "description": "session state" }, "422": { "description": "field errors" } }
      }
    },
    "/auth/logout": { "post": { "summary": "Sign out; local session is always cleared", "responses": { "200": { "description": "session state" } } } },
    "/auth/session": { "get": { "summary": "Current session state", "responses": { "200": { "description": "session state" } } } },
    "/tasks": {
      "get": { "summary": "Reconciled task list", "parameters": [{"name":"status","in":"query","schema":{"type":"string"}}], "responses": { "200": { "description": "task state" }, "401": { "description": "session expired" } } },
      "post": { "summary": "Create a task", "responses": { "201": { "description": "created task" } } }
    },
    "/tasks/stats": { "get": { "summary": "Task counts per status", "responses": { "200": { "description": "stats" } } } },
    "/tasks/refresh": { "post": { "summary": "Fetch the task list now", "responses": { "200": { "description": "task state" }, "429": { "description": "rate limited" } } } },
    "/tasks/{id}": {
      "get": { "summary": "Fetch one task from the backend", "responses": { "200": { "description": "task" }, "401": { "description": "session expired" }, "404": { "description": "not found" } } },
      "put": { "summary": "Replace a task", "responses": { "200": { "description": "updated task" } } },
      "delete": { "summary": "Delete a task", "responses": { "204": { "description": "deleted" } } }
    },
    "/tasks/{id}/status": {
      "patch": { "summary": "Change a task's status", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"status":{"type":"string","enum":["pending","in_progress","completed","cancelled"]}}}}}}, "responses": { "200": { "description": "task state" } } }
    },
    "/polling/start": { "post": { "summary": "Start periodic refresh", "responses": { "200": { "description": "task state" } } } },
    "/polling/stop": { "post": { "summary": "Stop periodic refresh", "responses": { "200": { "description": "task state" } } } },
    "/events": { "get": { "summary": "Server-sent session, tasks and session_expired events", "responses": { "200": { "description": "event stream" } } } },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } }
  }
}`
