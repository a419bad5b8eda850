package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/taskboard/taskboard/frontend/go-services/internal/models"
	"github.com/taskboard/taskboard/frontend/go-services/internal/poller"
)

// TaskHandler exposes the reconciled task list and task mutations.
type TaskHandler struct {
	rec             *poller.Reconciler
	defaultInterval time.Duration
}

func NewTaskHandler(rec *poller.Reconciler, defaultInterval time.Duration) *TaskHandler {
	return &TaskHandler{rec: rec, defaultInterval: defaultInterval}
}

// Register mounts the task routes. refreshLimit guards the manual refresh
// endpoint and may be nil.
func (h *TaskHandler) Register(rg *gin.RouterGroup, refreshLimit gin.HandlerFunc) {
	t := rg.Group("/tasks")
	t.GET("", h.List)
	t.GET("/stats", h.Stats)
	if refreshLimit != nil {
		t.POST("/refresh", refreshLimit, h.Refresh)
	} else {
		t.POST("/refresh", h.Refresh)
	}
	t.POST("", h.Create)
	t.GET("/:id", h.Get)
	t.PUT("/:id", h.Update)
	t.DELETE("/:id", h.Delete)
	t.PATCH("/:id/status", h.UpdateStatus)

	p := rg.Group("/polling")
	p.POST("/start", h.StartPolling)
	p.POST("/stop", h.StopPolling)
}

// List returns the local snapshot. ?status= narrows it and accepts the
// legacy inbox names.
func (h *TaskHandler) List(c *gin.Context) {
	st := h.rec.State()
	if q := c.Query("status"); q != "" {
		status, err := models.ParseStatus(q, models.AllowLegacy)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		st.Tasks = h.rec.Filter(status)
	}
	c.JSON(http.StatusOK, st)
}

func (h *TaskHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.rec.Stats())
}

func (h *TaskHandler) Refresh(c *gin.Context) {
	if err := h.rec.RefreshOnce(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.rec.State())
}

// Get fetches one task from the backend for a detail view.
func (h *TaskHandler) Get(c *gin.Context) {
	t, err := h.rec.GetTask(c.Request.Context(), models.ID(c.Param("id")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *TaskHandler) Create(c *gin.Context) {
	var in models.TaskInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	t, err := h.rec.CreateTask(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (h *TaskHandler) Update(c *gin.Context) {
	var in models.TaskInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	t, err := h.rec.UpdateTask(c.Request.Context(), models.ID(c.Param("id")), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *TaskHandler) Delete(c *gin.Context) {
	if err := h.rec.DeleteTask(c.Request.Context(), models.ID(c.Param("id"))); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *TaskHandler) UpdateStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	st, err := models.ParseStatus(req.Status, models.AllowLegacy)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.rec.UpdateStatus(c.Request.Context(), models.ID(c.Param("id")), st); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.rec.State())
}

type pollingRequest struct {
	IntervalSeconds int `json:"interval_seconds"`
}

func (h *TaskHandler) StartPolling(c *gin.Context) {
	var req pollingRequest
	// empty body means the configured interval
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	interval := h.defaultInterval
	if req.IntervalSeconds > 0 {
		interval = time.Duration(req.IntervalSeconds) * time.Second
	}
	h.rec.Start(c.Request.Context(), interval)
	c.JSON(http.StatusOK, h.rec.State())
}

func (h *TaskHandler) StopPolling(c *gin.Context) {
	h.rec.Stop()
	c.JSON(http.StatusOK, h.rec.State())
}
