package handlers

import (
	"io"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/taskboard/taskboard/frontend/go-services/internal/poller"
	"github.com/taskboard/taskboard/frontend/go-services/internal/session"
)

// Event names on the /events stream.
const (
	EventSession        = "session"
	EventTasks          = "tasks"
	EventSessionExpired = "session_expired"
)

type Event struct {
	Name string
	Data interface{}
}

// Hub fans state changes out to every connected event stream. Slow readers
// miss events rather than block publishers; each event is a full snapshot so
// the next one catches them up.
type Hub struct {
	mu      sync.Mutex
	clients map[chan Event]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: map[chan Event]struct{}{}}
}

func (h *Hub) Publish(name string, data interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- Event{Name: name, Data: data}:
		default:
		}
	}
}

// Clients is the number of open streams.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) subscribe() (chan Event, func()) {
	ch := make(chan Event, 16)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch, func() {
		h.mu.Lock()
		delete(h.clients, ch)
		h.mu.Unlock()
	}
}

// Bind publishes guard and reconciler changes to the hub.
func (h *Hub) Bind(g *session.Guard, rec *poller.Reconciler) {
	g.Subscribe(func(s session.State) { h.Publish(EventSession, s) })
	rec.Subscribe(func(s poller.State) { h.Publish(EventTasks, s) })
	rec.OnSessionExpired(func() {
		h.Publish(EventSessionExpired, gin.H{"redirect": LoginPath})
	})
}

// EventsHandler serves GET /events as server-sent events.
type EventsHandler struct {
	hub   *Hub
	guard *session.Guard
	rec   *poller.Reconciler
}

func NewEventsHandler(hub *Hub, g *session.Guard, rec *poller.Reconciler) *EventsHandler {
	return &EventsHandler{hub: hub, guard: g, rec: rec}
}

func (h *EventsHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/events", h.Stream)
}

// Stream sends the current snapshots, then every change until the client
// goes away. Task snapshots are withheld while signed out.
func (h *EventsHandler) Stream(c *gin.Context) {
	ch, unsubscribe := h.hub.subscribe()
	defer unsubscribe()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent(EventSession, h.guard.State())
	if h.guard.IsAuthenticated() {
		c.SSEvent(EventTasks, h.rec.State())
	}
	c.Writer.Flush()

	done := c.Request.Context().Done()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-done:
			return false
		case ev := <-ch:
			// task lists only go out while someone is signed in
			if ev.Name == EventTasks && !h.guard.IsAuthenticated() {
				return true
			}
			c.SSEvent(ev.Name, ev.Data)
			return true
		}
	})
}
