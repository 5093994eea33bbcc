package v1

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/ZerkerEOD/hashfleet/internal/repository"
	"github.com/ZerkerEOD/hashfleet/internal/services"
	"github.com/ZerkerEOD/hashfleet/pkg/debug"
)

var feedUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// The control API sits behind operator auth or a trusted proxy.
		return true
	},
}

// EventFeedHandler serves the transition event surface: a live websocket
// feed plus REST reads over the durable event log.
type EventFeedHandler struct {
	hub       *services.EventFeedHub
	eventRepo *repository.EventRepository
}

// NewEventFeedHandler creates a new event feed handler
func NewEventFeedHandler(hub *services.EventFeedHub, eventRepo *repository.EventRepository) *EventFeedHandler {
	return &EventFeedHandler{hub: hub, eventRepo: eventRepo}
}

// Feed upgrades the connection and streams every transition event until
// the client disconnects
func (h *EventFeedHandler) Feed(w http.ResponseWriter, r *http.Request) {
	conn, err := feedUpgrader.Upgrade(w, r, nil)
	if err != nil {
		debug.Error("Feed upgrade failed: %v", err)
		return
	}

	client := services.NewEventFeedClient(h.hub, conn)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}

// History returns the durable transition log for one entity
// GET /api/v1/events?entity_type=campaign&entity_id=...
func (h *EventFeedHandler) History(w http.ResponseWriter, r *http.Request) {
	entityType := r.URL.Query().Get("entity_type")
	entityID := r.URL.Query().Get("entity_id")
	if entityType == "" || entityID == "" {
		events, err := h.eventRepo.ListRecent(r.Context(), intQueryParam(r, "limit", 100))
		if err != nil {
			sendServiceError(w, err)
			return
		}
		sendJSON(w, http.StatusOK, map[string]interface{}{
			"events": events,
			"total":  len(events),
		})
		return
	}

	events, err := h.eventRepo.ListByEntity(r.Context(), entityType, entityID)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"total":  len(events),
	})
}
