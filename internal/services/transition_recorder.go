package services

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/ZerkerEOD/hashfleet/internal/models"
	"github.com/ZerkerEOD/hashfleet/internal/repository"
	"github.com/ZerkerEOD/hashfleet/pkg/debug"
)

// Actor values recorded on transition events
const (
	ActorSystem   = "system"
	ActorOperator = "operator"
)

// TransitionRecorder appends state transitions to the durable feed and fans
// them out to live consumers. Recording is strictly best effort: the state
// change that produced the event has already committed, so feed failures
// are logged and never propagated back to the caller.
type TransitionRecorder struct {
	eventRepo *repository.EventRepository
	hub       *EventFeedHub
	publisher *TransitionPublisher

	publishCh chan *models.TransitionEvent
	stopCh    chan struct{}
	mu        sync.Mutex
	running   bool
}

// NewTransitionRecorder creates a recorder. hub and publisher may be nil
// when the corresponding output is not configured.
func NewTransitionRecorder(eventRepo *repository.EventRepository, hub *EventFeedHub, publisher *TransitionPublisher) *TransitionRecorder {
	return &TransitionRecorder{
		eventRepo: eventRepo,
		hub:       hub,
		publisher: publisher,
		publishCh: make(chan *models.TransitionEvent, 256),
		stopCh:    make(chan struct{}),
	}
}

// Start launches the background broker publish loop
func (r *TransitionRecorder) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	r.running = true

	if r.publisher != nil {
		go r.publishLoop()
	}
}

// Stop halts the broker publish loop and closes the broker connection
func (r *TransitionRecorder) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return
	}
	r.running = false
	close(r.stopCh)

	if r.publisher != nil {
		r.publisher.Close()
	}
}

// Record appends one transition to the feed. Safe to call from request
// handlers; broker publishing happens off the caller's path.
func (r *TransitionRecorder) Record(ctx context.Context, entityType string, entityID uuid.UUID, from, to, actor, note string) {
	event := &models.TransitionEvent{
		EntityType: entityType,
		EntityID:   entityID.String(),
		FromStatus: from,
		ToStatus:   to,
		Actor:      actor,
		Note:       note,
	}

	if err := r.eventRepo.Create(ctx, event); err != nil {
		debug.Error("Failed to persist transition event %s %s: %s -> %s: %v",
			entityType, event.EntityID, from, to, err)
	}

	if r.hub != nil {
		r.hub.Publish(event)
	}

	if r.publisher != nil {
		select {
		case r.publishCh <- event:
		default:
			debug.Warning("Transition publish buffer full, dropping event for broker")
		}
	}
}

func (r *TransitionRecorder) publishLoop() {
	for {
		select {
		case <-r.stopCh:
			return
		case event := <-r.publishCh:
			if err := r.publisher.Publish(event); err != nil {
				debug.Warning("Failed to publish transition to broker: %v", err)
			}
		}
	}
}
