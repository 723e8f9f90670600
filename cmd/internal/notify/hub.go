package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

const defaultSubscriberQueue = 32

// Subscriber is one listening connection for a user. Events is never
// closed by the hub; Done signals teardown.
type Subscriber struct {
	UserID string
	Events chan Event

	done      chan struct{}
	closeOnce sync.Once
}

// Done returns a channel closed when the subscriber is shutting down.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

// Close signals teardown (idempotent). Events stays open so publishers
// never panic on a racing send.
func (s *Subscriber) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Hub fans events out to a user's live subscriptions. A user can hold
// several (phone plus web); events go to all of them.
type Hub struct {
	log *slog.Logger

	mu     sync.Mutex
	byUser map[string]map[*Subscriber]struct{}
}

// NewHub constructs a Hub.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{log: log, byUser: make(map[string]map[*Subscriber]struct{})}
}

// Subscribe registers a listener for userID's events.
func (h *Hub) Subscribe(userID string, queueSize int) *Subscriber {
	if queueSize <= 0 {
		queueSize = defaultSubscriberQueue
	}
	sub := &Subscriber{
		UserID: userID,
		Events: make(chan Event, queueSize),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.byUser[userID]
	if !ok {
		subs = make(map[*Subscriber]struct{})
		h.byUser[userID] = subs
	}
	subs[sub] = struct{}{}
	return sub
}

// Unsubscribe removes and closes the subscriber.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}

	h.mu.Lock()
	if subs, ok := h.byUser[sub.UserID]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.byUser, sub.UserID)
		}
	}
	h.mu.Unlock()

	sub.Close()
}

// Publish delivers ev to every live subscription of userID. A full queue
// drops the event for that subscriber rather than blocking the caller.
func (h *Hub) Publish(userID string, ev Event) {
	h.mu.Lock()
	subs := make([]*Subscriber, 0, len(h.byUser[userID]))
	for sub := range h.byUser[userID] {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		select {
		case <-sub.Done():
		case sub.Events <- ev:
		default:
			h.log.Warn("notify.drop.slow_subscriber", "user_id", userID, "type", ev.Type)
		}
	}
}

// LevelUp publishes a tier-change event. Satisfies the collection
// workflow's notifier contract.
func (h *Hub) LevelUp(_ context.Context, userID string, prevLevel, newLevel, totalPoints int) {
	payload, err := json.Marshal(LevelUpPayload{
		PrevLevel:   prevLevel,
		NewLevel:    newLevel,
		TotalPoints: totalPoints,
	})
	if err != nil {
		return
	}
	h.Publish(userID, Event{Type: TypeLevelUp, TS: time.Now().UTC(), Payload: payload})
}

// RedemptionUsed tells the owner their code was honored by a partner.
func (h *Hub) RedemptionUsed(_ context.Context, userID, rewardID string, usedAt time.Time) {
	payload, err := json.Marshal(RedemptionUsedPayload{RewardID: rewardID, UsedAt: usedAt})
	if err != nil {
		return
	}
	h.Publish(userID, Event{Type: TypeRedemptionUsed, TS: time.Now().UTC(), Payload: payload})
}
