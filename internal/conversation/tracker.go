// Package conversation tracks the multi-step input context each user is
// mid-way through. A user has at most one active state; entering a new step
// replaces the previous one, never stacks. State is volatile by design: it
// lives in process memory and does not survive a restart.
package conversation

import (
	"errors"
	"sync"
)

// Step identifies the position of a user within a guided input flow.
type Step string

// The closed set of conversation steps. Absence of an entry is equivalent
// to StepIdle.
const (
	StepIdle                   Step = "idle"
	StepAwaitingContact        Step = "awaiting_contact"
	StepAwaitingTicketText     Step = "awaiting_ticket_text"
	StepAwaitingReminderChoice Step = "awaiting_reminder_choice"
	StepAwaitingReminderCustom Step = "awaiting_reminder_custom_minutes"
	StepAwaitingReminderText   Step = "awaiting_reminder_text"
)

// ErrNoActiveFlow is returned by UpdatePayload when the user has no active
// conversation state. Payload merges presuppose a flow begun with SetStep;
// hitting this error in a handler indicates a routing bug.
var ErrNoActiveFlow = errors.New("no active conversation flow")

// state is one user's current step plus the scratch data collected so far.
type state struct {
	step    Step
	payload map[string]any
}

// Tracker is an in-memory conversation-state store keyed by user id.
//
// It is safe for concurrent use across different users. It does NOT by
// itself serialize two events from the same user; that is the job of the
// per-user critical section (see KeyedMutex), inside which handlers read
// and mutate a user's entry.
type Tracker struct {
	mu     sync.RWMutex
	states map[int64]*state
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{states: make(map[int64]*state)}
}

// SetStep replaces the user's conversation state unconditionally. The
// payload map is copied, so callers may reuse or mutate theirs afterwards.
// A nil payload starts the step with an empty scratch area.
func (t *Tracker) SetStep(userID int64, step Step, payload map[string]any) {
	cp := make(map[string]any, len(payload))
	for k, v := range payload {
		cp[k] = v
	}
	t.mu.Lock()
	t.states[userID] = &state{step: step, payload: cp}
	t.mu.Unlock()
}

// Step returns the user's current step, or StepIdle if no state exists.
func (t *Tracker) Step(userID int64) Step {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if s, ok := t.states[userID]; ok {
		return s.step
	}
	return StepIdle
}

// UpdatePayload merges key=value into the user's scratch payload without
// discarding other keys. It returns ErrNoActiveFlow if the user has no
// active state.
func (t *Tracker) UpdatePayload(userID int64, key string, value any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.states[userID]
	if !ok {
		return ErrNoActiveFlow
	}
	s.payload[key] = value
	return nil
}

// Payload returns the value stored under key for the user's active state.
// The second result is false when the user is idle or the key is absent.
func (t *Tracker) Payload(userID int64, key string) (any, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.states[userID]
	if !ok {
		return nil, false
	}
	v, ok := s.payload[key]
	return v, ok
}

// Clear removes the user's conversation state. Clearing an idle user is a
// no-op.
func (t *Tracker) Clear(userID int64) {
	t.mu.Lock()
	delete(t.states, userID)
	t.mu.Unlock()
}

// KeyedMutex provides a mutex per user id so that events from the same
// user are processed one at a time, in arrival order, while events from
// different users proceed concurrently.
//
// Entries are created on demand and kept for the life of the process; the
// per-user footprint is a single mutex, so no eviction is attempted.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewKeyedMutex returns an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[int64]*sync.Mutex)}
}

// Lock acquires the mutex for id and returns the matching unlock function.
//
//	unlock := km.Lock(userID)
//	defer unlock()
func (k *KeyedMutex) Lock(id int64) func() {
	k.mu.Lock()
	m, ok := k.locks[id]
	if !ok {
		m = &sync.Mutex{}
		k.locks[id] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
