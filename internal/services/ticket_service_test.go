package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-support-bot/internal/conversation"
	"github.com/tbourn/go-support-bot/internal/domain"
	"github.com/tbourn/go-support-bot/internal/messaging"
)

// ----- Fake store -----

type fakeStore struct {
	mu        sync.Mutex
	users     map[int64]*domain.User
	tickets   map[int64]*domain.Ticket
	nextID    int64
	createErr error
	deleteErr error
	statusErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:   map[int64]*domain.User{},
		tickets: map[int64]*domain.Ticket{},
	}
}

func (f *fakeStore) addUser(userID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[userID] = &domain.User{ID: userID, FirstName: "Test"}
}

func (f *fakeStore) UpsertUser(_ context.Context, _ *gorm.DB, userID int64, firstName, lastName, phone string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[userID] = &domain.User{ID: userID, FirstName: firstName, LastName: lastName, Phone: phone}
	return nil
}

func (f *fakeStore) IsRegistered(_ context.Context, _ *gorm.DB, userID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.users[userID]
	return ok, nil
}

func (f *fakeStore) GetUser(_ context.Context, _ *gorm.DB, userID int64) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return nil, ErrNotRegistered
	}
	return u, nil
}

func (f *fakeStore) CreateTicket(_ context.Context, _ *gorm.DB, ownerID int64, text string) (*domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextID++
	tk := &domain.Ticket{ID: f.nextID, OwnerID: ownerID, Text: text, Status: domain.StatusNew}
	f.tickets[tk.ID] = tk
	return tk, nil
}

func (f *fakeStore) ListTickets(_ context.Context, _ *gorm.DB, ownerID int64, includeCancelled bool) ([]domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Ticket
	for id := f.nextID; id >= 1; id-- { // newest first
		tk, ok := f.tickets[id]
		if !ok || tk.OwnerID != ownerID {
			continue
		}
		if !includeCancelled && tk.Status == domain.StatusCancelled {
			continue
		}
		out = append(out, *tk)
	}
	return out, nil
}

func (f *fakeStore) ListAllTickets(_ context.Context, _ *gorm.DB, includeCancelled bool) ([]domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Ticket
	for id := f.nextID; id >= 1; id-- {
		tk, ok := f.tickets[id]
		if !ok {
			continue
		}
		if !includeCancelled && tk.Status == domain.StatusCancelled {
			continue
		}
		out = append(out, *tk)
	}
	return out, nil
}

func (f *fakeStore) SetStatus(_ context.Context, _ *gorm.DB, id int64, status domain.Status) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return false, f.statusErr
	}
	tk, ok := f.tickets[id]
	if !ok {
		return false, nil
	}
	tk.Status = status
	return true, nil
}

func (f *fakeStore) DeleteTicket(_ context.Context, _ *gorm.DB, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return false, f.deleteErr
	}
	if _, ok := f.tickets[id]; !ok {
		return false, nil
	}
	delete(f.tickets, id)
	return true, nil
}

// ----- Fake messenger -----

type fakeMessenger struct {
	mu        sync.Mutex
	texts     []string
	textChats []int64
	keyboards []messaging.Keyboard
	kbChats   []int64
	kbTexts   []string
	failChats map[int64]error
}

func (m *fakeMessenger) SendText(_ context.Context, chatID int64, text string, _ *messaging.SendOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failChats[chatID]; err != nil {
		return err
	}
	m.texts = append(m.texts, text)
	m.textChats = append(m.textChats, chatID)
	return nil
}

func (m *fakeMessenger) SendChoiceKeyboard(_ context.Context, chatID int64, text string, kb messaging.Keyboard) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failChats[chatID]; err != nil {
		return err
	}
	m.keyboards = append(m.keyboards, kb)
	m.kbChats = append(m.kbChats, chatID)
	m.kbTexts = append(m.kbTexts, text)
	return nil
}

func (m *fakeMessenger) EditMessageKeyboard(context.Context, int64, string, *messaging.Keyboard) error {
	return nil
}

func (m *fakeMessenger) AcknowledgeEvent(context.Context, string, string) error { return nil }

// ----- Tests -----

func newTicketService(store TicketStore, m messaging.Messenger, operators ...int64) (*TicketService, *conversation.Tracker) {
	states := conversation.NewTracker()
	svc := NewTicketService(nil, store, states, m, operators, zerolog.Nop())
	return svc, states
}

func TestBeginCreation_RequiresRegistration(t *testing.T) {
	store := newFakeStore()
	msgr := &fakeMessenger{}
	svc, states := newTicketService(store, msgr)

	err := svc.BeginCreation(context.Background(), 1, 1)
	if !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered, got %v", err)
	}
	if states.Step(1) != conversation.StepIdle {
		t.Fatalf("state advanced for unregistered user")
	}
}

func TestBeginCreation_SetsStepAndPrompts(t *testing.T) {
	store := newFakeStore()
	store.addUser(1)
	msgr := &fakeMessenger{}
	svc, states := newTicketService(store, msgr)

	if err := svc.BeginCreation(context.Background(), 1, 10); err != nil {
		t.Fatalf("BeginCreation: %v", err)
	}
	if states.Step(1) != conversation.StepAwaitingTicketText {
		t.Fatalf("step = %q", states.Step(1))
	}
	if len(msgr.texts) != 1 {
		t.Fatalf("expected one prompt, got %v", msgr.texts)
	}
}

func TestSubmitText_CancelKeywordCreatesNothing(t *testing.T) {
	store := newFakeStore()
	store.addUser(1)
	msgr := &fakeMessenger{}
	svc, states := newTicketService(store, msgr)

	states.SetStep(1, conversation.StepAwaitingTicketText, nil)
	tk, err := svc.SubmitText(context.Background(), 1, 10, "  CANCEL  ")
	if err != nil || tk != nil {
		t.Fatalf("cancel keyword: tk=%v err=%v", tk, err)
	}
	if states.Step(1) != conversation.StepIdle {
		t.Fatalf("state not cleared after cancel")
	}
	if len(store.tickets) != 0 {
		t.Fatalf("ticket created despite cancel: %v", store.tickets)
	}
}

func TestSubmitText_EmptyBodyRepromptsWithoutAdvancing(t *testing.T) {
	store := newFakeStore()
	store.addUser(1)
	msgr := &fakeMessenger{}
	svc, states := newTicketService(store, msgr)

	states.SetStep(1, conversation.StepAwaitingTicketText, nil)
	_, err := svc.SubmitText(context.Background(), 1, 10, "   ")
	if !errors.Is(err, ErrEmptyTicket) {
		t.Fatalf("expected ErrEmptyTicket, got %v", err)
	}
	if states.Step(1) != conversation.StepAwaitingTicketText {
		t.Fatalf("state advanced on invalid input")
	}
	if len(store.tickets) != 0 {
		t.Fatalf("ticket created from empty body")
	}
}

func TestSubmitText_CreatesAndFansOut(t *testing.T) {
	store := newFakeStore()
	store.addUser(1)
	msgr := &fakeMessenger{}
	svc, states := newTicketService(store, msgr, 100, 200)

	states.SetStep(1, conversation.StepAwaitingTicketText, nil)
	tk, err := svc.SubmitText(context.Background(), 1, 10, "fix the leak")
	if err != nil {
		t.Fatalf("SubmitText: %v", err)
	}
	if tk == nil || tk.ID != 1 || tk.Status != domain.StatusNew {
		t.Fatalf("unexpected ticket: %+v", tk)
	}
	if states.Step(1) != conversation.StepIdle {
		t.Fatalf("state not cleared after submit")
	}

	// Submitter ack plus one keyboard per operator.
	if len(msgr.texts) != 1 || !strings.Contains(msgr.texts[0], "#1") {
		t.Fatalf("submitter ack missing: %v", msgr.texts)
	}
	if len(msgr.keyboards) != 2 {
		t.Fatalf("expected 2 operator notifications, got %d", len(msgr.keyboards))
	}
	for _, text := range msgr.kbTexts {
		if !strings.Contains(text, "#1") || !strings.Contains(text, "fix the leak") {
			t.Fatalf("operator notification missing details: %q", text)
		}
	}
	// Inline controls reference the ticket id for all three transitions.
	kb := msgr.keyboards[0]
	if len(kb.Rows) != 1 || len(kb.Rows[0]) != 3 {
		t.Fatalf("unexpected status keyboard shape: %+v", kb)
	}
	for _, c := range kb.Rows[0] {
		if !strings.HasPrefix(c.Data, "status:1:") {
			t.Fatalf("unexpected callback payload: %q", c.Data)
		}
	}
}

func TestSubmitText_FanOutFailureIsIsolated(t *testing.T) {
	store := newFakeStore()
	store.addUser(1)
	msgr := &fakeMessenger{failChats: map[int64]error{100: fmt.Errorf("blocked")}}
	svc, states := newTicketService(store, msgr, 100, 200)

	states.SetStep(1, conversation.StepAwaitingTicketText, nil)
	tk, err := svc.SubmitText(context.Background(), 1, 10, "door stuck")
	if err != nil {
		t.Fatalf("SubmitText: %v", err)
	}
	if tk == nil {
		t.Fatalf("ticket not created despite fan-out failure")
	}
	// The reachable operator still got notified.
	if len(msgr.keyboards) != 1 || msgr.kbChats[0] != 200 {
		t.Fatalf("expected delivery to operator 200, got chats %v", msgr.kbChats)
	}
	// And the ticket survived.
	if _, ok := store.tickets[tk.ID]; !ok {
		t.Fatalf("ticket rolled back on fan-out failure")
	}
}

func TestSubmitText_StoreFailureSurfacesGenerically(t *testing.T) {
	store := newFakeStore()
	store.addUser(1)
	store.createErr = fmt.Errorf("disk full")
	msgr := &fakeMessenger{}
	svc, states := newTicketService(store, msgr)

	states.SetStep(1, conversation.StepAwaitingTicketText, nil)
	tk, err := svc.SubmitText(context.Background(), 1, 10, "text")
	if err == nil || tk != nil {
		t.Fatalf("expected store error, got tk=%v err=%v", tk, err)
	}
	if states.Step(1) != conversation.StepIdle {
		t.Fatalf("state kept after failed creation")
	}
	if len(msgr.keyboards) != 0 {
		t.Fatalf("fan-out ran for a ticket that was never created")
	}
}

func TestCancelOwn(t *testing.T) {
	store := newFakeStore()
	store.addUser(1)
	msgr := &fakeMessenger{}
	svc, _ := newTicketService(store, msgr)

	tk, _ := store.CreateTicket(context.Background(), nil, 1, "x")

	if err := svc.CancelOwn(context.Background(), 1, tk.ID); err != nil {
		t.Fatalf("CancelOwn: %v", err)
	}
	if _, ok := store.tickets[tk.ID]; ok {
		t.Fatalf("row still present after hard delete")
	}

	if err := svc.CancelOwn(context.Background(), 1, tk.ID); !errors.Is(err, ErrTicketNotFound) {
		t.Fatalf("expected ErrTicketNotFound on repeat, got %v", err)
	}
}

func TestChangeStatus_Authorization(t *testing.T) {
	store := newFakeStore()
	msgr := &fakeMessenger{}
	svc, _ := newTicketService(store, msgr, 100)

	tk, _ := store.CreateTicket(context.Background(), nil, 1, "x")

	if err := svc.ChangeStatus(context.Background(), 1, tk.ID, domain.StatusDone); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for non-operator, got %v", err)
	}
	if err := svc.ChangeStatus(context.Background(), 100, tk.ID, domain.Status("bogus")); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
	if err := svc.ChangeStatus(context.Background(), 100, 999, domain.StatusDone); !errors.Is(err, ErrTicketNotFound) {
		t.Fatalf("expected ErrTicketNotFound, got %v", err)
	}
	if err := svc.ChangeStatus(context.Background(), 100, tk.ID, domain.StatusDone); err != nil {
		t.Fatalf("ChangeStatus: %v", err)
	}
	if store.tickets[tk.ID].Status != domain.StatusDone {
		t.Fatalf("status not applied: %+v", store.tickets[tk.ID])
	}

	// Operators may re-open: done -> in_progress is legal.
	if err := svc.ChangeStatus(context.Background(), 100, tk.ID, domain.StatusInProgress); err != nil {
		t.Fatalf("re-open: %v", err)
	}
}

func TestListAll_OperatorOnly(t *testing.T) {
	store := newFakeStore()
	msgr := &fakeMessenger{}
	svc, _ := newTicketService(store, msgr, 100)

	if _, err := svc.ListAll(context.Background(), 1); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := svc.ListAll(context.Background(), 100); err != nil {
		t.Fatalf("ListAll as operator: %v", err)
	}
}
