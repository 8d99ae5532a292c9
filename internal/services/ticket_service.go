// Package services – TicketService
//
// This file implements the TicketService, which drives the ticket lifecycle:
// registration bookkeeping, the ticket-authoring conversation, owner
// cancellation, operator status transitions, and the fan-out notification
// sent to every operator when a ticket is created.
//
// Service-level errors (e.g. ErrNotRegistered, ErrTicketNotFound) are
// returned for predictable cases so the engine can map them to chat replies
// consistently.
package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-support-bot/internal/conversation"
	"github.com/tbourn/go-support-bot/internal/domain"
	"github.com/tbourn/go-support-bot/internal/messaging"
)

// TicketStore defines the persistence contract required by TicketService.
// Implementations are responsible for atomicity of each individual call;
// the service never spans a transaction across calls.
type TicketStore interface {
	// UpsertUser inserts or replaces a registration record.
	UpsertUser(ctx context.Context, db *gorm.DB, userID int64, firstName, lastName, phone string) error

	// IsRegistered reports whether a registration record exists.
	IsRegistered(ctx context.Context, db *gorm.DB, userID int64) (bool, error)

	// GetUser fetches a registration record by id.
	GetUser(ctx context.Context, db *gorm.DB, userID int64) (*domain.User, error)

	// CreateTicket inserts a new ticket with status "new".
	CreateTicket(ctx context.Context, db *gorm.DB, ownerID int64, text string) (*domain.Ticket, error)

	// ListTickets returns one owner's tickets, newest first.
	ListTickets(ctx context.Context, db *gorm.DB, ownerID int64, includeCancelled bool) ([]domain.Ticket, error)

	// ListAllTickets returns tickets across all owners, newest first.
	ListAllTickets(ctx context.Context, db *gorm.DB, includeCancelled bool) ([]domain.Ticket, error)

	// SetStatus updates a ticket's status, reporting whether a row matched.
	SetStatus(ctx context.Context, db *gorm.DB, id int64, status domain.Status) (bool, error)

	// DeleteTicket physically removes a ticket row.
	DeleteTicket(ctx context.Context, db *gorm.DB, id int64) (bool, error)
}

// CancelKeyword is the case-insensitive text that aborts ticket authoring.
const CancelKeyword = "cancel"

// TicketService coordinates the ticket lifecycle between the store, the
// conversation tracker, and the messaging transport.
type TicketService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Store is the persistence contract used by this service.
	Store TicketStore
	// States tracks each user's conversation step.
	States *conversation.Tracker
	// Messenger emits prompts, confirmations, and the operator fan-out.
	Messenger messaging.Messenger
	// Operators is the injected allow-list of operator identities.
	Operators map[int64]struct{}
	// Log is the component-scoped logger.
	Log zerolog.Logger
}

// NewTicketService constructs a TicketService with the given collaborators.
// operatorIDs becomes the injected operator allow-list.
func NewTicketService(db *gorm.DB, store TicketStore, states *conversation.Tracker, m messaging.Messenger, operatorIDs []int64, log zerolog.Logger) *TicketService {
	ops := make(map[int64]struct{}, len(operatorIDs))
	for _, id := range operatorIDs {
		ops[id] = struct{}{}
	}
	return &TicketService{
		DB:        db,
		Store:     store,
		States:    states,
		Messenger: m,
		Operators: ops,
		Log:       log.With().Str("component", "tickets").Logger(),
	}
}

// IsOperator reports whether id is on the operator allow-list.
func (s *TicketService) IsOperator(id int64) bool {
	_, ok := s.Operators[id]
	return ok
}

// IsRegistered reports whether userID has completed registration.
func (s *TicketService) IsRegistered(ctx context.Context, userID int64) (bool, error) {
	return s.Store.IsRegistered(ctx, s.DB, userID)
}

// Profile returns the stored registration record for userID.
func (s *TicketService) Profile(ctx context.Context, userID int64) (*domain.User, error) {
	return s.Store.GetUser(ctx, s.DB, userID)
}

// Register upserts the user's registration record from a shared contact.
// Re-registration replaces the stored attributes in place.
func (s *TicketService) Register(ctx context.Context, userID int64, c messaging.Contact) error {
	return s.Store.UpsertUser(ctx, s.DB, userID, c.FirstName, c.LastName, c.Phone)
}

// BeginCreation starts the ticket-authoring flow for userID. It requires a
// completed registration and moves the conversation to the
// awaiting-ticket-text step, prompting the user for the request body.
func (s *TicketService) BeginCreation(ctx context.Context, userID, chatID int64) error {
	ok, err := s.Store.IsRegistered(ctx, s.DB, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotRegistered
	}

	s.States.SetStep(userID, conversation.StepAwaitingTicketText, nil)
	return s.Messenger.SendText(ctx, chatID,
		fmt.Sprintf("Describe your request in one message, or send %q to abort.", CancelKeyword), nil)
}

// SubmitText completes (or aborts) the ticket-authoring flow with the text
// the user sent while in the awaiting-ticket-text step.
//
// Semantics:
//   - The cancel keyword (case-insensitive) clears the flow and creates
//     nothing; the returned ticket is nil.
//   - Text that is empty after trimming returns ErrEmptyTicket and leaves
//     the conversation state untouched so the user can try again.
//   - Otherwise the ticket is stored, the flow is cleared, the submitter is
//     acknowledged, and every operator is notified with inline status
//     controls. A fan-out failure to one operator is logged and never
//     aborts the remaining notifications nor rolls back the ticket.
func (s *TicketService) SubmitText(ctx context.Context, userID, chatID int64, text string) (*domain.Ticket, error) {
	tr := otel.Tracer("services/TicketService")
	ctx, span := tr.Start(ctx, "SubmitText",
		trace.WithAttributes(attribute.Int64("user.id", userID)),
	)
	defer span.End()

	if strings.EqualFold(strings.TrimSpace(text), CancelKeyword) {
		s.States.Clear(userID)
		if err := s.Messenger.SendText(ctx, chatID, "Ticket creation cancelled.", nil); err != nil {
			return nil, err
		}
		return nil, nil
	}

	body := strings.TrimSpace(text)
	if body == "" {
		// Re-prompt without advancing the conversation.
		_ = s.Messenger.SendText(ctx, chatID, "The ticket text cannot be empty. Please describe your request.", nil)
		return nil, ErrEmptyTicket
	}

	tk, err := s.Store.CreateTicket(ctx, s.DB, userID, body)
	if err != nil {
		// The action did not happen: keep no partial state around.
		s.States.Clear(userID)
		_ = s.Messenger.SendText(ctx, chatID, "Something went wrong while saving your request. Please try again.", nil)
		return nil, err
	}
	s.States.Clear(userID)

	if err := s.Messenger.SendText(ctx, chatID, fmt.Sprintf("Ticket #%d accepted.", tk.ID), nil); err != nil {
		s.Log.Warn().Err(err).Int64("chat_id", chatID).Msg("ticket ack send failed")
	}

	s.notifyOperators(ctx, tk)
	return tk, nil
}

// notifyOperators fans the new ticket out to every operator identity with
// inline controls for the three operator status transitions. Failures are
// isolated per recipient.
func (s *TicketService) notifyOperators(ctx context.Context, tk *domain.Ticket) {
	text := fmt.Sprintf("New ticket #%d from user %d:\n\n%s", tk.ID, tk.OwnerID, tk.Text)
	for opID := range s.Operators {
		kb := StatusKeyboard(tk.ID)
		if err := s.Messenger.SendChoiceKeyboard(ctx, opID, text, *kb); err != nil {
			s.Log.Warn().Err(err).
				Int64("operator_id", opID).
				Int64("ticket_id", tk.ID).
				Msg("operator notification failed")
		}
	}
}

// StatusKeyboard builds the inline controls an operator uses to transition
// a ticket's status.
func StatusKeyboard(ticketID int64) *messaging.Keyboard {
	kb := &messaging.Keyboard{}
	kb.Row(
		messaging.Choice{Label: "In progress", Data: fmt.Sprintf("status:%d:%s", ticketID, domain.StatusInProgress)},
		messaging.Choice{Label: "Done", Data: fmt.Sprintf("status:%d:%s", ticketID, domain.StatusDone)},
		messaging.Choice{Label: "Cancel", Data: fmt.Sprintf("status:%d:%s", ticketID, domain.StatusCancelled)},
	)
	return kb
}

// CancelOwn deletes the ticket a user cancelled from their own listing.
//
// This is the hard-delete side of the cancellation asymmetry: the row is
// physically removed, so the ticket vanishes from every view, while an
// operator cancelling via ChangeStatus merely flags the row. Both
// behaviors are deliberate.
//
// Ownership is not verified here: the deployment is a closed group and the
// cancel control is only ever rendered on the owner's own listing. The gap
// is flagged rather than silently fixed.
func (s *TicketService) CancelOwn(ctx context.Context, userID, ticketID int64) error {
	deleted, err := s.Store.DeleteTicket(ctx, s.DB, ticketID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrTicketNotFound
	}
	s.Log.Info().Int64("user_id", userID).Int64("ticket_id", ticketID).Msg("ticket cancelled by owner")
	return nil
}

// ChangeStatus applies an operator status transition. Any status may follow
// any other; the only validation is membership in the closed enum.
func (s *TicketService) ChangeStatus(ctx context.Context, operatorID, ticketID int64, status domain.Status) error {
	if !s.IsOperator(operatorID) {
		return ErrUnauthorized
	}
	if !status.Valid() {
		return ErrInvalidStatus
	}
	changed, err := s.Store.SetStatus(ctx, s.DB, ticketID, status)
	if err != nil {
		return err
	}
	if !changed {
		return ErrTicketNotFound
	}
	s.Log.Info().
		Int64("operator_id", operatorID).
		Int64("ticket_id", ticketID).
		Str("status", string(status)).
		Msg("ticket status changed")
	return nil
}

// ListMine returns the caller's tickets, newest first, hiding
// operator-cancelled ones.
func (s *TicketService) ListMine(ctx context.Context, userID int64) ([]domain.Ticket, error) {
	return s.Store.ListTickets(ctx, s.DB, userID, false)
}

// ListAll returns every owner's tickets for the operator view, newest
// first, hiding cancelled ones. Non-operators get ErrUnauthorized.
func (s *TicketService) ListAll(ctx context.Context, operatorID int64) ([]domain.Ticket, error) {
	if !s.IsOperator(operatorID) {
		return nil, ErrUnauthorized
	}
	return s.Store.ListAllTickets(ctx, s.DB, false)
}
