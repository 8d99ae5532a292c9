// Package engine – event handlers.
//
// Handlers translate service-level sentinel errors into chat replies and
// return a non-nil error only for genuine collaborator failures. A handler
// that recovered by re-prompting the user reports success to the router.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tbourn/go-support-bot/internal/conversation"
	"github.com/tbourn/go-support-bot/internal/domain"
	"github.com/tbourn/go-support-bot/internal/messaging"
	"github.com/tbourn/go-support-bot/internal/services"
)

// mainMenu builds the top-level reply keyboard. Operators get the extra
// all-tickets row.
func (e *Engine) mainMenu(userID int64) *messaging.Keyboard {
	kb := &messaging.Keyboard{}
	kb.Row(
		messaging.Choice{Label: btnCreateTicket, Data: btnCreateTicket},
		messaging.Choice{Label: btnMyTickets, Data: btnMyTickets},
	)
	kb.Row(
		messaging.Choice{Label: btnReminder, Data: btnReminder},
		messaging.Choice{Label: btnRates, Data: btnRates},
	)
	kb.Row(
		messaging.Choice{Label: btnTime, Data: btnTime},
		messaging.Choice{Label: btnAbout, Data: btnAbout},
	)
	if e.Tickets.IsOperator(userID) {
		kb.Row(messaging.Choice{Label: btnAllTickets, Data: btnAllTickets})
	}
	return kb
}

// registerKeyboard is the single-button keyboard offered to unregistered
// users.
func registerKeyboard() *messaging.Keyboard {
	kb := &messaging.Keyboard{}
	kb.Row(messaging.Choice{Label: btnRegister, Data: btnRegister})
	return kb
}

func (e *Engine) handleStart(ctx context.Context, ev messaging.Event) error {
	registered, err := e.Tickets.IsRegistered(ctx, ev.UserID)
	if err != nil {
		return err
	}
	if registered {
		greeting := "Welcome back!"
		if u, err := e.Tickets.Profile(ctx, ev.UserID); err == nil && u.FirstName != "" {
			greeting = fmt.Sprintf("Welcome back, %s!", cases.Title(language.Und).String(u.FirstName))
		}
		return e.Messenger.SendText(ctx, ev.ChatID, greeting, &messaging.SendOptions{
			Keyboard: e.mainMenu(ev.UserID),
		})
	}
	return e.Messenger.SendText(ctx, ev.ChatID, "Hi! Tap the button below to register.", &messaging.SendOptions{
		Keyboard: registerKeyboard(),
	})
}

func (e *Engine) handleRegisterBegin(ctx context.Context, ev messaging.Event) error {
	e.States.SetStep(ev.UserID, conversation.StepAwaitingContact, nil)
	return e.Messenger.SendText(ctx, ev.ChatID, "Please share your contact to register.", nil)
}

func (e *Engine) handleContact(ctx context.Context, ev messaging.Event) error {
	if ev.Contact == nil {
		return e.Messenger.SendText(ctx, ev.ChatID, "Please use the contact button to share your details.", nil)
	}

	if err := e.Tickets.Register(ctx, ev.UserID, *ev.Contact); err != nil {
		_ = e.Messenger.SendText(ctx, ev.ChatID, "Registration failed, please try again.", nil)
		return err
	}
	e.States.Clear(ev.UserID)

	caser := cases.Title(language.Und)
	name := strings.TrimSpace(caser.String(strings.TrimSpace(ev.Contact.FirstName + " " + ev.Contact.LastName)))
	return e.Messenger.SendText(ctx, ev.ChatID,
		fmt.Sprintf("You are registered as %s (%s).", name, ev.Contact.Phone),
		&messaging.SendOptions{Keyboard: e.mainMenu(ev.UserID)},
	)
}

func (e *Engine) handleTicketBegin(ctx context.Context, ev messaging.Event) error {
	err := e.Tickets.BeginCreation(ctx, ev.UserID, ev.ChatID)
	if errors.Is(err, services.ErrNotRegistered) {
		return e.Messenger.SendText(ctx, ev.ChatID, "You need to register before creating tickets.", &messaging.SendOptions{
			Keyboard: registerKeyboard(),
		})
	}
	return err
}

func (e *Engine) handleTicketText(ctx context.Context, ev messaging.Event) error {
	tk, err := e.Tickets.SubmitText(ctx, ev.UserID, ev.ChatID, ev.Text)
	if errors.Is(err, services.ErrEmptyTicket) {
		return nil // re-prompted, state unchanged
	}
	if err != nil {
		return err
	}
	if tk == nil {
		// Cancelled via keyword: bring the menu back.
		return e.Messenger.SendText(ctx, ev.ChatID, "What next?", &messaging.SendOptions{
			Keyboard: e.mainMenu(ev.UserID),
		})
	}
	return nil
}

func (e *Engine) handleReminderCustom(ctx context.Context, ev messaging.Event) error {
	err := e.Reminders.SubmitCustomDelay(ctx, ev.UserID, ev.ChatID, ev.Text)
	if errors.Is(err, services.ErrInvalidDelay) {
		return nil // re-prompted, state unchanged
	}
	return err
}

func (e *Engine) handleReminderText(ctx context.Context, ev messaging.Event) error {
	_, err := e.Reminders.Finalize(ctx, ev.UserID, ev.ChatID, ev.Text)
	if errors.Is(err, conversation.ErrNoActiveFlow) {
		// Stale step without a stored delay: reset rather than wedge.
		e.States.Clear(ev.UserID)
		return e.Messenger.SendText(ctx, ev.ChatID, "The reminder flow was interrupted, please start again.", nil)
	}
	return err
}

func (e *Engine) handlePresetCallback(ctx context.Context, ev messaging.Event) error {
	raw := strings.TrimPrefix(ev.Data, "rem:")
	minutes, err := strconv.Atoi(raw)
	if err != nil || minutes <= 0 {
		return e.Messenger.AcknowledgeEvent(ctx, ev.EventID, "Bad reminder choice")
	}

	err = e.Reminders.ChoosePreset(ctx, ev.UserID, ev.ChatID, minutes)
	if errors.Is(err, conversation.ErrNoActiveFlow) {
		// Stale keyboard from an earlier flow.
		return e.Messenger.AcknowledgeEvent(ctx, ev.EventID, "That menu has expired, open Reminder again")
	}
	if err != nil {
		return err
	}
	if err := e.Messenger.AcknowledgeEvent(ctx, ev.EventID, ""); err != nil {
		e.Log.Warn().Err(err).Str("event_id", ev.EventID).Msg("callback ack failed")
	}
	return nil
}

func (e *Engine) handleStatusCallback(ctx context.Context, ev messaging.Event) error {
	parts := strings.SplitN(ev.Data, ":", 3)
	if len(parts) < 3 {
		return e.Messenger.AcknowledgeEvent(ctx, ev.EventID, "Bad request")
	}
	ticketID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return e.Messenger.AcknowledgeEvent(ctx, ev.EventID, "Bad ticket id")
	}

	err = e.Tickets.ChangeStatus(ctx, ev.UserID, ticketID, domain.Status(parts[2]))
	switch {
	case errors.Is(err, services.ErrUnauthorized):
		return e.Messenger.AcknowledgeEvent(ctx, ev.EventID, "Access denied")
	case errors.Is(err, services.ErrInvalidStatus):
		return e.Messenger.AcknowledgeEvent(ctx, ev.EventID, "Unknown status")
	case errors.Is(err, services.ErrTicketNotFound):
		return e.Messenger.AcknowledgeEvent(ctx, ev.EventID, "Ticket not found")
	case err != nil:
		_ = e.Messenger.AcknowledgeEvent(ctx, ev.EventID, "Storage error")
		return err
	}

	if err := e.Messenger.AcknowledgeEvent(ctx, ev.EventID, ""); err != nil {
		e.Log.Warn().Err(err).Str("event_id", ev.EventID).Msg("callback ack failed")
	}
	// Retire the pressed keyboard; failing to is cosmetic.
	if ev.MessageID != "" {
		if err := e.Messenger.EditMessageKeyboard(ctx, ev.ChatID, ev.MessageID, nil); err != nil {
			e.Log.Debug().Err(err).Str("message_id", ev.MessageID).Msg("keyboard cleanup failed")
		}
	}
	return nil
}

func (e *Engine) handleCancelCallback(ctx context.Context, ev messaging.Event) error {
	raw := strings.TrimPrefix(ev.Data, dataCancelPrefix)
	ticketID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return e.Messenger.AcknowledgeEvent(ctx, ev.EventID, "Bad ticket id")
	}

	err = e.Tickets.CancelOwn(ctx, ev.UserID, ticketID)
	if errors.Is(err, services.ErrTicketNotFound) {
		return e.Messenger.AcknowledgeEvent(ctx, ev.EventID, "Ticket not found or already cancelled")
	}
	if err != nil {
		_ = e.Messenger.AcknowledgeEvent(ctx, ev.EventID, "Storage error")
		return err
	}

	if err := e.Messenger.AcknowledgeEvent(ctx, ev.EventID, "Ticket cancelled"); err != nil {
		e.Log.Warn().Err(err).Str("event_id", ev.EventID).Msg("callback ack failed")
	}
	if ev.MessageID != "" {
		if err := e.Messenger.EditMessageKeyboard(ctx, ev.ChatID, ev.MessageID, nil); err != nil {
			e.Log.Debug().Err(err).Str("message_id", ev.MessageID).Msg("keyboard cleanup failed")
		}
	}
	return nil
}

func (e *Engine) handlePageCallback(ctx context.Context, ev messaging.Event) error {
	parts := strings.SplitN(ev.Data, ":", 3)
	if len(parts) < 3 {
		return e.Messenger.AcknowledgeEvent(ctx, ev.EventID, "Bad request")
	}
	page, err := strconv.Atoi(parts[1])
	if err != nil || page < 0 {
		return e.Messenger.AcknowledgeEvent(ctx, ev.EventID, "Bad page")
	}
	if err := e.Messenger.AcknowledgeEvent(ctx, ev.EventID, ""); err != nil {
		e.Log.Warn().Err(err).Str("event_id", ev.EventID).Msg("callback ack failed")
	}

	if parts[2] == "admin" {
		return e.renderAllTickets(ctx, ev.UserID, ev.ChatID, page)
	}
	return e.renderMyTickets(ctx, ev.UserID, ev.ChatID, page)
}

func (e *Engine) handleRatesMenu(ctx context.Context, ev messaging.Event) error {
	if e.Rates == nil || len(e.Cities) == 0 {
		return e.Messenger.SendText(ctx, ev.ChatID, "Exchange rates are not available right now.", nil)
	}

	kb := messaging.Keyboard{}
	row := make([]messaging.Choice, 0, 2)
	for _, city := range e.Cities {
		row = append(row, messaging.Choice{Label: city, Data: dataCityPrefix + city})
		if len(row) == 2 {
			kb.Row(row...)
			row = row[:0:0]
		}
	}
	if len(row) > 0 {
		kb.Row(row...)
	}
	return e.Messenger.SendChoiceKeyboard(ctx, ev.ChatID, "Pick a city:", kb)
}

func (e *Engine) handleCityCallback(ctx context.Context, ev messaging.Event) error {
	city := strings.TrimPrefix(ev.Data, dataCityPrefix)
	if err := e.Messenger.AcknowledgeEvent(ctx, ev.EventID, "Fetching rates for "+city); err != nil {
		e.Log.Warn().Err(err).Str("event_id", ev.EventID).Msg("callback ack failed")
	}
	if e.Rates == nil {
		return e.Messenger.SendText(ctx, ev.ChatID, "Exchange rates are not available right now.", nil)
	}

	r, err := e.Rates.Fetch(ctx, city)
	if err != nil {
		e.Log.Warn().Err(err).Str("city", city).Msg("rate fetch failed")
		return e.Messenger.SendText(ctx, ev.ChatID, "Could not fetch rates, please try later.", nil)
	}
	return e.Messenger.SendText(ctx, ev.ChatID, r.Format(city), nil)
}

func (e *Engine) handleTime(ctx context.Context, ev messaging.Event) error {
	now := time.Now().In(e.Location)
	return e.Messenger.SendText(ctx, ev.ChatID,
		fmt.Sprintf("Current time (%s): %s", e.Location, now.Format("15:04:05")), nil)
}

func (e *Engine) handleAbout(ctx context.Context, ev messaging.Event) error {
	return e.Messenger.SendText(ctx, ev.ChatID,
		"I track service requests: create tickets, follow their status, and set reminders.", nil)
}

func (e *Engine) handleLocation(ctx context.Context, ev messaging.Event) error {
	if ev.Location == nil {
		return e.Messenger.SendText(ctx, ev.ChatID, "Please share your location via the location button.", nil)
	}
	return e.Messenger.SendText(ctx, ev.ChatID,
		fmt.Sprintf("Your location:\nLatitude: %v\nLongitude: %v", ev.Location.Latitude, ev.Location.Longitude), nil)
}

func (e *Engine) handleFallback(ctx context.Context, ev messaging.Event) error {
	registered, err := e.Tickets.IsRegistered(ctx, ev.UserID)
	if err != nil {
		return err
	}
	if !registered {
		return e.Messenger.SendText(ctx, ev.ChatID, "You need to register first. Tap the button below.", &messaging.SendOptions{
			Keyboard: registerKeyboard(),
		})
	}
	return e.Messenger.SendText(ctx, ev.ChatID, "I did not understand that. Pick an option from the menu.", &messaging.SendOptions{
		Keyboard: e.mainMenu(ev.UserID),
	})
}
