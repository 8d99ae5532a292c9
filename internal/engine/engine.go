// Package engine – dispatch router.
//
// The engine exposes one integration surface, Handle, which a transport
// adapter calls for every inbound event. Routing priority is load-bearing
// and fixed:
//
//  1. a step-bound handler, when the user's active conversation step
//     declares a trigger matching the event (free text mid-flow is flow
//     input, never a menu command);
//  2. a fixed command or callback match;
//  3. the fallback reply.
//
// Events from the same user are processed strictly one at a time in
// arrival order (per-user mutex); events from different users run
// concurrently.
package engine

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-support-bot/internal/config"
	"github.com/tbourn/go-support-bot/internal/conversation"
	"github.com/tbourn/go-support-bot/internal/messaging"
	"github.com/tbourn/go-support-bot/internal/rates"
	"github.com/tbourn/go-support-bot/internal/services"
)

// Menu button labels and commands. Reply-keyboard presses arrive as plain
// text messages carrying the label.
const (
	cmdStart        = "/start"
	btnRegister     = "Register"
	btnCreateTicket = "Create ticket"
	btnMyTickets    = "My tickets"
	btnAllTickets   = "All tickets"
	btnReminder     = "Reminder"
	btnRates        = "Exchange rates"
	btnTime         = "Time"
	btnAbout        = "About"
)

// Callback data prefixes.
const (
	dataStatusPrefix = "status:" // status:<ticketID>:<status>
	dataCancelPrefix = "cancel:" // cancel:<ticketID>
	dataPagePrefix   = "page:"   // page:<index>:<user|admin>
	dataCityPrefix   = "city:"   // city:<name>
)

// RatesFetcher is the outbound currency-rate collaborator.
type RatesFetcher interface {
	Fetch(ctx context.Context, city string) (*rates.Rates, error)
}

// Engine routes inbound events to the ticket and reminder services and
// renders the menu-level features around them.
type Engine struct {
	Tickets   *services.TicketService
	Reminders *services.ReminderService
	// Rates may be nil when no rate provider is configured; the feature
	// then reports itself unavailable.
	Rates     RatesFetcher
	Messenger messaging.Messenger
	States    *conversation.Tracker

	PageSize int
	Cities   []string
	Location *time.Location
	Log      zerolog.Logger

	locks   *conversation.KeyedMutex
	limiter *UserLimiter
}

// New constructs an Engine wired to the given collaborators. loc is the
// timezone of the time command; a nil loc falls back to UTC.
func New(tickets *services.TicketService, reminders *services.ReminderService, ratesFetcher RatesFetcher, m messaging.Messenger, states *conversation.Tracker, cfg config.Config, loc *time.Location, log zerolog.Logger) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{
		Tickets:   tickets,
		Reminders: reminders,
		Rates:     ratesFetcher,
		Messenger: m,
		States:    states,
		PageSize:  cfg.PageSize,
		Cities:    cfg.RatesCities,
		Location:  loc,
		Log:       log.With().Str("component", "engine").Logger(),
		locks:     conversation.NewKeyedMutex(),
		limiter:   NewUserLimiter(cfg.RateRPS, cfg.RateBurst),
	}
}

// Handle processes one inbound event to completion. It is the sole entry
// point a transport adapter calls and is safe for concurrent use; calls
// for the same user serialize on a per-user mutex so the conversation
// state is never read or written by two handlers at once.
func (e *Engine) Handle(ctx context.Context, ev messaging.Event) error {
	start := time.Now()

	unlock := e.locks.Lock(ev.UserID)
	defer unlock()

	if !e.limiter.Allow(ev.UserID) {
		observe(string(ev.Kind), "throttle", "throttled", start)
		e.Log.Debug().Int64("user_id", ev.UserID).Msg("event throttled")
		return nil
	}

	eventsInflight.Inc()
	defer eventsInflight.Dec()

	handler, err := e.route(ctx, ev)

	outcome := "ok"
	lg := e.Log.Info()
	if err != nil {
		outcome = "error"
		lg = e.Log.Warn().Err(err)
	}
	observe(string(ev.Kind), handler, outcome, start)
	lg.Str("kind", string(ev.Kind)).
		Str("handler", handler).
		Int64("user_id", ev.UserID).
		Dur("latency", time.Since(start)).
		Msg("event")
	return err
}

// route applies the dispatch priority and returns the routed handler's
// name together with its result.
func (e *Engine) route(ctx context.Context, ev messaging.Event) (string, error) {
	// 1) Step-bound handlers win over everything else.
	if ev.Kind == messaging.KindMessage {
		switch e.States.Step(ev.UserID) {
		case conversation.StepAwaitingTicketText:
			return "ticket_text", e.handleTicketText(ctx, ev)
		case conversation.StepAwaitingReminderCustom:
			return "reminder_custom", e.handleReminderCustom(ctx, ev)
		case conversation.StepAwaitingReminderText:
			return "reminder_text", e.handleReminderText(ctx, ev)
		}
	}

	// 2) Fixed command / callback / payload matches.
	switch ev.Kind {
	case messaging.KindContact:
		return "register_contact", e.handleContact(ctx, ev)
	case messaging.KindLocation:
		return "location", e.handleLocation(ctx, ev)
	case messaging.KindCallback:
		return e.routeCallback(ctx, ev)
	case messaging.KindMessage:
		switch strings.TrimSpace(ev.Text) {
		case cmdStart:
			return "start", e.handleStart(ctx, ev)
		case btnRegister:
			return "register_begin", e.handleRegisterBegin(ctx, ev)
		case btnCreateTicket:
			return "ticket_begin", e.handleTicketBegin(ctx, ev)
		case btnMyTickets:
			return "my_tickets", e.renderMyTickets(ctx, ev.UserID, ev.ChatID, 0)
		case btnAllTickets:
			return "all_tickets", e.renderAllTickets(ctx, ev.UserID, ev.ChatID, 0)
		case btnReminder:
			return "reminder_menu", e.Reminders.PresentChoices(ctx, ev.UserID, ev.ChatID)
		case btnRates:
			return "rates_menu", e.handleRatesMenu(ctx, ev)
		case btnTime:
			return "time", e.handleTime(ctx, ev)
		case btnAbout:
			return "about", e.handleAbout(ctx, ev)
		}
	}

	// 3) Fallback.
	return "fallback", e.handleFallback(ctx, ev)
}

// routeCallback matches inline-keyboard payloads by prefix.
func (e *Engine) routeCallback(ctx context.Context, ev messaging.Event) (string, error) {
	data := ev.Data
	switch {
	case strings.HasPrefix(data, dataStatusPrefix):
		return "status_change", e.handleStatusCallback(ctx, ev)
	case strings.HasPrefix(data, dataCancelPrefix):
		return "cancel_ticket", e.handleCancelCallback(ctx, ev)
	case strings.HasPrefix(data, dataPagePrefix):
		return "page_nav", e.handlePageCallback(ctx, ev)
	case strings.HasPrefix(data, dataCityPrefix):
		return "city_rates", e.handleCityCallback(ctx, ev)
	case data == services.CustomDelayData:
		return "reminder_custom_begin", e.Reminders.BeginCustom(ctx, ev.UserID, ev.ChatID)
	case strings.HasPrefix(data, "rem:"):
		return "reminder_preset", e.handlePresetCallback(ctx, ev)
	}
	// Unknown payload: acknowledge so the client stops spinning.
	return "callback_unknown", e.Messenger.AcknowledgeEvent(ctx, ev.EventID, "")
}
