// Package engine – paged ticket listings.
//
// Rendering is split from pagination: the pure windowing lives in
// utils.Paginate, and these functions only fetch and emit messages.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/tbourn/go-support-bot/internal/domain"
	"github.com/tbourn/go-support-bot/internal/messaging"
	"github.com/tbourn/go-support-bot/internal/services"
	"github.com/tbourn/go-support-bot/internal/utils"
)

// renderMyTickets sends one page of the caller's tickets, each with its
// own cancel control, followed by a navigation row when more pages exist.
func (e *Engine) renderMyTickets(ctx context.Context, userID, chatID int64, page int) error {
	items, err := e.Tickets.ListMine(ctx, userID)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return e.Messenger.SendText(ctx, chatID, "You have no tickets.", nil)
	}

	p := utils.Paginate(items, page, e.PageSize)
	for _, tk := range p.Items {
		kb := &messaging.Keyboard{}
		kb.Row(messaging.Choice{Label: "Cancel", Data: fmt.Sprintf("%s%d", dataCancelPrefix, tk.ID)})
		text := fmt.Sprintf("#%d: %s\nStatus: %s", tk.ID, tk.Text, tk.Status.Display())
		if err := e.Messenger.SendChoiceKeyboard(ctx, chatID, text, *kb); err != nil {
			return err
		}
	}
	return e.sendPageNav(ctx, chatID, p, "user")
}

// renderAllTickets sends one page of the operator view across all owners,
// each ticket with the three status controls.
func (e *Engine) renderAllTickets(ctx context.Context, userID, chatID int64, page int) error {
	items, err := e.Tickets.ListAll(ctx, userID)
	if errors.Is(err, services.ErrUnauthorized) {
		return e.Messenger.SendText(ctx, chatID, "Access denied.", nil)
	}
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return e.Messenger.SendText(ctx, chatID, "No tickets.", nil)
	}

	p := utils.Paginate(items, page, e.PageSize)
	for _, tk := range p.Items {
		text := fmt.Sprintf("#%d from user %d:\n%s\nStatus: %s", tk.ID, tk.OwnerID, tk.Text, tk.Status.Display())
		if err := e.Messenger.SendChoiceKeyboard(ctx, chatID, text, *services.StatusKeyboard(tk.ID)); err != nil {
			return err
		}
	}
	return e.sendPageNav(ctx, chatID, p, "admin")
}

// sendPageNav emits the prev/next row for multi-page listings. Single-page
// listings get no navigation message at all.
func (e *Engine) sendPageNav(ctx context.Context, chatID int64, p utils.Page[domain.Ticket], scope string) error {
	if !p.HasPrev && !p.HasNext {
		return nil
	}

	kb := messaging.Keyboard{}
	row := []messaging.Choice{}
	if p.HasPrev {
		row = append(row, messaging.Choice{
			Label: "Prev",
			Data:  fmt.Sprintf("%s%d:%s", dataPagePrefix, p.Index-1, scope),
		})
	}
	if p.HasNext {
		row = append(row, messaging.Choice{
			Label: "Next",
			Data:  fmt.Sprintf("%s%d:%s", dataPagePrefix, p.Index+1, scope),
		})
	}
	kb.Row(row...)

	title := fmt.Sprintf("Page %d of %d", p.Index+1, p.TotalPages)
	return e.Messenger.SendChoiceKeyboard(ctx, chatID, title, kb)
}
