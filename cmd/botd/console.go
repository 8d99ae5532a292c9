package main

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-support-bot/internal/messaging"
)

// consoleMessenger is the local transport adapter: outbound messages are
// written to the process log. It stands in for a chat platform client and
// is what makes the binary runnable without platform credentials.
type consoleMessenger struct {
	log zerolog.Logger
}

func (m consoleMessenger) SendText(_ context.Context, chatID int64, text string, opts *messaging.SendOptions) error {
	ev := m.log.Info().Int64("chat_id", chatID).Str("text", text)
	if opts != nil && opts.Keyboard != nil {
		ev = ev.Str("keyboard", renderKeyboard(*opts.Keyboard))
	}
	ev.Msg("outbound text")
	return nil
}

func (m consoleMessenger) SendChoiceKeyboard(_ context.Context, chatID int64, text string, kb messaging.Keyboard) error {
	m.log.Info().
		Int64("chat_id", chatID).
		Str("text", text).
		Str("keyboard", renderKeyboard(kb)).
		Msg("outbound keyboard")
	return nil
}

func (m consoleMessenger) EditMessageKeyboard(_ context.Context, chatID int64, messageID string, kb *messaging.Keyboard) error {
	ev := m.log.Info().Int64("chat_id", chatID).Str("message_id", messageID)
	if kb == nil {
		ev.Msg("keyboard cleared")
	} else {
		ev.Str("keyboard", renderKeyboard(*kb)).Msg("keyboard replaced")
	}
	return nil
}

func (m consoleMessenger) AcknowledgeEvent(_ context.Context, eventID, alert string) error {
	m.log.Info().Str("event_id", eventID).Str("alert", alert).Msg("callback acknowledged")
	return nil
}

func renderKeyboard(kb messaging.Keyboard) string {
	rows := make([][]string, 0, len(kb.Rows))
	for _, row := range kb.Rows {
		labels := make([]string, 0, len(row))
		for _, c := range row {
			labels = append(labels, c.Label)
		}
		rows = append(rows, labels)
	}
	b, _ := json.Marshal(rows)
	return string(b)
}

// EventHandler is the engine surface the console loop drives.
type EventHandler interface {
	Handle(ctx context.Context, ev messaging.Event) error
}

// runConsole reads events from r until EOF and feeds them to the handler.
//
// Line formats:
//
//	<userID> <text>               message event
//	/cb <userID> <data>           callback event
//	/contact <userID> <first> <last> <phone>
//	/loc <userID> <lat> <lon>
func runConsole(ctx context.Context, r io.Reader, h EventHandler, log zerolog.Logger) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		ev, ok := parseConsoleLine(sc.Text())
		if !ok {
			log.Warn().Str("line", sc.Text()).Msg("unparseable console input")
			continue
		}
		if err := h.Handle(ctx, ev); err != nil {
			log.Warn().Err(err).Msg("event failed")
		}
	}
	if err := sc.Err(); err != nil {
		log.Warn().Err(err).Msg("console input closed")
	}
}

func parseConsoleLine(line string) (messaging.Event, bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return messaging.Event{}, false
	}

	switch fields[0] {
	case "/cb":
		if len(fields) < 3 {
			return messaging.Event{}, false
		}
		uid, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return messaging.Event{}, false
		}
		return messaging.Event{
			Kind:    messaging.KindCallback,
			UserID:  uid,
			ChatID:  uid,
			EventID: "console",
			Data:    fields[2],
		}, true

	case "/contact":
		if len(fields) < 5 {
			return messaging.Event{}, false
		}
		uid, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return messaging.Event{}, false
		}
		return messaging.Event{
			Kind:   messaging.KindContact,
			UserID: uid,
			ChatID: uid,
			Contact: &messaging.Contact{
				FirstName: fields[2],
				LastName:  fields[3],
				Phone:     fields[4],
			},
		}, true

	case "/loc":
		if len(fields) < 4 {
			return messaging.Event{}, false
		}
		uid, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return messaging.Event{}, false
		}
		lat, err1 := strconv.ParseFloat(fields[2], 64)
		lon, err2 := strconv.ParseFloat(fields[3], 64)
		if err1 != nil || err2 != nil {
			return messaging.Event{}, false
		}
		return messaging.Event{
			Kind:     messaging.KindLocation,
			UserID:   uid,
			ChatID:   uid,
			Location: &messaging.Location{Latitude: lat, Longitude: lon},
		}, true

	default:
		uid, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			return messaging.Event{}, false
		}
		return messaging.Event{
			Kind:   messaging.KindMessage,
			UserID: uid,
			ChatID: uid,
			Text:   strings.TrimSpace(strings.TrimPrefix(line, fields[0])),
		}, true
	}
}
