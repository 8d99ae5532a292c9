// Package messaging defines the contract between the conversation engine
// and the chat transport. The engine never touches transport-specific
// encodings: it emits side effects through the Messenger interface and
// consumes inbound deliveries as Event values. A transport adapter (e.g.
// a bot-API poller) implements Messenger and feeds events to the engine's
// Handle entry point.
package messaging

import "context"

// Choice is a single pressable option on an inline keyboard. Label is what
// the user sees; Data is the opaque callback payload delivered back to the
// engine when the choice is pressed.
type Choice struct {
	Label string
	Data  string
}

// Keyboard is a grid of choices attached to a message.
type Keyboard struct {
	Rows [][]Choice
}

// Row appends a row of choices and returns the keyboard for chaining.
func (k *Keyboard) Row(choices ...Choice) *Keyboard {
	k.Rows = append(k.Rows, choices)
	return k
}

// SendOptions carries optional attributes for a plain text send.
type SendOptions struct {
	// Keyboard, when non-nil, is attached to the outgoing message.
	Keyboard *Keyboard
}

// Messenger is the outbound side of the transport collaborator.
//
// Implementations are expected to be safe for concurrent use: the engine
// fans out notifications to several recipients from one handler, and the
// reminder scheduler delivers from its own goroutines.
type Messenger interface {
	// SendText delivers a text message to chatID. opts may be nil.
	SendText(ctx context.Context, chatID int64, text string, opts *SendOptions) error

	// SendChoiceKeyboard delivers a text message with an inline keyboard.
	SendChoiceKeyboard(ctx context.Context, chatID int64, text string, kb Keyboard) error

	// EditMessageKeyboard replaces the inline keyboard of an already
	// delivered message. A nil keyboard clears it.
	EditMessageKeyboard(ctx context.Context, chatID int64, messageID string, kb *Keyboard) error

	// AcknowledgeEvent confirms receipt of a callback event so the client
	// stops showing a progress indicator. alertText, when non-empty, is
	// surfaced to the user as a notice.
	AcknowledgeEvent(ctx context.Context, eventID string, alertText string) error
}
