package messaging

// Kind discriminates the inbound event variants the engine routes.
type Kind string

// Inbound event kinds.
const (
	// KindMessage is a plain text message (commands, menu buttons, and
	// free-form flow input all arrive as this kind).
	KindMessage Kind = "message"
	// KindCallback is a press on an inline keyboard choice.
	KindCallback Kind = "callback"
	// KindContact is a shared contact card (used by registration).
	KindContact Kind = "contact"
	// KindLocation is a shared geographic location.
	KindLocation Kind = "location"
)

// Contact is the payload of a KindContact event.
type Contact struct {
	FirstName string
	LastName  string
	Phone     string
}

// Location is the payload of a KindLocation event.
type Location struct {
	Latitude  float64
	Longitude float64
}

// Event is one inbound delivery from the transport. Exactly one of the
// kind-specific payload fields is meaningful, selected by Kind.
type Event struct {
	Kind Kind

	// UserID identifies the originating user; ChatID the chat to reply to.
	// In direct conversations the two coincide, but the engine never
	// assumes so.
	UserID int64
	ChatID int64

	// EventID is the transport's id for this delivery. For callbacks it is
	// the handle passed to Messenger.AcknowledgeEvent.
	EventID string

	// MessageID is the id of the message the event originated from. For
	// callbacks it identifies the message whose keyboard was pressed.
	MessageID string

	// Text is the message body for KindMessage.
	Text string

	// Data is the opaque callback payload for KindCallback.
	Data string

	Contact  *Contact
	Location *Location
}
