// Package domain defines the persistence models for users and tickets.
// These types are mapped with GORM and form the core data layer of the
// support-bot application.
package domain

import "time"

// Status is the lifecycle state of a ticket.
type Status string

// Ticket statuses. Any status may follow any other: operators are allowed
// to re-open or re-cancel a ticket at will.
const (
	StatusNew        Status = "new"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusCancelled  Status = "cancelled"
)

// Valid reports whether s is one of the four known ticket statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusInProgress, StatusDone, StatusCancelled:
		return true
	}
	return false
}

// Display returns the human-readable label used in chat listings.
func (s Status) Display() string {
	switch s {
	case StatusNew:
		return "New"
	case StatusInProgress:
		return "In progress"
	case StatusDone:
		return "Done"
	case StatusCancelled:
		return "Cancelled"
	}
	return string(s)
}

// User represents a registered end user, keyed by the numeric identity the
// chat transport assigns. Registration is an idempotent upsert: sending the
// contact again simply replaces the stored attributes.
//
// Fields:
//   - ID: transport-assigned numeric identifier (primary key, never reused).
//   - FirstName / LastName: contact name; LastName may be empty.
//   - Phone: contact phone number.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
type User struct {
	ID        int64     `json:"id"         gorm:"primaryKey;autoIncrement:false"`
	FirstName string    `json:"first_name" gorm:"type:varchar(128);not null"`
	LastName  string    `json:"last_name"  gorm:"type:varchar(128)"`
	Phone     string    `json:"phone"      gorm:"type:varchar(32);not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Ticket represents a single service request submitted by a user.
//
// Fields:
//   - ID: monotonically increasing integer assigned by the store.
//   - OwnerID: identifier of the submitting user; indexed for listings.
//   - Text: free-form request body.
//   - Status: one of the Status constants; new tickets start as StatusNew.
//   - CreatedAt: creation timestamp; listings order by it descending.
//
// A ticket cancelled by its owner is physically deleted, while a ticket an
// operator marks StatusCancelled keeps its row and is merely filtered from
// default listings. The two representations of "cancelled" are deliberately
// different; see CancelOwn in the services package.
type Ticket struct {
	ID        int64     `json:"id"         gorm:"primaryKey;autoIncrement"`
	OwnerID   int64     `json:"owner_id"   gorm:"not null;index:idx_owner_tickets"`
	Text      string    `json:"text"       gorm:"type:text;not null"`
	Status    Status    `json:"status"     gorm:"type:varchar(16);not null;default:'new'"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
}

// TableName returns the database table name for Ticket.
func (Ticket) TableName() string { return "tickets" }
