// Package events carries user lifecycle notifications (register, update, login)
// out of the request path. Delivery is best effort: publishers log and return
// errors, callers never fail a request because of them.
package events

import (
	"context"
	"time"

	"github.com/ovaphlow/pitchfork/service-trader-go/pkg/utilities"
)

const (
	TypeUserRegistered = "user.registered"
	TypeUserUpdated    = "user.updated"
	TypeUserLoggedIn   = "user.logged_in"
)

// Event is the JSON payload published for each lifecycle change.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	UserID     string    `json:"user_id"`
	Email      string    `json:"email"`
	OccurredAt time.Time `json:"occurred_at"`
}

// New stamps an event with a KSUID and the current UTC time.
func New(typ, userID, email string) Event {
	return Event{
		ID:         utilities.NewKSUID(),
		Type:       typ,
		UserID:     userID,
		Email:      email,
		OccurredAt: time.Now().UTC(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
