// services/checkout-service/internal/ledger/models.ledger.go

package ledger

import (
	"time"

	"github.com/google/uuid"
)

// Channel decides who can read a comment.
type Channel string

const (
	// ChannelCustomer comments are shown on the customer's order page.
	ChannelCustomer Channel = "customer"
	// ChannelAdmin comments are only visible to store staff. Raw processor
	// errors go here and nowhere else.
	ChannelAdmin Channel = "admin"
)

func (c Channel) Valid() bool {
	return c == ChannelCustomer || c == ChannelAdmin
}

// Comment is one entry in an order's audit trail.
type Comment struct {
	ID        uuid.UUID `json:"id"`
	OrderID   uuid.UUID `json:"order_id"`
	AccountID uuid.UUID `json:"account_id"` // author, the acting account
	Text      string    `json:"text"`
	Channel   Channel   `json:"channel"`
	CreatedAt time.Time `json:"created_at"`
}
