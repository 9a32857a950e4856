package charge

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rfay/uc-stripe/services/checkout-service/internal/order"
)

// TxnType says what to do with the card.
type TxnType string

const (
	AuthOnly         TxnType = "AUTH_ONLY"          // reserve funds
	AuthCapture      TxnType = "AUTH_CAPTURE"       // reserve and collect
	PriorAuthCapture TxnType = "PRIOR_AUTH_CAPTURE" // collect an earlier AUTH_ONLY
)

func ParseTxnType(s string) (TxnType, error) {
	switch t := TxnType(s); t {
	case AuthOnly, AuthCapture, PriorAuthCapture:
		return t, nil
	}
	return "", fmt.Errorf("%w: unknown transaction type %q", ErrInvalidRequest, s)
}

// Request is one charge invocation. The acting account is whoever performs the
// checkout; it differs from Order.OwnerID when staff charge on a customer's
// behalf.
type Request struct {
	Order           order.Order
	Amount          decimal.Decimal
	TxnType         TxnType
	ActingAccountID uuid.UUID
	SessionID       string // token store slot holding the card token
	PriorReference  string // charge id of the authorization to capture
}

// flightKey identifies duplicate submissions of one checkout. Another session
// or acting account is a separate attempt.
func (r Request) flightKey() string {
	return fmt.Sprintf("charge_%s_%s_%s_%s_%s_%s",
		r.Order.ID, r.SessionID, r.ActingAccountID, r.TxnType, r.Amount.String(), r.PriorReference)
}
