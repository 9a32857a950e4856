package charge

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Reason is the machine-readable result of a charge.
type Reason string

const (
	ReasonOK                    Reason = "OK"
	ReasonConfigurationError    Reason = "ConfigurationError"
	ReasonMissingTokenError     Reason = "MissingTokenError"
	ReasonCustomerCreationError Reason = "CustomerCreationError"
	ReasonDeclinedError         Reason = "DeclinedError"
	ReasonProcessorError        Reason = "ProcessorError"
	ReasonConflictError         Reason = "ConflictError"
	ReasonInvalidAmount         Reason = "InvalidAmount"
	ReasonInvalidRequest        Reason = "InvalidRequest"
	ReasonStorageError          Reason = "StorageError"
)

// Sentinel errors, one per failure reason, for callers that prefer errors.Is
// over switching on Reason.
var (
	ErrConfiguration    = errors.New("payment gateway is not configured")
	ErrMissingToken     = errors.New("no card token for this checkout")
	ErrCustomerCreation = errors.New("could not create processor customer")
	ErrDeclined         = errors.New("card declined")
	ErrProcessor        = errors.New("payment processor error")
	ErrConflict         = errors.New("customer mapping conflict")
	ErrInvalidAmount    = errors.New("invalid charge amount")
	ErrInvalidRequest   = errors.New("invalid charge request")
	ErrStorage          = errors.New("checkout storage error")
)

var reasonErrors = map[Reason]error{
	ReasonConfigurationError:    ErrConfiguration,
	ReasonMissingTokenError:     ErrMissingToken,
	ReasonCustomerCreationError: ErrCustomerCreation,
	ReasonDeclinedError:         ErrDeclined,
	ReasonProcessorError:        ErrProcessor,
	ReasonConflictError:         ErrConflict,
	ReasonInvalidAmount:         ErrInvalidAmount,
	ReasonInvalidRequest:        ErrInvalidRequest,
	ReasonStorageError:          ErrStorage,
}

// Outcome is the single result of a Charge call. Every field that applies is
// set on every path.
type Outcome struct {
	Success     bool      `json:"success"`
	Reason      Reason    `json:"reason"`
	Code        string    `json:"code,omitempty"`    // processor error code, when there is one
	Message     string    `json:"message"`           // safe to show the customer
	Comment     string    `json:"comment,omitempty"` // text written to the order ledger
	OrderID     uuid.UUID `json:"order_id"`
	AccountID   uuid.UUID `json:"account_id"` // acting account
	Reference   string    `json:"reference,omitempty"`
	AmountMinor int64     `json:"amount_minor"`
	Currency    string    `json:"currency,omitempty"`
}

// Err returns nil for a successful outcome and an *Error otherwise.
func (o Outcome) Err() error {
	if o.Success {
		return nil
	}
	return &Error{Reason: o.Reason, Code: o.Code, Message: o.Comment}
}

// Error is the error form of a failed Outcome. It unwraps to the sentinel of
// its Reason.
type Error struct {
	Reason  Reason
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s [%s]: %s", e.Reason, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

func (e *Error) Unwrap() error {
	if err, ok := reasonErrors[e.Reason]; ok {
		return err
	}
	return ErrProcessor
}
