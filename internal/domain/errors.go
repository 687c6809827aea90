/**
 * @description
 * User-facing error kinds and their friendly strings. Adapter-layer errors are
 * converted to these kinds at the tool-implementation boundary; none of the
 * friendly strings leak provider response bodies.
 */

package domain

// ErrorKind is the stable machine-readable error identifier surfaced to users
// and to the assistant platform.
type ErrorKind string

const (
	ErrKindInsufficientFunds    ErrorKind = "insufficient-funds"
	ErrKindUnsupportedBank      ErrorKind = "unsupported-bank"
	ErrKindAccountNotFound      ErrorKind = "account-not-found"
	ErrKindPINIncorrect         ErrorKind = "pin-incorrect"
	ErrKindPINLocked            ErrorKind = "pin-locked"
	ErrKindTransferLimit        ErrorKind = "transfer-limit-exceeded"
	ErrKindProviderUnavailable  ErrorKind = "provider-unavailable"
	ErrKindInternal             ErrorKind = "internal-error"
)

var friendlyMessages = map[ErrorKind]string{
	ErrKindInsufficientFunds:   "You don't have enough funds for this transaction.",
	ErrKindUnsupportedBank:     "I couldn't recognise that bank. Please check the bank name and try again.",
	ErrKindAccountNotFound:     "That account number could not be found at the selected bank.",
	ErrKindPINIncorrect:        "That PIN is incorrect.",
	ErrKindPINLocked:           "Your PIN is temporarily locked after repeated failed attempts. Please try again in a few minutes.",
	ErrKindTransferLimit:       "This transfer is outside your allowed limits.",
	ErrKindProviderUnavailable: "Our payment partner is temporarily unavailable. Please try again shortly.",
	ErrKindInternal:            "Something went wrong on our side. Please try again.",
}

// Friendly returns the short user-facing string for the kind.
func (k ErrorKind) Friendly() string {
	if msg, ok := friendlyMessages[k]; ok {
		return msg
	}
	return friendlyMessages[ErrKindInternal]
}

// ToolError is the structured failure shape returned by tool implementations.
// The assistant platform surfaces Message to the user.
type ToolError struct {
	Kind    ErrorKind `json:"error"`
	Message string    `json:"message"`
}

func (e *ToolError) Error() string { return string(e.Kind) + ": " + e.Message }

// NewToolError builds a ToolError with the kind's friendly message.
func NewToolError(kind ErrorKind) *ToolError {
	return &ToolError{Kind: kind, Message: kind.Friendly()}
}
