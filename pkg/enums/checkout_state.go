package enums

import "fmt"

// CheckoutState tracks where a checkout sits in the payment-first flow.
type CheckoutState string

const (
	CheckoutStateIdle                  CheckoutState = "idle"
	CheckoutStateAwaitingPayment       CheckoutState = "awaiting_payment"
	CheckoutStatePaymentCaptured       CheckoutState = "payment_captured"
	CheckoutStateAwaitingMissingFields CheckoutState = "awaiting_missing_fields"
	CheckoutStatePersisting            CheckoutState = "persisting"
	CheckoutStateCompleted             CheckoutState = "completed"
	CheckoutStateFailed                CheckoutState = "failed"
)

var validCheckoutStates = []CheckoutState{
	CheckoutStateIdle,
	CheckoutStateAwaitingPayment,
	CheckoutStatePaymentCaptured,
	CheckoutStateAwaitingMissingFields,
	CheckoutStatePersisting,
	CheckoutStateCompleted,
	CheckoutStateFailed,
}

// String implements fmt.Stringer.
func (v CheckoutState) String() string {
	return string(v)
}

// IsValid reports whether the value is a known CheckoutState.
func (v CheckoutState) IsValid() bool {
	for _, candidate := range validCheckoutStates {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseCheckoutState converts raw input into a CheckoutState.
func ParseCheckoutState(value string) (CheckoutState, error) {
	for _, candidate := range validCheckoutStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid checkout state %q", value)
}

// IsTerminal reports whether no further dispatch can move the checkout.
func (v CheckoutState) IsTerminal() bool {
	return v == CheckoutStateCompleted || v == CheckoutStateFailed
}

// IsPostCapture reports whether funds have already moved for the checkout.
func (v CheckoutState) IsPostCapture() bool {
	switch v {
	case CheckoutStatePaymentCaptured,
		CheckoutStateAwaitingMissingFields,
		CheckoutStatePersisting,
		CheckoutStateCompleted:
		return true
	default:
		return false
	}
}
