package enums

import "fmt"

// FailureKind classifies why a checkout reached the failed state.
type FailureKind string

const (
	FailureKindPaymentCancelled FailureKind = "payment_cancelled"
	FailureKindPaymentError     FailureKind = "payment_error"
	FailureKindSDKTimeout       FailureKind = "sdk_timeout"
	FailureKindCaptureFailed    FailureKind = "capture_failed"
	FailureKindOrderSaveFailed  FailureKind = "order_save_failed"
)

var validFailureKinds = []FailureKind{
	FailureKindPaymentCancelled,
	FailureKindPaymentError,
	FailureKindSDKTimeout,
	FailureKindCaptureFailed,
	FailureKindOrderSaveFailed,
}

// String implements fmt.Stringer.
func (v FailureKind) String() string {
	return string(v)
}

// IsValid reports whether the value is a known FailureKind.
func (v FailureKind) IsValid() bool {
	for _, candidate := range validFailureKinds {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseFailureKind converts raw input into a FailureKind.
func ParseFailureKind(value string) (FailureKind, error) {
	for _, candidate := range validFailureKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid failure kind %q", value)
}
