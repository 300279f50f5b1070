package enums

import "fmt"

// RecoveryKind labels entries in the local recovery log.
type RecoveryKind string

const (
	RecoveryKindOrderSaveFailed RecoveryKind = "order_save_failed"
	RecoveryKindCaptureFailed   RecoveryKind = "capture_failed"
)

var validRecoveryKinds = []RecoveryKind{
	RecoveryKindOrderSaveFailed,
	RecoveryKindCaptureFailed,
}

// String implements fmt.Stringer.
func (v RecoveryKind) String() string {
	return string(v)
}

// IsValid reports whether the value is a known RecoveryKind.
func (v RecoveryKind) IsValid() bool {
	for _, candidate := range validRecoveryKinds {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseRecoveryKind converts raw input into a RecoveryKind.
func ParseRecoveryKind(value string) (RecoveryKind, error) {
	for _, candidate := range validRecoveryKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid recovery kind %q", value)
}
