package enums

import "fmt"

// CaptureStatus mirrors the provider-reported status of a payment capture.
type CaptureStatus string

const (
	CaptureStatusPending   CaptureStatus = "pending"
	CaptureStatusCompleted CaptureStatus = "completed"
	CaptureStatusFailed    CaptureStatus = "failed"
)

var validCaptureStatuss = []CaptureStatus{
	CaptureStatusPending,
	CaptureStatusCompleted,
	CaptureStatusFailed,
}

// String implements fmt.Stringer.
func (v CaptureStatus) String() string {
	return string(v)
}

// IsValid reports whether the value is a known CaptureStatus.
func (v CaptureStatus) IsValid() bool {
	for _, candidate := range validCaptureStatuss {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseCaptureStatus converts raw input into a CaptureStatus.
func ParseCaptureStatus(value string) (CaptureStatus, error) {
	for _, candidate := range validCaptureStatuss {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid capture status %q", value)
}
