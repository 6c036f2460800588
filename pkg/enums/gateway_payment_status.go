package enums

import "fmt"

// GatewayPaymentStatus is the normalized status of a gateway payment.
type GatewayPaymentStatus string

const (
	GatewayPaymentStatusCreated  GatewayPaymentStatus = "created"
	GatewayPaymentStatusCaptured GatewayPaymentStatus = "captured"
	GatewayPaymentStatusFailed   GatewayPaymentStatus = "failed"
)

var validGatewayPaymentStatuses = []GatewayPaymentStatus{
	GatewayPaymentStatusCreated,
	GatewayPaymentStatusCaptured,
	GatewayPaymentStatusFailed,
}

// String implements fmt.Stringer.
func (g GatewayPaymentStatus) String() string {
	return string(g)
}

// IsValid reports whether the value is a known GatewayPaymentStatus.
func (g GatewayPaymentStatus) IsValid() bool {
	for _, candidate := range validGatewayPaymentStatuses {
		if candidate == g {
			return true
		}
	}
	return false
}

// ParseGatewayPaymentStatus converts raw input into a GatewayPaymentStatus.
func ParseGatewayPaymentStatus(value string) (GatewayPaymentStatus, error) {
	for _, candidate := range validGatewayPaymentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid gateway payment status %q", value)
}
