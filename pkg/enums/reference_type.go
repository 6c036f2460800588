package enums

import "fmt"

// ReferenceType names the external correlation key a wallet transaction points at.
// Together with the reference id and partner id it forms the idempotency key.
type ReferenceType string

const (
	ReferenceTypeRazorpayOrder   ReferenceType = "razorpay_order"
	ReferenceTypeRazorpayPayment ReferenceType = "razorpay_payment"
	ReferenceTypeOrderAdvance    ReferenceType = "order_advance"
	ReferenceTypeManualAdjust    ReferenceType = "manual_adjustment"
)

var validReferenceTypes = []ReferenceType{
	ReferenceTypeRazorpayOrder,
	ReferenceTypeRazorpayPayment,
	ReferenceTypeOrderAdvance,
	ReferenceTypeManualAdjust,
}

// String implements fmt.Stringer.
func (r ReferenceType) String() string {
	return string(r)
}

// IsValid reports whether the value is a known ReferenceType.
func (r ReferenceType) IsValid() bool {
	for _, candidate := range validReferenceTypes {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseReferenceType converts raw input into a ReferenceType.
func ParseReferenceType(value string) (ReferenceType, error) {
	for _, candidate := range validReferenceTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid reference type %q", value)
}
