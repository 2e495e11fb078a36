package stripe

import (
	"math"
	"strings"
)

// NormalizeIntentStatus maps a PaymentIntent status onto the payment vocabulary
// (pending, completed, failed).
func NormalizeIntentStatus(s string) string {
	switch strings.TrimSpace(s) {
	case "succeeded":
		return "completed"
	case "canceled":
		return "failed"
	default:
		return "pending"
	}
}

func IsPaid(s string) bool {
	return NormalizeIntentStatus(s) == "completed"
}

// ToMinorUnits converts a BRL decimal to centavos. Call it only at the API edge.
func ToMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
