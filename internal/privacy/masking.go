package privacy

import (
	"strings"
)

// MaskPhoneNumber masks a phone number showing only the last 4 digits.
// Example: "+33612345678" -> "+*******5678"
func MaskPhoneNumber(phone string) string {
	if phone == "" {
		return ""
	}

	prefix := ""
	digits := phone
	if strings.HasPrefix(phone, "+") {
		prefix = "+"
		digits = phone[1:]
	}

	if len(digits) <= 4 {
		return prefix + strings.Repeat("*", len(digits))
	}
	return prefix + strings.Repeat("*", len(digits)-4) + digits[len(digits)-4:]
}

// MaskMessageID keeps enough of a provider message ID to correlate
// log lines without exposing the full identifier.
func MaskMessageID(messageID string) string {
	if len(messageID) <= 8 {
		return messageID
	}
	return messageID[:4] + "..." + messageID[len(messageID)-4:]
}
