package validation

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	maxJobNameLength = 200
	maxTagLength     = 100
)

var (
	phoneNumberPattern = regexp.MustCompile(`^\+?[1-9][0-9]{6,14}$`)
	channelIDPattern   = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)
)

// ValidatePhoneNumber checks the number is plausible E.164: an
// optional +, then 7 to 15 digits with no leading zero.
func ValidatePhoneNumber(phone string) error {
	if phone == "" {
		return fmt.Errorf("phone number cannot be empty")
	}
	if !phoneNumberPattern.MatchString(phone) {
		return fmt.Errorf("invalid phone number format")
	}
	return nil
}

// ValidateChannelID checks a provider channel identifier
func ValidateChannelID(channelID string) error {
	if channelID == "" {
		return fmt.Errorf("channel id cannot be empty")
	}
	if !channelIDPattern.MatchString(channelID) {
		return fmt.Errorf("invalid channel id format")
	}
	return nil
}

// ValidateJobName checks a dispatch job name
func ValidateJobName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return fmt.Errorf("job name cannot be empty")
	}
	if len(trimmed) > maxJobNameLength {
		return fmt.Errorf("job name exceeds %d characters", maxJobNameLength)
	}
	return nil
}

// ValidateAudienceTag checks an audience filter tag. An empty tag is
// valid and selects the whole contact list.
func ValidateAudienceTag(tag string) error {
	if len(tag) > maxTagLength {
		return fmt.Errorf("audience tag exceeds %d characters", maxTagLength)
	}
	return nil
}
