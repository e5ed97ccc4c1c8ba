// Package messaging delivers assistant messages over pluggable channels.
package messaging

import (
	"context"
	"fmt"
	"regexp"
)

// Service is the message delivery abstraction the API layer talks to.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates a recipient identifier and
	// returns its canonical form (digits only for phone-based channels).
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a text message to a recipient.
	SendMessage(ctx context.Context, to string, body string) error

	// Stop releases any resources held by the service.
	Stop() error
}

// phoneNumberRegex matches every non-digit character for canonicalization.
var phoneNumberRegex = regexp.MustCompile(`[^0-9]`)

// CanonicalizeRecipient strips a phone-style recipient to bare digits and
// validates the result has at least 6 digits.
func CanonicalizeRecipient(recipient string) (string, error) {
	if recipient == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}
	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(canonical) < 6 {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum 6 digits required)", canonical)
	}
	return canonical, nil
}
