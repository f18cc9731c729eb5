package notify

import (
	"context"
)

const (
	ChannelEmail     = "email"
	ChannelMessaging = "messaging"
)

// Message is the channel-agnostic content of one delivery attempt. Subject
// and HTML only apply to email.
type Message struct {
	To      string
	Subject string
	Body    string
	HTML    string
}

// SendOutcome carries what the provider's API returned alongside the error.
// Retryable is only meaningful when Send also returned an error: a hard
// provider rejection (bad address, auth failure) should not burn the rest
// of the channel's attempt budget.
type SendOutcome struct {
	ProviderID string
	Retryable  bool
}

// Channel is a single delivery medium with its own success semantics.
// A nil error means the provider accepted the message.
type Channel interface {
	Name() string
	Send(ctx context.Context, msg Message) (SendOutcome, error)
}
