package types

import (
	"time"
)

// ChannelStatus represents the provider-side state of a WhatsApp channel
type ChannelStatus string

const (
	ChannelStatusConnected    ChannelStatus = "connected"
	ChannelStatusConnecting   ChannelStatus = "connecting"
	ChannelStatusDisconnected ChannelStatus = "disconnected"
	ChannelStatusBanned       ChannelStatus = "banned"
)

// Active reports whether sends through the channel can succeed
func (s ChannelStatus) Active() bool {
	return s == ChannelStatusConnected
}

// Channel represents a WhatsApp sender number registered with the provider
type Channel struct {
	ID          string        `json:"id"`
	PhoneNumber string        `json:"phone_number"`
	Status      ChannelStatus `json:"status"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// SendTextRequest is the request body for a plain text send
type SendTextRequest struct {
	Number string `json:"number"`
	Text   string `json:"text"`
}

// SendTemplateRequest is the request body for a template send
type SendTemplateRequest struct {
	Number     string            `json:"number"`
	Template   string            `json:"template"`
	Language   string            `json:"language,omitempty"`
	Components map[string]string `json:"components,omitempty"`
}

// SendMessageResponse is the provider's reply to a send call
type SendMessageResponse struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

// StatusEvent is the delivery-status webhook payload the provider
// posts back as a message moves through sent → delivered → read.
type StatusEvent struct {
	MessageID string    `json:"messageId"`
	Status    string    `json:"status"`
	Recipient string    `json:"recipient"`
	Timestamp time.Time `json:"timestamp"`
}
