package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// Channel is a delivery channel the platform's notification service knows
// how to dispatch on.
type Channel string

const (
	ChannelInApp Channel = "in_app"
	ChannelEmail Channel = "email"
	ChannelPush  Channel = "push"
)

// TypeMessageReceived notifies an offline participant about a new chat
// message.
const TypeMessageReceived = "message_received"

// Request is a notification record handed to the platform's notification
// service. Write-only from the chat core's perspective.
type Request struct {
	RecipientID int64          `json:"recipient_id"`
	SenderID    *int64         `json:"sender_id,omitempty"`
	Type        string         `json:"type"`
	Title       string         `json:"title"`
	Body        string         `json:"body"`
	Payload     map[string]any `json:"payload,omitempty"`
	Channels    []Channel      `json:"channels"`
}

// Sink accepts notification requests. Delivery is best-effort: one
// attempt, no retry, no durable queueing on this side. Callers must treat
// a Send failure as ignorable — a recipient's notification outage must
// never block message delivery to everyone else.
type Sink interface {
	Send(ctx context.Context, req Request) error
}

// LogSink writes notification requests to the log. Default when no real
// sink is wired, and handy in development.
type LogSink struct {
	log *zerolog.Logger
}

// NewLogSink creates a sink that logs each request.
func NewLogSink(logger *zerolog.Logger) *LogSink {
	return &LogSink{log: logger}
}

// Send logs the request and always succeeds.
func (s *LogSink) Send(_ context.Context, req Request) error {
	s.log.Info().
		Int64("recipient_id", req.RecipientID).
		Str("type", req.Type).
		Str("title", req.Title).
		Msg("notification request")
	return nil
}

var _ Sink = (*LogSink)(nil)
