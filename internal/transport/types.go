// Package transport abstracts the chat platform the bot talks to, so the
// reminder pipeline never imports a platform SDK directly.
package transport

import "context"

// Adapter sends rendered messages. Implementations must be safe for
// concurrent use; errors are assumed transient unless stated otherwise.
type Adapter interface {
	// SendDM delivers text to the user's direct-message channel.
	SendDM(ctx context.Context, userID int64, text string) error

	// SendChannel delivers text to a guild channel.
	SendChannel(ctx context.Context, channelID int64, text string) error

	Close() error
}

// Nop is an Adapter that discards everything. It backs tests and dry runs.
type Nop struct{}

func (Nop) SendDM(ctx context.Context, userID int64, text string) error { return nil }

func (Nop) SendChannel(ctx context.Context, channelID int64, text string) error { return nil }

func (Nop) Close() error { return nil }
