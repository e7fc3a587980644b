// Package transport defines the chat-facing types shared by senders and the
// services that use them.
package transport

import (
	"context"
	"errors"
	"time"
)

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Message is an incoming chat command.
type Message struct {
	ChatID       int64
	ThreadID     int
	FromID       int64
	FromUsername string
	Text         string
	// Payload is the text after the command.
	Payload string
}

// Sender delivers text to a chat.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}

// CommandHandler answers a chat command with reply text.
type CommandHandler func(ctx context.Context, m Message) (string, error)

// ErrPermanent marks send failures that retrying cannot fix, such as an
// unknown chat or a bot removed from the group.
var ErrPermanent = errors.New("permanent send failure")

type permanentError struct{ err error }

func (e permanentError) Error() string   { return e.err.Error() }
func (e permanentError) Unwrap() []error { return []error{e.err, ErrPermanent} }

// Permanent wraps err so errors.Is(err, ErrPermanent) holds.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// RetryAfterError asks the caller to wait before the next attempt.
type RetryAfterError struct {
	Err   error
	After time.Duration
}

func (e *RetryAfterError) Error() string { return e.Err.Error() }
func (e *RetryAfterError) Unwrap() error { return e.Err }

// RetryAfter reports the wait requested by err, if any.
func RetryAfter(err error) (time.Duration, bool) {
	var ra *RetryAfterError
	if errors.As(err, &ra) && ra.After > 0 {
		return ra.After, true
	}
	return 0, false
}
