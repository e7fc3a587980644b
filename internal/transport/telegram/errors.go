package telegram

import (
	"errors"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	kit "weeklybot/internal/transport"
)

// classify maps Bot API failures onto the transport error kinds: flood
// control becomes a RetryAfterError, and failures that depend on the chat or
// the token (unknown chat, bot blocked or kicked, bad token) are permanent.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var flood tele.FloodError
	if errors.As(err, &flood) {
		return &kit.RetryAfterError{Err: err, After: time.Duration(flood.RetryAfter) * time.Second}
	}
	var group tele.GroupError
	if errors.As(err, &group) {
		// The group became a supergroup; the configured chat id is stale.
		return kit.Permanent(err)
	}
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return kit.Permanent(err)
		case http.StatusBadRequest:
			if strings.Contains(strings.ToLower(apiErr.Description), "chat not found") {
				return kit.Permanent(err)
			}
		}
	}
	return err
}
