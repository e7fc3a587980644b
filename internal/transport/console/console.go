// Package console is a Sender that writes messages to the log instead of a
// chat. It is used when no Telegram token is configured.
package console

import (
	"context"
	"sync/atomic"

	kit "weeklybot/internal/transport"
	logx "weeklybot/pkg/logx"
)

type Sender struct {
	log logx.Logger
	seq atomic.Int64
}

func New(log logx.Logger) *Sender {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sender{log: log}
}

func (s *Sender) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return kit.MessageRef{}, err
	}
	id := int(s.seq.Add(1))
	s.log.Info("message",
		logx.Int64("chat_id", to.ChatID),
		logx.Int("thread_id", to.ThreadID),
		logx.Int("message_id", id),
		logx.String("text", text),
	)
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: id}, nil
}
