package telegram

import (
	"context"
	"slices"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	kit "weeklybot/internal/transport"
	logx "weeklybot/pkg/logx"
)

const commandTimeout = 15 * time.Second

// Handle registers a command such as "/next". The reply goes to the chat and
// thread the command came from. Call before Start.
func (a *Adapter) Handle(command string, h kit.CommandHandler) {
	a.bot.Handle(command, func(c tele.Context) error {
		msg, ok := toMessage(c.Message())
		if !ok {
			return nil
		}
		if !a.allowed(msg) {
			a.log.Debug("command ignored (not allowed)",
				logx.String("command", command),
				logx.Int64("chat_id", msg.ChatID),
				logx.Int64("from_id", msg.FromID),
			)
			return nil
		}

		ctx, cancel := context.WithTimeout(a.context(), commandTimeout)
		defer cancel()
		reply, err := h(ctx, msg)
		if err != nil {
			a.log.Warn("command failed", logx.String("command", command), logx.Err(err))
			reply = "error: " + err.Error()
		}
		if strings.TrimSpace(reply) == "" {
			return nil
		}
		to := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
		_, err = a.SendText(ctx, to, reply, &kit.SendOptions{DisablePreview: true})
		return err
	})
}

func toMessage(m *tele.Message) (kit.Message, bool) {
	if m == nil || m.Chat == nil {
		return kit.Message{}, false
	}
	msg := kit.Message{
		ChatID:   m.Chat.ID,
		ThreadID: m.ThreadID,
		Text:     m.Text,
		Payload:  strings.TrimSpace(m.Payload),
	}
	if m.Sender != nil {
		msg.FromID = m.Sender.ID
		msg.FromUsername = m.Sender.Username
	}
	return msg, true
}

// SetAccess replaces the chats and users whose commands are answered.
// Zero ids are ignored. Safe to call while polling.
func (a *Adapter) SetAccess(chats, owners []int64) {
	chats = slices.DeleteFunc(slices.Clone(chats), func(id int64) bool { return id == 0 })
	owners = slices.DeleteFunc(slices.Clone(owners), func(id int64) bool { return id == 0 })
	a.mu.Lock()
	a.cfg.AllowedChats, a.cfg.OwnerUserIDs = chats, owners
	a.mu.Unlock()
}

func (a *Adapter) allowed(m kit.Message) bool {
	a.mu.Lock()
	chats, owners := a.cfg.AllowedChats, a.cfg.OwnerUserIDs
	a.mu.Unlock()
	if len(chats) == 0 && len(owners) == 0 {
		return true
	}
	return slices.Contains(chats, m.ChatID) || slices.Contains(owners, m.FromID)
}
