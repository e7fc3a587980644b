// Package telegram delivers reminders through the Telegram Bot API and
// answers the bot's chat commands.
package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	rtsup "weeklybot/internal/runtime/supervisor"
	kit "weeklybot/internal/transport"
	logx "weeklybot/pkg/logx"
)

const (
	// textLimit stays under the API's 4096 character cap.
	textLimit          = 4000
	defaultPollTimeout = 10 * time.Second
	stopTimeout        = 2 * time.Second
)

type Config struct {
	Token       string
	PollTimeout time.Duration
	// Commands are only answered in these chats or for these users. Both
	// empty means everyone.
	AllowedChats []int64
	OwnerUserIDs []int64
}

// Adapter is a kit.Sender backed by a telebot Bot. Sending works without
// Start; Start is only needed to receive commands.
type Adapter struct {
	cfg Config
	log logx.Logger
	bot *tele.Bot

	mu  sync.Mutex
	sup *rtsup.Supervisor
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = defaultPollTimeout
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: cfg.PollTimeout},
	})
	if err != nil {
		return nil, classify(err)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{cfg: cfg, log: log, bot: b}
	a.SetAccess(cfg.AllowedChats, cfg.OwnerUserIDs)
	return a, nil
}

// SetLogger replaces the bootstrap logger. Call before Start.
func (a *Adapter) SetLogger(log logx.Logger) {
	if !log.IsZero() {
		a.log = log
	}
}

// Start begins long polling until ctx ends or Stop is called.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sup != nil {
		return nil
	}
	sup := rtsup.New(ctx, rtsup.WithLogger(a.log))
	a.sup = sup

	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		a.bot.Stop()
	})
	// bot.Start returns when the poller gives up; restart it until cancelled.
	sup.GoRestart("telebot.poll", func(c context.Context) error {
		a.log.Info("polling started", logx.String("bot", a.bot.Me.Username))
		a.bot.Start()
		a.log.Info("polling stopped")
		return nil
	},
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		rtsup.WithStopOnCleanExit(false),
	)
	return nil
}

// Stop ends polling. A long poll still in flight is abandoned after a short
// grace period.
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	sup := a.sup
	a.sup = nil
	a.mu.Unlock()
	if sup == nil {
		return nil
	}

	wctx, cancel := context.WithTimeout(ctx, stopTimeout)
	defer cancel()
	if err := sup.Stop(wctx); err != nil {
		a.log.Warn("telegram stop incomplete", logx.Err(err))
	}
	return nil
}

// context is the polling context, or Background when not started.
func (a *Adapter) context() context.Context {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sup != nil {
		return a.sup.Context()
	}
	return context.Background()
}

// SendText sends text, split into several messages when it is too long. The
// returned ref is the first message. Errors are classified, see classify.
func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	chat := &tele.Chat{ID: to.ChatID}
	send := &tele.SendOptions{
		ParseMode:             opt.ParseMode,
		DisableWebPagePreview: opt.DisablePreview,
		ThreadID:              to.ThreadID,
	}

	var first kit.MessageRef
	for i, chunk := range splitText(text, textLimit) {
		if err := ctx.Err(); err != nil {
			return first, err
		}
		msg, err := a.bot.Send(chat, chunk, send)
		if err != nil {
			return first, classify(err)
		}
		if i == 0 {
			first = kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}
		}
	}
	return first, nil
}

// splitText cuts s into chunks of at most limit runes, preferring to cut
// after a newline in the last two thirds of a chunk.
func splitText(s string, limit int) []string {
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}
	var out []string
	for len(rs) > 0 {
		end := min(limit, len(rs))
		if end < len(rs) {
			if i := lastNewline(rs[limit/3+1 : end]); i >= 0 {
				end = limit/3 + 1 + i + 1
			}
		}
		out = append(out, strings.TrimRight(string(rs[:end]), "\n"))
		rs = rs[end:]
		for len(rs) > 0 && rs[0] == '\n' {
			rs = rs[1:]
		}
	}
	return out
}

func lastNewline(rs []rune) int {
	for i := len(rs) - 1; i >= 0; i-- {
		if rs[i] == '\n' {
			return i
		}
	}
	return -1
}
