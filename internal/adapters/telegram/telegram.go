package telegram

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"cartable/internal/transport"
)

type Config struct {
	Token string
	// Offline disables the initial getMe call (useful in tests).
	Offline bool
}

// Adapter is a send-only Telegram transport built on telebot.
// No poller is attached: the service never consumes updates.
type Adapter struct {
	cfg Config
	log *slog.Logger
	bot *tele.Bot
}

func New(cfg Config, log *slog.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		Offline: cfg.Offline,
		Client:  nil, // telebot default http client
	})
	if err != nil {
		return nil, err
	}
	return &Adapter{cfg: cfg, log: log, bot: b}, nil
}

func (a *Adapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	if to.ChatID == 0 {
		return transport.MessageRef{}, errors.New("telegram: empty chat target")
	}

	so := &tele.SendOptions{ThreadID: to.ThreadID}
	if opt != nil {
		so.ParseMode = opt.ParseMode
		so.DisableWebPagePreview = opt.DisablePreview
	}

	// telebot calls are not ctx-aware; bound them with a goroutine so a
	// stuck send can't hold a notifier worker past its deadline.
	type result struct {
		msg *tele.Message
		err error
	}
	done := make(chan result, 1)
	go func() {
		m, err := a.bot.Send(tele.ChatID(to.ChatID), text, so)
		done <- result{msg: m, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return transport.MessageRef{}, r.err
		}
		ref := transport.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID}
		if r.msg != nil {
			ref.MessageID = r.msg.ID
		}
		return ref, nil
	case <-ctx.Done():
		return transport.MessageRef{}, ctx.Err()
	}
}

func (a *Adapter) Stop(ctx context.Context) error {
	// No poller to shut down; give telebot a moment to flush internals.
	select {
	case <-time.After(50 * time.Millisecond):
	case <-ctx.Done():
	}
	return nil
}
