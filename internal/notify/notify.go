// Package notify delivers short messages to job owners. Delivery is best
// effort: callers log failures and move on.
package notify

import (
	"context"
	"fmt"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"
	"strconv"
)

type Notifier interface {
	Notify(ctx context.Context, owner, message string) error
}

// LogNotifier only logs messages. It is used when no chat transport is
// configured.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, owner, message string) error {
	log.WithFields(log.Fields{"owner": owner, "message": message}).Info("Notification")
	return nil
}

type TelegramConfig struct {
	Token string
	// URL overrides the Bot API endpoint.
	URL        string
	RatePerSec int
}

// TelegramNotifier sends messages to the private chat whose id is the
// owner. Sends are throttled by a token bucket so bursts of failing jobs
// stay under the Bot API limits.
type TelegramNotifier struct {
	bot     *tele.Bot
	limiter *rate.Limiter
}

func NewTelegramNotifier(cfg TelegramConfig) (*TelegramNotifier, error) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 20
	}
	bot, err := tele.NewBot(tele.Settings{
		URL:     cfg.URL,
		Token:   cfg.Token,
		Offline: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed creating telegram bot: %w", err)
	}
	return &TelegramNotifier{bot, rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)}, nil
}

func (n *TelegramNotifier) Notify(ctx context.Context, owner, message string) error {
	chatId, err := strconv.ParseInt(owner, 10, 64)
	if err != nil {
		return fmt.Errorf("owner %q is not a telegram chat id: %w", owner, err)
	}
	if err = n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("failed waiting for send slot: %w", err)
	}
	if _, err = n.bot.Send(tele.ChatID(chatId), message); err != nil {
		return fmt.Errorf("failed sending message to %d: %w", chatId, err)
	}
	return nil
}
