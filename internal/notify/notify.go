// Package notify surfaces trading-relevant events to the configured
// notifier collaborator (spec §7): opens, closes, fallback-TP fires, and
// PnL reports. The exchange client, proxy/session management, and
// Telegram wiring itself stay out of scope (spec §1) beyond this one
// small interface and its Telegram-backed implementation.
package notify

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// PnLReport is emitted on a full close when the position's open time is
// known and the realized-PnL query succeeds (spec §4.4.6a).
type PnLReport struct {
	User     string
	Strategy string
	Symbol   string
	Side     string
	PnLUSDT  float64
	PnLPct   float64
}

// Notifier is the collaborator the control plane emits events to.
type Notifier interface {
	Opened(user, strategy, symbol, side string)
	Closed(user, strategy, symbol, side string)
	FallbackTP(user, strategy, symbol, side string)
	Report(r PnLReport)
}

// Telegram sends notifications to a single chat via telegram-bot-api,
// grounded on the original bot's TelegramNotifier collaborator (its
// module was filtered from the kept reference sources, but main.py's
// call sites show one bot/one chat).
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	log    zerolog.Logger
}

func NewTelegram(token string, chatID int64, log zerolog.Logger) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &Telegram{bot: bot, chatID: chatID, log: log}, nil
}

func (t *Telegram) send(text string) {
	if t == nil || t.bot == nil {
		return
	}
	msg := tgbotapi.NewMessage(t.chatID, text)
	if _, err := t.bot.Send(msg); err != nil {
		t.log.Warn().Err(err).Msg("notify: telegram send failed")
	}
}

func (t *Telegram) Opened(user, strategy, symbol, side string) {
	t.send(fmt.Sprintf("[%s][%s] %s %s opened", user, strategy, symbol, side))
}

func (t *Telegram) Closed(user, strategy, symbol, side string) {
	t.send(fmt.Sprintf("[%s][%s] %s %s closed", user, strategy, symbol, side))
}

func (t *Telegram) FallbackTP(user, strategy, symbol, side string) {
	t.send(fmt.Sprintf("[%s][%s] %s %s fallback take-profit fired", user, strategy, symbol, side))
}

func (t *Telegram) Report(r PnLReport) {
	t.send(fmt.Sprintf("[%s][%s] %s %s closed. PnL %.2f USDT (%.2f%%)", r.User, r.Strategy, r.Symbol, r.Side, r.PnLUSDT, r.PnLPct))
}

// Noop discards every event — used when no Telegram token is configured,
// and in tests.
type Noop struct{}

func (Noop) Opened(string, string, string, string)    {}
func (Noop) Closed(string, string, string, string)    {}
func (Noop) FallbackTP(string, string, string, string) {}
func (Noop) Report(PnLReport)                          {}
