// Package bot wires the Telegram transport to the application services: it
// receives updates, parses commands, applies the organizer/developer
// capability checks at the dispatch boundary, and renders service results
// into chat replies.
//
// This file implements the outbound side: the services.Transport backed by
// the Telegram Bot API. Recipients that blocked the bot surface as
// services.ErrUnreachable so the dispatcher can heal them out of the roster.
package bot

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-supply-bot/internal/services"
)

// Telegram is the production chat transport.
type Telegram struct {
	api *tgbotapi.BotAPI
}

// NewTelegram authenticates against the Bot API.
func NewTelegram(token string, debug bool) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}
	api.Debug = debug
	log.Info().Str("username", api.Self.UserName).Msg("telegram authorized")
	return &Telegram{api: api}, nil
}

// SendMessage delivers text to a single chat. A 403 from the API means the
// user blocked the bot; that is mapped to services.ErrUnreachable.
func (t *Telegram) SendMessage(ctx context.Context, chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := t.api.Send(msg); err != nil {
		var apiErr *tgbotapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == 403 {
			return fmt.Errorf("%w: %s", services.ErrUnreachable, apiErr.Message)
		}
		return fmt.Errorf("send to %d: %w", chatID, err)
	}
	return nil
}

// Updates returns the long-polling update channel.
func (t *Telegram) Updates() tgbotapi.UpdatesChannel {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	return t.api.GetUpdatesChan(u)
}

// Stop ends long polling; the Updates channel drains and closes.
func (t *Telegram) Stop() {
	t.api.StopReceivingUpdates()
}

// displayName renders a user as "First Last <@username>" for notifications.
func displayName(u *tgbotapi.User) string {
	if u == nil {
		return "<unbekannt>"
	}
	name := u.FirstName
	if u.LastName != "" {
		name += " " + u.LastName
	}
	if u.UserName != "" {
		name += " <@" + u.UserName + ">"
	}
	return name
}
