// Package services – NotifyService
//
// This file implements the notification fan-out. A message to a group goes to
// every member except an optionally excluded sender; one recipient failing
// never aborts delivery to the rest. Recipients reported as permanently
// unreachable by the transport (blocked the bot, deleted their account) are
// healed out of the system: the failure is mirrored to the developer chat,
// their session is dropped, and they are removed from the roster.
//
// Channel and developer messages are paced with a token bucket so a burst of
// ticket activity cannot trip the transport's flood control.
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/tbourn/go-supply-bot/internal/domain"
	"github.com/tbourn/go-supply-bot/internal/state"
)

// Transport delivers a message to a single chat. Implementations signal a
// permanently undeliverable recipient by returning an error wrapping
// ErrUnreachable; any other error is treated as transient.
type Transport interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// NotifyService fans messages out to group members, the updates channel, and
// the developer chat.
type NotifyService struct {
	// Store is the shared state guard.
	Store *state.Store
	// Transport is the outbound chat transport.
	Transport Transport
	// ChannelChatID is the updates channel; 0 disables channel logging.
	ChannelChatID int64
	// DeveloperChatID is the alert sink; 0 disables developer alerts.
	DeveloperChatID int64

	limiter *rate.Limiter
}

// NewNotifyService constructs a NotifyService. rps/burst pace the channel and
// developer sinks; group fan-out is not limited here.
func NewNotifyService(store *state.Store, tr Transport, channelID, developerID int64, rps float64, burst int) *NotifyService {
	return &NotifyService{
		Store:           store,
		Transport:       tr,
		ChannelChatID:   channelID,
		DeveloperChatID: developerID,
		limiter:         rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Notify delivers text to every member of group except exclude (0 excludes
// nobody). Delivery failures are isolated per recipient and never returned to
// the initiating action.
func (s *NotifyService) Notify(ctx context.Context, group, text string, exclude int64) {
	// Membership snapshot under the same lock that guards roster mutation;
	// the fan-out itself runs without the lock.
	var members []int64
	s.Store.View(func(st *domain.State) {
		members = append(members, st.Groups[group]...)
	})

	for _, chatID := range members {
		if chatID == exclude {
			continue
		}
		err := s.Transport.SendMessage(ctx, chatID, text)
		switch {
		case err == nil:
			notifySent.Inc()
		case errors.Is(err, ErrUnreachable):
			notifyFailed.WithLabelValues("unreachable").Inc()
			s.heal(ctx, group, chatID)
		default:
			notifyFailed.WithLabelValues("transient").Inc()
			log.Error().Err(err).Int64("chat_id", chatID).Str("group", group).Msg("delivery failed")
		}
	}
}

// heal removes a permanently unreachable recipient: session and roster entry
// go together, and the developer is told.
func (s *NotifyService) heal(ctx context.Context, group string, chatID int64) {
	log.Warn().Int64("chat_id", chatID).Str("group", group).Msg("recipient unreachable, removing from roster")

	err := s.Store.Update(ctx, func(st *domain.State) error {
		removeMember(st, group, chatID)
		delete(st.Sessions, chatID)
		return nil
	})
	if err != nil {
		log.Error().Err(err).Int64("chat_id", chatID).Msg("removing unreachable recipient failed")
	}

	s.Developer(ctx, notifyRemovedText(group, chatID))
}

// notifyRemovedText is the developer alert sent when a member is healed out.
func notifyRemovedText(group string, chatID int64) string {
	return fmt.Sprintf("⚠️ Nachricht an %d aus [%s] nicht zustellbar. Mitglied wurde entfernt.", chatID, group)
}

// Channel sends a log line to the updates channel, paced by the token bucket.
func (s *NotifyService) Channel(ctx context.Context, text string) {
	if s.ChannelChatID == 0 {
		return
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return
	}
	if err := s.Transport.SendMessage(ctx, s.ChannelChatID, text); err != nil {
		log.Error().Err(err).Msg("channel message failed")
	}
}

// Developer sends an alert to the developer chat, paced by the token bucket.
func (s *NotifyService) Developer(ctx context.Context, text string) {
	if s.DeveloperChatID == 0 {
		return
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return
	}
	log.Info().Str("text", text).Msg("to developer")
	if err := s.Transport.SendMessage(ctx, s.DeveloperChatID, text); err != nil {
		log.Error().Err(err).Msg("developer message failed")
	}
}
