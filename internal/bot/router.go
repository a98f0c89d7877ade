// Package bot – command router.
//
// Incoming updates are dispatched through a single command table that carries
// the required capability per command. Authorization therefore happens once,
// at the dispatch boundary: organizer commands check the sender's group
// against the organizer list, developer commands check the sender's chat id,
// and denied attempts are mirrored to the developer chat.
package bot

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-supply-bot/internal/config"
	"github.com/tbourn/go-supply-bot/internal/services"
)

// access is the capability a command requires.
type access int

const (
	accessPublic access = iota
	accessOrga
	accessDeveloper
)

// handlerFunc renders one command into a reply for the sender.
type handlerFunc func(ctx context.Context, chatID int64, who, args string) string

type command struct {
	run    handlerFunc
	access access
}

// Router dispatches chat updates to the services.
type Router struct {
	Roster    *services.RosterService
	Tickets   *services.TicketService
	Wizard    *services.WizardService
	Notify    *services.NotifyService
	Transport services.Transport
	Groups    config.Groups

	// DeveloperChatID authorizes developer-only commands.
	DeveloperChatID int64

	commands map[string]command
}

// NewRouter builds the command table.
func NewRouter(roster *services.RosterService, tickets *services.TicketService, wizard *services.WizardService, notify *services.NotifyService, transport services.Transport, groups config.Groups, developerChatID int64) *Router {
	r := &Router{
		Roster:          roster,
		Tickets:         tickets,
		Wizard:          wizard,
		Notify:          notify,
		Transport:       transport,
		Groups:          groups,
		DeveloperChatID: developerChatID,
	}
	r.commands = map[string]command{
		"start":      {r.cmdStart, accessPublic},
		"help":       {r.cmdHelp, accessPublic},
		"register":   {r.cmdRegister, accessPublic},
		"unregister": {r.cmdUnregister, accessPublic},
		"status":     {r.cmdStatus, accessPublic},
		"request":    {r.cmdRequest, accessPublic},
		"cancel":     {r.cmdCancel, accessPublic},
		"revoke":     {r.cmdRevoke, accessPublic},
		"bug":        {r.cmdBug, accessPublic},
		"feature":    {r.cmdFeature, accessPublic},

		"help2":   {r.cmdHelp2, accessOrga},
		"all":     {r.cmdAll, accessOrga},
		"tickets": {r.cmdTickets, accessOrga},
		"wip":     {r.cmdWIP, accessOrga},
		"close":   {r.cmdClose, accessOrga},
		"message": {r.cmdMessage, accessOrga},

		"resetall": {r.cmdResetAll, accessDeveloper},
		"closeall": {r.cmdCloseAll, accessDeveloper},
		"details":  {r.cmdDetails, accessDeveloper},
	}
	return r
}

// HandleUpdate processes one inbound update. It never returns an error; every
// failure ends as a reply to the sender or a log line.
func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	msg := upd.Message
	if msg == nil || msg.Chat == nil {
		return
	}
	chatID := msg.Chat.ID
	who := displayName(msg.From)

	var reply string
	switch {
	case msg.IsCommand():
		reply = r.dispatch(ctx, chatID, who, msg.Command(), strings.TrimSpace(msg.CommandArguments()), msg.Text)
	case r.Wizard.Active(chatID):
		// Free text only means something inside an active wizard run.
		out, err := r.Wizard.Input(ctx, chatID, who, msg.Text)
		reply = out
		if err != nil && out == "" {
			reply = textUnknown
		}
	default:
		log.Warn().Int64("chat_id", chatID).Str("text", msg.Text).Msg("unrecognized message")
		reply = textUnknown
	}

	if reply == "" {
		return
	}
	if err := r.Transport.SendMessage(ctx, chatID, reply); err != nil {
		log.Error().Err(err).Int64("chat_id", chatID).Msg("reply failed")
	}
}

// dispatch applies the capability check and runs the command.
func (r *Router) dispatch(ctx context.Context, chatID int64, who, name, args, raw string) string {
	cmd, ok := r.commands[name]
	if !ok {
		log.Warn().Int64("chat_id", chatID).Str("command", name).Msg("unknown command")
		return textUnknown
	}

	switch cmd.access {
	case accessOrga:
		group := r.Roster.CurrentGroup(chatID)
		if !r.Groups.IsOrga(group) {
			r.Notify.Developer(ctx, "⚠️ "+who+" ["+group+"] hat ein [ORGA] Kommando versucht: "+raw)
			return "Du bist nicht zur Ausführung dieses Kommandos berechtigt."
		}
	case accessDeveloper:
		if chatID != r.DeveloperChatID {
			r.Notify.Developer(ctx, "⚠️ "+who+" hat ein [Developer] Kommando versucht: "+raw)
			return "Du bist nicht zur Ausführung dieses Kommandos berechtigt."
		}
	}

	return cmd.run(ctx, chatID, who, args)
}
