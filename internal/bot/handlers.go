// Package bot – command implementations.
//
// Each handler turns a parsed command into service calls and exactly one
// reply to the sender. Notifications to other parties (the requesting group,
// the tasked group, the updates channel, the developer) go through the
// dispatcher and never fail the command itself.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/tbourn/go-supply-bot/internal/domain"
	"github.com/tbourn/go-supply-bot/internal/services"
)

const textUnknown = "Kommando nicht erkannt oder im falschen Zusammenhang.\n\n" +
	"Sende /help um eine Übersicht zu allen verfügbaren Kommandos zu bekommen. " +
	"Sende alternativ /request um eine Anfrage zu stellen."

const textNotRegistered = "Bitte registriere deine Gruppenmitgliedschaft mit /register bevor du Anfragen stellst."

func (r *Router) cmdStart(ctx context.Context, chatID int64, who, args string) string {
	return "Hi, ich bin der Bestellbot. Über mich können Stände Nachschub bestellen, " +
		"insbesondere Kleingeld, Becher, Bier und Cocktailmaterialien. " +
		"Als erstes solltest du deine Gruppenmitgliedschaft mit /register festlegen, " +
		"um anschließend mit /request eine Anfrage stellen zu können. " +
		"Alle verfügbaren Kommandos und deren Erklärung kannst du mit /help sehen."
}

func (r *Router) cmdHelp(ctx context.Context, chatID int64, who, args string) string {
	return `Verfügbare Befehle:
/start
    Zeige initiale Willkommensnachricht an.
/register [gruppenname]
    Registriere deine Gruppenmitgliedschaft. Es ist nur
    möglich, eine Gruppenmitgliedschaft zu haben.
/unregister
    Entferne deine Gruppenmitgliedschaft.
/status
    Zeige deine Gruppenmitgliedschaft und offene
    Tickets deiner Gruppe an.
/request
    Erstelle eine Anfrage. Mit ein paar Fragen kannst du
    genau bestimmen, was ihr braucht. Daraufhin wird ein
    Ticket erstellt.
/cancel
    Breche das Erstellen der momentanen Anfrage ab.
/revoke <ticket-id>
    Ziehe ein noch nicht begonnenes Ticket deiner
    Gruppe zurück.
/bug <message>
    Schreibe einen Fehlerbericht.
/feature <message>
    Schlage eine neue Fähigkeit für den Bot vor.
/help
    Zeige diese Hilfenachricht an.`
}

func (r *Router) cmdHelp2(ctx context.Context, chatID int64, who, args string) string {
	return `Zusätzlich verfügbare Kommandos für [ORGA]:
/all
    Zeige die Liste aller offenen Tickets und deren <ticket-id>.
/tickets
    Zeige die Liste der offenen Tickets für deine Gruppe.
/wip [ticket-id]
    Beginne Arbeit an einem Ticket.
/close [ticket-id]
    Schließe ein Ticket.
/message <ticket-id> <text>
    Sende eine Nachricht an alle Mitglieder der Gruppe,
    die das Ticket erstellt hat.
/help2
    Zeige diese Hilfenachricht.`
}

func (r *Router) cmdRegister(ctx context.Context, chatID int64, who, args string) string {
	if args == "" {
		return "Mögliche Gruppen:\n" + r.groupOptions()
	}

	name, ok := r.Groups.Canonical(args)
	if !ok {
		return "Unbekannte Gruppe '" + args + "'.\n\nMögliche Gruppen:\n" + r.groupOptions()
	}

	if _, err := r.Roster.Join(ctx, chatID, name); err != nil {
		return "Anmeldung fehlgeschlagen, bitte versuche es erneut."
	}
	r.Notify.Channel(ctx, fmt.Sprintf("🔵 %s ist jetzt Mitglied der Gruppe %s.", who, name))

	reply := fmt.Sprintf("Anmelden bei Gruppe [%s] erfolgreich.", name)
	if r.Groups.IsOrga(name) {
		reply += "\n\n" + r.cmdHelp2(ctx, chatID, who, "")
	}
	return reply
}

func (r *Router) cmdUnregister(ctx context.Context, chatID int64, who, args string) string {
	previous, err := r.Roster.Leave(ctx, chatID)
	if errors.Is(err, services.ErrNoGroup) {
		return "Keine Gruppenmitgliedschaft registriert. Nichts zu entfernen."
	}
	if err != nil {
		return "Abmeldung fehlgeschlagen, bitte versuche es erneut."
	}
	r.Notify.Channel(ctx, fmt.Sprintf("🔵 %s hat die Gruppe %s verlassen.", who, previous))
	return fmt.Sprintf("Mitgliedschaft bei Gruppe [%s] entfernt.", previous)
}

func (r *Router) cmdStatus(ctx context.Context, chatID int64, who, args string) string {
	group := r.Roster.CurrentGroup(chatID)
	if group == "" {
		return "Keine Gruppenmitgliedschaft."
	}

	var open []string
	for _, t := range r.Tickets.ListOpen("") {
		if t.GroupRequesting == group {
			open = append(open, t.String())
		}
	}
	if len(open) == 0 {
		return fmt.Sprintf("Mitglied der Gruppe [%s].\n\nDeine Gruppe hat gerade keine offenen Tickets.", group)
	}
	return fmt.Sprintf("Mitglied der Gruppe [%s].\n\n%s hat %d Ticket(s) offen:\n\n%s",
		group, group, len(open), strings.Join(open, "\n\n---\n"))
}

func (r *Router) cmdRequest(ctx context.Context, chatID int64, who, args string) string {
	prompt, err := r.Wizard.Start(ctx, chatID)
	switch {
	case errors.Is(err, services.ErrWizardActive):
		return "Deine momentane Anfrage ist noch nicht abgeschlossen. " +
			"Bitte beende diese zuerst oder sende /cancel um abzubrechen."
	case errors.Is(err, services.ErrNoGroup):
		return textNotRegistered
	case errors.Is(err, services.ErrStaleGroup):
		return "Deine Gruppenzuordnung ist nicht mehr gültig. " + textNotRegistered
	case err != nil:
		return "Anfrage konnte nicht gestartet werden, bitte versuche es erneut."
	}
	return prompt
}

func (r *Router) cmdCancel(ctx context.Context, chatID int64, who, args string) string {
	reply, err := r.Wizard.Cancel(ctx, chatID)
	if err != nil {
		return "Abbrechen fehlgeschlagen, bitte versuche es erneut."
	}
	return reply
}

func (r *Router) cmdWIP(ctx context.Context, chatID int64, who, args string) string {
	group := r.Roster.CurrentGroup(chatID)
	if args == "" {
		return r.listForGroup(group, true)
	}
	fields := strings.Fields(args)
	uid, ok := parseUID(fields[0])
	if !ok {
		return "Stelle sicher, dass <ticket-id> eine valide Zahl von einem offenen Ticket ist."
	}
	// An explicit worker name may follow the id, e.g. when claiming for a
	// colleague without a device at hand.
	worker := who
	if len(fields) > 1 {
		worker = strings.Join(fields[1:], " ")
	}

	t, err := r.Tickets.StartWork(ctx, uid, worker)
	switch {
	case errors.Is(err, services.ErrAlreadyInProgress):
		return "Jemand arbeitet bereits daran."
	case errors.Is(err, services.ErrTicketNotFound):
		return fmt.Sprintf("Es gibt kein offenes Ticket #%d.", uid)
	case err != nil:
		return "Ticket konnte nicht übernommen werden, bitte versuche es erneut."
	}

	r.Notify.Notify(ctx, group, fmt.Sprintf("%s arbeitet jetzt an Ticket #%d.", worker, uid), chatID)
	r.Notify.Notify(ctx, t.GroupRequesting, fmt.Sprintf("Euer Ticket #%d wurde angefangen zu bearbeiten.", uid), chatID)
	r.Notify.Channel(ctx, fmt.Sprintf("%s: %s von [%s] arbeitet jetzt an Ticket #%d.",
		domain.StatusWIP.Label(), worker, group, uid))
	return fmt.Sprintf("Ticket #%d ist jetzt %s.", uid, domain.StatusWIP.Label())
}

func (r *Router) cmdClose(ctx context.Context, chatID int64, who, args string) string {
	group := r.Roster.CurrentGroup(chatID)
	if args == "" {
		return r.listForGroup(group, false)
	}
	uid, ok := parseUID(args)
	if !ok {
		return "Stelle sicher, dass <ticket-id> eine valide Zahl von einem offenen Ticket ist."
	}

	t, err := r.Tickets.Close(ctx, uid)
	switch {
	case errors.Is(err, services.ErrTicketNotFound):
		return fmt.Sprintf("Es gibt kein Ticket #%d.", uid)
	case err != nil:
		return "Ticket konnte nicht geschlossen werden, bitte versuche es erneut."
	}

	r.Notify.Notify(ctx, t.GroupTasked, fmt.Sprintf("%s: %s hat Ticket #%d geschlossen.",
		domain.StatusClosed.Label(), who, uid), chatID)
	r.Notify.Notify(ctx, t.GroupRequesting, fmt.Sprintf("%s: Euer Ticket #%d wurde bearbeitet.",
		domain.StatusClosed.Label(), uid), chatID)
	r.Notify.Channel(ctx, fmt.Sprintf("%s: %s von [%s] hat Ticket #%d geschlossen.",
		domain.StatusClosed.Label(), who, group, uid))
	return fmt.Sprintf("Ticket #%d ist jetzt %s.", uid, domain.StatusClosed.Label())
}

func (r *Router) cmdRevoke(ctx context.Context, chatID int64, who, args string) string {
	group := r.Roster.CurrentGroup(chatID)
	if group == "" {
		return textNotRegistered
	}
	uid, ok := parseUID(args)
	if !ok {
		return "Benutzung des Kommandos ist /revoke <ticket-id>."
	}

	t, err := r.Tickets.Revoke(ctx, uid, group)
	switch {
	case errors.Is(err, services.ErrForbidden):
		return fmt.Sprintf("Ticket #%d wurde nicht von deiner Gruppe erstellt.", uid)
	case errors.Is(err, services.ErrAlreadyInProgress):
		return fmt.Sprintf("Ticket #%d ist bereits in Bearbeitung und kann nicht zurückgezogen werden.", uid)
	case errors.Is(err, services.ErrTicketNotFound):
		return fmt.Sprintf("Es gibt kein offenes Ticket #%d.", uid)
	case err != nil:
		return "Ticket konnte nicht zurückgezogen werden, bitte versuche es erneut."
	}

	r.Notify.Notify(ctx, t.GroupTasked, fmt.Sprintf("%s: Ticket #%d wurde von [%s] zurückgezogen.",
		domain.StatusRevoked.Label(), uid, group), chatID)
	r.Notify.Notify(ctx, group, fmt.Sprintf("%s hat Ticket #%d zurückgezogen.", who, uid), chatID)
	r.Notify.Channel(ctx, fmt.Sprintf("%s: %s von [%s] hat Ticket #%d zurückgezogen.",
		domain.StatusRevoked.Label(), who, group, uid))
	return fmt.Sprintf("Ticket #%d wurde zurückgezogen.", uid)
}

func (r *Router) cmdMessage(ctx context.Context, chatID int64, who, args string) string {
	fields := strings.Fields(args)
	if len(fields) < 2 {
		return "Benutzung des Kommandos ist /message <ticket-id> <nachricht>."
	}
	uid, ok := parseUID(fields[0])
	if !ok {
		return "Stelle sicher, dass <ticket-id> eine valide Zahl von einem offenen Ticket ist."
	}
	t, err := r.Tickets.Get(uid)
	if err != nil {
		return fmt.Sprintf("Es gibt kein offenes Ticket #%d.", uid)
	}

	group := r.Roster.CurrentGroup(chatID)
	text := fmt.Sprintf("Nachricht von [%s]: %s", group, strings.Join(fields[1:], " "))
	r.Notify.Notify(ctx, t.GroupRequesting, text, chatID)
	r.Notify.Channel(ctx, fmt.Sprintf("🟣 Nachricht an %s: %s", t.GroupRequesting, text))
	return "Nachricht verschickt."
}

func (r *Router) cmdTickets(ctx context.Context, chatID int64, who, args string) string {
	group := r.Roster.CurrentGroup(chatID)
	tickets := r.Tickets.ListOpen(group)
	if len(tickets) == 0 {
		return fmt.Sprintf("Momentan gibt es keine offenen Tickets für [%s].", group)
	}
	return fmt.Sprintf("Liste der offenen Tickets für [%s]:%s", group, ticketList(tickets))
}

func (r *Router) cmdAll(ctx context.Context, chatID int64, who, args string) string {
	tickets := r.Tickets.ListOpen("")
	if len(tickets) == 0 {
		return "Momentan gibt es keine offenen Tickets."
	}
	return "Liste aller offenen Tickets:" + ticketList(tickets)
}

func (r *Router) cmdBug(ctx context.Context, chatID int64, who, args string) string {
	if args == "" {
		return "Benutzung des Kommandos ist /bug <message>."
	}
	r.Notify.Developer(ctx, "⚪️ Bug report von "+who+": "+args)
	return "Fehlerbericht an Entwickler weitergeleitet."
}

func (r *Router) cmdFeature(ctx context.Context, chatID int64, who, args string) string {
	if args == "" {
		return "Benutzung des Kommandos ist /feature <message>."
	}
	r.Notify.Developer(ctx, "⚪️ Feature Request von "+who+": "+args)
	return "Feature Request an Entwickler weitergeleitet."
}

func (r *Router) cmdResetAll(ctx context.Context, chatID int64, who, args string) string {
	if err := r.Roster.Reset(ctx); err != nil {
		return "Zurücksetzen fehlgeschlagen: " + err.Error()
	}
	return "☑️ Roster und Sitzungen zurückgesetzt. Alle Nutzer müssen sich neu registrieren."
}

func (r *Router) cmdCloseAll(ctx context.Context, chatID int64, who, args string) string {
	closed, err := r.Tickets.CloseAll(ctx)
	for _, t := range closed {
		r.Notify.Notify(ctx, t.GroupRequesting,
			fmt.Sprintf("%s: Euer Ticket #%d wurde geschlossen.", domain.StatusClosed.Label(), t.UID), chatID)
	}
	if err != nil {
		return "Schließen fehlgeschlagen: " + err.Error()
	}
	return fmt.Sprintf("☑️ %d Ticket(s) geschlossen.", len(closed))
}

func (r *Router) cmdDetails(ctx context.Context, chatID int64, who, args string) string {
	group := r.Roster.CurrentGroup(chatID)
	return fmt.Sprintf("chat_id=%d group=%q wizard_active=%v groups_with_members=%v",
		chatID, group, r.Wizard.Active(chatID), r.Roster.GroupsWithMembers())
}

// listForGroup renders the open (or WIP) tickets an organizer can act on.
func (r *Router) listForGroup(group string, open bool) string {
	var matching []domain.Ticket
	for _, t := range r.Tickets.ListOpen(group) {
		if open == t.IsOpen() {
			matching = append(matching, t)
		}
	}
	if len(matching) == 0 {
		if open {
			return fmt.Sprintf("Keine offenen Tickets für [%s].", group)
		}
		return fmt.Sprintf("Keine Tickets WIP von [%s].", group)
	}
	verb := "/wip"
	if !open {
		verb = "/close"
	}
	return fmt.Sprintf("Tickets für [%s]:%s\n\nWähle mit %s <ticket-id>.", group, ticketList(matching), verb)
}

// groupOptions lists the public stall groups, German-collated for a stable
// display order.
func (r *Router) groupOptions() string {
	names := append([]string(nil), r.Groups.Stalls...)
	collate.New(language.German).SortStrings(names)
	return strings.Join(names, "\n")
}

func ticketList(tickets []domain.Ticket) string {
	var b strings.Builder
	for _, t := range tickets {
		b.WriteString("\n\n---\n")
		b.WriteString(t.String())
	}
	return b.String()
}

// parseUID parses a ticket id argument.
func parseUID(s string) (int, bool) {
	uid, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || uid < 0 {
		return 0, false
	}
	return uid, true
}
