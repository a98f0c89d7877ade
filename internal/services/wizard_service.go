// Package services – WizardService
//
// This file implements the per-user request wizard: a small conversation that
// narrows a supply request down to a ticket. The flow is
//
//	REQUEST → MONEY  → (collection ticket | AMOUNT | FREE)
//	        → CUPS   → (collection ticket | AMOUNT)
//	        → FREE   → free-text ticket
//	AMOUNT  → quantity ticket
//
// with cancel valid at every step. Answers that are not one of the canonical
// option strings do not advance the wizard; the caller gets the reprompt text
// together with ErrIllegalInput. Whatever way a run ends, the whole WizardRun
// is dropped from the session, so no answer can leak into the next request.
package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-supply-bot/internal/config"
	"github.com/tbourn/go-supply-bot/internal/domain"
	"github.com/tbourn/go-supply-bot/internal/state"
)

// WizardService drives the multi-step request conversation.
type WizardService struct {
	// Store is the shared state guard.
	Store *state.Store
	// Tickets creates the resulting ticket.
	Tickets *TicketService
	// Notify informs the requesting group about the new ticket.
	Notify *NotifyService
	// Groups provides stand locations for ticket texts.
	Groups config.Groups
}

// NewWizardService constructs a WizardService.
func NewWizardService(store *state.Store, tickets *TicketService, notify *NotifyService, groups config.Groups) *WizardService {
	return &WizardService{Store: store, Tickets: tickets, Notify: notify, Groups: groups}
}

// Start begins a wizard run for chatID and returns the category prompt.
//
// It refuses with ErrWizardActive while a run is in flight, with ErrNoGroup
// for unregistered users, and with ErrStaleGroup when the session still points
// at a group the roster no longer contains the user in (server-side reset);
// the stale pointer is cleared so the user re-registers cleanly.
func (s *WizardService) Start(ctx context.Context, chatID int64) (string, error) {
	var stale bool
	err := s.Store.Update(ctx, func(st *domain.State) error {
		sess := st.Session(chatID)
		if sess.WizardActive() {
			return ErrWizardActive
		}
		if sess.Group == "" {
			return ErrNoGroup
		}
		if !containsID(st.Groups[sess.Group], chatID) {
			sess.Group = ""
			stale = true
			return nil
		}
		sess.Wizard = &domain.WizardRun{Step: domain.StepRequest}
		return nil
	})
	if err != nil {
		return "", err
	}
	if stale {
		return "", ErrStaleGroup
	}
	return "Ein paar Fragen, um deine Anfrage zu präzisieren.\n" +
		"Sende /cancel um abzubrechen.\n\n" +
		"In welche Kategorie fällt deine Anfrage?\n" +
		optionList(config.RequestOptions), nil
}

// Active reports whether chatID has a wizard run in flight.
func (s *WizardService) Active(chatID int64) bool {
	var active bool
	s.Store.View(func(st *domain.State) {
		active = st.Sessions[chatID].WizardActive()
	})
	return active
}

// Cancel aborts a run from any step. Cancelling without a run is a no-op.
func (s *WizardService) Cancel(ctx context.Context, chatID int64) (string, error) {
	var had bool
	err := s.Store.Update(ctx, func(st *domain.State) error {
		sess := st.Session(chatID)
		if sess.WizardActive() {
			sess.Wizard = nil
			had = true
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if !had {
		return "Keine aktive Anfrage.", nil
	}
	return "Anfrage abgebrochen.", nil
}

// Input feeds one free-text answer into the wizard. who is the sender's
// display name, used in the notification to the rest of the group. The return
// is the next prompt (or the final confirmation); with ErrIllegalInput the
// prompt repeats the expected options and the step does not advance.
func (s *WizardService) Input(ctx context.Context, chatID int64, who, text string) (string, error) {
	text = strings.TrimSpace(text)

	var (
		active bool
		run    domain.WizardRun
		group  string
	)
	s.Store.View(func(st *domain.State) {
		sess := st.Sessions[chatID]
		if sess.WizardActive() {
			active = true
			run = *sess.Wizard
			group = sess.Group
		}
	})
	if !active {
		return "", ErrIllegalInput
	}

	switch run.Step {
	case domain.StepRequest:
		switch text {
		case config.CategoryMoney:
			if err := s.advance(ctx, chatID, func(w *domain.WizardRun) {
				w.Step = domain.StepMoney
				w.FirstChoice = text
			}); err != nil {
				return "", err
			}
			return "Braucht ihr Geld abgeholt oder Wechselgeld?\n" + optionList(config.MoneyOptions), nil
		case config.CategoryCups:
			if err := s.advance(ctx, chatID, func(w *domain.WizardRun) {
				w.Step = domain.StepCups
				w.FirstChoice = text
			}); err != nil {
				return "", err
			}
			return "Braucht ihr dreckige Becher abgeholt oder neue?\n" + optionList(config.CupOptions), nil
		case config.CategoryBeer, config.CategoryCocktail, config.CategoryOther:
			if err := s.advance(ctx, chatID, func(w *domain.WizardRun) {
				w.Step = domain.StepFree
				w.FirstChoice = text
			}); err != nil {
				return "", err
			}
			return "Was braucht Ihr, und wie viel habt ihr davon noch?", nil
		default:
			return reprompt(config.RequestOptions), ErrIllegalInput
		}

	case domain.StepMoney:
		switch text {
		case config.OptionMoneyCollect:
			return s.finishCollection(ctx, chatID, who, group, run.FirstChoice)
		case config.OptionMoneyChange:
			if err := s.advance(ctx, chatID, func(w *domain.WizardRun) {
				w.Step = domain.StepAmount
				w.SecondChoice = text
			}); err != nil {
				return "", err
			}
			return "Wie viel habt ihr noch?\n" + optionList(config.AmountOptions), nil
		case config.OptionMoneyFree:
			if err := s.advance(ctx, chatID, func(w *domain.WizardRun) {
				w.Step = domain.StepFree
			}); err != nil {
				return "", err
			}
			return "Was braucht Ihr, und wie viel habt ihr davon noch?", nil
		default:
			return reprompt(config.MoneyOptions), ErrIllegalInput
		}

	case domain.StepCups:
		switch text {
		case config.OptionCupsCollect:
			return s.finishCollection(ctx, chatID, who, group, run.FirstChoice)
		case config.OptionCupsShot, config.OptionCupsNormal:
			if err := s.advance(ctx, chatID, func(w *domain.WizardRun) {
				w.Step = domain.StepAmount
				w.SecondChoice = text
			}); err != nil {
				return "", err
			}
			return "Wie viel habt ihr noch?\n" + optionList(config.AmountOptions), nil
		default:
			return reprompt(config.CupOptions), ErrIllegalInput
		}

	case domain.StepAmount:
		if text == "" {
			return reprompt(config.AmountOptions), ErrIllegalInput
		}
		ticketText := fmt.Sprintf("%s hat noch %s %s", s.Groups.Location(group), text, run.SecondChoice)
		return s.finish(ctx, chatID, who, group, run.FirstChoice, ticketText)

	case domain.StepFree:
		if text == "" {
			return "Bitte beschreibe, was ihr braucht.", ErrIllegalInput
		}
		ticketText := fmt.Sprintf("%s braucht %s: '%s'", s.Groups.Location(group), run.FirstChoice, text)
		return s.finish(ctx, chatID, who, group, run.FirstChoice, ticketText)
	}

	// Unknown step in the blob; drop the run rather than wedge the user.
	log.Error().Int64("chat_id", chatID).Str("step", string(run.Step)).Msg("wizard in unknown step, aborting run")
	_, err := s.Cancel(ctx, chatID)
	if err != nil {
		return "", err
	}
	return "", ErrIllegalInput
}

// advance mutates the active run under the store lock.
func (s *WizardService) advance(ctx context.Context, chatID int64, mutate func(w *domain.WizardRun)) error {
	return s.Store.Update(ctx, func(st *domain.State) error {
		sess := st.Session(chatID)
		if !sess.WizardActive() {
			return ErrIllegalInput
		}
		mutate(sess.Wizard)
		return nil
	})
}

// finishCollection ends a run with a pickup ticket ("<category> abholen an
// Stand <location>"), skipping the amount question.
func (s *WizardService) finishCollection(ctx context.Context, chatID int64, who, group, category string) (string, error) {
	text := fmt.Sprintf("%s abholen an Stand %s", category, s.Groups.Location(group))
	return s.finish(ctx, chatID, who, group, category, text)
}

// finish clears the wizard run, creates the ticket, and notifies the rest of
// the requesting group. The run is dropped before ticket creation so a
// creation failure can never leave answers behind.
func (s *WizardService) finish(ctx context.Context, chatID int64, who, group, category, text string) (string, error) {
	err := s.Store.Update(ctx, func(st *domain.State) error {
		st.Session(chatID).Wizard = nil
		return nil
	})
	if err != nil {
		return "", err
	}

	t, err := s.Tickets.Create(ctx, group, category, text)
	if err != nil {
		return "", err
	}

	s.Notify.Channel(ctx, fmt.Sprintf("#%d: %s", t.UID, t.Text))
	s.Notify.Notify(ctx, group,
		fmt.Sprintf("%s in deiner Gruppe hat gerade Ticket '%s' erstellt.", who, t.Text),
		chatID)

	return fmt.Sprintf("Ticket #%d erstellt.", t.UID), nil
}

// optionList renders canonical options for a prompt.
func optionList(options []string) string {
	return "Optionen: " + strings.Join(options, " | ")
}

// reprompt asks for one of the canonical options again without advancing.
func reprompt(options []string) string {
	return "Das habe ich nicht verstanden. Bitte sende eine der Optionen:\n" + optionList(options)
}
