// Package domain defines the core data model of the supply bot: tickets and
// their lifecycle status, per-chat sessions including the request wizard run,
// and the persisted state blob that ties counter, roster, tickets, and
// sessions together.
package domain

import (
	"fmt"
	"time"
)

// TicketStatus is the lifecycle state of a ticket. The only valid transitions
// are OPEN → WIP → CLOSED and OPEN → REVOKED; CLOSED and REVOKED are terminal.
type TicketStatus string

const (
	StatusOpen    TicketStatus = "OPEN"
	StatusWIP     TicketStatus = "WIP"
	StatusClosed  TicketStatus = "CLOSED"
	StatusRevoked TicketStatus = "REVOKED"
)

// Label returns the user-facing representation of the status, including the
// emoji prefix used in chat messages and the updates channel.
func (s TicketStatus) Label() string {
	switch s {
	case StatusOpen:
		return "🟠 OPEN"
	case StatusWIP:
		return "🟢 WIP"
	case StatusClosed:
		return "✅ CLOSED"
	case StatusRevoked:
		return "❌ REVOKED"
	default:
		return string(s)
	}
}

// Terminal reports whether no further transition is valid out of s.
func (s TicketStatus) Terminal() bool {
	return s == StatusClosed || s == StatusRevoked
}

// Ticket is a single outstanding supply request raised by a stall group and
// routed to an organizer group.
//
// UID is allocated exactly once from the highest-id counter and never reused.
// GroupRequesting, GroupTasked, and Text are immutable after creation.
// Worker is set only on the transition to WIP.
type Ticket struct {
	UID             int          `json:"uid"`
	Status          TicketStatus `json:"status"`
	GroupRequesting string       `json:"group_requesting"`
	GroupTasked     string       `json:"group_tasked"`
	Text            string       `json:"text"`
	Worker          string       `json:"worker,omitempty"`
}

// String renders the ticket the way it appears in chat listings.
func (t Ticket) String() string {
	return fmt.Sprintf("%s #%d: %s", t.Status.Label(), t.UID, t.Text)
}

// IsOpen reports whether the ticket is still waiting for an organizer.
func (t Ticket) IsOpen() bool { return t.Status == StatusOpen }

// IsWIP reports whether someone is already working on the ticket.
func (t Ticket) IsWIP() bool { return t.Status == StatusWIP }

// IsTasked reports whether the given organizer group is responsible.
func (t Ticket) IsTasked(group string) bool { return t.GroupTasked == group }

// Snapshot returns the normalized publish payload for the dashboard feed.
func (t Ticket) Snapshot() *TicketSnapshot {
	return &TicketSnapshot{
		UID:             t.UID,
		Status:          string(t.Status),
		GroupRequesting: t.GroupRequesting,
		GroupTasked:     t.GroupTasked,
		Text:            t.Text,
		Worker:          t.Worker,
	}
}

// TicketSnapshot is the wire form of a ticket handed to the dashboard
// publisher on every lifecycle transition. A nil snapshot is a tombstone.
type TicketSnapshot struct {
	UID             int    `json:"uid"`
	Status          string `json:"status"`
	GroupRequesting string `json:"group_requesting"`
	GroupTasked     string `json:"group_tasked"`
	Text            string `json:"text"`
	Worker          string `json:"worker,omitempty"`
}

// WizardStep enumerates the states of the per-user request wizard.
type WizardStep string

const (
	StepRequest WizardStep = "REQUEST"
	StepMoney   WizardStep = "MONEY"
	StepCups    WizardStep = "CUPS"
	StepAmount  WizardStep = "AMOUNT"
	StepFree    WizardStep = "FREE"
)

// WizardRun holds the transient answers of one in-flight request wizard.
// A session has at most one run; dropping the whole run on any exit path
// (success or cancel) is what guarantees the answer fields cannot leak into
// the next request.
type WizardRun struct {
	Step         WizardStep `json:"step"`
	FirstChoice  string     `json:"first_choice,omitempty"`
	SecondChoice string     `json:"second_choice,omitempty"`
}

// Session is the per-chat state: the current group membership pointer and the
// active wizard run, if any. The duplicate-request guard is expressed as
// Wizard != nil.
type Session struct {
	Group  string     `json:"group,omitempty"`
	Wizard *WizardRun `json:"wizard,omitempty"`
}

// WizardActive reports whether a request wizard is currently in flight.
func (s *Session) WizardActive() bool { return s != nil && s.Wizard != nil }

// State is the single serializable blob that survives restarts: the highest-id
// counter, the group roster, the live ticket index, and all sessions. It must
// round-trip losslessly through JSON.
type State struct {
	HighestID int                `json:"highest_id"`
	Tickets   map[int]*Ticket    `json:"tickets"`
	Groups    map[string][]int64 `json:"groups"`
	Sessions  map[int64]*Session `json:"sessions"`
}

// NewState returns an empty state with all indexes allocated.
func NewState() *State {
	return &State{
		Tickets:  make(map[int]*Ticket),
		Groups:   make(map[string][]int64),
		Sessions: make(map[int64]*Session),
	}
}

// Session returns the session for chatID, creating it when absent.
func (st *State) Session(chatID int64) *Session {
	s, ok := st.Sessions[chatID]
	if !ok {
		s = &Session{}
		st.Sessions[chatID] = s
	}
	return s
}

// StateRecord is the persistence row holding the serialized State blob.
// A single row (ID 1) is read on startup and rewritten on every mutation.
type StateRecord struct {
	ID        uint   `gorm:"primaryKey"`
	Data      []byte `gorm:"type:blob;not null"`
	UpdatedAt time.Time
}

// TableName returns the database table name for StateRecord.
func (StateRecord) TableName() string { return "bot_state" }
