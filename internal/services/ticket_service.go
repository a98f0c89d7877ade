// Package services – TicketService
//
// This file implements ticket identity allocation and the lifecycle state
// machine. Ids come from the highest-id counter inside the state blob, so
// allocation is atomic with every other mutation; ids are never reused, even
// after a ticket is closed or revoked. Terminal tickets are evicted from the
// live index immediately, a final copy is returned to the caller for the
// outgoing notifications.
//
// Every transition is mirrored to the dashboard publisher: a snapshot on
// create/start, a tombstone once the ticket reaches a terminal state.
package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-supply-bot/internal/config"
	"github.com/tbourn/go-supply-bot/internal/domain"
	"github.com/tbourn/go-supply-bot/internal/state"
)

// Publisher is the dashboard feed consumed by the ticket lifecycle. A nil
// snapshot publishes a tombstone for the topic.
type Publisher interface {
	Publish(topic string, snap *domain.TicketSnapshot)
}

// TicketService owns ticket creation and the lifecycle state machine.
type TicketService struct {
	// Store is the shared state guard.
	Store *state.Store
	// Groups provides the category → tasked-group routing table.
	Groups config.Groups
	// Publisher receives a snapshot per transition; nil disables the feed.
	Publisher Publisher
}

// NewTicketService constructs a TicketService.
func NewTicketService(store *state.Store, groups config.Groups, pub Publisher) *TicketService {
	return &TicketService{Store: store, Groups: groups, Publisher: pub}
}

// Create allocates the next ticket id and stores a new OPEN ticket. The
// tasked organizer group is derived from the category once and never changes.
func (s *TicketService) Create(ctx context.Context, groupRequesting, category, text string) (domain.Ticket, error) {
	var created domain.Ticket
	err := s.Store.Update(ctx, func(st *domain.State) error {
		st.HighestID++
		t := &domain.Ticket{
			UID:             st.HighestID,
			Status:          domain.StatusOpen,
			GroupRequesting: groupRequesting,
			GroupTasked:     s.Groups.Tasked(category),
			Text:            text,
		}
		st.Tickets[t.UID] = t
		created = *t
		ticketsOpen.Set(float64(len(st.Tickets)))
		return nil
	})
	if err != nil {
		return domain.Ticket{}, err
	}

	ticketsCreated.WithLabelValues(created.GroupTasked).Inc()
	log.Info().
		Int("uid", created.UID).
		Str("group_requesting", created.GroupRequesting).
		Str("group_tasked", created.GroupTasked).
		Msg("ticket created")
	s.publish(created)
	return created, nil
}

// StartWork moves an OPEN ticket to WIP and records the worker. When someone
// else already started, the racing caller gets ErrAlreadyInProgress and the
// recorded worker stays untouched.
func (s *TicketService) StartWork(ctx context.Context, uid int, worker string) (domain.Ticket, error) {
	var out domain.Ticket
	err := s.Store.Update(ctx, func(st *domain.State) error {
		t, ok := st.Tickets[uid]
		if !ok {
			return ErrTicketNotFound
		}
		if !t.IsOpen() {
			return ErrAlreadyInProgress
		}
		t.Status = domain.StatusWIP
		t.Worker = worker
		out = *t
		return nil
	})
	if err != nil {
		return domain.Ticket{}, err
	}
	s.publish(out)
	return out, nil
}

// Close evicts a ticket from the live index and returns its final snapshot.
// Terminal tickets were already evicted, so closing one reports
// ErrTicketNotFound just like a ticket that never existed.
func (s *TicketService) Close(ctx context.Context, uid int) (domain.Ticket, error) {
	return s.evict(ctx, uid, domain.StatusClosed, "")
}

// Revoke withdraws an untouched ticket on behalf of the group that raised it.
// Only the requesting group may revoke, and only while the ticket is OPEN.
func (s *TicketService) Revoke(ctx context.Context, uid int, requestingGroup string) (domain.Ticket, error) {
	return s.evict(ctx, uid, domain.StatusRevoked, requestingGroup)
}

// evict implements the shared terminal transition: mark, remove from the live
// index, publish the tombstone.
func (s *TicketService) evict(ctx context.Context, uid int, terminal domain.TicketStatus, requestingGroup string) (domain.Ticket, error) {
	var out domain.Ticket
	err := s.Store.Update(ctx, func(st *domain.State) error {
		t, ok := st.Tickets[uid]
		if !ok {
			return ErrTicketNotFound
		}
		if terminal == domain.StatusRevoked {
			if t.GroupRequesting != requestingGroup {
				return ErrForbidden
			}
			if !t.IsOpen() {
				return ErrAlreadyInProgress
			}
		}
		t.Status = terminal
		out = *t
		delete(st.Tickets, uid)
		ticketsOpen.Set(float64(len(st.Tickets)))
		return nil
	})
	if err != nil {
		return domain.Ticket{}, err
	}

	outcome := "closed"
	if terminal == domain.StatusRevoked {
		outcome = "revoked"
	}
	ticketsResolved.WithLabelValues(outcome).Inc()
	log.Info().Int("uid", uid).Str("outcome", outcome).Msg("ticket evicted")
	if s.Publisher != nil {
		s.Publisher.Publish(topicFor(uid), nil)
	}
	return out, nil
}

// Get returns a copy of a live ticket.
func (s *TicketService) Get(uid int) (domain.Ticket, error) {
	var (
		out domain.Ticket
		ok  bool
	)
	s.Store.View(func(st *domain.State) {
		if t, found := st.Tickets[uid]; found {
			out, ok = *t, true
		}
	})
	if !ok {
		return domain.Ticket{}, ErrTicketNotFound
	}
	return out, nil
}

// ListOpen returns copies of all live tickets, filtered by tasked group when
// one is given, ordered by uid ascending for deterministic display.
func (s *TicketService) ListOpen(groupTasked string) []domain.Ticket {
	var out []domain.Ticket
	s.Store.View(func(st *domain.State) {
		for _, t := range st.Tickets {
			if groupTasked != "" && !t.IsTasked(groupTasked) {
				continue
			}
			out = append(out, *t)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out
}

// CloseAll evicts every live ticket. Developer-only maintenance; the final
// snapshots are returned so the caller can still notify the affected groups.
func (s *TicketService) CloseAll(ctx context.Context) ([]domain.Ticket, error) {
	open := s.ListOpen("")
	closed := make([]domain.Ticket, 0, len(open))
	for _, t := range open {
		done, err := s.Close(ctx, t.UID)
		if err != nil {
			return closed, fmt.Errorf("close #%d: %w", t.UID, err)
		}
		closed = append(closed, done)
	}
	return closed, nil
}

// publish mirrors a live ticket to the dashboard feed.
func (s *TicketService) publish(t domain.Ticket) {
	if s.Publisher == nil {
		return
	}
	s.Publisher.Publish(topicFor(t.UID), t.Snapshot())
}

// topicFor is the per-ticket dashboard topic.
func topicFor(uid int) string { return fmt.Sprintf("tickets/%d", uid) }
