// Package services – RosterService
//
// This file implements the group roster: the mapping from group name to its
// subscriber chat ids, kept consistent with each session's current-group
// pointer. Both sides are always mutated together under the store lock, so at
// any point a chat id is in members(g) exactly when its session points at g.
package services

import (
	"context"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-supply-bot/internal/domain"
	"github.com/tbourn/go-supply-bot/internal/state"
)

// RosterService maintains group membership.
type RosterService struct {
	// Store is the shared state guard.
	Store *state.Store
}

// NewRosterService constructs a RosterService.
func NewRosterService(store *state.Store) *RosterService {
	return &RosterService{Store: store}
}

// Join registers chatID as a member of group. A different previous membership
// is removed first; joining the current group again is a no-op. It returns the
// previous group name, empty if there was none.
func (s *RosterService) Join(ctx context.Context, chatID int64, group string) (string, error) {
	var previous string
	err := s.Store.Update(ctx, func(st *domain.State) error {
		sess := st.Session(chatID)
		previous = sess.Group
		if previous == group && containsID(st.Groups[group], chatID) {
			return nil
		}
		if previous != "" {
			removeMember(st, previous, chatID)
		}
		sess.Group = group
		if !containsID(st.Groups[group], chatID) {
			st.Groups[group] = append(st.Groups[group], chatID)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if previous != "" && previous != group {
		log.Info().Int64("chat_id", chatID).Str("from", previous).Str("to", group).Msg("membership moved")
	}
	return previous, nil
}

// Leave removes chatID from its current group and clears the pointer. It
// returns ErrNoGroup when there is nothing to remove.
func (s *RosterService) Leave(ctx context.Context, chatID int64) (string, error) {
	var previous string
	err := s.Store.Update(ctx, func(st *domain.State) error {
		sess := st.Session(chatID)
		if sess.Group == "" {
			return ErrNoGroup
		}
		previous = sess.Group
		removeMember(st, previous, chatID)
		sess.Group = ""
		return nil
	})
	if err != nil {
		return "", err
	}
	return previous, nil
}

// Members returns a copy of the member list of group, empty if unknown. The
// copy is taken under the store lock so callers can iterate it while the
// roster keeps changing.
func (s *RosterService) Members(group string) []int64 {
	var out []int64
	s.Store.View(func(st *domain.State) {
		out = append(out, st.Groups[group]...)
	})
	return out
}

// CurrentGroup returns chatID's group pointer, empty when unregistered.
func (s *RosterService) CurrentGroup(chatID int64) string {
	var group string
	s.Store.View(func(st *domain.State) {
		if sess, ok := st.Sessions[chatID]; ok {
			group = sess.Group
		}
	})
	return group
}

// GroupsWithMembers returns the names of all groups that currently have at
// least one member, sorted for deterministic output.
func (s *RosterService) GroupsWithMembers() []string {
	var out []string
	s.Store.View(func(st *domain.State) {
		for name, members := range st.Groups {
			if len(members) > 0 {
				out = append(out, name)
			}
		}
	})
	sort.Strings(out)
	return out
}

// Reset wipes the roster and all sessions. Developer-only: both sides of the
// membership invariant are cleared together.
func (s *RosterService) Reset(ctx context.Context) error {
	return s.Store.Update(ctx, func(st *domain.State) error {
		st.Groups = make(map[string][]int64)
		st.Sessions = make(map[int64]*domain.Session)
		return nil
	})
}

// removeMember deletes chatID from group's member list in place. Helper shared
// with the dispatcher's self-heal path; must run under the store lock.
func removeMember(st *domain.State, group string, chatID int64) {
	members := st.Groups[group]
	for i, id := range members {
		if id == chatID {
			st.Groups[group] = append(members[:i], members[i+1:]...)
			return
		}
	}
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
