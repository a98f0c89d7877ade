package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-supply-bot/internal/domain"
	"github.com/tbourn/go-supply-bot/internal/services"
)

// Handler exposes the live ticket board and roster over HTTP. Everything here
// is read-only; all mutations go through the chat commands.
type Handler struct {
	Tickets *services.TicketService
	Roster  *services.RosterService
}

// New constructs the ops API handler.
func New(tickets *services.TicketService, roster *services.RosterService) *Handler {
	return &Handler{Tickets: tickets, Roster: roster}
}

// ListTickets returns the open tickets, optionally filtered by the tasked
// organizer group via ?group=.
//
// GET /tickets[?group=BiMi]
func (h *Handler) ListTickets(c *gin.Context) {
	group := c.Query("group")
	tickets := h.Tickets.ListOpen(group)

	out := make([]*domain.TicketSnapshot, 0, len(tickets))
	for _, t := range tickets {
		out = append(out, t.Snapshot())
	}
	ok(c, http.StatusOK, gin.H{"tickets": out, "count": len(out)})
}

// GetTicket returns one live ticket by id.
//
// GET /tickets/:id
func (h *Handler) GetTicket(c *gin.Context) {
	uid, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "ticket id must be an integer")
		return
	}
	t, err := h.Tickets.Get(uid)
	if errors.Is(err, services.ErrTicketNotFound) {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "ticket not found")
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "lookup failed")
		return
	}
	ok(c, http.StatusOK, t.Snapshot())
}

// ListGroups returns each group that currently has members, with its member
// count. Chat ids are deliberately not exposed.
//
// GET /groups
func (h *Handler) ListGroups(c *gin.Context) {
	names := h.Roster.GroupsWithMembers()
	groups := make([]gin.H, 0, len(names))
	for _, name := range names {
		groups = append(groups, gin.H{"name": name, "members": len(h.Roster.Members(name))})
	}
	ok(c, http.StatusOK, gin.H{"groups": groups})
}
