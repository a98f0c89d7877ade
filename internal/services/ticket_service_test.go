package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/tbourn/go-supply-bot/internal/config"
	"github.com/tbourn/go-supply-bot/internal/domain"
	"github.com/tbourn/go-supply-bot/internal/state"
)

// ----- Fakes -----

type fakePublisher struct {
	mu     sync.Mutex
	topics []string
	snaps  []*domain.TicketSnapshot
}

func (p *fakePublisher) Publish(topic string, snap *domain.TicketSnapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.snaps = append(p.snaps, snap)
}

func (p *fakePublisher) last() (string, *domain.TicketSnapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.topics) == 0 {
		return "", nil
	}
	return p.topics[len(p.topics)-1], p.snaps[len(p.snaps)-1]
}

func testGroups() config.Groups {
	return config.Groups{
		Stalls:        []string{"Weinstand", "Bierstand"},
		Orga:          []string{"Zentrale", "Finanz", "BiMi"},
		Locations:     map[string]string{"Weinstand": "Unibibliothek"},
		Categories:    config.DefaultCategories(),
		DefaultTasked: "Zentrale",
	}
}

func newTicketService(pub Publisher) *TicketService {
	return NewTicketService(state.New(nil, nil), testGroups(), pub)
}

// ----- Tests -----

func TestTicketService_Create_RoutesByCategory(t *testing.T) {
	cases := []struct {
		category string
		want     string
	}{
		{config.CategoryMoney, "Finanz"},
		{config.CategoryBeer, "BiMi"},
		{config.CategoryCocktail, "BiMi"},
		{config.CategoryCups, "BiMi"},
		{config.CategoryOther, "Zentrale"},
		{"Unbekannt", "Zentrale"},
	}
	svc := newTicketService(nil)
	for _, tc := range cases {
		got, err := svc.Create(context.Background(), "Weinstand", tc.category, "x")
		if err != nil {
			t.Fatalf("Create(%q): %v", tc.category, err)
		}
		if got.GroupTasked != tc.want {
			t.Errorf("Create(%q): tasked = %q, want %q", tc.category, got.GroupTasked, tc.want)
		}
		if got.Status != domain.StatusOpen {
			t.Errorf("Create(%q): status = %q, want OPEN", tc.category, got.Status)
		}
	}
}

func TestTicketService_Create_UniqueIDsUnderConcurrency(t *testing.T) {
	svc := newTicketService(nil)

	const n = 50
	var wg sync.WaitGroup
	ids := make(chan int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tk, err := svc.Create(context.Background(), "Weinstand", config.CategoryBeer, "Bier")
			if err != nil {
				t.Errorf("Create: %v", err)
				return
			}
			ids <- tk.UID
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int]bool, n)
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate ticket id %d", id)
		}
		seen[id] = true
	}
	if len(seen) != n {
		t.Fatalf("got %d unique ids, want %d", len(seen), n)
	}
}

func TestTicketService_StartWork(t *testing.T) {
	svc := newTicketService(nil)
	tk, _ := svc.Create(context.Background(), "Weinstand", config.CategoryBeer, "Bier")

	got, err := svc.StartWork(context.Background(), tk.UID, "Alice")
	if err != nil {
		t.Fatalf("StartWork: %v", err)
	}
	if got.Status != domain.StatusWIP || got.Worker != "Alice" {
		t.Fatalf("got %+v, want WIP by Alice", got)
	}

	// The racing second claim must lose and must not steal the worker.
	_, err = svc.StartWork(context.Background(), tk.UID, "Bob")
	if !errors.Is(err, ErrAlreadyInProgress) {
		t.Fatalf("second StartWork err = %v, want ErrAlreadyInProgress", err)
	}
	cur, err := svc.Get(tk.UID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if cur.Worker != "Alice" {
		t.Fatalf("worker = %q, want Alice", cur.Worker)
	}
}

func TestTicketService_StartWork_Unknown(t *testing.T) {
	svc := newTicketService(nil)
	if _, err := svc.StartWork(context.Background(), 99, "Alice"); !errors.Is(err, ErrTicketNotFound) {
		t.Fatalf("err = %v, want ErrTicketNotFound", err)
	}
}

func TestTicketService_Close_EvictsAndTombstones(t *testing.T) {
	pub := &fakePublisher{}
	svc := newTicketService(pub)
	tk, _ := svc.Create(context.Background(), "Weinstand", config.CategoryBeer, "Bier")

	got, err := svc.Close(context.Background(), tk.UID)
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got.Status != domain.StatusClosed {
		t.Fatalf("status = %q, want CLOSED", got.Status)
	}
	if _, err := svc.Get(tk.UID); !errors.Is(err, ErrTicketNotFound) {
		t.Fatalf("Get after close err = %v, want ErrTicketNotFound", err)
	}
	// Closing again behaves like a ticket that never existed.
	if _, err := svc.Close(context.Background(), tk.UID); !errors.Is(err, ErrTicketNotFound) {
		t.Fatalf("double close err = %v, want ErrTicketNotFound", err)
	}

	topic, snap := pub.last()
	if topic == "" || snap != nil {
		t.Fatalf("last publish = (%q, %v), want tombstone", topic, snap)
	}
}

func TestTicketService_Revoke(t *testing.T) {
	svc := newTicketService(nil)
	tk, _ := svc.Create(context.Background(), "Weinstand", config.CategoryBeer, "Bier")

	// Wrong group may not withdraw.
	if _, err := svc.Revoke(context.Background(), tk.UID, "Bierstand"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("foreign revoke err = %v, want ErrForbidden", err)
	}

	got, err := svc.Revoke(context.Background(), tk.UID, "Weinstand")
	if err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if got.Status != domain.StatusRevoked {
		t.Fatalf("status = %q, want REVOKED", got.Status)
	}
}

func TestTicketService_Revoke_RejectsWIP(t *testing.T) {
	svc := newTicketService(nil)
	tk, _ := svc.Create(context.Background(), "Weinstand", config.CategoryBeer, "Bier")
	if _, err := svc.StartWork(context.Background(), tk.UID, "Alice"); err != nil {
		t.Fatalf("StartWork: %v", err)
	}

	if _, err := svc.Revoke(context.Background(), tk.UID, "Weinstand"); !errors.Is(err, ErrAlreadyInProgress) {
		t.Fatalf("revoke WIP err = %v, want ErrAlreadyInProgress", err)
	}
	// The ticket survives the failed revoke.
	if _, err := svc.Get(tk.UID); err != nil {
		t.Fatalf("Get after failed revoke: %v", err)
	}
}

func TestTicketService_ListOpen(t *testing.T) {
	svc := newTicketService(nil)
	beer, _ := svc.Create(context.Background(), "Weinstand", config.CategoryBeer, "Bier")
	money, _ := svc.Create(context.Background(), "Weinstand", config.CategoryMoney, "Wechselgeld")

	all := svc.ListOpen("")
	if len(all) != 2 {
		t.Fatalf("ListOpen(\"\") = %d tickets, want 2", len(all))
	}
	if all[0].UID >= all[1].UID {
		t.Fatalf("tickets not sorted by uid: %d, %d", all[0].UID, all[1].UID)
	}

	bimi := svc.ListOpen("BiMi")
	if len(bimi) != 1 || bimi[0].UID != beer.UID {
		t.Fatalf("ListOpen(BiMi) = %+v, want just #%d", bimi, beer.UID)
	}
	finanz := svc.ListOpen("Finanz")
	if len(finanz) != 1 || finanz[0].UID != money.UID {
		t.Fatalf("ListOpen(Finanz) = %+v, want just #%d", finanz, money.UID)
	}
}

func TestTicketService_CloseAll(t *testing.T) {
	svc := newTicketService(nil)
	for i := 0; i < 3; i++ {
		if _, err := svc.Create(context.Background(), "Weinstand", config.CategoryBeer, "Bier"); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	closed, err := svc.CloseAll(context.Background())
	if err != nil {
		t.Fatalf("CloseAll: %v", err)
	}
	if len(closed) != 3 {
		t.Fatalf("closed %d tickets, want 3", len(closed))
	}
	if remaining := svc.ListOpen(""); len(remaining) != 0 {
		t.Fatalf("%d tickets remain after CloseAll", len(remaining))
	}

	// Ids are never reused, even after the board is emptied.
	tk, _ := svc.Create(context.Background(), "Weinstand", config.CategoryBeer, "Bier")
	if tk.UID != 4 {
		t.Fatalf("next uid = %d, want 4", tk.UID)
	}
}
