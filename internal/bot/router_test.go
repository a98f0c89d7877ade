package bot

import (
	"context"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/tbourn/go-supply-bot/internal/config"
	"github.com/tbourn/go-supply-bot/internal/services"
	"github.com/tbourn/go-supply-bot/internal/state"
)

// ----- Fake transport -----

type sentMsg struct {
	chatID int64
	text   string
}

type fakeTransport struct {
	sent []sentMsg
}

func (f *fakeTransport) SendMessage(ctx context.Context, chatID int64, text string) error {
	f.sent = append(f.sent, sentMsg{chatID, text})
	return nil
}

// lastTo returns the last message delivered to chatID, empty when none.
func (f *fakeTransport) lastTo(chatID int64) string {
	for i := len(f.sent) - 1; i >= 0; i-- {
		if f.sent[i].chatID == chatID {
			return f.sent[i].text
		}
	}
	return ""
}

// ----- Fixture -----

const (
	devChatID     = int64(900)
	channelChatID = int64(-100)
)

func testGroups() config.Groups {
	return config.Groups{
		Stalls:        []string{"Weinstand", "Bierstand"},
		Orga:          []string{"Zentrale", "Finanz", "BiMi"},
		Locations:     map[string]string{"Weinstand": "Unibibliothek"},
		Categories:    config.DefaultCategories(),
		DefaultTasked: "Zentrale",
	}
}

func newTestRouter() (*Router, *fakeTransport) {
	store := state.New(nil, nil)
	tr := &fakeTransport{}
	groups := testGroups()
	roster := services.NewRosterService(store)
	tickets := services.NewTicketService(store, groups, nil)
	notify := services.NewNotifyService(store, tr, channelChatID, devChatID, 100, 10)
	wizard := services.NewWizardService(store, tickets, notify, groups)
	return NewRouter(roster, tickets, wizard, notify, tr, groups, devChatID), tr
}

// update builds an inbound message; a leading "/" marks the first word as a
// bot command entity the way the Bot API does.
func update(chatID int64, text string) tgbotapi.Update {
	msg := &tgbotapi.Message{
		Text: text,
		Chat: &tgbotapi.Chat{ID: chatID},
		From: &tgbotapi.User{FirstName: "Alice", UserName: "alice"},
	}
	if strings.HasPrefix(text, "/") {
		cmdLen := len(text)
		if i := strings.Index(text, " "); i > 0 {
			cmdLen = i
		}
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: cmdLen}}
	}
	return tgbotapi.Update{Message: msg}
}

// ----- Tests -----

func TestRouter_UnknownCommand(t *testing.T) {
	r, tr := newTestRouter()
	r.HandleUpdate(context.Background(), update(1, "/frobnicate"))
	if got := tr.lastTo(1); !strings.Contains(got, "/help") {
		t.Fatalf("reply = %q, want the unknown-command text", got)
	}
}

func TestRouter_FreeTextOutsideWizard(t *testing.T) {
	r, tr := newTestRouter()
	r.HandleUpdate(context.Background(), update(1, "hallo"))
	if got := tr.lastTo(1); !strings.Contains(got, "nicht erkannt") {
		t.Fatalf("reply = %q, want the unknown text", got)
	}
}

func TestRouter_RegisterAndStatus(t *testing.T) {
	r, tr := newTestRouter()

	r.HandleUpdate(context.Background(), update(1, "/register weinstand"))
	if got := tr.lastTo(1); !strings.Contains(got, "[Weinstand]") {
		t.Fatalf("register reply = %q", got)
	}
	// Registration is mirrored to the updates channel.
	if got := tr.lastTo(channelChatID); !strings.Contains(got, "Weinstand") {
		t.Fatalf("channel log = %q", got)
	}

	r.HandleUpdate(context.Background(), update(1, "/status"))
	if got := tr.lastTo(1); !strings.Contains(got, "Weinstand") {
		t.Fatalf("status reply = %q", got)
	}
}

func TestRouter_RegisterUnknownGroupListsOptions(t *testing.T) {
	r, tr := newTestRouter()
	r.HandleUpdate(context.Background(), update(1, "/register Pommesbude"))
	got := tr.lastTo(1)
	if !strings.Contains(got, "Unbekannte Gruppe") || !strings.Contains(got, "Weinstand") {
		t.Fatalf("reply = %q, want the group listing", got)
	}
}

func TestRouter_OrgaCommandDeniedForStall(t *testing.T) {
	r, tr := newTestRouter()
	r.HandleUpdate(context.Background(), update(1, "/register weinstand"))

	r.HandleUpdate(context.Background(), update(1, "/all"))
	if got := tr.lastTo(1); !strings.Contains(got, "nicht zur Ausführung") {
		t.Fatalf("reply = %q, want the denial text", got)
	}
	// The attempt is mirrored to the developer.
	if got := tr.lastTo(devChatID); !strings.Contains(got, "/all") {
		t.Fatalf("developer alert = %q", got)
	}
}

func TestRouter_DeveloperCommandDeniedForOrga(t *testing.T) {
	r, tr := newTestRouter()
	r.HandleUpdate(context.Background(), update(1, "/register zentrale"))

	r.HandleUpdate(context.Background(), update(1, "/resetall"))
	if got := tr.lastTo(1); !strings.Contains(got, "nicht zur Ausführung") {
		t.Fatalf("reply = %q, want the denial text", got)
	}
}

func TestRouter_WizardEndToEnd(t *testing.T) {
	r, tr := newTestRouter()
	r.HandleUpdate(context.Background(), update(1, "/register weinstand"))

	r.HandleUpdate(context.Background(), update(1, "/request"))
	if got := tr.lastTo(1); !strings.Contains(got, "Kategorie") {
		t.Fatalf("request reply = %q", got)
	}
	r.HandleUpdate(context.Background(), update(1, "Geld"))
	if got := tr.lastTo(1); !strings.Contains(got, "Wechselgeld") {
		t.Fatalf("money prompt = %q", got)
	}
	r.HandleUpdate(context.Background(), update(1, "Geld Abholen"))
	if got := tr.lastTo(1); !strings.Contains(got, "Ticket #1 erstellt") {
		t.Fatalf("confirmation = %q", got)
	}

	// The ticket is now visible to the responsible organizer group.
	if tk, err := r.Tickets.Get(1); err != nil || tk.GroupTasked != "Finanz" {
		t.Fatalf("ticket = %+v err = %v, want tasked Finanz", tk, err)
	}
}

func TestRouter_WIPAndCloseFlow(t *testing.T) {
	r, tr := newTestRouter()
	r.HandleUpdate(context.Background(), update(1, "/register weinstand"))
	r.HandleUpdate(context.Background(), update(2, "/register finanz"))

	// Create one money ticket via the wizard.
	r.HandleUpdate(context.Background(), update(1, "/request"))
	r.HandleUpdate(context.Background(), update(1, "Geld"))
	r.HandleUpdate(context.Background(), update(1, "Geld Abholen"))

	r.HandleUpdate(context.Background(), update(2, "/wip 1"))
	if got := tr.lastTo(2); !strings.Contains(got, "🟢 WIP") {
		t.Fatalf("wip reply = %q", got)
	}
	// The requesting stall hears about the progress.
	if got := tr.lastTo(1); !strings.Contains(got, "angefangen") {
		t.Fatalf("requester notice = %q", got)
	}

	r.HandleUpdate(context.Background(), update(2, "/close 1"))
	if got := tr.lastTo(2); !strings.Contains(got, "✅ CLOSED") {
		t.Fatalf("close reply = %q", got)
	}
	if got := tr.lastTo(1); !strings.Contains(got, "bearbeitet") {
		t.Fatalf("requester close notice = %q", got)
	}
}

func TestRouter_RevokeOwnTicket(t *testing.T) {
	r, tr := newTestRouter()
	r.HandleUpdate(context.Background(), update(1, "/register weinstand"))
	r.HandleUpdate(context.Background(), update(1, "/request"))
	r.HandleUpdate(context.Background(), update(1, "Bier"))
	r.HandleUpdate(context.Background(), update(1, "2 Fässer übrig"))

	r.HandleUpdate(context.Background(), update(1, "/revoke 1"))
	if got := tr.lastTo(1); !strings.Contains(got, "zurückgezogen") {
		t.Fatalf("revoke reply = %q", got)
	}
	if _, err := r.Tickets.Get(1); err == nil {
		t.Fatal("revoked ticket still live")
	}
}

func TestRouter_WIPWithExplicitWorker(t *testing.T) {
	r, _ := newTestRouter()
	r.HandleUpdate(context.Background(), update(1, "/register zentrale"))
	if _, err := r.Tickets.Create(context.Background(), "Weinstand", "Sonstiges", "Eis"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	r.HandleUpdate(context.Background(), update(1, "/wip 1 Bob"))
	tk, err := r.Tickets.Get(1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if tk.Worker != "Bob" {
		t.Fatalf("worker = %q, want Bob", tk.Worker)
	}
}

func TestRouter_WIPWithBadID(t *testing.T) {
	r, tr := newTestRouter()
	r.HandleUpdate(context.Background(), update(1, "/register zentrale"))

	r.HandleUpdate(context.Background(), update(1, "/wip drei"))
	if got := tr.lastTo(1); !strings.Contains(got, "valide Zahl") {
		t.Fatalf("reply = %q", got)
	}
	r.HandleUpdate(context.Background(), update(1, "/wip 99"))
	if got := tr.lastTo(1); !strings.Contains(got, "kein offenes Ticket") {
		t.Fatalf("reply = %q", got)
	}
}

func TestDisplayName(t *testing.T) {
	cases := []struct {
		user *tgbotapi.User
		want string
	}{
		{nil, "<unbekannt>"},
		{&tgbotapi.User{FirstName: "Alice"}, "Alice"},
		{&tgbotapi.User{FirstName: "Alice", LastName: "B"}, "Alice B"},
		{&tgbotapi.User{FirstName: "Alice", UserName: "al"}, "Alice <@al>"},
	}
	for _, tc := range cases {
		if got := displayName(tc.user); got != tc.want {
			t.Errorf("displayName = %q, want %q", got, tc.want)
		}
	}
}
