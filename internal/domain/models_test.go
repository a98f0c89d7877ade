package domain

import (
	"strings"
	"testing"
)

func TestTicketStatus_Label(t *testing.T) {
	cases := map[TicketStatus]string{
		StatusOpen:    "🟠 OPEN",
		StatusWIP:     "🟢 WIP",
		StatusClosed:  "✅ CLOSED",
		StatusRevoked: "❌ REVOKED",
	}
	for status, want := range cases {
		if got := status.Label(); got != want {
			t.Errorf("Label(%s) = %q, want %q", status, got, want)
		}
	}
}

func TestTicketStatus_Terminal(t *testing.T) {
	if StatusOpen.Terminal() || StatusWIP.Terminal() {
		t.Error("live statuses reported as terminal")
	}
	if !StatusClosed.Terminal() || !StatusRevoked.Terminal() {
		t.Error("terminal statuses not reported as terminal")
	}
}

func TestTicket_String(t *testing.T) {
	tk := Ticket{UID: 3, Status: StatusOpen, Text: "Geld abholen an Stand Unibibliothek"}
	got := tk.String()
	if !strings.Contains(got, "#3") || !strings.Contains(got, "🟠 OPEN") || !strings.Contains(got, tk.Text) {
		t.Fatalf("String() = %q", got)
	}
}

func TestSession_WizardActive_NilSafe(t *testing.T) {
	var s *Session
	if s.WizardActive() {
		t.Fatal("nil session reported as active")
	}
	s = &Session{}
	if s.WizardActive() {
		t.Fatal("session without run reported as active")
	}
	s.Wizard = &WizardRun{Step: StepRequest}
	if !s.WizardActive() {
		t.Fatal("session with run not reported as active")
	}
}

func TestState_Session_CreatesOnMiss(t *testing.T) {
	st := NewState()
	s := st.Session(7)
	if s == nil {
		t.Fatal("Session returned nil")
	}
	if st.Session(7) != s {
		t.Fatal("Session did not return the stored instance")
	}
}

func TestTicket_Snapshot(t *testing.T) {
	tk := Ticket{UID: 5, Status: StatusWIP, GroupRequesting: "Weinstand", GroupTasked: "BiMi", Text: "Bier", Worker: "Alice"}
	snap := tk.Snapshot()
	if snap.UID != 5 || snap.Status != "WIP" || snap.Worker != "Alice" {
		t.Fatalf("Snapshot = %+v", snap)
	}
}
