package repo

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"gorm.io/gorm"

	"github.com/tbourn/go-supply-bot/internal/domain"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "bot.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		t.Cleanup(func() { _ = sqlDB.Close() })
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	return db
}

func TestOpenSQLite_ErrorOnBadPath(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "does-not-exist", "bot.db")
	if db, err := OpenSQLite(bad); err == nil || db != nil {
		t.Fatalf("expected error opening %q, got db=%v err=%v", bad, db, err)
	}
}

func TestLoadState_EmptyDatabase(t *testing.T) {
	db := openTestDB(t)

	st, err := LoadState(context.Background(), db)
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if st.HighestID != 0 || len(st.Tickets) != 0 || len(st.Groups) != 0 || len(st.Sessions) != 0 {
		t.Fatalf("fresh state not empty: %+v", st)
	}
}

func TestSaveState_RoundTrip(t *testing.T) {
	db := openTestDB(t)

	st := domain.NewState()
	st.HighestID = 7
	st.Tickets[7] = &domain.Ticket{
		UID:             7,
		Status:          domain.StatusWIP,
		GroupRequesting: "Weinstand",
		GroupTasked:     "BiMi",
		Text:            "Bier",
		Worker:          "Alice",
	}
	st.Groups["Weinstand"] = []int64{1, 2}
	st.Sessions[1] = &domain.Session{Group: "Weinstand"}

	if err := SaveState(context.Background(), db, st); err != nil {
		t.Fatalf("SaveState: %v", err)
	}
	// The second save must upsert, not insert a second row.
	st.HighestID = 8
	if err := SaveState(context.Background(), db, st); err != nil {
		t.Fatalf("second SaveState: %v", err)
	}

	got, err := LoadState(context.Background(), db)
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if got.HighestID != 8 {
		t.Fatalf("HighestID = %d, want 8", got.HighestID)
	}
	tk := got.Tickets[7]
	if tk == nil || tk.Status != domain.StatusWIP || tk.Worker != "Alice" {
		t.Fatalf("ticket = %+v, want the WIP ticket back", tk)
	}
	if len(got.Groups["Weinstand"]) != 2 {
		t.Fatalf("members = %v, want [1 2]", got.Groups["Weinstand"])
	}
	if got.Sessions[1] == nil || got.Sessions[1].Group != "Weinstand" {
		t.Fatalf("session = %+v, want Weinstand", got.Sessions[1])
	}

	var count int64
	if err := db.Model(&domain.StateRecord{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("bot_state rows = %d, want 1", count)
	}
}

func TestLoadState_CorruptBlobIsAnError(t *testing.T) {
	db := openTestDB(t)

	rec := domain.StateRecord{ID: 1, Data: []byte("{not json")}
	if err := db.Create(&rec).Error; err != nil {
		t.Fatalf("seed corrupt row: %v", err)
	}

	if _, err := LoadState(context.Background(), db); err == nil || !strings.Contains(err.Error(), "corrupt") {
		t.Fatalf("LoadState err = %v, want corrupt blob error", err)
	}
}

func TestLoadState_RepairsNullMaps(t *testing.T) {
	db := openTestDB(t)

	rec := domain.StateRecord{ID: 1, Data: []byte(`{"highest_id":3,"tickets":null,"groups":null,"sessions":null}`)}
	if err := db.Create(&rec).Error; err != nil {
		t.Fatalf("seed row: %v", err)
	}

	st, err := LoadState(context.Background(), db)
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if st.HighestID != 3 {
		t.Fatalf("HighestID = %d, want 3", st.HighestID)
	}
	if st.Tickets == nil || st.Groups == nil || st.Sessions == nil {
		t.Fatal("null maps not repaired")
	}
}
