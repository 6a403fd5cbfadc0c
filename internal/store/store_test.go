package store

import (
	"context"
	"errors"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/venuefarm/bookingbot/internal/models"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(WithSQLiteDSN(filepath.Join(t.TempDir(), "state", "bookingbot.db")))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// testStoreContract exercises the behavior every Store implementation must share.
func testStoreContract(t *testing.T, s Store) {
	ctx := context.Background()

	t.Run("absent state", func(t *testing.T) {
		cs, err := s.GetConversationState(ctx, "910000000000")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cs != nil {
			t.Fatalf("expected nil state, got %+v", cs)
		}
	})

	t.Run("state round trip and overwrite", func(t *testing.T) {
		now := time.Now().UTC().Truncate(time.Second)
		st := models.NewConversationState("911111111111", now)
		st.Phase = models.PhaseBookingVenue
		st.Selection = models.Selection{
			Kind:       models.KindVenue,
			Category:   "Banquet Hall",
			Candidates: []models.Item{{ID: "v1", DisplayName: "Royal Palace"}, {ID: "v2", DisplayName: "Green Park"}},
		}
		if err := s.SaveConversationState(ctx, st); err != nil {
			t.Fatalf("SaveConversationState failed: %v", err)
		}
		got, err := s.GetConversationState(ctx, st.Identifier)
		if err != nil || got == nil {
			t.Fatalf("GetConversationState: %v %v", got, err)
		}
		if got.Phase != models.PhaseBookingVenue || len(got.Selection.Candidates) != 2 || got.Selection.Candidates[1].ID != "v2" {
			t.Fatalf("unexpected state: %+v", got)
		}

		st.Phase = models.PhaseBookingVenueDate
		st.Selection.ChosenItemID = "v2"
		if err := s.SaveConversationState(ctx, st); err != nil {
			t.Fatalf("SaveConversationState overwrite failed: %v", err)
		}
		got, _ = s.GetConversationState(ctx, st.Identifier)
		if got.Phase != models.PhaseBookingVenueDate || got.Selection.ChosenItemID != "v2" {
			t.Fatalf("overwrite not applied: %+v", got)
		}

		if err := s.DeleteConversationState(ctx, st.Identifier); err != nil {
			t.Fatalf("DeleteConversationState failed: %v", err)
		}
		got, _ = s.GetConversationState(ctx, st.Identifier)
		if got != nil {
			t.Fatalf("expected state to be deleted, got %+v", got)
		}
	})

	t.Run("empty identifier rejected", func(t *testing.T) {
		err := s.SaveConversationState(ctx, models.ConversationState{Phase: models.PhaseNew})
		if !errors.Is(err, models.ErrEmptyIdentifier) {
			t.Fatalf("expected ErrEmptyIdentifier, got %v", err)
		}
	})

	t.Run("catalog listing order and filters", func(t *testing.T) {
		base := time.Now().Add(-time.Hour)
		items := []models.CatalogItem{
			{Item: models.Item{ID: "c-farm", DisplayName: "Sunny Farm"}, Kind: models.KindFarm, Category: "Banquet Hall", Active: true, CreatedAt: base},
			{Item: models.Item{ID: "c-b", DisplayName: "Second"}, Kind: models.KindVenue, Category: "Banquet Hall", Active: true, CreatedAt: base.Add(2 * time.Second)},
			{Item: models.Item{ID: "c-a", DisplayName: "First"}, Kind: models.KindVenue, Category: "Banquet Hall", Active: true, CreatedAt: base.Add(time.Second)},
			{Item: models.Item{ID: "c-off", DisplayName: "Closed"}, Kind: models.KindVenue, Category: "Banquet Hall", Active: false, CreatedAt: base.Add(3 * time.Second)},
			{Item: models.Item{ID: "c-c", DisplayName: "Third"}, Kind: models.KindVenue, Category: "banquet hall", Active: true, CreatedAt: base.Add(4 * time.Second)},
		}
		for _, it := range items {
			if err := s.AddCatalogItem(ctx, it); err != nil {
				t.Fatalf("AddCatalogItem(%s) failed: %v", it.ID, err)
			}
		}
		got, err := s.ListByCategory(ctx, models.KindVenue, "Banquet Hall", 5)
		if err != nil {
			t.Fatalf("ListByCategory failed: %v", err)
		}
		want := []string{"c-a", "c-b", "c-c"}
		if len(got) != len(want) {
			t.Fatalf("expected %d items, got %+v", len(want), got)
		}
		for i, id := range want {
			if got[i].ID != id {
				t.Fatalf("item %d: expected %s, got %s", i, id, got[i].ID)
			}
		}

		limited, err := s.ListByCategory(ctx, models.KindVenue, "Banquet Hall", 2)
		if err != nil || len(limited) != 2 {
			t.Fatalf("expected 2 items with limit, got %+v, %v", limited, err)
		}

		none, err := s.ListByCategory(ctx, models.KindVenue, "Party Lawn", 5)
		if err != nil || len(none) != 0 {
			t.Fatalf("expected no items, got %+v, %v", none, err)
		}
	})

	t.Run("booking lifecycle", func(t *testing.T) {
		if err := s.AddCatalogItem(ctx, models.CatalogItem{
			Item: models.Item{ID: "bk-item", DisplayName: "Rose Garden"}, Kind: models.KindVenue, Category: "Marriage Garden", Active: true,
		}); err != nil {
			t.Fatalf("AddCatalogItem failed: %v", err)
		}
		b, err := s.CreateBooking(ctx, models.BookingDraft{
			UserIdentifier: "912222222222", Kind: models.KindVenue, ItemID: "bk-item", Date: "2030-05-01",
		})
		if err != nil {
			t.Fatalf("CreateBooking failed: %v", err)
		}
		if b.ID == "" || b.Status != models.BookingStatusPending {
			t.Fatalf("unexpected booking: %+v", b)
		}
		again, err := s.CreateBooking(ctx, models.BookingDraft{
			UserIdentifier: "912222222222", Kind: models.KindVenue, ItemID: "bk-item", Date: "2030-05-01",
		})
		if err != nil || again.ID != b.ID {
			t.Fatalf("repeated pending draft should return %s, got %+v, %v", b.ID, again, err)
		}

		got, err := s.GetBooking(ctx, b.ID)
		if err != nil || got.Date != "2030-05-01" || got.ItemID != "bk-item" {
			t.Fatalf("GetBooking: %+v, %v", got, err)
		}

		if _, err := s.CancelBooking(ctx, "someone-else", b.ID); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound for foreign cancel, got %v", err)
		}
		cancelled, err := s.CancelBooking(ctx, "912222222222", b.ID)
		if err != nil || cancelled.Status != models.BookingStatusCancelled {
			t.Fatalf("CancelBooking: %+v, %v", cancelled, err)
		}

		list, err := s.ListBookings(ctx, "912222222222")
		if err != nil || len(list) != 1 {
			t.Fatalf("ListBookings: %+v, %v", list, err)
		}

		rebooked, err := s.CreateBooking(ctx, models.BookingDraft{
			UserIdentifier: "912222222222", Kind: models.KindVenue, ItemID: "bk-item", Date: "2030-05-01",
		})
		if err != nil || rebooked.ID == b.ID {
			t.Fatalf("booking after cancellation should be new, got %+v, %v", rebooked, err)
		}
		if _, err := s.GetBooking(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("incomplete draft rejected", func(t *testing.T) {
		_, err := s.CreateBooking(ctx, models.BookingDraft{UserIdentifier: "1", Kind: models.KindFarm})
		if !errors.Is(err, models.ErrEmptyBookingItem) {
			t.Fatalf("expected ErrEmptyBookingItem, got %v", err)
		}
	})

	t.Run("dedup", func(t *testing.T) {
		first, err := s.RecordInbound(ctx, "wamid.1", "913333333333")
		if err != nil || !first {
			t.Fatalf("first RecordInbound: %v, %v", first, err)
		}
		again, err := s.RecordInbound(ctx, "wamid.1", "913333333333")
		if err != nil || again {
			t.Fatalf("duplicate RecordInbound should return false: %v, %v", again, err)
		}
		dup, err := s.IsDuplicate(ctx, "wamid.1")
		if err != nil || !dup {
			t.Fatalf("IsDuplicate: %v, %v", dup, err)
		}
		if err := s.MarkProcessed(ctx, "wamid.1"); err != nil {
			t.Fatalf("MarkProcessed failed: %v", err)
		}
		dup, _ = s.IsDuplicate(ctx, "wamid.2")
		if dup {
			t.Fatal("unknown message reported as duplicate")
		}

		if _, err := s.RecordInbound(ctx, "wamid.3", "913333333333"); err != nil {
			t.Fatalf("RecordInbound: %v", err)
		}
		n, err := s.PruneDedup(ctx, time.Now().Add(time.Hour))
		if err != nil || n != 1 {
			t.Fatalf("PruneDedup should drop only the processed record: %d, %v", n, err)
		}
		if dup, _ := s.IsDuplicate(ctx, "wamid.1"); dup {
			t.Fatal("pruned message still reported as duplicate")
		}
		if dup, _ := s.IsDuplicate(ctx, "wamid.3"); !dup {
			t.Fatal("unprocessed message must survive pruning")
		}
	})
}

func TestInMemoryStore(t *testing.T) {
	testStoreContract(t, NewInMemoryStore())
}

func TestSQLiteStore(t *testing.T) {
	testStoreContract(t, newTestSQLiteStore(t))
}

func TestSQLiteStoreCorruptSelection(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Now()
	_, err := s.db.Exec(`INSERT INTO conversation_states (identifier, phase, selection, last_interaction, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		"914444444444", "booking_farm", "{not json", now, now, now)
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	cs, err := s.GetConversationState(ctx, "914444444444")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cs.Selection.IsEmpty() {
		t.Fatalf("expected empty selection for corrupt row, got %+v", cs.Selection)
	}
	if err := cs.Validate(); err == nil {
		t.Fatal("expected corrupt state to fail validation")
	}
}

func TestPostgresStore(t *testing.T) {
	// This test requires a running PostgreSQL instance.
	// Set the DATABASE_URL environment variable for connection string.
	connStr := getenvOrSkip(t, "DATABASE_URL")
	pgStore, err := NewPostgresStore(WithPostgresDSN(connStr))
	if err != nil {
		t.Skipf("Postgres not available: %v", err)
	}
	defer pgStore.Close()
	// Clean up tables before test
	for _, table := range []string{"bookings", "catalog_items", "conversation_states", "inbound_dedup"} {
		pgStore.db.Exec("DELETE FROM " + table)
	}
	testStoreContract(t, pgStore)
}

func TestDetectDSNType(t *testing.T) {
	cases := map[string]string{
		"postgres://user:pw@localhost/db":      "postgres",
		"postgresql://localhost/db":            "postgres",
		"host=localhost user=bot dbname=db":    "postgres",
		"user=bot password=secret dbname=test": "postgres",
		"/var/lib/bookingbot/state.db":         "sqlite3",
		"file:test.db?_foreign_keys=on":        "sqlite3",
	}
	for dsn, want := range cases {
		if got := DetectDSNType(dsn); got != want {
			t.Errorf("DetectDSNType(%q) = %q, want %q", dsn, got, want)
		}
	}
}

func getenvOrSkip(t *testing.T, key string) string {
	v := ""
	if val, ok := syscall.Getenv(key); ok {
		v = val
	}
	if v == "" {
		t.Skipf("env %s not set", key)
	}
	return v
}
