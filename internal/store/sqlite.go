// Package store provides storage backends for the booking bot.
//
// This file implements an SQLite-backed store.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"
	"github.com/venuefarm/bookingbot/internal/models"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore is a Store backed by a single SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	// one writer at a time; avoids SQLITE_BUSY under concurrent conversations
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully", "dir", dir)

	return &SQLiteStore{db: db}, nil
}

// GetConversationState retrieves the conversation state for an identifier.
func (s *SQLiteStore) GetConversationState(ctx context.Context, identifier string) (*models.ConversationState, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT identifier, phase, selection, last_interaction, created_at FROM conversation_states WHERE identifier = ?`,
		identifier)
	cs, err := scanConversationState(row)
	if errors.Is(err, sql.ErrNoRows) {
		slog.Debug("SQLiteStore GetConversationState not found", "identifier", identifier)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetConversationState failed", "error", err, "identifier", identifier)
		return nil, fmt.Errorf("failed to load conversation state for %s: %w", identifier, err)
	}
	return &cs, nil
}

// SaveConversationState stores or replaces the conversation state.
func (s *SQLiteStore) SaveConversationState(ctx context.Context, state models.ConversationState) error {
	if state.Identifier == "" {
		return models.ErrEmptyIdentifier
	}
	selection, err := encodeSelection(state.Selection)
	if err != nil {
		return err
	}
	now := time.Now()
	if state.CreatedAt.IsZero() {
		state.CreatedAt = now
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO conversation_states (identifier, phase, selection, last_interaction, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		state.Identifier, string(state.Phase), selection, state.LastInteraction, state.CreatedAt, now)
	if err != nil {
		slog.Error("SQLiteStore SaveConversationState failed", "error", err, "identifier", state.Identifier)
		return fmt.Errorf("failed to save conversation state for %s: %w", state.Identifier, err)
	}
	slog.Debug("SQLiteStore SaveConversationState succeeded", "identifier", state.Identifier, "phase", state.Phase)
	return nil
}

// DeleteConversationState removes the conversation state for an identifier.
func (s *SQLiteStore) DeleteConversationState(ctx context.Context, identifier string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM conversation_states WHERE identifier = ?`, identifier); err != nil {
		slog.Error("SQLiteStore DeleteConversationState failed", "error", err, "identifier", identifier)
		return err
	}
	return nil
}

// AddCatalogItem inserts a catalog item, ignoring an existing ID.
func (s *SQLiteStore) AddCatalogItem(ctx context.Context, item models.CatalogItem) error {
	if !item.Kind.IsValid() {
		return models.ErrInvalidKind
	}
	if item.ID == "" {
		item.ID = newBookingID()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO catalog_items (id, kind, category, display_name, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		item.ID, string(item.Kind), item.Category, item.DisplayName, item.Active, item.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert catalog item %s: %w", item.ID, err)
	}
	return nil
}

// ListByCategory returns up to limit active items of a kind and category in creation order.
func (s *SQLiteStore) ListByCategory(ctx context.Context, kind models.Kind, category string, limit int) ([]models.Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, display_name FROM catalog_items
		WHERE kind = ? AND category = ? COLLATE NOCASE AND active = 1
		ORDER BY created_at ASC, id ASC LIMIT ?`,
		string(kind), category, limit)
	if err != nil {
		slog.Error("SQLiteStore ListByCategory query failed", "error", err, "kind", kind, "category", category)
		return nil, fmt.Errorf("failed to query catalog: %w", err)
	}
	defer rows.Close()

	var items []models.Item
	for rows.Next() {
		var it models.Item
		if err := rows.Scan(&it.ID, &it.DisplayName); err != nil {
			return nil, fmt.Errorf("failed to scan catalog row: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate catalog rows: %w", err)
	}
	slog.Debug("SQLiteStore ListByCategory succeeded", "kind", kind, "category", category, "count", len(items))
	return items, nil
}

// CreateBooking persists a booking draft. A pending booking for the same
// user, item and date is returned instead of inserting a duplicate.
func (s *SQLiteStore) CreateBooking(ctx context.Context, draft models.BookingDraft) (models.Booking, error) {
	if err := draft.Validate(); err != nil {
		return models.Booking{}, fmt.Errorf("invalid booking draft: %w", err)
	}
	b := newBooking(draft, time.Now())
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO bookings (id, user_identifier, kind, item_id, booking_date, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`,
		b.ID, b.UserIdentifier, string(b.Kind), b.ItemID, b.Date, string(b.Status), b.CreatedAt, b.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore CreateBooking failed", "error", err, "identifier", b.UserIdentifier)
		return models.Booking{}, fmt.Errorf("failed to insert booking: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		row := s.db.QueryRowContext(ctx, `
			SELECT id, user_identifier, kind, item_id, booking_date, status, created_at, updated_at
			FROM bookings WHERE user_identifier = ? AND item_id = ? AND booking_date = ? AND status = ?`,
			b.UserIdentifier, b.ItemID, b.Date, string(models.BookingStatusPending))
		existing, err := scanBooking(row)
		if err != nil {
			return models.Booking{}, fmt.Errorf("failed to load existing booking: %w", err)
		}
		slog.Info("SQLiteStore CreateBooking returned existing pending booking", "bookingID", existing.ID, "identifier", existing.UserIdentifier)
		return existing, nil
	}
	slog.Debug("SQLiteStore CreateBooking succeeded", "bookingID", b.ID, "identifier", b.UserIdentifier)
	return b, nil
}

// CancelBooking marks a booking owned by userIdentifier as cancelled.
func (s *SQLiteStore) CancelBooking(ctx context.Context, userIdentifier, bookingID string) (models.Booking, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE bookings SET status = ?, updated_at = ? WHERE id = ? AND user_identifier = ?`,
		string(models.BookingStatusCancelled), time.Now(), bookingID, userIdentifier)
	if err != nil {
		return models.Booking{}, fmt.Errorf("failed to cancel booking %s: %w", bookingID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return models.Booking{}, fmt.Errorf("cancel rows affected check failed: %w", err)
	}
	if n == 0 {
		return models.Booking{}, ErrNotFound
	}
	b, err := s.GetBooking(ctx, bookingID)
	if err != nil {
		return models.Booking{}, err
	}
	return *b, nil
}

// GetBooking loads a booking by ID.
func (s *SQLiteStore) GetBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_identifier, kind, item_id, booking_date, status, created_at, updated_at
		FROM bookings WHERE id = ?`, bookingID)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load booking %s: %w", bookingID, err)
	}
	return &b, nil
}

// ListBookings returns a user's bookings oldest first.
func (s *SQLiteStore) ListBookings(ctx context.Context, userIdentifier string) ([]models.Booking, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_identifier, kind, item_id, booking_date, status, created_at, updated_at
		FROM bookings WHERE user_identifier = ? ORDER BY created_at ASC`, userIdentifier)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()
	var out []models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking row: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
