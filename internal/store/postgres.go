// Package store provides storage backends for the booking bot.
//
// This file implements a PostgreSQL-backed store.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	_ "github.com/lib/pq"
	"github.com/venuefarm/bookingbot/internal/models"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore is a Store backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

// GetConversationState retrieves the conversation state for an identifier.
func (s *PostgresStore) GetConversationState(ctx context.Context, identifier string) (*models.ConversationState, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT identifier, phase, selection, last_interaction, created_at FROM conversation_states WHERE identifier = $1`,
		identifier)
	cs, err := scanConversationState(row)
	if errors.Is(err, sql.ErrNoRows) {
		slog.Debug("PostgresStore GetConversationState not found", "identifier", identifier)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetConversationState failed", "error", err, "identifier", identifier)
		return nil, fmt.Errorf("failed to load conversation state for %s: %w", identifier, err)
	}
	return &cs, nil
}

// SaveConversationState upserts the conversation state.
func (s *PostgresStore) SaveConversationState(ctx context.Context, state models.ConversationState) error {
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
		INSERT INTO conversation_states (identifier, phase, selection, last_interaction, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (identifier) DO UPDATE SET
			phase = EXCLUDED.phase,
			selection = EXCLUDED.selection,
			last_interaction = EXCLUDED.last_interaction,
			updated_at = EXCLUDED.updated_at`,
		state.Identifier, string(state.Phase), nilIfEmpty(selection), state.LastInteraction, state.CreatedAt, now)
	if err != nil {
		slog.Error("PostgresStore SaveConversationState failed", "error", err, "identifier", state.Identifier)
		return fmt.Errorf("failed to save conversation state for %s: %w", state.Identifier, err)
	}
	slog.Debug("PostgresStore SaveConversationState succeeded", "identifier", state.Identifier, "phase", state.Phase)
	return nil
}

// DeleteConversationState removes the conversation state for an identifier.
func (s *PostgresStore) DeleteConversationState(ctx context.Context, identifier string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM conversation_states WHERE identifier = $1`, identifier); err != nil {
		slog.Error("PostgresStore DeleteConversationState failed", "error", err, "identifier", identifier)
		return err
	}
	return nil
}

// AddCatalogItem inserts a catalog item, ignoring an existing ID.
func (s *PostgresStore) AddCatalogItem(ctx context.Context, item models.CatalogItem) error {
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
		INSERT INTO catalog_items (id, kind, category, display_name, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (id) DO NOTHING`,
		item.ID, string(item.Kind), item.Category, item.DisplayName, item.Active, item.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert catalog item %s: %w", item.ID, err)
	}
	return nil
}

// ListByCategory returns up to limit active items of a kind and category in creation order.
func (s *PostgresStore) ListByCategory(ctx context.Context, kind models.Kind, category string, limit int) ([]models.Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, display_name FROM catalog_items
		WHERE kind = $1 AND lower(category) = lower($2) AND active
		ORDER BY created_at ASC, id ASC LIMIT $3`,
		string(kind), category, limit)
	if err != nil {
		slog.Error("PostgresStore ListByCategory query failed", "error", err, "kind", kind, "category", category)
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
	slog.Debug("PostgresStore ListByCategory succeeded", "kind", kind, "category", category, "count", len(items))
	return items, nil
}

// CreateBooking persists a booking draft. A pending booking for the same
// user, item and date is returned instead of inserting a duplicate.
func (s *PostgresStore) CreateBooking(ctx context.Context, draft models.BookingDraft) (models.Booking, error) {
	if err := draft.Validate(); err != nil {
		return models.Booking{}, fmt.Errorf("invalid booking draft: %w", err)
	}
	b := newBooking(draft, time.Now())
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO bookings (id, user_identifier, kind, item_id, booking_date, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT DO NOTHING`,
		b.ID, b.UserIdentifier, string(b.Kind), b.ItemID, b.Date, string(b.Status), b.CreatedAt, b.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore CreateBooking failed", "error", err, "identifier", b.UserIdentifier)
		return models.Booking{}, fmt.Errorf("failed to insert booking: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		row := s.db.QueryRowContext(ctx, `
			SELECT id, user_identifier, kind, item_id, booking_date, status, created_at, updated_at
			FROM bookings WHERE user_identifier = $1 AND item_id = $2 AND booking_date = $3 AND status = $4`,
			b.UserIdentifier, b.ItemID, b.Date, string(models.BookingStatusPending))
		existing, err := scanBooking(row)
		if err != nil {
			return models.Booking{}, fmt.Errorf("failed to load existing booking: %w", err)
		}
		slog.Info("PostgresStore CreateBooking returned existing pending booking", "bookingID", existing.ID, "identifier", existing.UserIdentifier)
		return existing, nil
	}
	slog.Debug("PostgresStore CreateBooking succeeded", "bookingID", b.ID, "identifier", b.UserIdentifier)
	return b, nil
}

// CancelBooking marks a booking owned by userIdentifier as cancelled.
func (s *PostgresStore) CancelBooking(ctx context.Context, userIdentifier, bookingID string) (models.Booking, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE bookings SET status = $1, updated_at = $2
		WHERE id = $3 AND user_identifier = $4
		RETURNING id, user_identifier, kind, item_id, booking_date::text, status, created_at, updated_at`,
		string(models.BookingStatusCancelled), time.Now(), bookingID, userIdentifier)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Booking{}, ErrNotFound
	}
	if err != nil {
		return models.Booking{}, fmt.Errorf("failed to cancel booking %s: %w", bookingID, err)
	}
	return b, nil
}

// GetBooking loads a booking by ID.
func (s *PostgresStore) GetBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_identifier, kind, item_id, booking_date::text, status, created_at, updated_at
		FROM bookings WHERE id = $1`, bookingID)
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
func (s *PostgresStore) ListBookings(ctx context.Context, userIdentifier string) ([]models.Booking, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_identifier, kind, item_id, booking_date::text, status, created_at, updated_at
		FROM bookings WHERE user_identifier = $1 ORDER BY created_at ASC`, userIdentifier)
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

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
