// Package store provides storage backends for the booking bot.
//
// It holds the per-user conversation state (the session store), the read-only
// catalog of bookable venues and farms, and booking records. An in-memory store
// is used when no database DSN is configured.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/venuefarm/bookingbot/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// SessionStore persists one ConversationState per identifier with overwrite semantics.
type SessionStore interface {
	// GetConversationState returns nil, nil when no state exists for the identifier.
	GetConversationState(ctx context.Context, identifier string) (*models.ConversationState, error)
	SaveConversationState(ctx context.Context, state models.ConversationState) error
	DeleteConversationState(ctx context.Context, identifier string) error
}

// Catalog lists bookable items in a stable creation order.
type Catalog interface {
	ListByCategory(ctx context.Context, kind models.Kind, category string, limit int) ([]models.Item, error)
}

// BookingWriter persists finalized booking drafts.
type BookingWriter interface {
	CreateBooking(ctx context.Context, draft models.BookingDraft) (models.Booking, error)
}

// BookingCanceller cancels a booking owned by the given user.
// It returns ErrNotFound when the booking does not exist or belongs to someone else.
type BookingCanceller interface {
	CancelBooking(ctx context.Context, userIdentifier, bookingID string) (models.Booking, error)
}

// Store is the full persistence surface used by the application.
type Store interface {
	SessionStore
	Catalog
	BookingWriter
	BookingCanceller
	DedupRepo

	AddCatalogItem(ctx context.Context, item models.CatalogItem) error
	GetBooking(ctx context.Context, bookingID string) (*models.Booking, error)
	ListBookings(ctx context.Context, userIdentifier string) ([]models.Booking, error)
	Close() error
}

// Opts holds configuration options for SQL stores.
type Opts struct {
	DSN string
}

// Option defines a configuration option for SQL stores.
type Option func(*Opts)

// WithPostgresDSN sets the Postgres connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType returns the database/sql driver name for a DSN: "postgres" for
// Postgres URLs and key=value connection strings, "sqlite3" otherwise.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres"
	}
	// libpq key=value form, e.g. "host=localhost user=bot dbname=bookings"
	if !strings.Contains(dsn, "?") {
		for _, key := range []string{"host=", "user=", "dbname=", "sslmode="} {
			if strings.Contains(dsn, key) {
				return "postgres"
			}
		}
	}
	return "sqlite3"
}

// newBookingID returns a fresh booking identifier.
func newBookingID() string {
	return uuid.NewString()
}

// newBooking builds the record stored for a draft.
func newBooking(draft models.BookingDraft, now time.Time) models.Booking {
	status := draft.Status
	if status == "" {
		status = models.BookingStatusPending
	}
	return models.Booking{
		ID:             newBookingID(),
		UserIdentifier: draft.UserIdentifier,
		Kind:           draft.Kind,
		ItemID:         draft.ItemID,
		Date:           draft.Date,
		Status:         status,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// InMemoryStore is a Store kept entirely in process memory.
type InMemoryStore struct {
	mu       sync.RWMutex
	states   map[string]models.ConversationState
	catalog  []models.CatalogItem
	bookings map[string]models.Booking
	dedup    map[string]*DedupRecord
}

var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		states:   make(map[string]models.ConversationState),
		bookings: make(map[string]models.Booking),
		dedup:    make(map[string]*DedupRecord),
	}
}

func cloneState(s models.ConversationState) models.ConversationState {
	s.Selection.Candidates = slices.Clone(s.Selection.Candidates)
	return s
}

func (s *InMemoryStore) GetConversationState(ctx context.Context, identifier string) (*models.ConversationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[identifier]
	if !ok {
		return nil, nil
	}
	st = cloneState(st)
	return &st, nil
}

func (s *InMemoryStore) SaveConversationState(ctx context.Context, state models.ConversationState) error {
	if state.Identifier == "" {
		return models.ErrEmptyIdentifier
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.Identifier] = cloneState(state)
	return nil
}

func (s *InMemoryStore) DeleteConversationState(ctx context.Context, identifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, identifier)
	return nil
}

// AddCatalogItem appends an item; an existing item with the same ID is left untouched.
func (s *InMemoryStore) AddCatalogItem(ctx context.Context, item models.CatalogItem) error {
	if !item.Kind.IsValid() {
		return models.ErrInvalidKind
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.catalog {
		if existing.ID == item.ID {
			return nil
		}
	}
	s.catalog = append(s.catalog, item)
	sort.SliceStable(s.catalog, func(i, j int) bool {
		return s.catalog[i].CreatedAt.Before(s.catalog[j].CreatedAt)
	})
	return nil
}

func (s *InMemoryStore) ListByCategory(ctx context.Context, kind models.Kind, category string, limit int) ([]models.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var items []models.Item
	for _, it := range s.catalog {
		if limit > 0 && len(items) >= limit {
			break
		}
		if it.Active && it.Kind == kind && strings.EqualFold(it.Category, category) {
			items = append(items, it.Item)
		}
	}
	return items, nil
}

func (s *InMemoryStore) CreateBooking(ctx context.Context, draft models.BookingDraft) (models.Booking, error) {
	if err := draft.Validate(); err != nil {
		return models.Booking{}, fmt.Errorf("invalid booking draft: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return models.Booking{}, err
	}
	b := newBooking(draft, time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.Status == models.BookingStatusPending {
		for _, existing := range s.bookings {
			if existing.Status == models.BookingStatusPending && existing.UserIdentifier == b.UserIdentifier &&
				existing.ItemID == b.ItemID && existing.Date == b.Date {
				return existing, nil
			}
		}
	}
	s.bookings[b.ID] = b
	slog.Debug("InMemoryStore CreateBooking succeeded", "bookingID", b.ID, "identifier", b.UserIdentifier)
	return b, nil
}

func (s *InMemoryStore) CancelBooking(ctx context.Context, userIdentifier, bookingID string) (models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[bookingID]
	if !ok || b.UserIdentifier != userIdentifier {
		return models.Booking{}, ErrNotFound
	}
	b.Status = models.BookingStatusCancelled
	b.UpdatedAt = time.Now()
	s.bookings[bookingID] = b
	return b, nil
}

func (s *InMemoryStore) GetBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[bookingID]
	if !ok {
		return nil, ErrNotFound
	}
	return &b, nil
}

func (s *InMemoryStore) ListBookings(ctx context.Context, userIdentifier string) ([]models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Booking
	for _, b := range s.bookings {
		if b.UserIdentifier == userIdentifier {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) IsDuplicate(ctx context.Context, messageID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.dedup[messageID]
	return ok, nil
}

func (s *InMemoryStore) RecordInbound(ctx context.Context, messageID, senderID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dedup[messageID]; ok {
		return false, nil
	}
	s.dedup[messageID] = &DedupRecord{MessageID: messageID, SenderID: senderID, ReceivedAt: time.Now()}
	return true, nil
}

func (s *InMemoryStore) MarkProcessed(ctx context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.dedup[messageID]; ok {
		now := time.Now()
		rec.ProcessedAt = &now
	}
	return nil
}

func (s *InMemoryStore) PruneDedup(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, rec := range s.dedup {
		if rec.ProcessedAt != nil && rec.ReceivedAt.Before(cutoff) {
			delete(s.dedup, id)
			n++
		}
	}
	return n, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
