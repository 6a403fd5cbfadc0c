package flow

import (
	"context"

	"github.com/venuefarm/bookingbot/internal/models"
	"github.com/venuefarm/bookingbot/internal/store"
)

// NewMockProcessor creates a Processor over a fresh in-memory store seeded with
// items, for tests in packages that sit in front of the engine.
func NewMockProcessor(items []models.CatalogItem, opts ...Option) (*Processor, *store.InMemoryStore) {
	st := store.NewInMemoryStore()
	for _, it := range items {
		_ = st.AddCatalogItem(context.Background(), it)
	}
	return NewProcessor(st, NewBookingFlow(st, st, opts...)), st
}
