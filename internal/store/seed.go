package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/venuefarm/bookingbot/internal/models"
)

// CatalogSeeder is implemented by stores that accept catalog items.
type CatalogSeeder interface {
	AddCatalogItem(ctx context.Context, item models.CatalogItem) error
}

// seedEntry is one element of a catalog seed file.
type seedEntry struct {
	ID          string      `json:"id"`
	Kind        models.Kind `json:"kind"`
	Category    string      `json:"category"`
	DisplayName string      `json:"display_name"`
	Active      *bool       `json:"active,omitempty"`
}

// LoadCatalogSeed reads a JSON array of catalog items from path and adds them to s.
// Entries keep file order as their creation order; items whose ID already exists are left alone.
func LoadCatalogSeed(ctx context.Context, s CatalogSeeder, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read catalog seed: %w", err)
	}
	var entries []seedEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return 0, fmt.Errorf("failed to parse catalog seed %s: %w", path, err)
	}

	base := time.Now()
	for i, e := range entries {
		if e.ID == "" || e.DisplayName == "" || e.Category == "" {
			return i, fmt.Errorf("catalog seed entry %d: id, category and display_name are required", i)
		}
		if !e.Kind.IsValid() {
			return i, fmt.Errorf("catalog seed entry %d: %w: %q", i, models.ErrInvalidKind, e.Kind)
		}
		active := true
		if e.Active != nil {
			active = *e.Active
		}
		item := models.CatalogItem{
			Item:      models.Item{ID: e.ID, DisplayName: e.DisplayName},
			Kind:      e.Kind,
			Category:  e.Category,
			Active:    active,
			CreatedAt: base.Add(time.Duration(i) * time.Millisecond),
		}
		if err := s.AddCatalogItem(ctx, item); err != nil {
			return i, fmt.Errorf("catalog seed entry %d: %w", i, err)
		}
	}
	slog.Info("LoadCatalogSeed: catalog seeded", "path", path, "count", len(entries))
	return len(entries), nil
}
