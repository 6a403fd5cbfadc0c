package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/venuefarm/bookingbot/internal/models"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// encodeSelection renders a selection for storage; an empty selection is stored as "".
func encodeSelection(sel models.Selection) (string, error) {
	if sel.IsEmpty() {
		return "", nil
	}
	b, err := json.Marshal(sel)
	if err != nil {
		return "", fmt.Errorf("marshal selection: %w", err)
	}
	return string(b), nil
}

// decodeSelection parses a stored selection. A corrupt value yields an empty
// selection so the conversation can recover with a reset instead of failing every message.
func decodeSelection(raw sql.NullString, identifier string) models.Selection {
	var sel models.Selection
	if !raw.Valid || raw.String == "" {
		return sel
	}
	if err := json.Unmarshal([]byte(raw.String), &sel); err != nil {
		slog.Error("store: selection unmarshal failed, using empty selection", "error", err, "identifier", identifier)
		return models.Selection{}
	}
	return sel
}

// scanConversationState scans identifier, phase, selection, last_interaction, created_at.
func scanConversationState(row rowScanner) (models.ConversationState, error) {
	var cs models.ConversationState
	var selection sql.NullString
	var phase string
	if err := row.Scan(&cs.Identifier, &phase, &selection, &cs.LastInteraction, &cs.CreatedAt); err != nil {
		return cs, err
	}
	cs.Phase = models.Phase(phase)
	cs.Selection = decodeSelection(selection, cs.Identifier)
	return cs, nil
}

// scanBooking scans id, user_identifier, kind, item_id, booking_date, status, created_at, updated_at.
func scanBooking(row rowScanner) (models.Booking, error) {
	var b models.Booking
	var kind, status string
	if err := row.Scan(&b.ID, &b.UserIdentifier, &kind, &b.ItemID, &b.Date, &status, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return b, err
	}
	b.Kind = models.Kind(kind)
	b.Status = models.BookingStatus(status)
	return b, nil
}
