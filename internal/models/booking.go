package models

import "time"

// Kind is the catalog a bookable item belongs to.
type Kind string

const (
	KindVenue Kind = "venue"
	KindFarm  Kind = "farm"
)

// IsValid reports whether k is a known kind.
func (k Kind) IsValid() bool {
	return k == KindVenue || k == KindFarm
}

// Label returns the display name of the kind.
func (k Kind) Label() string {
	switch k {
	case KindVenue:
		return "Venue"
	case KindFarm:
		return "Farm"
	}
	return string(k)
}

// Item is a bookable catalog entry as shown to a user.
type Item struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// CatalogItem is a stored catalog entry.
type CatalogItem struct {
	Item
	Kind      Kind      `json:"kind"`
	Category  string    `json:"category"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// DateLayout is the canonical rendering of booking dates.
const DateLayout = "2006-01-02"

// BookingDraft is an in-memory booking proposal assembled from a selection and a date.
type BookingDraft struct {
	UserIdentifier string        `json:"user_identifier"`
	Kind           Kind          `json:"kind"`
	ItemID         string        `json:"item_id"`
	Date           string        `json:"date"`
	Status         BookingStatus `json:"status"`
}

// Validate checks the draft is complete enough to persist.
func (d BookingDraft) Validate() error {
	if d.UserIdentifier == "" {
		return ErrEmptyIdentifier
	}
	if !d.Kind.IsValid() {
		return ErrInvalidKind
	}
	if d.ItemID == "" {
		return ErrEmptyBookingItem
	}
	if d.Date == "" {
		return ErrEmptyBookingDate
	}
	return nil
}

// Booking is a persisted booking record.
type Booking struct {
	ID             string        `json:"id"`
	UserIdentifier string        `json:"user_identifier"`
	Kind           Kind          `json:"kind"`
	ItemID         string        `json:"item_id"`
	Date           string        `json:"date"`
	Status         BookingStatus `json:"status"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// EngineResult is what the conversation engine hands back to a transport.
// Items is set when the reply lists catalog items so a transport can render cards.
type EngineResult struct {
	ReplyText string `json:"reply_text"`
	Items     []Item `json:"items,omitempty"`
}
