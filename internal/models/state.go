// Package models defines conversation state structures for the booking flow.
package models

import (
	"fmt"
	"slices"
	"time"
)

// Phase is the current named step of a user's conversation.
type Phase string

// Conversation phases.
const (
	PhaseNew                  Phase = "new"
	PhaseAwaitingOption       Phase = "awaiting_option"
	PhaseChoosingVenueType    Phase = "choosing_venue_type"
	PhaseChoosingFarmType     Phase = "choosing_farm_type"
	PhaseBookingVenue         Phase = "booking_venue"
	PhaseBookingFarm          Phase = "booking_farm"
	PhaseBookingVenueDate     Phase = "booking_venue_date"
	PhaseBookingFarmDate      Phase = "booking_farm_date"
	PhaseCancelling           Phase = "cancelling"
	PhaseCheckingAvailability Phase = "checking_availability"
	PhaseDone                 Phase = "done"
)

// AllPhases lists every phase in the enumeration.
var AllPhases = []Phase{
	PhaseNew, PhaseAwaitingOption,
	PhaseChoosingVenueType, PhaseChoosingFarmType,
	PhaseBookingVenue, PhaseBookingFarm,
	PhaseBookingVenueDate, PhaseBookingFarmDate,
	PhaseCancelling, PhaseCheckingAvailability, PhaseDone,
}

// IsValid reports whether p belongs to the phase enumeration.
func (p Phase) IsValid() bool {
	return slices.Contains(AllPhases, p)
}

// Normalize maps the zero value to PhaseNew.
func (p Phase) Normalize() Phase {
	if p == "" {
		return PhaseNew
	}
	return p
}

// Kind returns the catalog kind a venue or farm phase belongs to, or "" for shared phases.
func (p Phase) Kind() Kind {
	switch p {
	case PhaseChoosingVenueType, PhaseBookingVenue, PhaseBookingVenueDate:
		return KindVenue
	case PhaseChoosingFarmType, PhaseBookingFarm, PhaseBookingFarmDate:
		return KindFarm
	}
	return ""
}

// IsDateEntry reports whether p waits for a booking date.
func (p Phase) IsDateEntry() bool {
	return p == PhaseBookingVenueDate || p == PhaseBookingFarmDate
}

// IsItemSelection reports whether p waits for an item index.
func (p Phase) IsItemSelection() bool {
	return p == PhaseBookingVenue || p == PhaseBookingFarm
}

// Selection is the transient scratch data accumulated while navigating the menu tree.
// Candidates is ordered so numeric replies resolve positionally; it is replaced
// wholesale, never mutated in place.
type Selection struct {
	Kind         Kind   `json:"kind,omitempty"`
	Category     string `json:"category,omitempty"`
	Candidates   []Item `json:"candidates,omitempty"`
	ChosenItemID string `json:"chosen_item_id,omitempty"`
}

// IsEmpty reports whether nothing has been selected.
func (s Selection) IsEmpty() bool {
	return s.Kind == "" && s.Category == "" && len(s.Candidates) == 0 && s.ChosenItemID == ""
}

// Candidate returns the 1-based n-th candidate.
func (s Selection) Candidate(n int) (Item, bool) {
	if n < 1 || n > len(s.Candidates) {
		return Item{}, false
	}
	return s.Candidates[n-1], true
}

// ChosenItem returns the candidate matching ChosenItemID.
func (s Selection) ChosenItem() (Item, bool) {
	if s.ChosenItemID == "" {
		return Item{}, false
	}
	for _, it := range s.Candidates {
		if it.ID == s.ChosenItemID {
			return it, true
		}
	}
	return Item{}, false
}

// Validate checks the field combinations that must never be persisted.
func (s Selection) Validate() error {
	if s.Kind != "" && !s.Kind.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidKind, s.Kind)
	}
	if len(s.Candidates) > 0 && (s.Kind == "" || s.Category == "") {
		return ErrMissingCategory
	}
	if s.ChosenItemID != "" {
		if len(s.Candidates) == 0 {
			return ErrChosenWithoutList
		}
		if _, ok := s.ChosenItem(); !ok {
			return ErrChosenNotCandidate
		}
	}
	return nil
}

// ConversationState is the per-identifier record owned by the session store.
type ConversationState struct {
	Identifier      string    `json:"identifier"`
	Phase           Phase     `json:"phase"`
	Selection       Selection `json:"selection"`
	LastInteraction time.Time `json:"last_interaction"`
	CreatedAt       time.Time `json:"created_at"`
}

// NewConversationState returns a fresh state in PhaseNew.
func NewConversationState(identifier string, now time.Time) ConversationState {
	return ConversationState{
		Identifier:      identifier,
		Phase:           PhaseNew,
		LastInteraction: now,
		CreatedAt:       now,
	}
}

// Validate checks that the selection is consistent with the phase.
func (cs ConversationState) Validate() error {
	if cs.Identifier == "" {
		return ErrEmptyIdentifier
	}
	phase := cs.Phase.Normalize()
	if !phase.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidPhase, cs.Phase)
	}
	sel := cs.Selection
	if err := sel.Validate(); err != nil {
		return err
	}
	if k := phase.Kind(); k != "" && sel.Kind != "" && sel.Kind != k {
		return fmt.Errorf("%w: phase %s, selection %s", ErrPhaseKindMismatch, phase, sel.Kind)
	}
	switch {
	case phase.IsDateEntry():
		if sel.ChosenItemID == "" {
			return ErrMissingChosenItem
		}
	case phase.IsItemSelection():
		if len(sel.Candidates) == 0 {
			return ErrMissingCandidates
		}
		if sel.ChosenItemID != "" {
			return fmt.Errorf("%w: item chosen before date phase", ErrSelectionNotEmpty)
		}
	case phase.Kind() != "":
		// category chooser: a previous listing must have been cleared
		if len(sel.Candidates) > 0 || sel.ChosenItemID != "" {
			return ErrSelectionNotEmpty
		}
	default:
		if !sel.IsEmpty() {
			return ErrSelectionNotEmpty
		}
	}
	return nil
}
