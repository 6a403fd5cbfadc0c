package flow

import (
	"slices"
	"testing"

	"github.com/venuefarm/bookingbot/internal/models"
)

func TestFireDeclaredTransitions(t *testing.T) {
	tests := []struct {
		from  models.Phase
		event string
		want  models.Phase
	}{
		{models.PhaseNew, EventGreet, models.PhaseAwaitingOption},
		{models.PhaseAwaitingOption, EventGreet, models.PhaseAwaitingOption},
		{models.PhaseAwaitingOption, EventChooseFarm, models.PhaseChoosingFarmType},
		{models.PhaseChoosingVenueType, EventListItems, models.PhaseBookingVenue},
		{models.PhaseChoosingFarmType, EventListItems, models.PhaseBookingFarm},
		{models.PhaseBookingVenue, EventBack, models.PhaseChoosingVenueType},
		{models.PhaseChoosingFarmType, EventBack, models.PhaseAwaitingOption},
		{models.PhaseBookingFarm, EventPickItem, models.PhaseBookingFarmDate},
		{models.PhaseBookingVenueDate, EventConfirm, models.PhaseDone},
		{models.PhaseCancelling, EventAcknowledge, models.PhaseAwaitingOption},
		{models.PhaseDone, EventReset, models.PhaseAwaitingOption},
	}
	for _, tt := range tests {
		got, err := fire(tt.from, tt.event)
		if err != nil {
			t.Errorf("fire(%s, %s) unexpected error: %v", tt.from, tt.event, err)
			continue
		}
		if got != tt.want {
			t.Errorf("fire(%s, %s) = %s, want %s", tt.from, tt.event, got, tt.want)
		}
	}
}

func TestFireUndeclaredTransition(t *testing.T) {
	for _, tc := range []struct {
		from  models.Phase
		event string
	}{
		{models.PhaseAwaitingOption, EventPickItem},
		{models.PhaseBookingVenue, EventConfirm},
		{models.PhaseDone, EventBack},
		{models.PhaseAwaitingOption, "teleport"},
	} {
		got, err := fire(tc.from, tc.event)
		if err == nil {
			t.Errorf("fire(%s, %s) expected error", tc.from, tc.event)
		}
		if got != tc.from {
			t.Errorf("fire(%s, %s) must keep the phase, got %s", tc.from, tc.event, got)
		}
	}
}

func TestEveryPhaseCanReturnToMenu(t *testing.T) {
	for _, p := range models.AllPhases {
		events := AvailableEvents(p)
		if !slices.Contains(events, EventGreet) || !slices.Contains(events, EventReset) {
			t.Errorf("phase %s must allow greet and reset, has %v", p, events)
		}
	}
	if events := AvailableEvents(models.PhaseDone); len(events) != 2 {
		t.Errorf("done should only allow greet and reset, has %v", events)
	}
}
