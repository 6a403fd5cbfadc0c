package flow

import (
	"context"
	"errors"
	"fmt"

	"github.com/looplab/fsm"
	"github.com/venuefarm/bookingbot/internal/models"
)

// Conversation events. An event may apply to several source phases; the
// venue and farm branches share events and differ only in their phases.
const (
	EventGreet             = "greet"
	EventChooseVenue       = "choose_venue"
	EventChooseFarm        = "choose_farm"
	EventStartCancel       = "start_cancel"
	EventCheckAvailability = "check_availability"
	EventListItems         = "list_items"
	EventBack              = "back"
	EventPickItem          = "pick_item"
	EventConfirm           = "confirm"
	EventAcknowledge       = "acknowledge"
	EventReset             = "reset"
)

func phases(ps ...models.Phase) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = string(p)
	}
	return out
}

// phaseEvents is the full transition table. Staying in a phase is not an event.
var phaseEvents = fsm.Events{
	{Name: EventGreet, Src: phases(models.AllPhases...), Dst: string(models.PhaseAwaitingOption)},
	{Name: EventReset, Src: phases(models.AllPhases...), Dst: string(models.PhaseAwaitingOption)},

	{Name: EventChooseVenue, Src: phases(models.PhaseAwaitingOption), Dst: string(models.PhaseChoosingVenueType)},
	{Name: EventChooseFarm, Src: phases(models.PhaseAwaitingOption), Dst: string(models.PhaseChoosingFarmType)},
	{Name: EventStartCancel, Src: phases(models.PhaseAwaitingOption), Dst: string(models.PhaseCancelling)},
	{Name: EventCheckAvailability, Src: phases(models.PhaseAwaitingOption), Dst: string(models.PhaseCheckingAvailability)},

	{Name: EventListItems, Src: phases(models.PhaseChoosingVenueType), Dst: string(models.PhaseBookingVenue)},
	{Name: EventListItems, Src: phases(models.PhaseChoosingFarmType), Dst: string(models.PhaseBookingFarm)},

	{Name: EventBack, Src: phases(models.PhaseChoosingVenueType, models.PhaseChoosingFarmType), Dst: string(models.PhaseAwaitingOption)},
	{Name: EventBack, Src: phases(models.PhaseBookingVenue), Dst: string(models.PhaseChoosingVenueType)},
	{Name: EventBack, Src: phases(models.PhaseBookingFarm), Dst: string(models.PhaseChoosingFarmType)},

	{Name: EventPickItem, Src: phases(models.PhaseBookingVenue), Dst: string(models.PhaseBookingVenueDate)},
	{Name: EventPickItem, Src: phases(models.PhaseBookingFarm), Dst: string(models.PhaseBookingFarmDate)},

	{Name: EventConfirm, Src: phases(models.PhaseBookingVenueDate, models.PhaseBookingFarmDate), Dst: string(models.PhaseDone)},

	{Name: EventAcknowledge, Src: phases(models.PhaseCancelling, models.PhaseCheckingAvailability), Dst: string(models.PhaseAwaitingOption)},
}

// fire applies event to from and returns the resulting phase.
// An event that is not declared for from is an error.
func fire(from models.Phase, event string) (models.Phase, error) {
	m := fsm.NewFSM(string(from), phaseEvents, fsm.Callbacks{})
	err := m.Event(context.Background(), event)
	var noTransition fsm.NoTransitionError
	if err != nil && !errors.As(err, &noTransition) {
		return from, fmt.Errorf("transition %q from %s: %w", event, from, err)
	}
	return models.Phase(m.Current()), nil
}

// AvailableEvents lists the events declared for a phase.
func AvailableEvents(p models.Phase) []string {
	return fsm.NewFSM(string(p), phaseEvents, fsm.Callbacks{}).AvailableTransitions()
}
