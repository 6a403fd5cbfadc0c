package flow

import (
	"fmt"
	"strings"

	"github.com/venuefarm/bookingbot/internal/models"
)

// OptionFormat renders one numbered line of a menu or listing.
const OptionFormat = "\n%d. %s"

// Reply texts.
const (
	MainMenuText = "Welcome to Venue & Farm Booking!\nReply with an option number:" +
		"\n1. Book a venue" +
		"\n2. Book a farm" +
		"\n3. Cancel a booking" +
		"\n4. Check availability" +
		"\n5. Help"
	HelpText = "Reply 1 to book a venue or 2 to book a farm, then pick a type, a property and a date." +
		"\nReply 3 with your booking id to cancel a booking." +
		"\nType hi at any time to start over."
	InvalidOptionText   = "Sorry, that is not a valid option. Please reply with one of the numbers shown."
	InvalidDateText     = "Sorry, I could not read that date. Please send it as YYYY-MM-DD, for example 2030-12-31."
	PastDateText        = "That date is in the past. Please send today's date or a later one."
	RetryLaterText      = "Sorry, something went wrong on our side. Please try again in a moment."
	InconsistentText    = "Sorry, something went wrong. Type hi to start again."
	FallbackText        = "Type hi to see the main menu."
	CancelPromptText    = "Please send the booking id you want to cancel."
	CancelMissingIDText = "No booking id received, nothing was cancelled."
	AvailabilityText    = "What would you like to check?\n1. Venue availability\n2. Farm availability"
	BackToMenuHint      = "\n0. Back to main menu"
	BackToCategoryHint  = "\nReply with a number to choose, or 0 to go back."
	SessionFailureReply = "Sorry, we could not process your message right now. Please try again shortly."
)

// numberedList appends items to header as numbered lines starting at 1.
func numberedList(header string, labels []string) string {
	var sb strings.Builder
	sb.WriteString(header)
	for i, l := range labels {
		fmt.Fprintf(&sb, OptionFormat, i+1, l)
	}
	return sb.String()
}

func categoryMenuText(kind models.Kind, categories []string) string {
	header := fmt.Sprintf("Choose a %s type:", strings.ToLower(kind.Label()))
	return numberedList(header, categories) + BackToMenuHint
}

func itemListText(kind models.Kind, category string, items []models.Item) string {
	labels := make([]string, len(items))
	for i, it := range items {
		labels[i] = it.DisplayName
	}
	header := fmt.Sprintf("Available %ss in %s:", strings.ToLower(kind.Label()), category)
	return numberedList(header, labels) + BackToCategoryHint
}

func noResultsText(kind models.Kind, category string) string {
	return fmt.Sprintf("No %ss are listed in %s right now. Pick another type, or reply 0 to go back.",
		strings.ToLower(kind.Label()), category)
}

func datePromptText(item models.Item) string {
	return fmt.Sprintf("You picked %s. Which date would you like to book? Send it as YYYY-MM-DD.", item.DisplayName)
}

func confirmationText(item models.Item, date string, bookingID string) string {
	return fmt.Sprintf("Your booking request for %s on %s has been received. Booking id: %s. We will confirm it shortly.",
		item.DisplayName, date, bookingID)
}

func cancelNotedText(bookingID string) string {
	return fmt.Sprintf("Your request to cancel booking %s has been noted.", bookingID)
}

func cancelledText(b models.Booking) string {
	return fmt.Sprintf("Booking %s for %s has been cancelled.", b.ID, b.Date)
}

func cancelNotFoundText(bookingID string) string {
	return fmt.Sprintf("We could not find booking %s under your number.", bookingID)
}

func availabilityAckText(kind models.Kind, option int) string {
	if kind == "" {
		return "Thanks, we have noted your availability question."
	}
	return fmt.Sprintf("To see available %ss, reply %d from the main menu and pick a type.",
		strings.ToLower(kind.Label()), option)
}

// withMainMenu appends the main menu to a reply that returns the user to it.
func withMainMenu(text string) string {
	return text + "\n\n" + MainMenuText
}
