// Package flow implements the conversation engine that walks a user through
// booking a venue or a farm over a chat channel.
//
// The engine is a pure function of (persisted state, inbound text). It holds no
// per-user data between calls; the Processor loads and saves state around it.
package flow

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/venuefarm/bookingbot/internal/metrics"
	"github.com/venuefarm/bookingbot/internal/models"
	"github.com/venuefarm/bookingbot/internal/store"
)

// Engine defaults.
const (
	DefaultListLimit      = 5
	DefaultCatalogTimeout = 5 * time.Second
	DefaultWriteTimeout   = 5 * time.Second
)

// Default category labels shown in the type submenus.
var (
	DefaultVenueCategories = []string{"Banquet Hall", "Marriage Garden", "Party Lawn", "Conference Hall"}
	DefaultFarmCategories  = []string{"Farm House", "Resort", "Villa"}
)

// BookingFlow is the conversation engine.
type BookingFlow struct {
	catalog        store.Catalog
	writer         store.BookingWriter
	canceller      store.BookingCanceller
	categories     map[models.Kind][]string
	listLimit      int
	loc            *time.Location
	now            func() time.Time
	catalogTimeout time.Duration
	writeTimeout   time.Duration
	metrics        *metrics.Metrics
}

// Option configures a BookingFlow.
type Option func(*BookingFlow)

// WithCategories replaces the category labels offered for kind.
func WithCategories(kind models.Kind, labels []string) Option {
	return func(f *BookingFlow) {
		if len(labels) > 0 {
			f.categories[kind] = append([]string(nil), labels...)
		}
	}
}

// WithListLimit sets how many catalog items a listing shows.
func WithListLimit(n int) Option {
	return func(f *BookingFlow) {
		if n > 0 {
			f.listLimit = n
		}
	}
}

// WithLocation sets the reference timezone for past-date checks.
func WithLocation(loc *time.Location) Option {
	return func(f *BookingFlow) {
		if loc != nil {
			f.loc = loc
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(f *BookingFlow) {
		if now != nil {
			f.now = now
		}
	}
}

// WithCatalogTimeout bounds each catalog query.
func WithCatalogTimeout(d time.Duration) Option {
	return func(f *BookingFlow) {
		if d > 0 {
			f.catalogTimeout = d
		}
	}
}

// WithWriteTimeout bounds each booking write or cancellation.
func WithWriteTimeout(d time.Duration) Option {
	return func(f *BookingFlow) {
		if d > 0 {
			f.writeTimeout = d
		}
	}
}

// WithCanceller sets the collaborator used in the cancelling phase.
// Without one, cancellation requests are only acknowledged.
func WithCanceller(c store.BookingCanceller) Option {
	return func(f *BookingFlow) { f.canceller = c }
}

// WithMetrics records transitions and collaborator outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(f *BookingFlow) { f.metrics = m }
}

// NewBookingFlow creates an engine over the given catalog and booking writer.
// If writer also implements store.BookingCanceller it is used for cancellations
// unless WithCanceller says otherwise.
func NewBookingFlow(catalog store.Catalog, writer store.BookingWriter, opts ...Option) *BookingFlow {
	f := &BookingFlow{
		catalog: catalog,
		writer:  writer,
		categories: map[models.Kind][]string{
			models.KindVenue: DefaultVenueCategories,
			models.KindFarm:  DefaultFarmCategories,
		},
		listLimit:      DefaultListLimit,
		now:            time.Now,
		catalogTimeout: DefaultCatalogTimeout,
		writeTimeout:   DefaultWriteTimeout,
	}
	if c, ok := writer.(store.BookingCanceller); ok {
		f.canceller = c
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.loc == nil {
		loc, err := time.LoadLocation(DefaultTimezone)
		if err != nil {
			slog.Error("BookingFlow.NewBookingFlow: failed to load reference timezone, using UTC", "timezone", DefaultTimezone, "error", err)
			loc = time.UTC
		}
		f.loc = loc
	}
	slog.Debug("BookingFlow.NewBookingFlow: engine created", "timezone", f.loc.String(), "listLimit", f.listLimit,
		"cancellation", f.canceller != nil)
	return f
}

// Now returns the engine's current time.
func (f *BookingFlow) Now() time.Time {
	return f.now()
}

// Location returns the reference timezone.
func (f *BookingFlow) Location() *time.Location {
	return f.loc
}

// Handle computes the reply to text and the state to persist. It never fails:
// every input produces a human readable reply, and collaborator errors hold
// the current phase.
func (f *BookingFlow) Handle(ctx context.Context, state models.ConversationState, text string) (models.EngineResult, models.ConversationState) {
	from := state.Phase.Normalize()
	state.Phase = from
	input := normalizeInput(text)
	slog.Debug("BookingFlow.Handle: processing message", "identifier", state.Identifier, "phase", from)

	var (
		res models.EngineResult
		err error
	)
	switch {
	case input == "hi" || from == models.PhaseNew:
		res = f.greet(&state)
	case !from.IsValid():
		slog.Warn("BookingFlow.Handle: unrecognized phase", "identifier", state.Identifier, "phase", from)
		return reply(FallbackText), state
	default:
		if verr := state.Validate(); verr != nil {
			err = verr
		} else {
			res, err = f.dispatch(ctx, &state, text)
		}
	}
	if err != nil {
		res = f.reset(&state, err)
	}

	if state.Phase != from {
		f.metrics.ObserveTransition(string(from), string(state.Phase))
		slog.Debug("BookingFlow.Handle: phase changed", "identifier", state.Identifier, "from", from, "to", state.Phase)
	}
	return res, state
}

func (f *BookingFlow) dispatch(ctx context.Context, st *models.ConversationState, text string) (models.EngineResult, error) {
	switch p := st.Phase; {
	case p == models.PhaseAwaitingOption:
		return f.handleMainMenu(st, text)
	case p == models.PhaseChoosingVenueType || p == models.PhaseChoosingFarmType:
		return f.handleCategory(ctx, st, text, p.Kind())
	case p.IsItemSelection():
		return f.handleItem(st, text)
	case p.IsDateEntry():
		return f.handleDate(ctx, st, text)
	case p == models.PhaseCancelling:
		return f.handleCancel(ctx, st, text)
	case p == models.PhaseCheckingAvailability:
		return f.handleAvailability(st, text)
	}
	return reply(FallbackText), nil
}

func reply(text string) models.EngineResult {
	return models.EngineResult{ReplyText: text}
}

// advance fires event and stores the resulting phase.
func advance(st *models.ConversationState, event string) error {
	next, err := fire(st.Phase, event)
	if err != nil {
		return err
	}
	st.Phase = next
	return nil
}

// greet is the unconditional return to the main menu, valid from any phase.
func (f *BookingFlow) greet(st *models.ConversationState) models.EngineResult {
	st.Selection = models.Selection{}
	if err := advance(st, EventGreet); err != nil {
		slog.Warn("BookingFlow.greet: forcing main menu", "identifier", st.Identifier, "phase", st.Phase, "error", err)
		st.Phase = models.PhaseAwaitingOption
	}
	return reply(MainMenuText)
}

// reset recovers from an inconsistent state by returning to the main menu.
func (f *BookingFlow) reset(st *models.ConversationState, cause error) models.EngineResult {
	slog.Warn("BookingFlow.reset: inconsistent conversation state, resetting", "identifier", st.Identifier,
		"phase", st.Phase, "error", cause)
	st.Selection = models.Selection{}
	if err := advance(st, EventReset); err != nil {
		st.Phase = models.PhaseAwaitingOption
	}
	return reply(InconsistentText)
}

func (f *BookingFlow) handleMainMenu(st *models.ConversationState, text string) (models.EngineResult, error) {
	n, ok := ParseMenuIndex(text, 1, 5)
	if !ok {
		return reply(withMainMenu(InvalidOptionText)), nil
	}
	switch n {
	case 1, 2:
		kind := models.KindVenue
		event := EventChooseVenue
		if n == 2 {
			kind = models.KindFarm
			event = EventChooseFarm
		}
		st.Selection = models.Selection{Kind: kind}
		if err := advance(st, event); err != nil {
			return models.EngineResult{}, err
		}
		return reply(categoryMenuText(kind, f.categories[kind])), nil
	case 3:
		if err := advance(st, EventStartCancel); err != nil {
			return models.EngineResult{}, err
		}
		return reply(CancelPromptText), nil
	case 4:
		if err := advance(st, EventCheckAvailability); err != nil {
			return models.EngineResult{}, err
		}
		return reply(AvailabilityText), nil
	}
	return reply(withMainMenu(HelpText)), nil
}

func (f *BookingFlow) handleCategory(ctx context.Context, st *models.ConversationState, text string, kind models.Kind) (models.EngineResult, error) {
	categories := f.categories[kind]
	n, ok := ParseMenuIndex(text, 0, len(categories))
	if !ok {
		return reply(InvalidOptionText + "\n\n" + categoryMenuText(kind, categories)), nil
	}
	if n == 0 {
		st.Selection = models.Selection{}
		if err := advance(st, EventBack); err != nil {
			return models.EngineResult{}, err
		}
		return reply(MainMenuText), nil
	}

	category := categories[n-1]
	items, err := f.listItems(ctx, kind, category)
	if err != nil {
		f.metrics.ObserveCollaboratorFailure("catalog")
		slog.Error("BookingFlow.handleCategory: catalog query failed", "identifier", st.Identifier,
			"kind", kind, "category", category, "error", err)
		return reply(RetryLaterText), nil
	}
	if len(items) == 0 {
		return reply(noResultsText(kind, category)), nil
	}

	st.Selection = models.Selection{Kind: kind, Category: category, Candidates: items}
	if err := advance(st, EventListItems); err != nil {
		return models.EngineResult{}, err
	}
	return models.EngineResult{ReplyText: itemListText(kind, category, items), Items: items}, nil
}

func (f *BookingFlow) listItems(ctx context.Context, kind models.Kind, category string) ([]models.Item, error) {
	ctx, cancel := context.WithTimeout(ctx, f.catalogTimeout)
	defer cancel()
	items, err := f.catalog.ListByCategory(ctx, kind, category, f.listLimit)
	if err != nil {
		return nil, err
	}
	if len(items) > f.listLimit {
		items = items[:f.listLimit]
	}
	return items, nil
}

func (f *BookingFlow) handleItem(st *models.ConversationState, text string) (models.EngineResult, error) {
	sel := st.Selection
	n, ok := ParseMenuIndex(text, 0, len(sel.Candidates))
	if !ok {
		return models.EngineResult{
			ReplyText: InvalidOptionText + "\n\n" + itemListText(sel.Kind, sel.Category, sel.Candidates),
			Items:     sel.Candidates,
		}, nil
	}
	if n == 0 {
		st.Selection = models.Selection{Kind: sel.Kind}
		if err := advance(st, EventBack); err != nil {
			return models.EngineResult{}, err
		}
		return reply(categoryMenuText(sel.Kind, f.categories[sel.Kind])), nil
	}

	item, _ := sel.Candidate(n)
	st.Selection.ChosenItemID = item.ID
	if err := advance(st, EventPickItem); err != nil {
		return models.EngineResult{}, err
	}
	return reply(datePromptText(item)), nil
}

func (f *BookingFlow) handleDate(ctx context.Context, st *models.ConversationState, text string) (models.EngineResult, error) {
	item, ok := st.Selection.ChosenItem()
	if !ok {
		return models.EngineResult{}, models.ErrMissingChosenItem
	}
	d, err := ParseBookingDate(text, f.now(), f.loc)
	switch {
	case errors.Is(err, ErrPastDate):
		return reply(PastDateText), nil
	case err != nil:
		return reply(InvalidDateText), nil
	}

	draft := models.BookingDraft{
		UserIdentifier: st.Identifier,
		Kind:           st.Selection.Kind,
		ItemID:         item.ID,
		Date:           d.Format(models.DateLayout),
		Status:         models.BookingStatusPending,
	}
	wctx, cancel := context.WithTimeout(ctx, f.writeTimeout)
	defer cancel()
	booking, err := f.writer.CreateBooking(wctx, draft)
	if err != nil {
		f.metrics.ObserveCollaboratorFailure("booking")
		f.metrics.ObserveBooking(string(draft.Kind), "failed")
		slog.Error("BookingFlow.handleDate: booking write failed", "identifier", st.Identifier,
			"itemID", draft.ItemID, "date", draft.Date, "error", err)
		return reply(RetryLaterText), nil
	}

	st.Selection = models.Selection{}
	if err := advance(st, EventConfirm); err != nil {
		return models.EngineResult{}, err
	}
	f.metrics.ObserveBooking(string(draft.Kind), "created")
	slog.Info("BookingFlow.handleDate: booking created", "identifier", st.Identifier, "bookingID", booking.ID,
		"itemID", draft.ItemID, "date", draft.Date)
	return reply(confirmationText(item, draft.Date, booking.ID)), nil
}

func (f *BookingFlow) handleCancel(ctx context.Context, st *models.ConversationState, text string) (models.EngineResult, error) {
	bookingID := strings.TrimSpace(text)
	var msg string
	switch {
	case bookingID == "":
		msg = CancelMissingIDText
	case f.canceller == nil:
		msg = cancelNotedText(bookingID)
	default:
		cctx, cancel := context.WithTimeout(ctx, f.writeTimeout)
		defer cancel()
		b, err := f.canceller.CancelBooking(cctx, st.Identifier, bookingID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			msg = cancelNotFoundText(bookingID)
		case err != nil:
			f.metrics.ObserveCollaboratorFailure("cancel")
			slog.Error("BookingFlow.handleCancel: cancellation failed", "identifier", st.Identifier,
				"bookingID", bookingID, "error", err)
			msg = RetryLaterText
		default:
			f.metrics.ObserveBooking(string(b.Kind), "cancelled")
			msg = cancelledText(b)
		}
	}
	if err := advance(st, EventAcknowledge); err != nil {
		return models.EngineResult{}, err
	}
	return reply(withMainMenu(msg)), nil
}

func (f *BookingFlow) handleAvailability(st *models.ConversationState, text string) (models.EngineResult, error) {
	var kind models.Kind
	n, ok := ParseMenuIndex(text, 1, 2)
	if ok {
		kind = models.KindVenue
		if n == 2 {
			kind = models.KindFarm
		}
	}
	if err := advance(st, EventAcknowledge); err != nil {
		return models.EngineResult{}, err
	}
	return reply(withMainMenu(availabilityAckText(kind, n))), nil
}
