package flow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/venuefarm/bookingbot/internal/metrics"
	"github.com/venuefarm/bookingbot/internal/models"
	"github.com/venuefarm/bookingbot/internal/store"
)

// Inbound channel labels.
const (
	ChannelUnknown  = "unknown"
	ChannelWhatsApp = "whatsapp"
	ChannelTwilio   = "twilio"
	ChannelHTTP     = "http"
)

// Processor runs one inbound message through the engine as a single unit of
// work: lock the identifier, load its state, handle, save, unlock.
type Processor struct {
	sessions store.SessionStore
	engine   *BookingFlow
	locker   Locker
	metrics  *metrics.Metrics
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithLocker replaces the default in-process KeyedLocker.
func WithLocker(l Locker) ProcessorOption {
	return func(p *Processor) {
		if l != nil {
			p.locker = l
		}
	}
}

// WithProcessorMetrics records per-message outcomes and latency.
func WithProcessorMetrics(m *metrics.Metrics) ProcessorOption {
	return func(p *Processor) { p.metrics = m }
}

// NewProcessor creates a Processor over a session store and an engine.
func NewProcessor(sessions store.SessionStore, engine *BookingFlow, opts ...ProcessorOption) *Processor {
	p := &Processor{
		sessions: sessions,
		engine:   engine,
		locker:   NewKeyedLocker(0),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process handles text from identifier and returns the reply.
// Only lock and session store failures are returned as errors; the caller
// should answer those with a generic retry message.
func (p *Processor) Process(ctx context.Context, identifier, text string) (models.EngineResult, error) {
	return p.ProcessChannel(ctx, ChannelUnknown, identifier, text)
}

// ProcessChannel is Process with the inbound channel recorded in metrics.
func (p *Processor) ProcessChannel(ctx context.Context, channel, identifier, text string) (models.EngineResult, error) {
	if identifier == "" {
		return models.EngineResult{}, models.ErrEmptyIdentifier
	}
	start := time.Now()
	defer func() {
		p.metrics.ObserveProcessLatency(channel, time.Since(start).Seconds())
	}()

	unlock, err := p.locker.Lock(ctx, identifier)
	if err != nil {
		p.metrics.ObserveMessage(channel, "lock_failed")
		slog.Error("Processor.Process: failed to lock identifier", "identifier", identifier, "error", err)
		return models.EngineResult{}, fmt.Errorf("lock %s: %w", identifier, err)
	}
	defer unlock()

	now := p.engine.Now()
	current, err := p.sessions.GetConversationState(ctx, identifier)
	if err != nil {
		p.metrics.ObserveMessage(channel, "store_failed")
		p.metrics.ObserveCollaboratorFailure("session_load")
		return models.EngineResult{}, fmt.Errorf("load state for %s: %w", identifier, err)
	}
	state := models.NewConversationState(identifier, now)
	if current != nil {
		state = *current
		state.Identifier = identifier
	}

	result, next := p.engine.Handle(ctx, state, text)
	next.LastInteraction = now
	if next.CreatedAt.IsZero() {
		next.CreatedAt = now
	}

	if err := p.sessions.SaveConversationState(ctx, next); err != nil {
		p.metrics.ObserveMessage(channel, "store_failed")
		p.metrics.ObserveCollaboratorFailure("session_save")
		slog.Error("Processor.Process: failed to save state", "identifier", identifier, "phase", next.Phase, "error", err)
		return models.EngineResult{}, fmt.Errorf("save state for %s: %w", identifier, err)
	}
	p.metrics.ObserveMessage(channel, "ok")
	slog.Debug("Processor.Process: message processed", "identifier", identifier, "channel", channel,
		"from", state.Phase, "to", next.Phase)
	return result, nil
}

// State returns the stored state for identifier, or nil when there is none.
func (p *Processor) State(ctx context.Context, identifier string) (*models.ConversationState, error) {
	return p.sessions.GetConversationState(ctx, identifier)
}
