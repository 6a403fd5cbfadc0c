package messaging

import (
	"context"
	"log/slog"

	"go.mau.fi/whatsmeow/types/events"

	"github.com/venuefarm/bookingbot/internal/whatsapp"
)

// eventSource is the part of whatsapp.Client the service subscribes to.
type eventSource interface {
	AddEventHandler(fn func(evt interface{}))
}

// WhatsAppService implements Service over a whatsmeow client. Inbound text
// messages and delivery receipts arrive as whatsmeow events.
type WhatsAppService struct {
	*channelHub
	client whatsapp.WhatsAppSender
	events eventSource
}

// NewWhatsAppService creates a WhatsAppService around client. Inbound events
// are only subscribed when client also delivers whatsmeow events.
func NewWhatsAppService(client whatsapp.WhatsAppSender) *WhatsAppService {
	s := &WhatsAppService{
		channelHub: newChannelHub("WhatsAppService"),
		client:     client,
	}
	if src, ok := client.(eventSource); ok {
		s.events = src
	} else {
		slog.Debug("WhatsAppService: send-only client, inbound events disabled")
	}
	return s
}

// Start subscribes to whatsmeow events.
func (s *WhatsAppService) Start(ctx context.Context) error {
	if s.events == nil {
		return nil
	}
	s.events.AddEventHandler(s.handleEvent)
	slog.Info("WhatsAppService: event handler registered")
	return nil
}

// SendMessage sends body to the canonical form of to and emits a sent receipt.
func (s *WhatsAppService) SendMessage(ctx context.Context, to string, body string) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("WhatsAppService.SendMessage: invalid recipient", "error", err, "to", to)
		return err
	}
	if err := s.client.SendMessage(ctx, canonicalTo, body); err != nil {
		slog.Error("WhatsAppService.SendMessage: send failed", "error", err, "to", canonicalTo)
		return err
	}
	s.emitReceipt(sentReceipt(canonicalTo))
	slog.Debug("WhatsAppService.SendMessage: sent", "to", canonicalTo)
	return nil
}

func (s *WhatsAppService) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Message:
		resp, ok := whatsapp.ParseIncoming(v)
		if !ok {
			slog.Debug("WhatsAppService: ignoring message", "id", v.Info.ID)
			return
		}
		s.emitResponse(resp)
	case *events.Receipt:
		if receipt, ok := whatsapp.ParseReceipt(v); ok {
			s.emitReceipt(receipt)
		}
	}
}
