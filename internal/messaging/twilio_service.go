package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/venuefarm/bookingbot/internal/models"
	"github.com/venuefarm/bookingbot/internal/twiliowhatsapp"
)

// emptyTwiML acknowledges a webhook without an inline reply; replies go out
// through the REST API once the message has been processed.
const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// WebhookValidator authenticates inbound webhook requests.
type WebhookValidator interface {
	Validate(r *http.Request) bool
}

// TwilioService implements Service over the Twilio REST API. Inbound messages
// arrive through TwilioWebhookHandler.
type TwilioService struct {
	*channelHub
	client    twiliowhatsapp.Sender
	validator WebhookValidator
}

// TwilioOption configures a TwilioService.
type TwilioOption func(*TwilioService)

// WithWebhookValidator rejects webhooks that fail v.
func WithWebhookValidator(v WebhookValidator) TwilioOption {
	return func(s *TwilioService) { s.validator = v }
}

// NewTwilioService creates a TwilioService around a Twilio sender.
func NewTwilioService(client twiliowhatsapp.Sender, opts ...TwilioOption) *TwilioService {
	s := &TwilioService{
		channelHub: newChannelHub("TwilioService"),
		client:     client,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start is a no-op; inbound messages arrive through the webhook.
func (s *TwilioService) Start(ctx context.Context) error {
	return nil
}

// SendMessage sends body to to in E.164 form and emits a sent receipt.
func (s *TwilioService) SendMessage(ctx context.Context, to string, body string) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TwilioService.SendMessage: invalid recipient", "error", err, "to", to)
		return err
	}
	if err := s.client.SendMessage(ctx, "+"+canonicalTo, body); err != nil {
		return err
	}
	s.emitReceipt(sentReceipt(canonicalTo))
	return nil
}

// TwilioWebhookHandler accepts Twilio's inbound message webhook and forwards
// the message to Responses. It answers with empty TwiML.
func (s *TwilioService) TwilioWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		slog.Warn("TwilioService.TwilioWebhookHandler: unparsable form", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	if s.validator != nil && !s.validator.Validate(r) {
		slog.Warn("TwilioService.TwilioWebhookHandler: signature rejected", "remote", r.RemoteAddr)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	from := r.PostFormValue("From")
	if from == "" {
		http.Error(w, "Missing From", http.StatusBadRequest)
		return
	}
	canonicalFrom, err := s.ValidateAndCanonicalizeRecipient(from)
	if err != nil {
		slog.Warn("TwilioService.TwilioWebhookHandler: invalid sender", "from", from, "error", err)
		http.Error(w, "Invalid sender", http.StatusBadRequest)
		return
	}

	accepted := s.emitResponse(models.Response{
		MessageID: r.PostFormValue("MessageSid"),
		From:      canonicalFrom,
		Body:      r.PostFormValue("Body"),
		Time:      time.Now().Unix(),
	})
	if !accepted {
		// Twilio retries on 5xx, and MessageSid dedup absorbs the replay.
		http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, emptyTwiML)
}
