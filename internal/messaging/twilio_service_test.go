package messaging

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/venuefarm/bookingbot/internal/models"
	"github.com/venuefarm/bookingbot/internal/twiliowhatsapp"
)

type staticValidator bool

func (v staticValidator) Validate(r *http.Request) bool { return bool(v) }

func postWebhook(t *testing.T, svc *TwilioService, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook/twilio", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	svc.TwilioWebhookHandler(rec, req)
	return rec
}

func TestTwilioService_SendMessage(t *testing.T) {
	mock := twiliowhatsapp.NewMockClient()
	svc := NewTwilioService(mock)

	if err := svc.SendMessage(context.Background(), "whatsapp:+919800000001", "hello"); err != nil {
		t.Fatalf("SendMessage returned error: %v", err)
	}
	msgs := mock.Messages()
	if len(msgs) != 1 || msgs[0].To != "+919800000001" {
		t.Fatalf("expected E.164 recipient, got %+v", msgs)
	}
	receipt := <-svc.Receipts()
	if receipt.To != "919800000001" || receipt.Status != models.MessageStatusSent {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
}

func TestTwilioService_WebhookEmitsResponse(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())
	rec := postWebhook(t, svc, url.Values{
		"From":       {"whatsapp:+919800000001"},
		"Body":       {"hi"},
		"MessageSid": {"SM123"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/xml" {
		t.Errorf("expected TwiML content type, got %q", ct)
	}

	resp := <-svc.Responses()
	if resp.From != "919800000001" || resp.Body != "hi" || resp.MessageID != "SM123" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestTwilioService_WebhookRejections(t *testing.T) {
	tests := []struct {
		name      string
		validator WebhookValidator
		form      url.Values
		want      int
	}{
		{"bad signature", staticValidator(false), url.Values{"From": {"whatsapp:+919800000001"}, "Body": {"hi"}}, http.StatusForbidden},
		{"missing sender", nil, url.Values{"Body": {"hi"}}, http.StatusBadRequest},
		{"invalid sender", nil, url.Values{"From": {"abc"}, "Body": {"hi"}}, http.StatusBadRequest},
		{"good signature", staticValidator(true), url.Values{"From": {"whatsapp:+919800000001"}, "Body": {"hi"}}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts []TwilioOption
			if tt.validator != nil {
				opts = append(opts, WithWebhookValidator(tt.validator))
			}
			svc := NewTwilioService(twiliowhatsapp.NewMockClient(), opts...)
			if rec := postWebhook(t, svc, tt.form); rec.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestTwilioService_StoppedWebhookUnavailable(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())
	_ = svc.Stop()
	rec := postWebhook(t, svc, url.Values{"From": {"whatsapp:+919800000001"}, "Body": {"hi"}})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 after stop, got %d", rec.Code)
	}
	if err := svc.SendMessage(context.Background(), "919800000001", "x"); err != ErrServiceStopped {
		t.Fatalf("expected ErrServiceStopped, got %v", err)
	}
}
