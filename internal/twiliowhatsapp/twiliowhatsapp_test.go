package twiliowhatsapp

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"
)

func TestMockClient_SendMessage(t *testing.T) {
	ctx := context.Background()
	mock := NewMockClient()

	if err := mock.SendMessage(ctx, "12345", "Hello Test"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	msgs := mock.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Body != "Hello Test" {
		t.Errorf("expected body %q, got %q", "Hello Test", msgs[0].Body)
	}

	mock.Err = errors.New("rate limited")
	if err := mock.SendMessage(ctx, "12345", "again"); err == nil {
		t.Fatal("expected configured error")
	}
}

func TestNewClientRequiresCredentials(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")

	if _, err := NewClient(); err == nil {
		t.Fatal("expected error without credentials")
	}
	if _, err := NewClient(WithAccountSID("AC1"), WithAuthToken("tok")); err == nil {
		t.Fatal("expected error without from number")
	}
	if _, err := NewClient(WithAccountSID("AC1"), WithAuthToken("tok"), WithFromWhats("whatsapp:+15550000000")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestResolveOptsEnvFallback(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "ACenv")
	t.Setenv("TWILIO_AUTH_TOKEN", "envtoken")
	t.Setenv("TWILIO_FROM_NUMBER", "whatsapp:+15550000001")

	cfg := resolveOpts(WithAuthToken("explicit"))
	if cfg.AccountSID != "ACenv" || cfg.AuthToken != "explicit" || cfg.FromWhats != "whatsapp:+15550000001" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func sign(token, fullURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(form.Get(k))
	}
	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestSignatureValidator(t *testing.T) {
	const token = "secret-token"
	const publicURL = "https://bot.example.com/webhook/twilio"
	form := url.Values{"From": {"whatsapp:+919800000001"}, "Body": {"hi"}, "MessageSid": {"SM1"}}

	v := NewSignatureValidator(token, publicURL)

	req := httptest.NewRequest("POST", "/webhook/twilio", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(SignatureHeader, sign(token, publicURL, form))
	if !v.Validate(req) {
		t.Fatal("expected valid signature")
	}

	bad := httptest.NewRequest("POST", "/webhook/twilio", strings.NewReader(form.Encode()))
	bad.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	bad.Header.Set(SignatureHeader, sign("other-token", publicURL, form))
	if v.Validate(bad) {
		t.Fatal("expected signature from another token to be rejected")
	}

	missing := httptest.NewRequest("POST", "/webhook/twilio", strings.NewReader(form.Encode()))
	missing.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if v.Validate(missing) {
		t.Fatal("expected missing signature to be rejected")
	}
}
