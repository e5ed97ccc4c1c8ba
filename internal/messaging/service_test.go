package messaging

import (
	"context"
	"errors"
	"strings"
	"testing"

	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

func TestCanonicalizeRecipient(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"+55 (99) 91111-2222", "5599911112222", false},
		{"5599911112222", "5599911112222", false},
		{"whatsapp:+5599911112222", "5599911112222", false},
		{"", "", true},
		{"abc-def", "", true},
		{"12345", "", true},
	}
	for _, tc := range cases {
		got, err := CanonicalizeRecipient(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("CanonicalizeRecipient(%q): expected error, got %q", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("CanonicalizeRecipient(%q): unexpected error: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("CanonicalizeRecipient(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

// mockMessageCreator captures the params sent to the Twilio API.
type mockMessageCreator struct {
	params *twilioApi.CreateMessageParams
	err    error
}

func (m *mockMessageCreator) CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	m.params = params
	return &twilioApi.ApiV2010Message{}, m.err
}

func TestTwilioService_SendMessage(t *testing.T) {
	mock := &mockMessageCreator{}
	svc := &TwilioService{api: mock, from: "+14155550100"}

	if err := svc.SendMessage(context.Background(), "+55 99 91111-2222", "olá!"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mock.params == nil {
		t.Fatal("no message was created")
	}
	if got := *mock.params.To; got != "whatsapp:+5599911112222" {
		t.Errorf("To = %q", got)
	}
	if got := *mock.params.From; got != "whatsapp:+14155550100" {
		t.Errorf("From = %q", got)
	}
	if got := *mock.params.Body; got != "olá!" {
		t.Errorf("Body = %q", got)
	}
}

func TestTwilioService_SendMessage_InvalidRecipient(t *testing.T) {
	svc := &TwilioService{api: &mockMessageCreator{}, from: "+14155550100"}
	if err := svc.SendMessage(context.Background(), "abc", "olá!"); err == nil {
		t.Error("expected validation error for recipient without digits")
	}
}

func TestTwilioService_SendMessage_APIFailure(t *testing.T) {
	svc := &TwilioService{api: &mockMessageCreator{err: errors.New("boom")}, from: "+14155550100"}
	err := svc.SendMessage(context.Background(), "5599911112222", "olá!")
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("expected wrapped API error, got %v", err)
	}
}

func TestTwilioService_StoppedFailsFast(t *testing.T) {
	mock := &mockMessageCreator{}
	svc := &TwilioService{api: mock, from: "+14155550100"}
	if err := svc.Stop(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.SendMessage(context.Background(), "5599911112222", "olá!"); !errors.Is(err, ErrServiceStopped) {
		t.Errorf("expected ErrServiceStopped, got %v", err)
	}
	if mock.params != nil {
		t.Error("stopped service must not hit the API")
	}
}

func TestNewTwilioService_MissingCredentials(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")
	if _, err := NewTwilioService(); err == nil {
		t.Error("expected error without credentials")
	}
}
