package messaging

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/groupsum/GroupSum/internal/whatsapp"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
)

func TestWhatsAppService_ValidateAndCanonicalizeRecipient(t *testing.T) {
	svc := NewWhatsAppService(whatsapp.NewMockClient())

	tests := []struct {
		name      string
		recipient string
		want      string
		wantErr   bool
	}{
		{"plain digits", "15551234567", "15551234567", false},
		{"plus prefix", "+15551234567", "15551234567", false},
		{"formatted", "+1 (555) 123-4567", "15551234567", false},
		{"jid suffix", "15551234567@s.whatsapp.net", "15551234567", false},
		{"empty", "", "", true},
		{"no digits", "not-a-number", "", true},
		{"too short", "12345", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.ValidateAndCanonicalizeRecipient(tt.recipient)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error for %q, got canonical %q", tt.recipient, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error for %q: %v", tt.recipient, err)
			}
			if got != tt.want {
				t.Errorf("canonical(%q) = %q, want %q", tt.recipient, got, tt.want)
			}
		})
	}
}

func TestWhatsAppService_SendMessage(t *testing.T) {
	mock := whatsapp.NewMockClient()
	svc := NewWhatsAppService(mock)

	if err := svc.SendMessage(context.Background(), "15551234567", "hello"); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	sent := mock.SentMessages()
	if len(sent) != 1 {
		t.Fatalf("expected 1 sent message, got %d", len(sent))
	}
	if sent[0].To != "15551234567" || !strings.Contains(sent[0].Body, "hello") {
		t.Errorf("unexpected sent message: %+v", sent[0])
	}
}

func TestWhatsAppService_StartWithMockIsNoop(t *testing.T) {
	svc := NewWhatsAppService(whatsapp.NewMockClient())
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
}

func textMessageEvent(from, text string) *events.Message {
	return &events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{
				Sender: types.NewJID(from, types.DefaultUserServer),
			},
			Timestamp: time.Now(),
		},
		Message: &waE2E.Message{Conversation: &text},
	}
}

func TestWhatsAppService_IncomingMessageForwarded(t *testing.T) {
	svc := NewWhatsAppService(whatsapp.NewMockClient())

	svc.handleIncomingMessage(textMessageEvent("15551234567", "/start"))
	select {
	case got := <-svc.Responses():
		if got.From != "15551234567" || got.Body != "/start" {
			t.Errorf("unexpected response: %+v", got)
		}
	default:
		t.Fatal("expected message forwarded to responses channel")
	}
}

func TestWhatsAppService_IncomingMessageAfterStopIsDropped(t *testing.T) {
	svc := NewWhatsAppService(whatsapp.NewMockClient())
	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	// The whatsmeow handler stays registered until the client disconnects,
	// so a late event must be dropped, not panic on the closed channel.
	svc.handleIncomingMessage(textMessageEvent("15551234567", "hello"))
}

func TestWhatsAppService_StopIsIdempotent(t *testing.T) {
	svc := NewWhatsAppService(whatsapp.NewMockClient())
	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := svc.Stop(); err != nil {
		t.Fatalf("second Stop failed: %v", err)
	}
	if _, ok := <-svc.Responses(); ok {
		t.Error("expected responses channel closed")
	}
}
