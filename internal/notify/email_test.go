package notify

import (
	"context"
	"errors"
	"testing"
)

func TestSMTPSender_DisabledWithoutHost(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{})
	if s != nil {
		t.Fatalf("expected nil sender without host")
	}
	if err := s.SendEmail(context.Background(), Email{To: "a@example.com"}); !errors.Is(err, ErrTransportNotConfigured) {
		t.Fatalf("want ErrTransportNotConfigured, got %v", err)
	}
}

func TestSMTPSender_BuildMessage(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", From: "alerts@example.com"})
	m := s.buildMessage(Email{To: "owner@example.com", Subject: "Certificate expiring", HTMLBody: "<b>hi</b>"})

	if got := m.GetHeader("From"); len(got) != 1 || got[0] != "alerts@example.com" {
		t.Fatalf("From header: %v", got)
	}
	if got := m.GetHeader("To"); len(got) != 1 || got[0] != "owner@example.com" {
		t.Fatalf("To header: %v", got)
	}
	if got := m.GetHeader("Subject"); len(got) != 1 || got[0] != "Certificate expiring" {
		t.Fatalf("Subject header: %v", got)
	}
}

func TestSMTPSender_HonorsCancelledContext(t *testing.T) {
	// Nothing listens on port 1; the send either fails fast or the cancelled
	// context wins. Either way an error comes back.
	s := NewSMTPSender(SMTPConfig{Host: "127.0.0.1", Port: 1, From: "a@example.com"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.SendEmail(ctx, Email{To: "b@example.com", Subject: "x"}); err == nil {
		t.Fatalf("expected error")
	}
}
