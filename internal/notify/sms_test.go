package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSMSGateway_OK(t *testing.T) {
	var got smsPayload
	var auth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(202)
	}))
	defer ts.Close()

	g := NewSMSGateway(ts.URL, "tok", "DomainGuard")
	if g == nil {
		t.Fatal("expected sms gateway")
	}
	if err := g.SendSMS(context.Background(), SMS{To: "+15550100", Body: "Hello"}); err != nil {
		t.Fatalf("send err: %v", err)
	}
	if got.To != "+15550100" || got.Body != "Hello" || got.From != "DomainGuard" {
		t.Fatalf("payload not as expected: %+v", got)
	}
	if auth != "Bearer tok" {
		t.Fatalf("missing bearer token, got %q", auth)
	}
}

func TestSMSGateway_Non2xx(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
	}))
	defer ts.Close()

	g := NewSMSGateway(ts.URL, "", "")
	if err := g.SendSMS(context.Background(), SMS{To: "x", Body: "y"}); err == nil {
		t.Fatalf("expected error on non-2xx")
	}
}

func TestSMSGateway_Disabled(t *testing.T) {
	g := NewSMSGateway("", "", "")
	if g != nil {
		t.Fatalf("expected nil gateway without URL")
	}
	if err := g.SendSMS(context.Background(), SMS{}); !errors.Is(err, ErrTransportNotConfigured) {
		t.Fatalf("want ErrTransportNotConfigured, got %v", err)
	}
}
