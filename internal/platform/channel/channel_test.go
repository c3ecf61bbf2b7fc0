package channel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/reportwire/reportwire/internal/platform/registry"
)

func TestSMSSink_Send(t *testing.T) {
	var got smsRequest
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink := NewSMSSink(srv.URL, "key-123", "ReportWire")
	err := sink.Send(context.Background(), Delivery{
		RecipientID: "r1",
		Phone:       "+15551234",
		Body:        "Report ready",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if got.To != "+15551234" || got.From != "ReportWire" || got.Message != "Report ready" {
		t.Errorf("unexpected request: %+v", got)
	}
	if gotAuth != "Bearer key-123" {
		t.Errorf("auth header = %q", gotAuth)
	}
}

func TestSMSSink_GatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	sink := NewSMSSink(srv.URL, "k", "s")
	if err := sink.Send(context.Background(), Delivery{RecipientID: "r1", Phone: "+1"}); err == nil {
		t.Fatal("expected error on non-2xx response")
	}
}

func TestSMSSink_MissingPhone(t *testing.T) {
	sink := NewSMSSink("http://unused", "k", "s")
	if err := sink.Send(context.Background(), Delivery{RecipientID: "r1"}); err == nil {
		t.Fatal("expected error for recipient without phone")
	}
}

func TestWhatsAppSink_Send(t *testing.T) {
	var got whatsAppRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink := NewWhatsAppSink(srv.URL, "key")
	err := sink.Send(context.Background(), Delivery{
		RecipientID: "r1",
		Phone:       "+15551234",
		Body:        "Report ready",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if got.To != "+15551234" || got.Type != "text" || got.Text.Body != "Report ready" {
		t.Errorf("unexpected request: %+v", got)
	}
}

func TestPushSink_QueuesForOfflineRecipient(t *testing.T) {
	reg := registry.New(10, registry.PolicyDropOldest, zerolog.Nop())
	sink := NewPushSink(reg, nil)

	err := sink.Send(context.Background(), Delivery{
		RecipientID: "u1",
		Subject:     "Report Ready",
		Body:        "ready",
	})
	if err != nil {
		t.Fatalf("push to offline recipient must not fail: %v", err)
	}
	if reg.QueuedCount("u1") != 1 {
		t.Errorf("queued = %d, want 1", reg.QueuedCount("u1"))
	}
}

func TestMockSink_RecordsCalls(t *testing.T) {
	m := NewMockSink(NameEmail)
	m.Send(context.Background(), Delivery{RecipientID: "r1", Email: "a@b.c"})

	calls := m.Calls()
	if len(calls) != 1 || calls[0].RecipientID != "r1" {
		t.Errorf("unexpected calls: %+v", calls)
	}
}
