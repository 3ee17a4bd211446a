package evolution

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	contractx "github.com/tanpawarit/chative-order-relay/agent/contract"
)

func TestClientSendPostsText(t *testing.T) {
	t.Parallel()

	var got sendTextRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/message/sendText/relay" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("apikey") != "secret" {
			t.Errorf("apikey header = %q", r.Header.Get("apikey"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{URL: srv.URL + "/", APIKey: "secret", Instance: "relay"})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if err := client.Send(context.Background(), "5521999999999@s.whatsapp.net", "Olá"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got.Number != "5521999999999" || got.Text != "Olá" {
		t.Fatalf("request body = %#v", got)
	}
}

func TestClientSendReportsFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "instance disconnected", http.StatusBadRequest)
	}))
	t.Cleanup(srv.Close)

	client := MustNew(Config{URL: srv.URL, APIKey: "k", Instance: "relay"})
	if err := client.Send(context.Background(), "5521999999999", "hi"); !errors.Is(err, contractx.ErrSendFailed) {
		t.Fatalf("Send() error = %v, want ErrSendFailed", err)
	}
	if err := client.Send(context.Background(), "", "hi"); !errors.Is(err, contractx.ErrSendFailed) {
		t.Fatalf("Send(empty) error = %v, want ErrSendFailed", err)
	}
}

func TestNewClientValidatesConfig(t *testing.T) {
	t.Parallel()

	if _, err := NewClient(Config{}); err == nil {
		t.Fatal("NewClient() expected error for empty url")
	}
	if _, err := NewClient(Config{URL: "http://localhost:8080"}); err == nil {
		t.Fatal("NewClient() expected error for empty instance")
	}
}

func TestWebhookEventText(t *testing.T) {
	t.Parallel()

	raw := `{"event":"messages.upsert","data":{"key":{"remoteJid":"5521988887777@s.whatsapp.net","fromMe":false},
		"message":{"extendedTextMessage":{"text":" pedido confirmado "}}}}`
	var ev WebhookEvent
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !ev.Inbound() {
		t.Fatal("Inbound() = false, want true")
	}
	if ev.Text() != "pedido confirmado" {
		t.Fatalf("Text() = %q", ev.Text())
	}
	if got := ContactFromJID(ev.Data.Key.RemoteJID); got != "5521988887777" {
		t.Fatalf("ContactFromJID() = %q", got)
	}

	ev.Data.Key.FromMe = true
	if ev.Inbound() {
		t.Fatal("Inbound() = true for fromMe message")
	}
	ev.Data.Key.FromMe = false
	ev.Data.Message = nil
	if ev.Inbound() {
		t.Fatal("Inbound() = true for empty message")
	}
}
