package twilio

import (
	"context"
	"errors"
	"testing"

	contractx "github.com/tanpawarit/chative-order-relay/agent/contract"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

type fakeCreator struct {
	params []*twilioApi.CreateMessageParams
	err    error
}

func (f *fakeCreator) CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	f.params = append(f.params, params)
	if f.err != nil {
		return nil, f.err
	}
	sid := "SM123"
	return &twilioApi.ApiV2010Message{Sid: &sid}, nil
}

func TestMessengerSendFormatsAddresses(t *testing.T) {
	t.Parallel()

	fake := &fakeCreator{}
	m := &Messenger{api: fake, from: whatsAppAddress("+14155238886")}
	if err := m.Send(context.Background(), "5521999999999", "Pedido recebido"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(fake.params) != 1 {
		t.Fatalf("CreateMessage calls = %d, want 1", len(fake.params))
	}
	p := fake.params[0]
	if *p.To != "whatsapp:+5521999999999" || *p.From != "whatsapp:+14155238886" || *p.Body != "Pedido recebido" {
		t.Fatalf("params = to:%s from:%s body:%s", *p.To, *p.From, *p.Body)
	}
}

func TestMessengerSendWrapsErrors(t *testing.T) {
	t.Parallel()

	m := &Messenger{api: &fakeCreator{err: errors.New("21211 invalid to")}, from: "whatsapp:+1"}
	if err := m.Send(context.Background(), "5521999999999", "x"); !errors.Is(err, contractx.ErrSendFailed) {
		t.Fatalf("Send() error = %v, want ErrSendFailed", err)
	}
	if err := m.Send(context.Background(), "  ", "x"); !errors.Is(err, contractx.ErrSendFailed) {
		t.Fatalf("Send(blank) error = %v, want ErrSendFailed", err)
	}
}

func TestNewMessengerRequiresCredentials(t *testing.T) {
	t.Parallel()

	if _, err := NewMessenger(Config{AccountSID: "AC1"}); err == nil {
		t.Fatal("NewMessenger() expected error for missing credentials")
	}
}
