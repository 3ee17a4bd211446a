package extract

import (
	"testing"

	statex "github.com/tanpawarit/chative-order-relay/agent/state"
)

func TestExtractConversation(t *testing.T) {
	t.Parallel()

	messages := []string{
		"quero uma pizza calabresa grande",
		"Rua das Flores, 120, Icaraí, Niterói",
		"meu telefone é (21) 99999-8888",
		"pix",
	}

	var (
		data    statex.OrderData
		history string
	)
	for _, msg := range messages {
		if history != "" {
			history += "\n"
		}
		history += msg
		data = Extract(data, history, msg)
	}

	want := statex.OrderData{
		Food:          "quero uma pizza calabresa grande",
		Address:       "Rua das Flores, 120, Icaraí, Niterói",
		ContactID:     "21999998888",
		PaymentMethod: statex.PaymentPix,
	}
	if data != want {
		t.Fatalf("Extract() = %#v, want %#v", data, want)
	}
	if !data.IsComplete() {
		t.Fatalf("IsComplete() = false, missing %v", data.Missing())
	}
}

func TestExtractFirstWriteWins(t *testing.T) {
	t.Parallel()

	data := statex.OrderData{
		Food:          "um sushi combinado",
		Address:       "Av. Atlântica, 500",
		ContactID:     "21988887777",
		PaymentMethod: statex.PaymentCard,
	}
	msg := "na verdade quero pizza na Rua B, 20, paga em dinheiro, fone 11 97777-6666"
	got := Extract(data, msg, msg)
	if got != data {
		t.Fatalf("Extract() overwrote fields: %#v", got)
	}
}

func TestExtractIsIdempotent(t *testing.T) {
	t.Parallel()

	history := "quero um hambúrguer\nRua A, 10\n21999999999\ndinheiro, troco para 50"
	latest := "dinheiro, troco para 50"

	once := Extract(statex.OrderData{}, history, latest)
	twice := Extract(once, history, latest)
	if once != twice {
		t.Fatalf("Extract() not idempotent: %#v vs %#v", once, twice)
	}
	if once.PaymentMethod != statex.PaymentCash || once.Change != "50" {
		t.Fatalf("payment = %q change = %q", once.PaymentMethod, once.Change)
	}
	if once.ContactID != "21999999999" {
		t.Fatalf("contact = %q, want from history", once.ContactID)
	}
}

func TestExtractPaymentPriority(t *testing.T) {
	t.Parallel()

	cases := []struct {
		text string
		want statex.PaymentMethod
	}{
		{"pode ser pix ou dinheiro", statex.PaymentCash},
		{"no cartão ou pix", statex.PaymentCard},
		{"PIX", statex.PaymentPix},
		{"ainda não sei", statex.PaymentUnset},
	}
	for _, tc := range cases {
		got := Extract(statex.OrderData{}, tc.text, tc.text)
		if got.PaymentMethod != tc.want {
			t.Errorf("Extract(%q).PaymentMethod = %q, want %q", tc.text, got.PaymentMethod, tc.want)
		}
	}
}

func TestExtractChange(t *testing.T) {
	t.Parallel()

	cases := []struct {
		text string
		want string
	}{
		{"dinheiro, troco pra 100", "100"},
		{"dinheiro, vou pagar com R$ 50,00", "50.00"},
		{"em dinheiro, tenho 20 reais", "20"},
		{"dinheiro sem troco", "0"},
		{"dinheiro", ""},
	}
	for _, tc := range cases {
		got := Extract(statex.OrderData{}, tc.text, tc.text)
		if got.Change != tc.want {
			t.Errorf("Extract(%q).Change = %q, want %q", tc.text, got.Change, tc.want)
		}
	}

	card := Extract(statex.OrderData{}, "cartão, troco pra 100", "cartão, troco pra 100")
	if card.Change != "" {
		t.Fatalf("change recorded for card payment: %q", card.Change)
	}
}

func TestExtractNoMatchLeavesFieldsUnset(t *testing.T) {
	t.Parallel()

	got := Extract(statex.OrderData{}, "oi, tudo bem?", "oi, tudo bem?")
	if got != (statex.OrderData{}) {
		t.Fatalf("Extract() = %#v, want empty", got)
	}
}

func TestExtractContactAfterAddressOnSameLine(t *testing.T) {
	t.Parallel()

	msg := "Rua A, 10 - meu número 21 98888-7777"
	got := Extract(statex.OrderData{}, msg, msg)
	if got.Address != msg {
		t.Fatalf("address = %q", got.Address)
	}
	if got.ContactID != "21988887777" {
		t.Fatalf("contact = %q, want 21988887777", got.ContactID)
	}
}
