package classify

import "testing"

func TestClassifyType(t *testing.T) {
	t.Parallel()

	cases := []struct {
		text string
		want Type
	}{
		{"pedido confirmado, já estamos preparando", TypeConfirmed},
		{"PEDIDO CONFIRMADO", TypeConfirmed},
		{"Seu pedido já está no forno", TypePreparing},
		{"o motoboy saiu para entrega agora", TypeOutForDelivery},
		{"só um minuto", TypeGeneral},
	}
	for _, tc := range cases {
		if got := Classify(tc.text).Type; got != tc.want {
			t.Errorf("Classify(%q).Type = %q, want %q", tc.text, got, tc.want)
		}
	}
}

func TestClassifyNeedsClientInputIsIndependent(t *testing.T) {
	t.Parallel()

	res := Classify("Pedido confirmado! Qual a forma de pagamento?")
	if res.Type != TypeConfirmed {
		t.Fatalf("Type = %q, want confirmed", res.Type)
	}
	if !res.NeedsClientInput || !res.IsQuestion {
		t.Fatalf("Classify() = %#v, want needs input and question", res)
	}

	res = Classify("ok, aguarde")
	if res.NeedsClientInput || res.IsQuestion {
		t.Fatalf("Classify() = %#v, want plain message", res)
	}
}

func TestClassifyGreeting(t *testing.T) {
	t.Parallel()

	if !Classify("Olá, boa noite!").IsGreeting {
		t.Fatal("IsGreeting = false for greeting")
	}
	if !Classify("oi").IsGreeting {
		t.Fatal("IsGreeting = false for bare oi")
	}
	if Classify("oito pizzas?").IsGreeting {
		t.Fatal("IsGreeting = true for word starting with oi")
	}
}
