// Package classify sorts inbound restaurant messages by keyword.
package classify

import (
	"strings"
)

type Type string

const (
	TypeConfirmed      Type = "confirmed"
	TypePreparing      Type = "preparing"
	TypeOutForDelivery Type = "out_for_delivery"
	TypeGeneral        Type = "general"
)

type Result struct {
	Type             Type `json:"type"`
	NeedsClientInput bool `json:"needs_client_input"`
	IsQuestion       bool `json:"is_question"`
	IsGreeting       bool `json:"is_greeting"`
}

// checked in this order; the first category with a hit wins
var typeKeywords = []struct {
	typ      Type
	keywords []string
}{
	{TypeConfirmed, []string{
		"confirmado", "confirmada", "confirmamos", "pedido aceito", "aceitamos",
		"pode deixar", "anotado", "certinho", "tudo certo",
	}},
	{TypePreparing, []string{
		"preparando", "preparo", "em produção", "em producao", "no forno",
		"fazendo seu pedido", "já estamos fazendo", "ja estamos fazendo",
	}},
	{TypeOutForDelivery, []string{
		"saiu para entrega", "saiu pra entrega", "saindo para entrega", "a caminho",
		"motoboy", "entregador", "já saiu", "ja saiu", "chegando",
	}},
}

var clientInputKeywords = []string{
	"forma de pagamento", "qual pagamento", "troco", "qual sabor", "qual tamanho",
	"borda", "prefere", "preferência", "preferencia", "confirma o endereço",
	"confirmar o endereço", "confirma o endereco", "ponto de referência",
	"ponto de referencia", "complemento", "bebida", "refrigerante", "observação",
	"observacao", "sem cebola", "acompanhamento", "não temos", "nao temos",
	"acabou", "em falta", "substituir",
}

var questionWords = []string{
	"qual", "quais", "quando", "quanto", "quantos", "como", "onde", "pode ",
	"poderia", "gostaria", "deseja", "quer ",
}

var greetingKeywords = []string{
	"olá", "ola", "oi", "bom dia", "boa tarde", "boa noite", "tudo bem", "e aí", "e ai",
}

// Classify is pure and case-insensitive.
func Classify(text string) Result {
	lower := strings.ToLower(strings.TrimSpace(text))

	res := Result{Type: TypeGeneral}
	for _, set := range typeKeywords {
		if containsAny(lower, set.keywords) {
			res.Type = set.typ
			break
		}
	}

	res.NeedsClientInput = containsAny(lower, clientInputKeywords)
	res.IsQuestion = strings.Contains(lower, "?") || hasPrefixAny(lower, questionWords)
	res.IsGreeting = hasGreeting(lower)
	return res
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func hasPrefixAny(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// greetings are short words, so they only count at the start of the message
func hasGreeting(lower string) bool {
	for _, g := range greetingKeywords {
		if !strings.HasPrefix(lower, g) {
			continue
		}
		rest := lower[len(g):]
		if rest == "" || strings.IndexAny(rest[:1], " ,.!?") == 0 {
			return true
		}
	}
	return false
}
