package conversation

import (
	"fmt"
	"strings"

	statex "github.com/tanpawarit/chative-order-relay/agent/state"
)

var askTemplates = map[string]string{
	"food":    "O que você gostaria de pedir hoje? 😋",
	"address": "Anotado! Qual é o endereço completo para entrega?",
	"contact": "Perfeito. Qual telefone com DDD posso usar para contato?",
	"payment": "Como vai ser o pagamento: dinheiro, cartão ou pix?",
	"change":  "Vai precisar de troco? Se sim, para quanto?",
}

const (
	greetingPrefix  = "Olá! "
	searchingReply  = "Perfeito, já tenho tudo! Estou procurando restaurantes que entregam no seu endereço. Te aviso em instantes. 🔎"
	waitingReply    = "Seu pedido está com o restaurante. Assim que eles responderem, eu te aviso por aqui. 😉"
	thanksReply     = "De nada! Qualquer coisa é só chamar. 😊"
	defaultFollowUp = "Certo! Me conta como posso ajudar com o seu pedido."
)

var greetings = []string{"oi", "olá", "ola", "bom dia", "boa tarde", "boa noite", "e aí", "e ai"}

// FallbackReply picks a fixed reply from the session stage and the user's
// latest message.
func FallbackReply(sess *statex.Session, note string) string {
	last := strings.ToLower(lastUserText(sess))

	if note != "" {
		return note
	}

	switch sess.Stage {
	case statex.StageSearchingRestaurant:
		return searchingReply
	case statex.StageOrderSent:
		if containsAny(last, []string{"obrigad", "valeu", "brigad"}) {
			return thanksReply
		}
		return waitingReply
	}

	missing := sess.OrderData.Missing()
	if len(missing) == 0 {
		return defaultFollowUp
	}
	reply := askTemplates[missing[0]]
	if isGreeting(last) {
		reply = greetingPrefix + reply
	}
	return reply
}

func lastUserText(sess *statex.Session) string {
	for i := len(sess.Turns) - 1; i >= 0; i-- {
		if sess.Turns[i].Role == statex.RoleUser {
			return sess.Turns[i].Text
		}
	}
	return ""
}

func isGreeting(lower string) bool {
	for _, g := range greetings {
		if lower == g || strings.HasPrefix(lower, g+" ") || strings.HasPrefix(lower, g+",") || strings.HasPrefix(lower, g+"!") {
			return true
		}
	}
	return false
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// FormatOptions renders the discovered restaurants as a numbered list.
func FormatOptions(candidates []statex.Candidate) string {
	var sb strings.Builder
	sb.WriteString("Encontrei estas opções para você:\n")
	for i, c := range candidates {
		fmt.Fprintf(&sb, "\n%d. *%s*", i+1, c.Name)
		var details []string
		if c.Rating > 0 {
			details = append(details, fmt.Sprintf("⭐ %.1f", c.Rating))
		}
		if c.EstimatedTime != "" {
			details = append(details, "🕒 "+c.EstimatedTime)
		}
		if c.PriceRange != "" {
			details = append(details, c.PriceRange)
		}
		if len(details) > 0 {
			sb.WriteString("\n   " + strings.Join(details, " · "))
		}
		if c.Specialty != "" {
			sb.WriteString("\n   " + c.Specialty)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\nResponda com o número ou o nome do restaurante que você prefere.")
	return sb.String()
}

// OrderPlaced tells the user which restaurant received the order.
func OrderPlaced(c statex.Candidate) string {
	return fmt.Sprintf("Pedido enviado para *%s*! 🛵 Assim que o restaurante confirmar, eu te aviso por aqui.", c.Name)
}

// ContactBusy asks the user to pick another restaurant.
func ContactBusy(c statex.Candidate, candidates []statex.Candidate) string {
	return fmt.Sprintf("O restaurante %s está finalizando outro pedido agora. Pode escolher outra opção?\n\n%s", c.Name, FormatOptions(candidates))
}

// InvalidSelection repeats the options after an answer that matched none of them.
func InvalidSelection(candidates []statex.Candidate) string {
	return "Não consegui identificar o restaurante. " + FormatOptions(candidates)
}

// AnswerRelayed confirms the user's answer reached the restaurant.
const AnswerRelayed = "Perfeito, já repassei sua resposta ao restaurante. 👍"

// RestaurantQuestion wraps a restaurant question forwarded to the user.
func RestaurantQuestion(restaurant, question string) string {
	return fmt.Sprintf("📩 %s perguntou: \"%s\"\nMe responda por aqui que eu repasso para eles.", restaurant, question)
}
