// Package extract pulls order fields out of free chat text.
package extract

import (
	"regexp"
	"strings"

	statex "github.com/tanpawarit/chative-order-relay/agent/state"
)

var foodKeywords = []string{
	"pizza", "hambúrguer", "hamburguer", "burger", "lanche", "sushi", "temaki",
	"japonês", "japones", "comida japonesa", "açaí", "acai", "pastel", "esfiha",
	"esfirra", "churrasco", "marmita", "marmitex", "prato feito", "feijoada",
	"frango", "yakisoba", "comida chinesa", "salgado", "coxinha", "cachorro quente",
	"hot dog", "poke", "sanduíche", "sanduiche", "tapioca", "massa", "lasanha",
	"macarrão", "macarrao", "salada", "sorvete", "doce", "bolo", "pão", "pao",
}

var (
	addressPattern = regexp.MustCompile(`(?i)\b(rua|r\.|avenida|av\.?|travessa|tv\.|alameda|al\.|estrada|rodovia|praça|praca|largo|beco)\s+[^\n]*?\d+`)

	phonePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\(?\b\d{2}\)?\s*9?\d{4}[\s.-]\d{4}\b`),
		regexp.MustCompile(`\+?\b55\s?\(?\d{2}\)?\s*9?\d{4}[\s.-]?\d{4}\b`),
		regexp.MustCompile(`\b\d{10,11}\b`),
	}

	changePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)troco\s+(?:pra|para|de)?\s*(?:r\$\s*)?(\d+(?:[.,]\d{1,2})?)`),
		regexp.MustCompile(`(?i)r\$\s*(\d+(?:[.,]\d{1,2})?)`),
		regexp.MustCompile(`(?i)(\d+(?:[.,]\d{1,2})?)\s*(?:reais|real|conto)\b`),
	}
	noChangePattern = regexp.MustCompile(`(?i)\b(sem troco|não preciso de troco|nao preciso de troco|dinheiro trocado|valor exato)\b`)
)

var paymentKeywords = []struct {
	method   statex.PaymentMethod
	keywords []string
}{
	{statex.PaymentCash, []string{"dinheiro", "espécie", "especie", "em mãos", "em maos", "cash"}},
	{statex.PaymentCard, []string{"cartão", "cartao", "crédito", "credito", "débito", "debito", "maquininha"}},
	{statex.PaymentPix, []string{"pix"}},
}

// Extract fills the unset fields of data from the latest message, falling
// back to the user history for contact, payment and change. Set fields are
// never overwritten.
func Extract(data statex.OrderData, history, latest string) statex.OrderData {
	latest = strings.TrimSpace(latest)
	lowerLatest := strings.ToLower(latest)
	lowerHistory := strings.ToLower(history)

	if data.Food == "" && latest != "" && matchesFood(lowerLatest) {
		data.Food = latest
	}

	if data.Address == "" && addressPattern.MatchString(latest) {
		data.Address = latest
	}

	if data.ContactID == "" {
		if contact := findContact(latest); contact != "" {
			data.ContactID = contact
		} else if contact := findContact(history); contact != "" {
			data.ContactID = contact
		}
	}

	if data.PaymentMethod == statex.PaymentUnset {
		if method := findPayment(lowerLatest); method != statex.PaymentUnset {
			data.PaymentMethod = method
		} else {
			data.PaymentMethod = findPayment(lowerHistory)
		}
	}

	if data.PaymentMethod == statex.PaymentCash && data.Change == "" {
		if change := findChange(latest); change != "" {
			data.Change = change
		} else {
			data.Change = findChange(history)
		}
	}

	return data
}

func matchesFood(lower string) bool {
	for _, kw := range foodKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func findContact(text string) string {
	for _, line := range strings.Split(text, "\n") {
		// house numbers are digits too
		line = addressPattern.ReplaceAllString(line, " ")
		for _, p := range phonePatterns {
			if m := p.FindString(line); m != "" {
				digits := digitsOnly(m)
				if len(digits) >= 10 && len(digits) <= 13 {
					return digits
				}
			}
		}
	}
	return ""
}

func findPayment(lower string) statex.PaymentMethod {
	for _, set := range paymentKeywords {
		for _, kw := range set.keywords {
			if strings.Contains(lower, kw) {
				return set.method
			}
		}
	}
	return statex.PaymentUnset
}

func findChange(text string) string {
	if noChangePattern.MatchString(text) {
		return "0"
	}
	for _, p := range changePatterns {
		if m := p.FindStringSubmatch(text); len(m) == 2 {
			return strings.ReplaceAll(m[1], ",", ".")
		}
	}
	return ""
}

func digitsOnly(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
