package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	classifyx "github.com/tanpawarit/chative-order-relay/agent/classify"
	contractx "github.com/tanpawarit/chative-order-relay/agent/contract"
	promptx "github.com/tanpawarit/chative-order-relay/agent/prompt"
	statex "github.com/tanpawarit/chative-order-relay/agent/state"
	logx "github.com/tanpawarit/chative-order-relay/pkg/logger"
)

// ProxyResponder writes replies to the restaurant as if it were the user.
type ProxyResponder struct {
	gen      contractx.TextGenerator
	tmpl     string
	maxChars int
	turns    int
	log      zerolog.Logger
}

func NewProxyResponder(gen contractx.TextGenerator, cfg Config) *ProxyResponder {
	maxChars := cfg.MaxProxyChars
	if maxChars <= 0 {
		maxChars = 600
	}
	turns := cfg.ProxyTurns
	if turns <= 0 {
		turns = 6
	}
	return &ProxyResponder{
		gen:      gen,
		tmpl:     promptx.LoadPromptSet().ClientProxy,
		maxChars: maxChars,
		turns:    turns,
		log:      logx.Component("client_proxy"),
	}
}

// Respond answers the restaurant's latest message. answer, when set, is the
// user's own reply to relay. Generation failures fall back to a template.
func (p *ProxyResponder) Respond(ctx context.Context, o *statex.Order, answer string) string {
	if p.gen != nil {
		prompt, err := promptx.Render(ctx, p.tmpl, p.vars(o, answer))
		if err == nil {
			var out string
			out, err = p.gen.Generate(ctx, prompt)
			if err == nil {
				if reply := TruncateWords(out, p.maxChars); reply != "" {
					return reply
				}
				err = fmt.Errorf("%w: empty reply", contractx.ErrSchemaViolation)
			}
		}
		p.log.Warn().Err(err).Str("order_id", o.OrderID).Msg("proxy generation failed, using template")
	}
	return FallbackProxy(o, answer)
}

func (p *ProxyResponder) vars(o *statex.Order, answer string) map[string]any {
	data := o.OrderData
	var sb strings.Builder
	for _, t := range o.LastTurns(p.turns) {
		speaker := "Restaurante"
		if t.Role == statex.RoleClientProxy {
			speaker = "Você"
		}
		fmt.Fprintf(&sb, "%s: %s\n", speaker, t.Text)
	}
	return map[string]any{
		"restaurant":   o.Restaurant.Name,
		"food":         data.Food,
		"address":      data.Address,
		"contact":      data.ContactID,
		"payment":      paymentName(data.PaymentMethod),
		"change":       data.Change,
		"notes":        data.Notes,
		"answer":       strings.TrimSpace(answer),
		"conversation": strings.TrimSpace(sb.String()),
	}
}

// FallbackProxy picks a fixed reply from keywords in the restaurant's latest message.
func FallbackProxy(o *statex.Order, answer string) string {
	if answer = strings.TrimSpace(answer); answer != "" {
		return answer
	}

	last := ""
	for i := len(o.Conversation) - 1; i >= 0; i-- {
		if o.Conversation[i].Role == statex.RoleRestaurant {
			last = o.Conversation[i].Text
			break
		}
	}
	res := classifyx.Classify(last)
	lower := strings.ToLower(last)

	switch {
	case res.Type == classifyx.TypeConfirmed:
		return "Perfeito, muito obrigado! Mais ou menos quanto tempo para chegar?"
	case res.Type == classifyx.TypePreparing:
		return "Ótimo, obrigado pelo aviso!"
	case res.Type == classifyx.TypeOutForDelivery:
		return "Show, fico aguardando. Obrigado!"
	case strings.Contains(lower, "pagamento") || strings.Contains(lower, "troco"):
		return paymentAnswer(o.OrderData)
	case strings.Contains(lower, "endereço") || strings.Contains(lower, "endereco"):
		return "O endereço é " + o.OrderData.Address + "."
	case res.IsGreeting:
		return "Olá, tudo bem? Conseguem confirmar o meu pedido?"
	case res.IsQuestion:
		return "Só um instante que já confirmo e te respondo."
	default:
		return "Certo, obrigado!"
	}
}

func paymentAnswer(data statex.OrderData) string {
	switch data.PaymentMethod {
	case statex.PaymentCash:
		if data.Change != "" && data.Change != "0" {
			return "Vai ser em dinheiro, com troco para R$ " + data.Change + "."
		}
		return "Vai ser em dinheiro, sem troco."
	case statex.PaymentCard:
		return "Vou pagar no cartão, na entrega."
	case statex.PaymentPix:
		return "Vou pagar no pix. Podem me mandar a chave?"
	default:
		return "Já te confirmo a forma de pagamento."
	}
}
