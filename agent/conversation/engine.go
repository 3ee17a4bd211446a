// Package conversation writes the user-facing replies and the replies sent to
// restaurants on the user's behalf.
package conversation

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
	contractx "github.com/tanpawarit/chative-order-relay/agent/contract"
	promptx "github.com/tanpawarit/chative-order-relay/agent/prompt"
	statex "github.com/tanpawarit/chative-order-relay/agent/state"
	logx "github.com/tanpawarit/chative-order-relay/pkg/logger"
)

type Config struct {
	MaxReplyChars int `split_words:"true" default:"400"`
	MaxProxyChars int `split_words:"true" default:"600"`
	ProxyTurns    int `split_words:"true" default:"6"`
}

// Engine produces the next chat reply for a session.
type Engine struct {
	gen      contractx.TextGenerator
	persona  string
	maxChars int
	log      zerolog.Logger
}

func NewEngine(gen contractx.TextGenerator, cfg Config) *Engine {
	maxChars := cfg.MaxReplyChars
	if maxChars <= 0 {
		maxChars = 400
	}
	return &Engine{
		gen:      gen,
		persona:  promptx.LoadPromptSet().Persona,
		maxChars: maxChars,
		log:      logx.Component("conversation"),
	}
}

// Reply generates the assistant's next message. note describes what just
// happened when the reply should mention it. Generation failures fall back
// to a template and are never returned.
func (e *Engine) Reply(ctx context.Context, sess *statex.Session, note string) string {
	if e.gen != nil {
		prompt, err := promptx.Render(ctx, e.persona, personaVars(sess, note))
		if err == nil {
			var out string
			out, err = e.gen.Generate(ctx, prompt)
			if err == nil {
				if reply := TruncateSentence(out, e.maxChars); reply != "" {
					return reply
				}
				err = fmt.Errorf("%w: empty reply", contractx.ErrSchemaViolation)
			}
		}
		e.log.Warn().Err(err).Str("session_id", sess.SessionID).Msg("reply generation failed, using template")
	}
	return FallbackReply(sess, note)
}

func personaVars(sess *statex.Session, note string) map[string]any {
	data := sess.OrderData
	next := ""
	if missing := data.Missing(); len(missing) > 0 {
		next = fieldPrompts[missing[0]]
	}
	return map[string]any{
		"stage":   string(sess.Stage),
		"food":    data.Food,
		"address": data.Address,
		"contact": data.ContactID,
		"payment": paymentName(data.PaymentMethod),
		"change":  data.Change,
		"next":    next,
		"note":    note,
		"history": formatHistory(sess.Turns),
	}
}

var fieldPrompts = map[string]string{
	"food":    "o que a pessoa quer comer",
	"address": "o endereço completo de entrega",
	"contact": "um telefone de contato com DDD",
	"payment": "a forma de pagamento (dinheiro, cartão ou pix)",
	"change":  "se precisa de troco e para quanto",
}

func formatHistory(turns []statex.Turn) string {
	var sb strings.Builder
	for _, t := range turns {
		speaker := "Cliente"
		if t.Role == statex.RoleAssistant {
			speaker = "Atendente"
		}
		fmt.Fprintf(&sb, "%s: %s\n", speaker, t.Text)
	}
	return strings.TrimSpace(sb.String())
}

func paymentName(m statex.PaymentMethod) string {
	switch m {
	case statex.PaymentCash:
		return "dinheiro"
	case statex.PaymentCard:
		return "cartão"
	case statex.PaymentPix:
		return "pix"
	default:
		return ""
	}
}

// TruncateSentence trims text to at most limit runes. Over the limit it cuts
// after the first sentence end inside the limit, or hard at the limit.
func TruncateSentence(text string, limit int) string {
	text = strings.TrimSpace(text)
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	for i := 0; i < limit; i++ {
		switch runes[i] {
		case '.', '!', '?', '\n':
			if i+1 == len(runes) || runes[i+1] == ' ' || runes[i+1] == '\n' {
				return strings.TrimSpace(string(runes[:i+1]))
			}
		}
	}
	return strings.TrimSpace(string(runes[:limit]))
}

// TruncateWords trims text to at most limit runes, cutting at the last space
// inside the limit when there is one.
func TruncateWords(text string, limit int) string {
	text = strings.TrimSpace(text)
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)[:limit]
	for i := len(runes) - 1; i > 0; i-- {
		if runes[i] == ' ' || runes[i] == '\n' {
			return strings.TrimSpace(string(runes[:i]))
		}
	}
	return string(runes)
}
