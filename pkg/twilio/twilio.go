package twilio

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/chative-order-relay/agent/contract"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

type Config struct {
	AccountSID   string `envconfig:"ACCOUNT_SID" split_words:"true" required:"true"`
	AuthToken    string `envconfig:"AUTH_TOKEN" split_words:"true" required:"true"`
	WhatsAppFrom string `envconfig:"WHATSAPP_FROM" split_words:"true" required:"true"`
}

// messageCreator is the slice of the Twilio REST API the messenger uses.
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// Messenger sends WhatsApp text through Twilio.
type Messenger struct {
	api  messageCreator
	from string
}

var _ contractx.Messenger = (*Messenger)(nil)

func NewMessenger(cfg Config) (*Messenger, error) {
	sid := strings.TrimSpace(cfg.AccountSID)
	token := strings.TrimSpace(cfg.AuthToken)
	from := strings.TrimSpace(cfg.WhatsAppFrom)
	if sid == "" || token == "" || from == "" {
		return nil, errors.New("missing twilio credentials")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: sid,
		Password: token,
	})
	return &Messenger{api: client.Api, from: whatsAppAddress(from)}, nil
}

func (m *Messenger) Send(ctx context.Context, contactID string, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	to := whatsAppAddress(contactID)
	if to == "" {
		return fmt.Errorf("%w: empty contact id", contractx.ErrSendFailed)
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetFrom(m.from)
	params.SetTo(to)
	params.SetBody(text)

	resp, err := m.api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("%w: %v", contractx.ErrSendFailed, err)
	}
	if resp != nil && resp.Sid != nil {
		log.Debug().Str("sid", *resp.Sid).Str("to", to).Msg("twilio message queued")
	}
	return nil
}

// whatsAppAddress turns digits or an E.164 number into whatsapp:+<digits>.
func whatsAppAddress(contact string) string {
	contact = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(contact), "whatsapp:"))
	var sb strings.Builder
	for _, r := range contact {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	if sb.Len() == 0 {
		return ""
	}
	return "whatsapp:+" + sb.String()
}
