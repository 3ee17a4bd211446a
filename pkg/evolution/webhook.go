package evolution

import "strings"

const EventMessagesUpsert = "messages.upsert"

// WebhookEvent is the subset of an Evolution API webhook delivery the relay reads.
type WebhookEvent struct {
	Event    string      `json:"event"`
	Instance string      `json:"instance,omitempty"`
	Data     WebhookData `json:"data"`
}

type WebhookData struct {
	Key      MessageKey      `json:"key"`
	Message  *MessageContent `json:"message,omitempty"`
	PushName string          `json:"pushName,omitempty"`
}

type MessageKey struct {
	RemoteJID string `json:"remoteJid"`
	FromMe    bool   `json:"fromMe"`
	ID        string `json:"id,omitempty"`
}

type MessageContent struct {
	Conversation        string           `json:"conversation,omitempty"`
	ExtendedTextMessage *ExtendedMessage `json:"extendedTextMessage,omitempty"`
}

type ExtendedMessage struct {
	Text string `json:"text"`
}

// Text returns the message body, preferring the plain conversation field.
func (e WebhookEvent) Text() string {
	if e.Data.Message == nil {
		return ""
	}
	if text := strings.TrimSpace(e.Data.Message.Conversation); text != "" {
		return text
	}
	if ext := e.Data.Message.ExtendedTextMessage; ext != nil {
		return strings.TrimSpace(ext.Text)
	}
	return ""
}

// Inbound reports whether the event is a text message sent by someone else.
func (e WebhookEvent) Inbound() bool {
	return e.Event == EventMessagesUpsert && !e.Data.Key.FromMe && e.Text() != ""
}

// ContactFromJID strips the WhatsApp server suffix and any non-digits.
func ContactFromJID(jid string) string {
	jid = strings.TrimSpace(jid)
	if at := strings.IndexByte(jid, '@'); at >= 0 {
		jid = jid[:at]
	}
	if colon := strings.IndexByte(jid, ':'); colon >= 0 {
		jid = jid[:colon]
	}
	var sb strings.Builder
	for _, r := range jid {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
