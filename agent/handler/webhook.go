package handler

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	orchestrator "github.com/tanpawarit/chative-order-relay/agent/agents/orchestrator"
	evolutionx "github.com/tanpawarit/chative-order-relay/pkg/evolution"
)

var webhookAck = fiber.Map{"success": true}

// EvolutionWebhook takes Evolution API deliveries. It acknowledges every
// delivery so the provider never redelivers; failures are only logged.
func (h *Handler) EvolutionWebhook(c *fiber.Ctx) error {
	var ev evolutionx.WebhookEvent
	if err := c.BodyParser(&ev); err != nil {
		h.log.Warn().Err(err).Msg("unreadable webhook payload")
		return c.JSON(webhookAck)
	}
	if !ev.Inbound() {
		h.log.Debug().Str("event", ev.Event).Bool("from_me", ev.Data.Key.FromMe).Msg("webhook event ignored")
		return c.JSON(webhookAck)
	}

	h.routeRestaurantMessage(c, evolutionx.ContactFromJID(ev.Data.Key.RemoteJID), ev.Text())
	return c.JSON(webhookAck)
}

type twilioInbound struct {
	From string `form:"From"`
	Body string `form:"Body"`
}

// TwilioWebhook takes Twilio WhatsApp deliveries, sent as a form post.
func (h *Handler) TwilioWebhook(c *fiber.Ctx) error {
	var in twilioInbound
	if err := c.BodyParser(&in); err != nil {
		h.log.Warn().Err(err).Msg("unreadable twilio payload")
		return c.JSON(webhookAck)
	}
	from := strings.TrimPrefix(strings.TrimSpace(in.From), "whatsapp:")
	body := strings.TrimSpace(in.Body)
	if from == "" || body == "" {
		return c.JSON(webhookAck)
	}

	h.routeRestaurantMessage(c, evolutionx.ContactFromJID(from), body)
	return c.JSON(webhookAck)
}

// routeRestaurantMessage never fails the request; a panic below it is logged
// here so the provider still gets its acknowledgement.
func (h *Handler) routeRestaurantMessage(c *fiber.Ctx, contact, text string) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error().Interface("panic", r).Str("contact_id", contact).Msg("restaurant message handling panicked")
		}
	}()

	err := h.svc.HandleRestaurantMessage(c.UserContext(), contact, text)
	switch {
	case err == nil:
	case errors.Is(err, orchestrator.ErrNoOpenOrder):
		h.log.Debug().Str("contact_id", contact).Msg("message from a contact with no open order")
	default:
		h.log.Error().Err(err).Str("contact_id", contact).Msg("restaurant message handling failed")
	}
}
