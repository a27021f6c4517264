package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/vibecodementor/VibeMentor/app/models"
)

// LemonsqueezyProvider adapts Lemonsqueezy webhooks to the shared pipeline.
// Amounts arrive in minor units (cents); identity travels in the checkout's
// custom_data.
type LemonsqueezyProvider struct {
	WebhookSecret string
}

func NewLemonsqueezyProvider(webhookSecret string) *LemonsqueezyProvider {
	return &LemonsqueezyProvider{WebhookSecret: webhookSecret}
}

func (p *LemonsqueezyProvider) Name() string {
	return models.PaymentProviderLemonsqueezy
}

func (p *LemonsqueezyProvider) VerifySignature(rawBody []byte, headers map[string]string) bool {
	return VerifyLemonsqueezySignature(rawBody, headerValue(headers, "X-Signature"), p.WebhookSecret)
}

type lemonsqueezyPayload struct {
	Meta struct {
		EventName  string            `json:"event_name"`
		CustomData map[string]string `json:"custom_data"`
	} `json:"meta"`
	Data struct {
		ID         string            `json:"id"`
		CustomData map[string]string `json:"custom_data"`
		Attributes struct {
			Total         int64  `json:"total"`
			Currency      string `json:"currency"`
			UserEmail     string `json:"user_email"`
			CustomerEmail string `json:"customer_email"`
			SubscriptionID any    `json:"subscription_id"`
			OrderID        any    `json:"order_id"`
		} `json:"attributes"`
	} `json:"data"`
}

func (p *LemonsqueezyProvider) ParseEvent(ctx context.Context, rawBody []byte) (*NormalizedEvent, error) {
	_ = ctx
	var raw lemonsqueezyPayload
	if err := json.Unmarshal(rawBody, &raw); err != nil {
		return nil, fmt.Errorf("decode lemonsqueezy payload: %w", err)
	}

	eventName := strings.ToLower(strings.TrimSpace(raw.Meta.EventName))
	if eventName == "" {
		return nil, errors.New("lemonsqueezy payload missing meta.event_name")
	}

	kind := EventKindIgnored
	switch eventName {
	case "subscription_payment_success", "order_created":
		kind = EventKindPayment
	case "order_refunded", "subscription_payment_refunded":
		kind = EventKindRefund
	}

	ev := &NormalizedEvent{
		Kind:      kind,
		Provider:  p.Name(),
		EventName: eventName,
	}
	if kind == EventKindIgnored {
		return ev, nil
	}

	txID := strings.TrimSpace(raw.Data.ID)
	if txID == "" {
		return nil, errors.New("lemonsqueezy payload missing data.id")
	}

	ev.TransactionID = txID
	ev.UserID = parseUserID(firstNonEmpty(
		raw.Meta.CustomData["userId"],
		raw.Meta.CustomData["user_id"],
		raw.Data.CustomData["userId"],
		raw.Data.CustomData["user_id"],
	))
	ev.Email = strings.TrimSpace(firstNonEmpty(
		raw.Data.Attributes.UserEmail,
		raw.Data.Attributes.CustomerEmail,
	))
	ev.Amount = AmountFromMinorUnits(raw.Data.Attributes.Total)
	ev.Currency = NormalizeCurrency(raw.Data.Attributes.Currency)
	ev.Metadata = map[string]string{}
	if sub := anyToString(raw.Data.Attributes.SubscriptionID); sub != "" {
		ev.Metadata["subscription_id"] = sub
	}
	if order := anyToString(raw.Data.Attributes.OrderID); order != "" {
		ev.Metadata["order_id"] = order
	}
	return ev, nil
}

func parseUserID(raw string) uint {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 32)
	if err != nil {
		return 0
	}
	return uint(id)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func anyToString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatInt(int64(t), 10)
	case json.Number:
		return t.String()
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

func headerValue(headers map[string]string, key string) string {
	if v, ok := headers[key]; ok {
		return v
	}
	lower := strings.ToLower(key)
	for k, v := range headers {
		if strings.ToLower(k) == lower {
			return v
		}
	}
	return ""
}
