package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/vibecodementor/VibeMentor/internal/pkg/billing"
	"github.com/vibecodementor/VibeMentor/internal/pkg/database"
)

const webhookTimeout = 15 * time.Second

// Provider adapters are built once at router install so cross-request state
// (PayPal cert cache, Flutterwave verify throttle) actually accumulates.
var (
	lemonsqueezyProvider billing.Provider
	paypalProvider       billing.Provider
	flutterwaveProvider  billing.Provider
)

// SetWebhookProviders wires the shared provider adapters.
func SetWebhookProviders(ls, pp, flw billing.Provider) {
	lemonsqueezyProvider = ls
	paypalProvider = pp
	flutterwaveProvider = flw
}

// newBillingService builds the service the dispatcher runs deliveries
// through; a variable so tests can substitute a fake repository.
var newBillingService = func() *billing.Service {
	return billing.NewServiceFromDB(database.GetDB())
}

// HandleLemonsqueezyWebhook processes Lemonsqueezy order and subscription events.
func HandleLemonsqueezyWebhook(c *fiber.Ctx) error {
	headers := map[string]string{
		"X-Signature": c.Get("X-Signature"),
	}
	eventName := strings.TrimSpace(c.Get("X-Event-Name"))
	eventID := firstHeaderValue(c, "X-Event-Id", "X-Event-ID")

	return dispatchWebhook(c, lemonsqueezyProvider, headers, eventName, eventID)
}

// HandlePayPalWebhook processes PayPal capture events.
func HandlePayPalWebhook(c *fiber.Ctx) error {
	headers := map[string]string{
		"Paypal-Transmission-Id":   c.Get("Paypal-Transmission-Id"),
		"Paypal-Transmission-Time": c.Get("Paypal-Transmission-Time"),
		"Paypal-Transmission-Sig":  c.Get("Paypal-Transmission-Sig"),
		"Paypal-Cert-Url":          c.Get("Paypal-Cert-Url"),
		"Paypal-Auth-Algo":         c.Get("Paypal-Auth-Algo"),
	}

	rawBody := c.BodyRaw()
	eventName, eventID := paypalEventEnvelope(rawBody)

	return dispatchWebhook(c, paypalProvider, headers, eventName, eventID)
}

// HandleFlutterwaveWebhook processes Flutterwave charge events.
func HandleFlutterwaveWebhook(c *fiber.Ctx) error {
	headers := map[string]string{
		"verif-hash": c.Get("verif-hash"),
	}
	eventName := flutterwaveEventName(c.BodyRaw())

	// Flutterwave sends no delivery id; the payload hash dedupes redeliveries.
	return dispatchWebhook(c, flutterwaveProvider, headers, eventName, "")
}

// dispatchWebhook is the shared pipeline behind all provider endpoints:
// persist the delivery, verify the signature, normalize the event and run it
// through the ledger/entitlement service. Response codes are chosen for the
// provider's retry behavior: 5xx only when a retry can succeed.
func dispatchWebhook(c *fiber.Ctx, provider billing.Provider, headers map[string]string, eventName, eventID string) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)

	svc := newBillingService()
	ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
	defer cancel()

	signatureValid := provider.VerifySignature(rawBody, headers)
	created, stored, err := svc.RecordWebhookEvent(ctx, billing.WebhookEventInput{
		Provider:        provider.Name(),
		ProviderEventID: eventID,
		EventType:       eventName,
		PayloadJSON:     string(rawBody),
		SignatureValid:  signatureValid,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}
	if !created && stored.ProcessedSuccessfully() {
		// Redelivery of a fully processed event. Deliveries that ended in an
		// error (bad signature, ledger failure) fall through and are run
		// again; the transaction_id unique index is the real idempotency
		// guard against double-ledgering.
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
	}
	if !signatureValid {
		_ = svc.MarkWebhookProcessed(ctx, stored.ID, errors.New("invalid webhook signature"))
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature"})
	}

	event, err := provider.ParseEvent(ctx, rawBody)
	if err != nil {
		if errors.Is(err, billing.ErrVerificationUnavailable) {
			// Transient: the provider should redeliver and the verify
			// round-trip may then succeed. Leave the event unprocessed.
			_ = svc.MarkWebhookProcessed(ctx, stored.ID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "verification_unavailable"})
		}
		_ = svc.MarkWebhookProcessed(ctx, stored.ID, err)
		if errors.Is(err, billing.ErrVerificationFailed) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "verification_failed"})
		}
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}
	if event.Kind == billing.EventKindIgnored {
		_ = svc.MarkWebhookProcessed(ctx, stored.ID, nil)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true})
	}

	result, err := svc.ProcessPaymentEvent(ctx, event)
	_ = svc.MarkWebhookProcessed(ctx, stored.ID, err)
	if err != nil {
		if errors.Is(err, billing.ErrMissingIdentity) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing_identity"})
		}
		// Ledger write failed; the provider should retry the delivery.
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "payment_processing_failed"})
	}

	if result.AlreadyProcessed {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "already_processed": true})
	}
	if result.Warning != "" {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "warning": result.Warning})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "upgraded": result.Upgraded})
}

func paypalEventEnvelope(rawBody []byte) (eventName, eventID string) {
	var envelope struct {
		ID        string `json:"id"`
		EventType string `json:"event_type"`
	}
	if err := json.Unmarshal(rawBody, &envelope); err != nil {
		return "", ""
	}
	return envelope.EventType, envelope.ID
}

func flutterwaveEventName(rawBody []byte) string {
	var envelope struct {
		Event string `json:"event"`
	}
	if err := json.Unmarshal(rawBody, &envelope); err != nil {
		return ""
	}
	return envelope.Event
}
