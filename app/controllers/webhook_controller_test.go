package controllers

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/vibecodementor/VibeMentor/app/models"
	"github.com/vibecodementor/VibeMentor/internal/pkg/billing"
)

func TestPaypalEventEnvelope(t *testing.T) {
	name, id := paypalEventEnvelope([]byte(`{"id":"WH-1234","event_type":"PAYMENT.CAPTURE.COMPLETED"}`))
	assert.Equal(t, "PAYMENT.CAPTURE.COMPLETED", name)
	assert.Equal(t, "WH-1234", id)

	name, id = paypalEventEnvelope([]byte(`not json`))
	assert.Empty(t, name)
	assert.Empty(t, id)
}

func TestFlutterwaveEventName(t *testing.T) {
	assert.Equal(t, "charge.completed", flutterwaveEventName([]byte(`{"event":"charge.completed","data":{}}`)))
	assert.Empty(t, flutterwaveEventName([]byte(`{`)))
}

// fakeBillingRepo backs dispatcher tests without a database. Webhook events
// keep their processed state so redelivery behavior is observable.
type fakeBillingRepo struct {
	payments       map[string]*models.PaymentRecord
	entitlements   map[uint]*models.Entitlement
	events         map[string]*models.PaymentWebhookEvent
	eventsByID     map[uint]*models.PaymentWebhookEvent
	failNextLedger bool
	nextID         uint
}

func newFakeBillingRepo() *fakeBillingRepo {
	return &fakeBillingRepo{
		payments:     make(map[string]*models.PaymentRecord),
		entitlements: make(map[uint]*models.Entitlement),
		events:       make(map[string]*models.PaymentWebhookEvent),
		eventsByID:   make(map[uint]*models.PaymentWebhookEvent),
	}
}

func (f *fakeBillingRepo) CreatePaymentIfNotExists(record *models.PaymentRecord) (bool, *models.PaymentRecord, error) {
	if f.failNextLedger {
		f.failNextLedger = false
		return false, nil, errors.New("forced ledger failure")
	}
	if existing, ok := f.payments[record.TransactionID]; ok {
		return false, existing, nil
	}
	f.nextID++
	record.ID = f.nextID
	f.payments[record.TransactionID] = record
	return true, record, nil
}

func (f *fakeBillingRepo) GetPaymentByTransactionID(provider, transactionID string) (*models.PaymentRecord, error) {
	if p, ok := f.payments[transactionID]; ok && p.Provider == provider {
		return p, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeBillingRepo) ListPaymentsByUser(userID uint, limit int) ([]models.PaymentRecord, error) {
	return nil, nil
}

func (f *fakeBillingRepo) UpsertEntitlement(userID uint, email, plan string, isPro bool) error {
	f.entitlements[userID] = &models.Entitlement{UserID: userID, Email: email, Plan: plan, IsPro: isPro}
	return nil
}

func (f *fakeBillingRepo) GetEntitlement(userID uint) (*models.Entitlement, error) {
	if e, ok := f.entitlements[userID]; ok {
		return e, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeBillingRepo) ResolveUserIDByEmail(email string) (uint, error) {
	return 0, gorm.ErrRecordNotFound
}

func (f *fakeBillingRepo) CreateWebhookEventIfNotExists(event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error) {
	key := event.Provider + "/" + event.ProviderEventID
	if existing, ok := f.events[key]; ok {
		return false, existing, nil
	}
	f.nextID++
	event.ID = f.nextID
	f.events[key] = event
	f.eventsByID[event.ID] = event
	return true, event, nil
}

func (f *fakeBillingRepo) MarkWebhookProcessed(id uint, processingError string) error {
	event, ok := f.eventsByID[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	now := time.Now()
	event.ProcessedAt = &now
	event.ProcessingError = processingError
	return nil
}

const dispatcherTestSecret = "ls-test-secret"

func newDispatcherTestApp(repo *fakeBillingRepo) *fiber.App {
	SetWebhookProviders(
		billing.NewLemonsqueezyProvider(dispatcherTestSecret),
		billing.NewPayPalProvider("wh-id"),
		billing.NewFlutterwaveProvider("flw-hash", billing.NewFlutterwaveClient("http://unused.invalid", "flw-secret")),
	)
	newBillingService = func() *billing.Service {
		return billing.NewService(repo)
	}

	app := fiber.New()
	app.Post("/webhooks/lemonsqueezy", HandleLemonsqueezyWebhook)
	return app
}

func signBody(body []byte) string {
	mac := hmac.New(sha256.New, []byte(dispatcherTestSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func lemonsqueezyOrderBody() []byte {
	return []byte(`{
		"meta": {"event_name": "order_created", "custom_data": {"userId": "1"}},
		"data": {
			"id": "ls-tx-1",
			"attributes": {"total": 500, "currency": "usd", "user_email": "u1@example.com"}
		}
	}`)
}

func postWebhook(t *testing.T, app *fiber.App, body []byte, signature string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/lemonsqueezy", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Name", "order_created")
	req.Header.Set("X-Event-Id", "evt-1")
	if signature != "" {
		req.Header.Set("X-Signature", signature)
	}

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp.StatusCode, decoded
}

func TestLemonsqueezyWebhook_RejectsBadSignature(t *testing.T) {
	repo := newFakeBillingRepo()
	app := newDispatcherTestApp(repo)

	status, body := postWebhook(t, app, lemonsqueezyOrderBody(), "deadbeef")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "invalid_signature", body["error"])
	assert.Empty(t, repo.payments)
	assert.Empty(t, repo.entitlements)
}

func TestLemonsqueezyWebhook_HappyPathAndRedelivery(t *testing.T) {
	repo := newFakeBillingRepo()
	app := newDispatcherTestApp(repo)
	payload := lemonsqueezyOrderBody()

	status, body := postWebhook(t, app, payload, signBody(payload))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["upgraded"])

	require.Contains(t, repo.payments, "ls-tx-1")
	assert.Equal(t, "5", repo.payments["ls-tx-1"].Amount.String())
	require.Contains(t, repo.entitlements, uint(1))
	assert.True(t, repo.entitlements[1].IsPro)

	// Same event id again: short-circuited, nothing written twice.
	status, body = postWebhook(t, app, payload, signBody(payload))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["duplicate"])
	assert.Len(t, repo.payments, 1)
}

func TestLemonsqueezyWebhook_GenuineDeliveryAfterForgedOne(t *testing.T) {
	repo := newFakeBillingRepo()
	app := newDispatcherTestApp(repo)
	payload := lemonsqueezyOrderBody()

	// A forged delivery stores the event row but must not poison the
	// signed delivery that follows with the same event id.
	status, _ := postWebhook(t, app, payload, "deadbeef")
	require.Equal(t, http.StatusUnauthorized, status)
	require.Empty(t, repo.payments)

	status, body := postWebhook(t, app, payload, signBody(payload))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["upgraded"])
	require.Contains(t, repo.payments, "ls-tx-1")
}

func TestLemonsqueezyWebhook_RetryAfterLedgerFailure(t *testing.T) {
	repo := newFakeBillingRepo()
	repo.failNextLedger = true
	app := newDispatcherTestApp(repo)
	payload := lemonsqueezyOrderBody()

	status, body := postWebhook(t, app, payload, signBody(payload))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "payment_processing_failed", body["error"])
	assert.Empty(t, repo.payments)

	// The provider retries the delivery; it must be processed, not answered
	// as a duplicate of the failed attempt.
	status, body = postWebhook(t, app, payload, signBody(payload))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["upgraded"])
	require.Contains(t, repo.payments, "ls-tx-1")
}
