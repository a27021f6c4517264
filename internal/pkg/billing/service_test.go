package billing

import (
	"context"
	"errors"
	"testing"

	"github.com/vibecodementor/VibeMentor/app/models"
	"gorm.io/gorm"
)

type fakeRepo struct {
	payments        map[string]*models.PaymentRecord
	entitlements    map[uint]*models.Entitlement
	usersByEmail    map[string]uint
	webhookEvents   map[string]*models.PaymentWebhookEvent
	entitlementErr  error
	entitlementCall int
	nextID          uint
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		payments:      make(map[string]*models.PaymentRecord),
		entitlements:  make(map[uint]*models.Entitlement),
		usersByEmail:  make(map[string]uint),
		webhookEvents: make(map[string]*models.PaymentWebhookEvent),
	}
}

func (f *fakeRepo) CreatePaymentIfNotExists(record *models.PaymentRecord) (bool, *models.PaymentRecord, error) {
	if existing, ok := f.payments[record.TransactionID]; ok {
		return false, existing, nil
	}
	f.nextID++
	record.ID = f.nextID
	f.payments[record.TransactionID] = record
	return true, record, nil
}

func (f *fakeRepo) GetPaymentByTransactionID(provider, transactionID string) (*models.PaymentRecord, error) {
	if p, ok := f.payments[transactionID]; ok && p.Provider == provider {
		return p, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepo) ListPaymentsByUser(userID uint, limit int) ([]models.PaymentRecord, error) {
	var out []models.PaymentRecord
	for _, p := range f.payments {
		if p.UserID == userID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeRepo) UpsertEntitlement(userID uint, email, plan string, isPro bool) error {
	f.entitlementCall++
	if f.entitlementErr != nil {
		return f.entitlementErr
	}
	f.entitlements[userID] = &models.Entitlement{UserID: userID, Email: email, Plan: plan, IsPro: isPro}
	return nil
}

func (f *fakeRepo) GetEntitlement(userID uint) (*models.Entitlement, error) {
	if e, ok := f.entitlements[userID]; ok {
		return e, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepo) ResolveUserIDByEmail(email string) (uint, error) {
	if id, ok := f.usersByEmail[email]; ok {
		return id, nil
	}
	return 0, gorm.ErrRecordNotFound
}

func (f *fakeRepo) CreateWebhookEventIfNotExists(event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error) {
	key := event.Provider + "/" + event.ProviderEventID
	if existing, ok := f.webhookEvents[key]; ok {
		return false, existing, nil
	}
	f.nextID++
	event.ID = f.nextID
	f.webhookEvents[key] = event
	return true, event, nil
}

func (f *fakeRepo) MarkWebhookProcessed(id uint, processingError string) error {
	return nil
}

func paymentEvent(txID string) *NormalizedEvent {
	return &NormalizedEvent{
		Kind:          EventKindPayment,
		Provider:      models.PaymentProviderLemonsqueezy,
		EventName:     "subscription_payment_success",
		TransactionID: txID,
		UserID:        1,
		Email:         "u1@example.com",
		Amount:        AmountFromMinorUnits(500),
		Currency:      "USD",
	}
}

func TestProcessPaymentEvent_IdempotentAcrossRedelivery(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := svc.ProcessPaymentEvent(ctx, paymentEvent("tx-123"))
		if err != nil {
			t.Fatalf("delivery %d: unexpected error: %v", i+1, err)
		}
		if i == 0 && (res.AlreadyProcessed || !res.Upgraded) {
			t.Fatalf("first delivery: expected fresh upgrade, got %+v", res)
		}
		if i > 0 && !res.AlreadyProcessed {
			t.Fatalf("delivery %d: expected already-processed, got %+v", i+1, res)
		}
	}

	if len(repo.payments) != 1 {
		t.Fatalf("expected exactly one ledger record, got %d", len(repo.payments))
	}
	if repo.entitlementCall != 1 {
		t.Fatalf("expected exactly one entitlement invocation, got %d", repo.entitlementCall)
	}
	ent := repo.entitlements[1]
	if ent == nil || !ent.IsPro {
		t.Fatalf("expected user 1 to be pro, got %+v", ent)
	}
}

func TestProcessPaymentEvent_LedgerFields(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)

	if _, err := svc.ProcessPaymentEvent(context.Background(), paymentEvent("tx-123")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	record := repo.payments["tx-123"]
	if record == nil {
		t.Fatalf("expected ledger record for tx-123")
	}
	if record.Amount.String() != "5" {
		t.Fatalf("expected amount 5.00, got %s", record.Amount)
	}
	if record.Currency != "USD" || record.Status != models.PaymentStatusCompleted {
		t.Fatalf("unexpected record: %+v", record)
	}
}

func TestProcessPaymentEvent_MissingIdentity(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)

	ev := paymentEvent("tx-456")
	ev.UserID = 0
	ev.Email = ""

	_, err := svc.ProcessPaymentEvent(context.Background(), ev)
	if !errors.Is(err, ErrMissingIdentity) {
		t.Fatalf("expected ErrMissingIdentity, got %v", err)
	}
	if len(repo.payments) != 0 {
		t.Fatalf("expected no ledger writes on identity failure")
	}
	if repo.entitlementCall != 0 {
		t.Fatalf("expected no entitlement invocation on identity failure")
	}
}

func TestProcessPaymentEvent_ResolvesUserByEmail(t *testing.T) {
	repo := newFakeRepo()
	repo.usersByEmail["u7@example.com"] = 7
	svc := NewService(repo)

	ev := paymentEvent("tx-789")
	ev.UserID = 0
	ev.Email = "u7@example.com"

	res, err := svc.ProcessPaymentEvent(context.Background(), ev)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Upgraded {
		t.Fatalf("expected upgrade, got %+v", res)
	}
	if repo.payments["tx-789"].UserID != 7 {
		t.Fatalf("expected ledger row attributed to user 7, got %d", repo.payments["tx-789"].UserID)
	}
}

func TestProcessPaymentEvent_EntitlementFailureKeepsLedger(t *testing.T) {
	repo := newFakeRepo()
	repo.entitlementErr = errors.New("store unavailable")
	svc := NewService(repo)

	res, err := svc.ProcessPaymentEvent(context.Background(), paymentEvent("tx-123"))
	if err != nil {
		t.Fatalf("expected post-ledger failure to surface as warning, got error %v", err)
	}
	if res.Warning == "" {
		t.Fatalf("expected warning on entitlement failure, got %+v", res)
	}

	// The payment stays ledgered and retrievable despite the failed flag write.
	stored, err := repo.GetPaymentByTransactionID(models.PaymentProviderLemonsqueezy, "tx-123")
	if err != nil || stored == nil {
		t.Fatalf("expected ledger record to survive entitlement failure: %v", err)
	}
}

func TestProcessPaymentEvent_RefundRevokesEntitlement(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	ctx := context.Background()

	if _, err := svc.ProcessPaymentEvent(ctx, paymentEvent("tx-123")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	refund := paymentEvent("tx-123-refund")
	refund.Kind = EventKindRefund
	refund.EventName = "order_refunded"
	res, err := svc.ProcessPaymentEvent(ctx, refund)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Upgraded {
		t.Fatalf("refund must not report an upgrade")
	}

	ent := repo.entitlements[1]
	if ent == nil || ent.IsPro {
		t.Fatalf("expected refund to revoke pro, got %+v", ent)
	}
	if repo.payments["tx-123-refund"].Status != models.PaymentStatusRefunded {
		t.Fatalf("expected refund status on ledger row")
	}
}

func TestProcessPaymentEvent_FailedChargeLedgeredWithoutEntitlement(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)

	ev := paymentEvent("tx-failed")
	ev.Kind = EventKindPaymentFailed
	ev.EventName = "charge.failed"

	res, err := svc.ProcessPaymentEvent(context.Background(), ev)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Upgraded || res.AlreadyProcessed || res.Warning != "" {
		t.Fatalf("expected plain audit result, got %+v", res)
	}

	record := repo.payments["tx-failed"]
	if record == nil || record.Status != models.PaymentStatusFailed {
		t.Fatalf("expected failed status ledger row, got %+v", record)
	}
	if repo.entitlementCall != 0 {
		t.Fatalf("failed charge must not touch entitlements, got %d calls", repo.entitlementCall)
	}
}

func TestRecordWebhookEvent_DeduplicatesAndHashesEmptyID(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	ctx := context.Background()

	created, _, err := svc.RecordWebhookEvent(ctx, WebhookEventInput{
		Provider:        models.PaymentProviderPayPal,
		ProviderEventID: "WH-1",
		EventType:       "PAYMENT.CAPTURE.COMPLETED",
		PayloadJSON:     "{}",
		SignatureValid:  true,
	})
	if err != nil || !created {
		t.Fatalf("expected first insert to create, got created=%v err=%v", created, err)
	}

	created, _, err = svc.RecordWebhookEvent(ctx, WebhookEventInput{
		Provider:        models.PaymentProviderPayPal,
		ProviderEventID: "WH-1",
		EventType:       "PAYMENT.CAPTURE.COMPLETED",
		PayloadJSON:     "{}",
	})
	if err != nil || created {
		t.Fatalf("expected duplicate insert to no-op, got created=%v err=%v", created, err)
	}

	// Events without a provider id are keyed by payload hash.
	created, stored, err := svc.RecordWebhookEvent(ctx, WebhookEventInput{
		Provider:    models.PaymentProviderFlutterwave,
		PayloadJSON: `{"event":"charge.completed"}`,
	})
	if err != nil || !created {
		t.Fatalf("expected hash-keyed insert to create, got created=%v err=%v", created, err)
	}
	if stored.ProviderEventID == "" || stored.ProviderEventID[:5] != "hash:" {
		t.Fatalf("expected hash-derived event id, got %q", stored.ProviderEventID)
	}
}
