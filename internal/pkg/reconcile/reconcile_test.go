package reconcile

import (
	"context"
	"fmt"
	"testing"

	"gorm.io/gorm"

	"github.com/vibecodementor/VibeMentor/app/models"
)

type fakeStore struct {
	payments     map[uint][]*models.PaymentRecord
	entitlements map[uint]*models.Entitlement
	upserts      int
	failUser     uint
}

func newFakeReconcileStore() *fakeStore {
	return &fakeStore{
		payments:     make(map[uint][]*models.PaymentRecord),
		entitlements: make(map[uint]*models.Entitlement),
	}
}

func (f *fakeStore) addPayment(record *models.PaymentRecord) {
	f.payments[record.UserID] = append(f.payments[record.UserID], record)
}

func (f *fakeStore) ListLedgerUserIDs(ctx context.Context) ([]uint, error) {
	var ids []uint
	for id := range f.payments {
		ids = append(ids, id)
	}
	return ids, nil
}

// LatestPaymentForUser mirrors the store contract: newest first, failed
// attempts never considered.
func (f *fakeStore) LatestPaymentForUser(ctx context.Context, userID uint) (*models.PaymentRecord, error) {
	records := f.payments[userID]
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].Status == models.PaymentStatusCompleted || records[i].Status == models.PaymentStatusRefunded {
			return records[i], nil
		}
	}
	return nil, nil
}

func (f *fakeStore) GetEntitlement(ctx context.Context, userID uint) (*models.Entitlement, error) {
	ent, ok := f.entitlements[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return ent, nil
}

func (f *fakeStore) UpsertEntitlement(ctx context.Context, userID uint, email, plan string, isPro bool) error {
	if userID == f.failUser {
		return fmt.Errorf("forced upsert failure")
	}
	f.upserts++
	f.entitlements[userID] = &models.Entitlement{UserID: userID, Email: email, Plan: plan, IsPro: isPro}
	return nil
}

func TestRun_RepairsDriftedEntitlement(t *testing.T) {
	store := newFakeReconcileStore()
	store.addPayment(&models.PaymentRecord{
		UserID:        1,
		Email:         "u1@example.com",
		TransactionID: "tx-1",
		Status:        models.PaymentStatusCompleted,
	})
	// Entitlement update failed after the ledger write, so the user is still free.
	store.entitlements[1] = &models.Entitlement{UserID: 1, Plan: "free", IsPro: false}

	report, err := New(store).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.UsersChecked != 1 || report.Repaired != 1 {
		t.Fatalf("expected one repair, got %+v", report)
	}
	if report.RunID == "" {
		t.Fatalf("expected a run id")
	}

	ent := store.entitlements[1]
	if !ent.IsPro || ent.Plan != "pro" || ent.Email != "u1@example.com" {
		t.Fatalf("expected repaired pro entitlement, got %+v", ent)
	}
}

func TestRun_CreatesMissingEntitlement(t *testing.T) {
	store := newFakeReconcileStore()
	store.addPayment(&models.PaymentRecord{
		UserID:        2,
		Email:         "u2@example.com",
		TransactionID: "tx-2",
		Status:        models.PaymentStatusCompleted,
	})

	report, err := New(store).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Repaired != 1 {
		t.Fatalf("expected missing entitlement to be created, got %+v", report)
	}
	if ent := store.entitlements[2]; ent == nil || !ent.IsPro {
		t.Fatalf("expected pro entitlement for user 2, got %+v", ent)
	}
}

func TestRun_RefundedLedgerRevokesPro(t *testing.T) {
	store := newFakeReconcileStore()
	store.addPayment(&models.PaymentRecord{
		UserID:        3,
		TransactionID: "tx-3",
		Status:        models.PaymentStatusRefunded,
	})
	store.entitlements[3] = &models.Entitlement{UserID: 3, Email: "u3@example.com", Plan: "pro", IsPro: true}

	report, err := New(store).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Repaired != 1 {
		t.Fatalf("expected refund drift to be repaired, got %+v", report)
	}

	ent := store.entitlements[3]
	if ent.IsPro || ent.Plan != "free" {
		t.Fatalf("expected pro revoked after refund, got %+v", ent)
	}
	// Ledger row has no email, the existing entitlement's is kept.
	if ent.Email != "u3@example.com" {
		t.Fatalf("expected email preserved, got %q", ent.Email)
	}
}

func TestRun_ConsistentEntitlementUntouched(t *testing.T) {
	store := newFakeReconcileStore()
	store.addPayment(&models.PaymentRecord{
		UserID:        4,
		TransactionID: "tx-4",
		Status:        models.PaymentStatusCompleted,
	})
	store.entitlements[4] = &models.Entitlement{UserID: 4, Plan: "pro", IsPro: true}

	report, err := New(store).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Repaired != 0 || store.upserts != 0 {
		t.Fatalf("expected no writes for consistent state, got %+v (upserts=%d)", report, store.upserts)
	}
}

func TestRun_CollectsPerUserFailures(t *testing.T) {
	store := newFakeReconcileStore()
	store.failUser = 5
	store.addPayment(&models.PaymentRecord{UserID: 5, TransactionID: "tx-5", Status: models.PaymentStatusCompleted})
	store.addPayment(&models.PaymentRecord{UserID: 6, TransactionID: "tx-6", Status: models.PaymentStatusCompleted})

	report, err := New(store).Run(context.Background())
	if err != nil {
		t.Fatalf("expected per-user failure not to abort the run: %v", err)
	}
	if report.UsersChecked != 2 || report.Repaired != 1 || len(report.Failures) != 1 {
		t.Fatalf("expected one repair and one recorded failure, got %+v", report)
	}
}

func TestRun_FailedAttemptDoesNotRevokePro(t *testing.T) {
	store := newFakeReconcileStore()
	store.addPayment(&models.PaymentRecord{UserID: 7, TransactionID: "tx-7", Status: models.PaymentStatusCompleted})
	// A later failed charge attempt lands in the ledger for audit only.
	store.addPayment(&models.PaymentRecord{UserID: 7, TransactionID: "tx-8", Status: models.PaymentStatusFailed})
	store.entitlements[7] = &models.Entitlement{UserID: 7, Plan: "pro", IsPro: true}

	report, err := New(store).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Repaired != 0 || store.upserts != 0 {
		t.Fatalf("expected failed attempt to be ignored, got %+v (upserts=%d)", report, store.upserts)
	}
	if ent := store.entitlements[7]; !ent.IsPro {
		t.Fatalf("expected pro entitlement kept, got %+v", ent)
	}
}
