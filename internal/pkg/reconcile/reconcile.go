package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vibecodementor/VibeMentor/app/models"
	"github.com/vibecodementor/VibeMentor/internal/pkg/entitlements"
)

// Store exposes the ledger and entitlement queries the reconciler needs.
type Store interface {
	ListLedgerUserIDs(ctx context.Context) ([]uint, error)
	LatestPaymentForUser(ctx context.Context, userID uint) (*models.PaymentRecord, error)
	GetEntitlement(ctx context.Context, userID uint) (*models.Entitlement, error)
	UpsertEntitlement(ctx context.Context, userID uint, email, plan string, isPro bool) error
}

// Report summarizes one reconciliation run.
type Report struct {
	RunID        string        `json:"run_id"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration"`
	UsersChecked int           `json:"users_checked"`
	Repaired     int           `json:"repaired"`
	Failures     []string      `json:"failures,omitempty"`
}

// Reconciler walks the payment ledger and repairs entitlements that drifted
// from it. The ledger is the source of truth: a user whose newest payment
// record is completed must be pro, everyone else falls back to free. Drift
// happens when the entitlement update failed after the ledger write, so the
// webhook was acknowledged with a warning and never retried by the provider.
type Reconciler struct {
	store Store
	now   func() time.Time
}

// New creates a reconciler on top of a ledger store.
func New(store Store) *Reconciler {
	return &Reconciler{store: store, now: time.Now}
}

// NewFromDB creates a reconciler backed by GORM.
func NewFromDB(db *gorm.DB) *Reconciler {
	return New(NewGormStore(db))
}

// Run performs one full reconciliation pass. Per-user failures are collected
// in the report instead of aborting the pass; a later run picks them up again.
func (r *Reconciler) Run(ctx context.Context) (*Report, error) {
	report := &Report{
		RunID:     uuid.New().String(),
		StartedAt: r.now(),
	}
	defer func() {
		report.Duration = r.now().Sub(report.StartedAt)
	}()

	userIDs, err := r.store.ListLedgerUserIDs(ctx)
	if err != nil {
		return report, fmt.Errorf("list ledger users: %w", err)
	}

	log.Infof("[Reconcile] run %s: checking %d users", report.RunID, len(userIDs))

	for _, userID := range userIDs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.UsersChecked++

		repaired, err := r.reconcileUser(ctx, userID)
		if err != nil {
			report.Failures = append(report.Failures, fmt.Sprintf("user %d: %v", userID, err))
			log.Errorf("[Reconcile] run %s: user %d failed: %v", report.RunID, userID, err)
			continue
		}
		if repaired {
			report.Repaired++
		}
	}

	log.Infof("[Reconcile] run %s: checked=%d repaired=%d failed=%d",
		report.RunID, report.UsersChecked, report.Repaired, len(report.Failures))

	return report, nil
}

func (r *Reconciler) reconcileUser(ctx context.Context, userID uint) (bool, error) {
	latest, err := r.store.LatestPaymentForUser(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("load latest payment: %w", err)
	}
	if latest == nil {
		return false, nil
	}

	wantPro := latest.Status == models.PaymentStatusCompleted
	wantPlan := string(entitlements.PlanFree)
	if wantPro {
		wantPlan = string(entitlements.PlanPro)
	}

	ent, err := r.store.GetEntitlement(ctx, userID)
	if err != nil && err != gorm.ErrRecordNotFound {
		return false, fmt.Errorf("load entitlement: %w", err)
	}
	if ent != nil && ent.IsPro == wantPro && ent.Plan == wantPlan {
		return false, nil
	}

	email := latest.Email
	if ent != nil && email == "" {
		email = ent.Email
	}

	if err := r.store.UpsertEntitlement(ctx, userID, email, wantPlan, wantPro); err != nil {
		return false, fmt.Errorf("repair entitlement: %w", err)
	}

	log.Infof("[Reconcile] repaired user %d: plan=%s is_pro=%t (ledger tx %s)",
		userID, wantPlan, wantPro, latest.TransactionID)

	return true, nil
}
