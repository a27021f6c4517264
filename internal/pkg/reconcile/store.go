package reconcile

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vibecodementor/VibeMentor/app/models"
)

type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates the GORM-backed reconciler store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) ListLedgerUserIDs(ctx context.Context) ([]uint, error) {
	var ids []uint
	err := s.db.WithContext(ctx).
		Model(&models.PaymentRecord{}).
		Where("user_id > 0").
		Distinct("user_id").
		Order("user_id").
		Pluck("user_id", &ids).Error
	return ids, err
}

func (s *gormStore) LatestPaymentForUser(ctx context.Context, userID uint) (*models.PaymentRecord, error) {
	// Failed charge attempts are audit-only ledger rows; only completed and
	// refunded payments say anything about the entitlement the user should have.
	var record models.PaymentRecord
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status IN ?", userID, []string{models.PaymentStatusCompleted, models.PaymentStatusRefunded}).
		Order("created_at DESC, id DESC").
		First(&record).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *gormStore) GetEntitlement(ctx context.Context, userID uint) (*models.Entitlement, error) {
	var ent models.Entitlement
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&ent).Error
	if err != nil {
		return nil, err
	}
	return &ent, nil
}

func (s *gormStore) UpsertEntitlement(ctx context.Context, userID uint, email, plan string, isPro bool) error {
	ent := &models.Entitlement{
		UserID: userID,
		Email:  email,
		Plan:   plan,
		IsPro:  isPro,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "user_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"email",
			"plan",
			"is_pro",
			"updated_at",
		}),
	}).Create(ent).Error
}
