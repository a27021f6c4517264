package billing

import (
	"time"

	"github.com/vibecodementor/VibeMentor/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the billing service.
type Repository interface {
	CreatePaymentIfNotExists(record *models.PaymentRecord) (bool, *models.PaymentRecord, error)
	GetPaymentByTransactionID(provider, transactionID string) (*models.PaymentRecord, error)
	ListPaymentsByUser(userID uint, limit int) ([]models.PaymentRecord, error)
	UpsertEntitlement(userID uint, email, plan string, isPro bool) error
	GetEntitlement(userID uint) (*models.Entitlement, error)
	ResolveUserIDByEmail(email string) (uint, error)
	CreateWebhookEventIfNotExists(event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error)
	MarkWebhookProcessed(id uint, processingError string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

// CreatePaymentIfNotExists performs the atomic insert-if-absent that backs
// the idempotency guard. The unique index on transaction_id makes the second
// concurrent writer a no-op instead of a duplicate row; rows-affected tells
// the caller which side of the race it was on.
func (r *gormRepository) CreatePaymentIfNotExists(record *models.PaymentRecord) (bool, *models.PaymentRecord, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "transaction_id"},
		},
		DoNothing: true,
	}).Create(record)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.PaymentRecord
	if err := r.db.Where("transaction_id = ?", record.TransactionID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) GetPaymentByTransactionID(provider, transactionID string) (*models.PaymentRecord, error) {
	var record models.PaymentRecord
	err := r.db.Where("provider = ? AND transaction_id = ?", provider, transactionID).First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *gormRepository) ListPaymentsByUser(userID uint, limit int) ([]models.PaymentRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var records []models.PaymentRecord
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	return records, err
}

func (r *gormRepository) UpsertEntitlement(userID uint, email, plan string, isPro bool) error {
	ent := &models.Entitlement{
		UserID: userID,
		Email:  email,
		Plan:   plan,
		IsPro:  isPro,
	}
	return r.db.Clauses(clause.OnConflict{
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

func (r *gormRepository) GetEntitlement(userID uint) (*models.Entitlement, error) {
	var ent models.Entitlement
	err := r.db.Where("user_id = ?", userID).First(&ent).Error
	if err != nil {
		return nil, err
	}
	return &ent, nil
}

func (r *gormRepository) ResolveUserIDByEmail(email string) (uint, error) {
	var user models.User
	err := r.db.Where("email = ?", email).First(&user).Error
	if err != nil {
		return 0, err
	}
	return user.ID, nil
}

func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.PaymentWebhookEvent
	if err := r.db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.Model(&models.PaymentWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}
