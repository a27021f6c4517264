package repository

import (
	"fmt"
	"time"

	"github.com/vibecodementor/VibeMentor/app/models"
	"gorm.io/gorm"
)

// paymentRepository implements the PaymentRepository interface
type paymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository creates a new payment repository instance
func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

// GetByID retrieves a ledger row by its ID
func (r *paymentRepository) GetByID(id uint) (*models.PaymentRecord, error) {
	var record models.PaymentRecord
	err := r.db.First(&record, id).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// GetByTransactionID retrieves a ledger row by provider and transaction id
func (r *paymentRepository) GetByTransactionID(provider, transactionID string) (*models.PaymentRecord, error) {
	var record models.PaymentRecord
	err := r.db.Where("provider = ? AND transaction_id = ?", provider, transactionID).First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// GetByUserID retrieves a paginated list of a user's ledger rows, newest first
func (r *paymentRepository) GetByUserID(userID uint, offset, limit int) ([]models.PaymentRecord, error) {
	var records []models.PaymentRecord
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&records).Error
	return records, err
}

// List retrieves a paginated list of ledger rows, newest first
func (r *paymentRepository) List(offset, limit int) ([]models.PaymentRecord, error) {
	var records []models.PaymentRecord
	err := r.db.Order("created_at DESC").Offset(offset).Limit(limit).Find(&records).Error
	return records, err
}

// Count returns the total number of ledger rows
func (r *paymentRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.PaymentRecord{}).Count(&count).Error
	return count, err
}

// CountByStatus returns the number of ledger rows with the given status
func (r *paymentRepository) CountByStatus(status string) (int64, error) {
	var count int64
	err := r.db.Model(&models.PaymentRecord{}).Where("status = ?", status).Count(&count).Error
	return count, err
}

// GetDailyStats returns daily completed-payment counts for a date range
func (r *paymentRepository) GetDailyStats(startDate, endDate time.Time) ([]models.DailyStats, error) {
	var results []struct {
		Date  string `json:"date"`
		Count int64  `json:"count"`
	}

	// Use DATE_FORMAT for MySQL compatibility and proper date formatting
	err := r.db.Model(&models.PaymentRecord{}).
		Select("DATE_FORMAT(created_at, '%Y-%m-%d') as date, COUNT(*) as count").
		Where("status = ? AND created_at BETWEEN ? AND ?", models.PaymentStatusCompleted, startDate, endDate).
		Group("DATE_FORMAT(created_at, '%Y-%m-%d')").
		Order("date").
		Find(&results).Error

	if err != nil {
		return nil, fmt.Errorf("failed to get daily payment stats: %w", err)
	}

	dailyStats := make([]models.DailyStats, len(results))
	for i, result := range results {
		dailyStats[i] = models.DailyStats{
			Date:  result.Date,
			Count: result.Count,
		}
	}

	return dailyStats, nil
}
