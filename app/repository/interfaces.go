package repository

import (
	"time"

	"github.com/vibecodementor/VibeMentor/app/models"
	"gorm.io/gorm"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	Update(user *models.User) error
	Delete(id uint) error
	List(offset, limit int) ([]models.User, error)
	Count() (int64, error)
	Search(query string) ([]models.User, error)
	GetWithEntitlements(offset, limit int) ([]UserWithEntitlement, error)
	GetDailyStats(startDate, endDate time.Time) ([]models.DailyStats, error)
}

// PaymentRepository defines the interface for payment ledger queries
type PaymentRepository interface {
	GetByID(id uint) (*models.PaymentRecord, error)
	GetByTransactionID(provider, transactionID string) (*models.PaymentRecord, error)
	GetByUserID(userID uint, offset, limit int) ([]models.PaymentRecord, error)
	List(offset, limit int) ([]models.PaymentRecord, error)
	Count() (int64, error)
	CountByStatus(status string) (int64, error)
	GetDailyStats(startDate, endDate time.Time) ([]models.DailyStats, error)
}

// CounterRepository defines the interface for inspecting and resetting the
// Redis usage counters
type CounterRepository interface {
	GetValue(key string) (string, error)
	GetTTL(key string) (time.Duration, error)
	FindKeysByPatterns(patterns []string) ([]string, error)
	DeleteKeys(keys []string) (int64, error)
}

// UserWithEntitlement represents a user together with their subscription state
type UserWithEntitlement struct {
	User        models.User
	Entitlement *models.Entitlement
}

// Repositories struct holds all repository instances
type Repositories struct {
	User    UserRepository
	Payment PaymentRepository
	Counter CounterRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:    NewUserRepository(db),
		Payment: NewPaymentRepository(db),
		Counter: NewCounterRepository(),
	}
}
