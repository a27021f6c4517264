package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PaymentProviderLemonsqueezy = "lemonsqueezy"
	PaymentProviderPayPal       = "paypal"
	PaymentProviderFlutterwave  = "flutterwave"
)

const (
	PaymentStatusCompleted = "completed"
	PaymentStatusRefunded  = "refunded"
	PaymentStatusFailed    = "failed"
)

// PaymentRecord is the append-only payment ledger. Exactly one row may exist
// per provider transaction id; the unique index is what makes duplicate
// webhook delivery safe. Rows are never updated or deleted.
type PaymentRecord struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	UserID        uint            `gorm:"not null;index" json:"user_id"`
	Email         string          `gorm:"type:varchar(200);not null;default:''" json:"email"`
	Amount        decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	Currency      string          `gorm:"type:char(3);not null;default:'USD'" json:"currency"`
	Provider      string          `gorm:"type:varchar(20);not null;index" json:"provider"`
	TransactionID string          `gorm:"type:varchar(191);not null;uniqueIndex:ux_payment_records_transaction_id" json:"transaction_id"`
	Status        string          `gorm:"type:varchar(32);not null;default:'completed';index" json:"status"`
	MetadataJSON  string          `gorm:"type:text" json:"metadata_json"`
	CreatedAt     time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}
