package ledgerexport

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vibecodementor/VibeMentor/app/models"
)

func TestLedgerCSVRow(t *testing.T) {
	created := time.Date(2026, 8, 15, 10, 30, 0, 0, time.UTC)
	record := &models.PaymentRecord{
		ID:            7,
		UserID:        3,
		Email:         "u3@example.com",
		Amount:        decimal.New(500, -2),
		Currency:      "USD",
		Provider:      models.PaymentProviderLemonsqueezy,
		TransactionID: "tx-7",
		Status:        models.PaymentStatusCompleted,
		CreatedAt:     created,
	}

	row := ledgerCSVRow(record)
	want := []string{"7", "2026-08-15T10:30:00Z", "lemonsqueezy", "tx-7", "3", "u3@example.com", "5.00", "USD", "completed"}

	if len(row) != len(ledgerCSVHeader()) {
		t.Fatalf("row width %d does not match header width %d", len(row), len(ledgerCSVHeader()))
	}
	for i := range want {
		if row[i] != want[i] {
			t.Fatalf("column %d: got %q, want %q", i, row[i], want[i])
		}
	}
}

func TestLedgerCSVRow_FixedScaleAmounts(t *testing.T) {
	record := &models.PaymentRecord{
		Amount: decimal.NewFromInt(5),
	}
	row := ledgerCSVRow(record)

	// Amounts always export with two decimal places.
	if row[6] != "5.00" {
		t.Fatalf("expected fixed-scale amount 5.00, got %q", row[6])
	}
}
