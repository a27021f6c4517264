package ledgerexport

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/vibecodementor/VibeMentor/app/models"
)

const exportBatchSize = 500

// Uploader is the subset of Client used by the exporter.
type Uploader interface {
	UploadBytes(ctx context.Context, objectKey string, body []byte, contentType string) (*UploadResult, error)
}

// ExportResult summarizes one ledger export run.
type ExportResult struct {
	ObjectKey string    `json:"object_key"`
	Rows      int       `json:"rows"`
	Size      int64     `json:"size"`
	StartedAt time.Time `json:"started_at"`
}

// Exporter writes CSV snapshots of the payment ledger to S3 for bookkeeping.
type Exporter struct {
	db       *gorm.DB
	uploader Uploader
	now      func() time.Time
}

// NewExporter creates a ledger exporter.
func NewExporter(db *gorm.DB, uploader Uploader) *Exporter {
	return &Exporter{db: db, uploader: uploader, now: time.Now}
}

// Export dumps the full payment ledger as CSV and uploads it under
// exports/payments/YYYY/MM/. The ledger is append-only, so a full snapshot
// per run stays cheap and every snapshot supersedes the previous one.
func (e *Exporter) Export(ctx context.Context) (*ExportResult, error) {
	started := e.now().UTC()

	var buf bytes.Buffer
	rows, err := e.writeLedgerCSV(ctx, &buf)
	if err != nil {
		return nil, fmt.Errorf("build ledger csv: %w", err)
	}

	objectKey := fmt.Sprintf("exports/payments/%04d/%02d/payments-%s.csv",
		started.Year(), started.Month(), started.Format("20060102-150405"))

	result, err := e.uploader.UploadBytes(ctx, objectKey, buf.Bytes(), "text/csv")
	if err != nil {
		return nil, fmt.Errorf("upload ledger csv: %w", err)
	}

	log.Infof("[LedgerExport] Exported %d ledger rows to %s", rows, objectKey)

	return &ExportResult{
		ObjectKey: result.ObjectKey,
		Rows:      rows,
		Size:      result.Size,
		StartedAt: started,
	}, nil
}

func (e *Exporter) writeLedgerCSV(ctx context.Context, w io.Writer) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(ledgerCSVHeader()); err != nil {
		return 0, err
	}

	rows := 0
	var batch []models.PaymentRecord
	err := e.db.WithContext(ctx).
		Model(&models.PaymentRecord{}).
		Order("id").
		FindInBatches(&batch, exportBatchSize, func(tx *gorm.DB, _ int) error {
			for i := range batch {
				if err := cw.Write(ledgerCSVRow(&batch[i])); err != nil {
					return err
				}
				rows++
			}
			return nil
		}).Error
	if err != nil {
		return 0, err
	}

	cw.Flush()
	return rows, cw.Error()
}

func ledgerCSVHeader() []string {
	return []string{"id", "created_at", "provider", "transaction_id", "user_id", "email", "amount", "currency", "status"}
}

func ledgerCSVRow(r *models.PaymentRecord) []string {
	return []string{
		strconv.FormatUint(uint64(r.ID), 10),
		r.CreatedAt.UTC().Format(time.RFC3339),
		r.Provider,
		r.TransactionID,
		strconv.FormatUint(uint64(r.UserID), 10),
		r.Email,
		r.Amount.StringFixed(2),
		r.Currency,
		r.Status,
	}
}
