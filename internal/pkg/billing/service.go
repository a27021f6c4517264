package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/vibecodementor/VibeMentor/app/models"
	"github.com/vibecodementor/VibeMentor/internal/pkg/entitlements"
	"gorm.io/gorm"
)

// ErrMissingIdentity is returned when a payment event carries neither a user
// id nor an email, so the payment cannot be reconciled to an application user.
var ErrMissingIdentity = errors.New("payment event carries no user id or email")

// Service runs normalized payment events through the idempotency, ledger and
// entitlement steps shared by all provider dispatchers.
type Service struct {
	repo Repository
}

// NewService creates a billing service from an injected repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// NewServiceFromDB creates a billing service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db))
}

// RecordWebhookEvent persists raw webhook payloads idempotently for audit.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.PaymentWebhookEvent, error) {
	_ = ctx
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		return false, nil, errors.New("provider is required")
	}
	eventID := strings.TrimSpace(in.ProviderEventID)
	if eventID == "" {
		sum := sha256.Sum256([]byte(in.PayloadJSON))
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.PaymentWebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(in.EventType),
		PayloadJSON:     in.PayloadJSON,
		SignatureValid:  in.SignatureValid,
	}
	return s.repo.CreateWebhookEventIfNotExists(event)
}

// MarkWebhookProcessed marks an event as processed and stores an optional error.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, processingErr error) error {
	_ = ctx
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.repo.MarkWebhookProcessed(webhookEventID, errMsg)
}

// ProcessPaymentEvent ledgers a payment or refund exactly once and updates
// the user's entitlement.
//
// The ledger insert is a conditional write against the transaction_id unique
// index, so concurrent duplicate deliveries cannot double-ledger. When the
// entitlement write fails after the ledger write succeeded, the error is
// reported as a warning instead of a failure: the provider must not retry a
// payment that is already ledgered, and the reconcile job repairs the drift.
func (s *Service) ProcessPaymentEvent(ctx context.Context, ev *NormalizedEvent) (*ProcessResult, error) {
	_ = ctx
	if ev == nil {
		return nil, errors.New("event is required")
	}
	var status string
	switch ev.Kind {
	case EventKindPayment:
		status = models.PaymentStatusCompleted
	case EventKindRefund:
		status = models.PaymentStatusRefunded
	case EventKindPaymentFailed:
		status = models.PaymentStatusFailed
	default:
		return nil, fmt.Errorf("event kind %q is not processable", ev.Kind)
	}
	if strings.TrimSpace(ev.TransactionID) == "" {
		return nil, errors.New("transaction id is required")
	}

	userID := ev.UserID
	email := strings.TrimSpace(ev.Email)
	if userID == 0 && email == "" {
		return nil, ErrMissingIdentity
	}
	if userID == 0 {
		resolved, err := s.repo.ResolveUserIDByEmail(email)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrMissingIdentity
			}
			return nil, fmt.Errorf("resolve user by email: %w", err)
		}
		userID = resolved
	}

	record := &models.PaymentRecord{
		UserID:        userID,
		Email:         email,
		Amount:        ev.Amount,
		Currency:      NormalizeCurrency(ev.Currency),
		Provider:      strings.ToLower(strings.TrimSpace(ev.Provider)),
		TransactionID: strings.TrimSpace(ev.TransactionID),
		Status:        status,
		MetadataJSON:  encodeMetadata(ev),
	}

	created, _, err := s.repo.CreatePaymentIfNotExists(record)
	if err != nil {
		return nil, fmt.Errorf("ledger write: %w", err)
	}
	if !created {
		// A previous delivery already ledgered this transaction and
		// triggered the entitlement update. Success-no-op.
		return &ProcessResult{AlreadyProcessed: true}, nil
	}

	if ev.Kind == EventKindPaymentFailed {
		// Audit-only: a failed attempt never changes the subscription state.
		return &ProcessResult{}, nil
	}

	isPro := ev.Kind == EventKindPayment
	plan := string(entitlements.PlanFree)
	if isPro {
		plan = string(entitlements.PlanPro)
	}
	if err := s.repo.UpsertEntitlement(userID, email, plan, isPro); err != nil {
		return &ProcessResult{Warning: "entitlement_update_failed: " + err.Error()}, nil
	}

	return &ProcessResult{Upgraded: isPro}, nil
}

func encodeMetadata(ev *NormalizedEvent) string {
	meta := map[string]string{"event_name": ev.EventName}
	for k, v := range ev.Metadata {
		meta[k] = v
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return ""
	}
	return string(b)
}
