package billing

import (
	"github.com/shopspring/decimal"
)

// EventKind classifies a provider webhook event after normalization.
type EventKind string

const (
	// EventKindPayment is a successful payment that must be ledgered and
	// grants Pro entitlement.
	EventKindPayment EventKind = "payment"
	// EventKindRefund is a refund/chargeback that must be ledgered and
	// revokes Pro entitlement.
	EventKindRefund EventKind = "refund"
	// EventKindPaymentFailed is a failed charge attempt. It is ledgered with
	// failed status for the audit trail but never touches entitlements.
	EventKindPaymentFailed EventKind = "payment_failed"
	// EventKindIgnored is a valid event of a type this pipeline does not act on.
	EventKindIgnored EventKind = "ignored"
)

// NormalizedEvent is the provider-agnostic shape the shared pipeline operates
// on. Each provider adapter produces one from its raw webhook payload.
type NormalizedEvent struct {
	Kind          EventKind
	Provider      string
	EventName     string
	TransactionID string
	UserID        uint
	Email         string
	Amount        decimal.Decimal
	Currency      string
	Metadata      map[string]string
}

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	Provider        string
	ProviderEventID string
	EventType       string
	PayloadJSON     string
	SignatureValid  bool
}

// ProcessResult reports the outcome of running a normalized payment event
// through the idempotency/ledger/entitlement pipeline.
type ProcessResult struct {
	// AlreadyProcessed is set when the transaction id was ledgered by an
	// earlier delivery and no new writes happened.
	AlreadyProcessed bool
	// Upgraded is set when the entitlement transitioned as part of this call.
	Upgraded bool
	// Warning carries a non-fatal post-ledger failure (entitlement write
	// failed after the payment was durably recorded). The webhook response
	// must still be success-shaped so the provider does not retry.
	Warning string
}
