package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vibecodementor/VibeMentor/app/models"
	"golang.org/x/time/rate"
)

const defaultFlutterwaveAPIBaseURL = "https://api.flutterwave.com"

// ErrVerificationFailed is returned when the provider's transaction-verify
// endpoint does not confirm the charge the webhook claims. It is definitive:
// a retry of the same delivery cannot succeed.
var ErrVerificationFailed = errors.New("provider transaction verification failed")

// ErrVerificationUnavailable is returned when the verify round-trip could not
// produce a result at all (timeout, provider 5xx, bad response). The delivery
// must be answered with a retryable status so the payment is not lost.
var ErrVerificationUnavailable = errors.New("provider transaction verification unavailable")

// FlutterwaveClient calls the Flutterwave REST API. Webhook bodies are not
// trusted until the charge is re-verified server-to-server with the secret
// key; verify calls are throttled so a webhook flood cannot exhaust the
// provider API quota.
type FlutterwaveClient struct {
	BaseURL    string
	SecretKey  string
	HTTPClient *http.Client

	limiter *rate.Limiter
}

func NewFlutterwaveClient(baseURL, secretKey string) *FlutterwaveClient {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultFlutterwaveAPIBaseURL
	}
	return &FlutterwaveClient{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		SecretKey: secretKey,
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(5), 10),
	}
}

// VerifiedTransaction is the subset of the verify response the pipeline needs.
type VerifiedTransaction struct {
	ID            int64
	TxRef         string
	Status        string
	Amount        float64
	Currency      string
	CustomerEmail string
	UserID        uint
}

type flutterwaveVerifyResponse struct {
	Status string `json:"status"`
	Data   struct {
		ID       int64   `json:"id"`
		TxRef    string  `json:"tx_ref"`
		Status   string  `json:"status"`
		Amount   float64 `json:"amount"`
		Currency string  `json:"currency"`
		Customer struct {
			Email string `json:"email"`
		} `json:"customer"`
		Meta map[string]any `json:"meta"`
	} `json:"data"`
}

// VerifyTransaction fetches the authoritative transaction state by id.
func (c *FlutterwaveClient) VerifyTransaction(ctx context.Context, transactionID int64) (*VerifiedTransaction, error) {
	if strings.TrimSpace(c.SecretKey) == "" {
		return nil, errors.New("FLUTTERWAVE_SECRET_KEY is not configured")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVerificationUnavailable, err)
	}

	url := fmt.Sprintf("%s/v3/transactions/%d/verify", c.BaseURL, transactionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.SecretKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVerificationUnavailable, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: verify status=%d", ErrVerificationUnavailable, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: verify status=%d body=%s", ErrVerificationFailed, resp.StatusCode, string(body))
	}

	var raw flutterwaveVerifyResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode verify response: %v", ErrVerificationUnavailable, err)
	}
	if !strings.EqualFold(raw.Status, "success") {
		return nil, fmt.Errorf("%w: verify returned status %q", ErrVerificationFailed, raw.Status)
	}

	out := &VerifiedTransaction{
		ID:            raw.Data.ID,
		TxRef:         strings.TrimSpace(raw.Data.TxRef),
		Status:        strings.ToLower(strings.TrimSpace(raw.Data.Status)),
		Amount:        raw.Data.Amount,
		Currency:      raw.Data.Currency,
		CustomerEmail: strings.TrimSpace(raw.Data.Customer.Email),
	}
	if raw.Data.Meta != nil {
		out.UserID = parseUserID(anyToString(raw.Data.Meta["userId"]))
		if out.UserID == 0 {
			out.UserID = parseUserID(anyToString(raw.Data.Meta["user_id"]))
		}
	}
	return out, nil
}

// FlutterwaveProvider adapts Flutterwave webhooks to the shared pipeline.
// Amount, currency and customer identity are taken from the verify response,
// never from the webhook body.
type FlutterwaveProvider struct {
	WebhookSecret string
	Client        *FlutterwaveClient
}

func NewFlutterwaveProvider(webhookSecret string, client *FlutterwaveClient) *FlutterwaveProvider {
	return &FlutterwaveProvider{WebhookSecret: webhookSecret, Client: client}
}

func (p *FlutterwaveProvider) Name() string {
	return models.PaymentProviderFlutterwave
}

func (p *FlutterwaveProvider) VerifySignature(rawBody []byte, headers map[string]string) bool {
	return VerifyFlutterwaveSignature(rawBody, headerValue(headers, "verif-hash"), p.WebhookSecret)
}

type flutterwaveWebhookPayload struct {
	Event string `json:"event"`
	Data  struct {
		ID       int64   `json:"id"`
		TxRef    string  `json:"tx_ref"`
		Amount   float64 `json:"amount"`
		Currency string  `json:"currency"`
		Customer struct {
			Email string `json:"email"`
		} `json:"customer"`
		Meta map[string]any `json:"meta"`
	} `json:"data"`
}

func (p *FlutterwaveProvider) ParseEvent(ctx context.Context, rawBody []byte) (*NormalizedEvent, error) {
	var raw flutterwaveWebhookPayload
	if err := json.Unmarshal(rawBody, &raw); err != nil {
		return nil, fmt.Errorf("decode flutterwave payload: %w", err)
	}

	event := strings.ToLower(strings.TrimSpace(raw.Event))
	if event == "" {
		return nil, errors.New("flutterwave payload missing event")
	}

	ev := &NormalizedEvent{
		Kind:      EventKindIgnored,
		Provider:  p.Name(),
		EventName: event,
	}
	if event != "charge.completed" && event != "charge.failed" {
		return ev, nil
	}
	if raw.Data.ID == 0 {
		return nil, errors.New("flutterwave payload missing data.id")
	}

	if event == "charge.failed" {
		// Failed charges go straight to the ledger for the audit trail.
		// Re-verifying would report the same non-successful status, so the
		// signed payload is the source here.
		ev.Kind = EventKindPaymentFailed
		ev.TransactionID = strconv.FormatInt(raw.Data.ID, 10)
		ev.Email = strings.TrimSpace(raw.Data.Customer.Email)
		ev.Amount = AmountFromFloat(raw.Data.Amount)
		ev.Currency = NormalizeCurrency(raw.Data.Currency)
		ev.Metadata = map[string]string{}
		if raw.Data.Meta != nil {
			ev.UserID = parseUserID(anyToString(raw.Data.Meta["userId"]))
			if ev.UserID == 0 {
				ev.UserID = parseUserID(anyToString(raw.Data.Meta["user_id"]))
			}
		}
		if tr := strings.TrimSpace(raw.Data.TxRef); tr != "" {
			ev.Metadata["tx_ref"] = tr
		}
		return ev, nil
	}

	verified, err := p.Client.VerifyTransaction(ctx, raw.Data.ID)
	if err != nil {
		return nil, fmt.Errorf("verify transaction %d: %w", raw.Data.ID, err)
	}
	if verified.Status != "successful" {
		return nil, fmt.Errorf("%w: transaction %d status %q", ErrVerificationFailed, raw.Data.ID, verified.Status)
	}

	userID := verified.UserID
	if userID == 0 && raw.Data.Meta != nil {
		userID = parseUserID(anyToString(raw.Data.Meta["userId"]))
		if userID == 0 {
			userID = parseUserID(anyToString(raw.Data.Meta["user_id"]))
		}
	}

	ev.Kind = EventKindPayment
	ev.TransactionID = strconv.FormatInt(verified.ID, 10)
	ev.UserID = userID
	ev.Email = verified.CustomerEmail
	ev.Amount = AmountFromFloat(verified.Amount)
	ev.Currency = NormalizeCurrency(verified.Currency)
	ev.Metadata = map[string]string{}
	if verified.TxRef != "" {
		ev.Metadata["tx_ref"] = verified.TxRef
	}
	return ev, nil
}
