package billing

import (
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/vibecodementor/VibeMentor/app/models"
)

const paypalCertCacheTTL = 12 * time.Hour

// PayPalProvider adapts PayPal webhooks to the shared pipeline. The
// transmission signature is verified against the certificate PayPal publishes
// at paypal-cert-url: the signed message is
// transmissionID|transmissionTime|webhookID|crc32(rawBody).
type PayPalProvider struct {
	WebhookID  string
	HTTPClient *http.Client

	// now is injectable for certificate validity tests.
	now func() time.Time

	certMu    sync.Mutex
	certCache map[string]cachedCert
}

type cachedCert struct {
	cert      *x509.Certificate
	fetchedAt time.Time
}

func NewPayPalProvider(webhookID string) *PayPalProvider {
	return &PayPalProvider{
		WebhookID: webhookID,
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		now:       time.Now,
		certCache: make(map[string]cachedCert),
	}
}

func (p *PayPalProvider) Name() string {
	return models.PaymentProviderPayPal
}

// VerifySignature fails closed: missing headers, an untrusted cert host, an
// expired certificate or an unknown auth algorithm all reject the webhook.
func (p *PayPalProvider) VerifySignature(rawBody []byte, headers map[string]string) bool {
	transmissionID := strings.TrimSpace(headerValue(headers, "Paypal-Transmission-Id"))
	transmissionTime := strings.TrimSpace(headerValue(headers, "Paypal-Transmission-Time"))
	certURL := strings.TrimSpace(headerValue(headers, "Paypal-Cert-Url"))
	authAlgo := strings.TrimSpace(headerValue(headers, "Paypal-Auth-Algo"))
	signature := strings.TrimSpace(headerValue(headers, "Paypal-Transmission-Sig"))

	if transmissionID == "" || transmissionTime == "" || certURL == "" || signature == "" {
		return false
	}
	if strings.TrimSpace(p.WebhookID) == "" {
		return false
	}

	cert, err := p.signingCert(certURL)
	if err != nil {
		return false
	}

	return verifyPayPalTransmission(cert, authAlgo, transmissionID, transmissionTime, p.WebhookID, rawBody, signature, p.now())
}

// verifyPayPalTransmission checks the transmission signature with an already
// validated certificate. Split out so tests can exercise it with a local cert.
func verifyPayPalTransmission(cert *x509.Certificate, authAlgo, transmissionID, transmissionTime, webhookID string, rawBody []byte, signatureB64 string, at time.Time) bool {
	if at.Before(cert.NotBefore) || at.After(cert.NotAfter) {
		return false
	}

	sig, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return false
	}

	message := fmt.Sprintf("%s|%s|%s|%d", transmissionID, transmissionTime, webhookID, crc32.ChecksumIEEE(rawBody))

	switch strings.ToUpper(strings.TrimSpace(authAlgo)) {
	case "SHA256WITHRSA":
		pub, ok := cert.PublicKey.(*rsa.PublicKey)
		if !ok {
			return false
		}
		digest := sha256.Sum256([]byte(message))
		return rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig) == nil
	default:
		return false
	}
}

// signingCert fetches and caches the certificate chain behind paypal-cert-url.
// Only HTTPS URLs on paypal.com hosts are accepted, and the leaf must chain to
// a trusted root using any intermediates served alongside it.
func (p *PayPalProvider) signingCert(certURL string) (*x509.Certificate, error) {
	if err := validatePayPalCertURL(certURL); err != nil {
		return nil, err
	}

	p.certMu.Lock()
	if entry, ok := p.certCache[certURL]; ok && p.now().Sub(entry.fetchedAt) < paypalCertCacheTTL {
		p.certMu.Unlock()
		return entry.cert, nil
	}
	p.certMu.Unlock()

	req, err := http.NewRequest(http.MethodGet, certURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("paypal cert fetch failed: status=%d", resp.StatusCode)
	}

	leaf, intermediates, err := parseCertChainPEM(body)
	if err != nil {
		return nil, err
	}
	if err := verifyCertChain(leaf, intermediates, p.now()); err != nil {
		return nil, err
	}

	p.certMu.Lock()
	p.certCache[certURL] = cachedCert{cert: leaf, fetchedAt: p.now()}
	p.certMu.Unlock()
	return leaf, nil
}

func validatePayPalCertURL(certURL string) error {
	u, err := url.Parse(certURL)
	if err != nil {
		return fmt.Errorf("invalid paypal-cert-url: %w", err)
	}
	if u.Scheme != "https" {
		return errors.New("paypal-cert-url must use https")
	}
	host := strings.ToLower(u.Hostname())
	if host != "paypal.com" && !strings.HasSuffix(host, ".paypal.com") {
		return fmt.Errorf("paypal-cert-url host %q is not a paypal.com host", host)
	}
	return nil
}

func parseCertChainPEM(data []byte) (*x509.Certificate, []*x509.Certificate, error) {
	var certs []*x509.Certificate
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, nil, fmt.Errorf("parse certificate: %w", err)
		}
		certs = append(certs, cert)
	}
	if len(certs) == 0 {
		return nil, nil, errors.New("paypal cert response contained no certificates")
	}
	return certs[0], certs[1:], nil
}

func verifyCertChain(leaf *x509.Certificate, intermediates []*x509.Certificate, at time.Time) error {
	pool := x509.NewCertPool()
	for _, c := range intermediates {
		pool.AddCert(c)
	}
	_, err := leaf.Verify(x509.VerifyOptions{
		Intermediates: pool,
		CurrentTime:   at,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	if err != nil {
		return fmt.Errorf("paypal certificate chain verification failed: %w", err)
	}
	return nil
}

type paypalWebhookPayload struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	Resource  struct {
		ID       string `json:"id"`
		CustomID string `json:"custom_id"`
		Amount   struct {
			CurrencyCode string `json:"currency_code"`
			Value        string `json:"value"`
		} `json:"amount"`
	} `json:"resource"`
}

func (p *PayPalProvider) ParseEvent(ctx context.Context, rawBody []byte) (*NormalizedEvent, error) {
	_ = ctx
	var raw paypalWebhookPayload
	if err := json.Unmarshal(rawBody, &raw); err != nil {
		return nil, fmt.Errorf("decode paypal payload: %w", err)
	}

	eventType := strings.ToUpper(strings.TrimSpace(raw.EventType))
	if eventType == "" {
		return nil, errors.New("paypal payload missing event_type")
	}

	kind := EventKindIgnored
	switch eventType {
	case "PAYMENT.CAPTURE.COMPLETED":
		kind = EventKindPayment
	case "PAYMENT.CAPTURE.REFUNDED":
		kind = EventKindRefund
	}

	ev := &NormalizedEvent{
		Kind:      kind,
		Provider:  p.Name(),
		EventName: eventType,
	}
	if kind == EventKindIgnored {
		return ev, nil
	}

	txID := strings.TrimSpace(raw.Resource.ID)
	if txID == "" {
		return nil, errors.New("paypal payload missing resource.id")
	}

	amount, err := AmountFromString(raw.Resource.Amount.Value)
	if err != nil {
		return nil, fmt.Errorf("paypal amount: %w", err)
	}

	userID, email := splitPayPalCustomID(raw.Resource.CustomID)

	ev.TransactionID = txID
	ev.UserID = userID
	ev.Email = email
	ev.Amount = amount
	ev.Currency = NormalizeCurrency(raw.Resource.Amount.CurrencyCode)
	ev.Metadata = map[string]string{}
	if raw.ID != "" {
		ev.Metadata["webhook_event_id"] = raw.ID
	}
	return ev, nil
}

// splitPayPalCustomID decodes the "userId|email" pair set at checkout time.
func splitPayPalCustomID(customID string) (uint, string) {
	parts := strings.SplitN(strings.TrimSpace(customID), "|", 2)
	userID := parseUserID(parts[0])
	email := ""
	if len(parts) == 2 {
		email = strings.TrimSpace(parts[1])
	}
	return userID, email
}
