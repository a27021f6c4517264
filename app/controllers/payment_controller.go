package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/vibecodementor/VibeMentor/app/models"
	"github.com/vibecodementor/VibeMentor/app/repository"
	"github.com/vibecodementor/VibeMentor/internal/pkg/billing"
	"github.com/vibecodementor/VibeMentor/internal/pkg/usercontext"
)

// checkoutClient is shared across requests so the product cache holds;
// wired at router install.
var checkoutClient *billing.LemonsqueezyClient

// SetCheckoutClient wires the shared Lemonsqueezy client.
func SetCheckoutClient(client *billing.LemonsqueezyClient) {
	checkoutClient = client
}

// HandleCreateCheckout creates a Lemonsqueezy checkout session for the
// authenticated user. The user id travels in checkout custom data and comes
// back in the webhook, which is how the payment is attributed.
func HandleCreateCheckout(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "login required"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	url, err := checkoutClient.CreateCheckout(ctx, userCtx.UserID, userCtx.Email)
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "checkout_failed", "message": "Could not create checkout session"})
	}

	return c.JSON(fiber.Map{"checkout_url": url})
}

// HandleListProducts returns the purchasable plan variants, served from the
// shared client's cache while fresh.
func HandleListProducts(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	products, err := checkoutClient.ListProducts(ctx)
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "products_unavailable", "message": "Could not load products"})
	}

	return c.JSON(fiber.Map{"products": products})
}

// HandleGetPaymentStatus returns the ledger state of one of the user's
// transactions, for the "did my payment go through" poll after checkout.
func HandleGetPaymentStatus(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "login required"})
	}

	provider := strings.ToLower(strings.TrimSpace(c.Query("provider")))
	transactionID := strings.TrimSpace(c.Params("transaction_id"))
	if provider == "" || transactionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "provider and transaction_id are required"})
	}

	repo := repository.GetGlobalFactory().GetPaymentRepository()
	record, err := repo.GetByTransactionID(provider, transactionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Not ledgered yet; the webhook may still be in flight.
			return c.JSON(fiber.Map{"status": "pending"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load payment"})
	}

	if record.UserID != userCtx.UserID && !userCtx.IsAdmin {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Payment not found"})
	}

	return c.JSON(fiber.Map{
		"status":         record.Status,
		"provider":       record.Provider,
		"transaction_id": record.TransactionID,
		"amount":         record.Amount.StringFixed(2),
		"currency":       record.Currency,
		"created_at":     record.CreatedAt.UTC().Format(time.RFC3339),
	})
}

// HandleListMyPayments returns the authenticated user's ledger rows.
func HandleListMyPayments(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "login required"})
	}

	offset, limit := parsePagination(c, 20, 100)
	repo := repository.GetGlobalFactory().GetPaymentRepository()
	records, err := repo.GetByUserID(userCtx.UserID, offset, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load payments"})
	}

	payments := make([]fiber.Map, 0, len(records))
	for _, record := range records {
		payments = append(payments, paymentJSON(&record))
	}

	return c.JSON(fiber.Map{"payments": payments})
}

func paymentJSON(record *models.PaymentRecord) fiber.Map {
	return fiber.Map{
		"id":             record.ID,
		"provider":       record.Provider,
		"transaction_id": record.TransactionID,
		"amount":         record.Amount.StringFixed(2),
		"currency":       record.Currency,
		"status":         record.Status,
		"created_at":     record.CreatedAt.UTC().Format(time.RFC3339),
	}
}
