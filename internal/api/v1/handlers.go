package apiv1

import (
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/vibecodementor/VibeMentor/internal/pkg/metrics/counter"
	"github.com/vibecodementor/VibeMentor/internal/pkg/middleware"
	"github.com/vibecodementor/VibeMentor/internal/pkg/usagelimit"
)

// APIServer implements the v1 API handlers
type APIServer struct{}

// NewAPIServer creates a new API server instance
func NewAPIServer() *APIServer {
	return &APIServer{}
}

// Pong is the ping response body
type Pong struct {
	Ping string `json:"ping"`
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	response := Pong{
		Ping: "pong",
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

type generateRequest struct {
	Prompt string `json:"prompt"`
}

type chatRequest struct {
	Message string `json:"message"`
}

// PostGenerate accepts a blueprint generation job. Quota was already consumed
// by the usage-limit middleware; this endpoint validates input, records the
// accepted action and returns a job handle.
func (s *APIServer) PostGenerate(c *fiber.Ctx) error {
	var req generateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Invalid JSON body"})
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "prompt is required"})
	}

	if err := counter.AddGeneration(); err != nil {
		log.Printf("failed to record generation counter: %v", err)
	}

	response := fiber.Map{
		"job_id":     uuid.New().String(),
		"status":     "accepted",
		"created_at": time.Now().UTC().Format(time.RFC3339),
	}
	if usage, ok := c.Locals(middleware.LocalQuotaResult).(*usagelimit.Result); ok {
		response["usage"] = usage
	}

	return c.Status(fiber.StatusAccepted).JSON(response)
}

// PostChat accepts a mentor chat message under the daily chat quota.
func (s *APIServer) PostChat(c *fiber.Ctx) error {
	var req chatRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Invalid JSON body"})
	}
	if strings.TrimSpace(req.Message) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "message is required"})
	}

	if err := counter.AddChatMessage(); err != nil {
		log.Printf("failed to record chat counter: %v", err)
	}

	response := fiber.Map{
		"message_id": uuid.New().String(),
		"status":     "accepted",
		"created_at": time.Now().UTC().Format(time.RFC3339),
	}
	if usage, ok := c.Locals(middleware.LocalQuotaResult).(*usagelimit.Result); ok {
		response["usage"] = usage
	}

	return c.Status(fiber.StatusAccepted).JSON(response)
}
