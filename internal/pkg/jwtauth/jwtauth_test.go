package jwtauth

import (
	"testing"
	"time"

	"github.com/vibecodementor/VibeMentor/app/models"
)

func TestGenerateAndParse(t *testing.T) {
	m := NewManager("test-secret", time.Hour)
	user := &models.User{ID: 7, Email: "u7@example.com", Role: models.ROLE_ADMIN}

	token, err := m.Generate(user)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	claims, err := m.Parse(token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claims.UserID != 7 || claims.Email != "u7@example.com" || !claims.IsAdmin {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestParse_WrongSecret(t *testing.T) {
	user := &models.User{ID: 1, Email: "u1@example.com"}
	token, err := NewManager("secret-a", time.Hour).Generate(user)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := NewManager("secret-b", time.Hour).Parse(token); err == nil {
		t.Fatalf("expected wrong secret to fail verification")
	}
}

func TestParse_ExpiredToken(t *testing.T) {
	m := NewManager("test-secret", time.Hour)
	issued := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return issued }

	token, err := m.Generate(&models.User{ID: 1, Email: "u1@example.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m.now = func() time.Time { return issued.Add(2 * time.Hour) }
	if _, err := m.Parse(token); err == nil {
		t.Fatalf("expected expired token to fail verification")
	}
}

func TestParse_Garbage(t *testing.T) {
	m := NewManager("test-secret", time.Hour)
	if _, err := m.Parse("not.a.token"); err == nil {
		t.Fatalf("expected garbage token to fail")
	}
}
