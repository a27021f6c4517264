package models

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Entitlement stores the per-user subscription state plus API key material.
// It is upserted on every successful payment event and never deleted.
type Entitlement struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	UserID           uint       `gorm:"uniqueIndex" json:"user_id"`
	Email            string     `gorm:"type:varchar(200);default:''" json:"email"`
	Plan             string     `gorm:"type:varchar(50);default:'free'" json:"plan"`
	IsPro            bool       `gorm:"default:false;index" json:"is_pro"`
	APIKeyHash       string     `gorm:"type:char(64);default:''" json:"-"`
	APIKeyPrefix     string     `gorm:"type:varchar(20);default:''" json:"api_key_prefix"`
	APIKeyCreatedAt  *time.Time `json:"api_key_created_at"`
	APIKeyLastUsedAt *time.Time `json:"api_key_last_used_at"`
	APIKeyRevokedAt  *time.Time `json:"api_key_revoked_at"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

var apiKeyEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

const apiKeyPrefix = "vcm_"

// GetOrCreateEntitlement returns existing entitlement state or creates the free default
func GetOrCreateEntitlement(db *gorm.DB, userID uint) (*Entitlement, error) {
	var ent Entitlement
	if err := db.Where("user_id = ?", userID).First(&ent).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			ent = Entitlement{UserID: userID, Plan: "free", IsPro: false}
			if err := db.Create(&ent).Error; err != nil {
				return nil, err
			}
			return &ent, nil
		}
		return nil, err
	}
	return &ent, nil
}

// HasActiveAPIKey reports whether the user has an active API key configured
func (e *Entitlement) HasActiveAPIKey() bool {
	return e != nil && e.APIKeyHash != "" && e.APIKeyRevokedAt == nil
}

// IssueAPIKey generates a new API key, persists metadata on the struct, and returns the raw secret.
// Callers must persist the struct via the database after invoking this method.
func (e *Entitlement) IssueAPIKey() (string, error) {
	rawKey, prefix, hash, err := generateAPIKeyMaterial()
	if err != nil {
		return "", err
	}
	now := time.Now()
	e.APIKeyHash = hash
	e.APIKeyPrefix = prefix
	e.APIKeyCreatedAt = &now
	e.APIKeyRevokedAt = nil
	e.APIKeyLastUsedAt = nil
	return rawKey, nil
}

// RevokeAPIKey clears the stored API key metadata without deleting the record.
func (e *Entitlement) RevokeAPIKey() {
	e.APIKeyHash = ""
	e.APIKeyPrefix = ""
	now := time.Now()
	e.APIKeyRevokedAt = &now
	e.APIKeyLastUsedAt = nil
}

// HashAPIKey returns the SHA-256 hash for the provided API key.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(raw)))
	return hex.EncodeToString(sum[:])
}

func generateAPIKeyMaterial() (string, string, string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", "", err
	}
	encoded := apiKeyEncoding.EncodeToString(b)
	encoded = strings.ToLower(encoded)
	rawKey := apiKeyPrefix + encoded
	if len(rawKey) < 12 {
		return "", "", "", fmt.Errorf("api key generation failed: key too short")
	}
	prefix := rawKey[:min(len(rawKey), 16)]
	hash := HashAPIKey(rawKey)
	return rawKey, prefix, hash, nil
}
