package models

import (
	"strings"
	"testing"
)

func TestIssueAPIKey(t *testing.T) {
	ent := &Entitlement{UserID: 1}

	raw, err := ent.IssueAPIKey()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(raw, "vcm_") {
		t.Fatalf("expected vcm_ prefix, got %q", raw)
	}
	if ent.APIKeyPrefix != raw[:16] {
		t.Fatalf("expected stored prefix to match first 16 chars of the key, got %q", ent.APIKeyPrefix)
	}
	if ent.APIKeyHash != HashAPIKey(raw) {
		t.Fatalf("stored hash does not match the issued key")
	}
	if !ent.HasActiveAPIKey() {
		t.Fatalf("expected an active key after issue")
	}
}

func TestRevokeAPIKey(t *testing.T) {
	ent := &Entitlement{UserID: 1}
	if _, err := ent.IssueAPIKey(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ent.RevokeAPIKey()
	if ent.HasActiveAPIKey() {
		t.Fatalf("expected no active key after revoke")
	}
	if ent.APIKeyHash != "" || ent.APIKeyPrefix != "" {
		t.Fatalf("expected key material cleared, got hash=%q prefix=%q", ent.APIKeyHash, ent.APIKeyPrefix)
	}
}

func TestHashAPIKeyTrimsWhitespace(t *testing.T) {
	if HashAPIKey(" vcm_abc ") != HashAPIKey("vcm_abc") {
		t.Fatalf("expected hash to ignore surrounding whitespace")
	}
}
