package env

import "testing"

func TestGetEnv(t *testing.T) {
	if got := GetEnv("VIBEMENTOR_TEST_UNSET", "fallback"); got != "fallback" {
		t.Fatalf("expected fallback for unset key, got %q", got)
	}

	t.Setenv("VIBEMENTOR_TEST_SET", "from-process")
	if got := GetEnv("VIBEMENTOR_TEST_SET", "fallback"); got != "from-process" {
		t.Fatalf("expected process value, got %q", got)
	}

	// The .env file wins over the process environment.
	Env = map[string]string{"VIBEMENTOR_TEST_SET": "from-file"}
	t.Cleanup(func() { Env = nil })
	if got := GetEnv("VIBEMENTOR_TEST_SET", "fallback"); got != "from-file" {
		t.Fatalf("expected file value, got %q", got)
	}
}

func TestGetEnvInt(t *testing.T) {
	if got := GetEnvInt("VIBEMENTOR_TEST_UNSET", 6379); got != 6379 {
		t.Fatalf("expected default for unset key, got %d", got)
	}

	t.Setenv("VIBEMENTOR_TEST_PORT", "6380")
	if got := GetEnvInt("VIBEMENTOR_TEST_PORT", 6379); got != 6380 {
		t.Fatalf("expected parsed value, got %d", got)
	}

	t.Setenv("VIBEMENTOR_TEST_PORT", "not-a-number")
	if got := GetEnvInt("VIBEMENTOR_TEST_PORT", 6379); got != 6379 {
		t.Fatalf("expected default for unparseable value, got %d", got)
	}
}
