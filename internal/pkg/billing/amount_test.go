package billing

import "testing"

func TestAmountFromMinorUnits(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{in: 500, want: "5"},
		{in: 999, want: "9.99"},
		{in: 0, want: "0"},
		{in: 100000, want: "1000"},
	}

	for _, tt := range tests {
		if got := AmountFromMinorUnits(tt.in); got.String() != tt.want {
			t.Fatalf("AmountFromMinorUnits(%d) = %s, want %s", tt.in, got, tt.want)
		}
	}

	// 500 cents must equal the decimal 5.00, not 500.
	if !AmountFromMinorUnits(500).Equal(AmountFromFloat(5.00)) {
		t.Fatalf("expected 500 minor units to equal 5.00")
	}
}

func TestAmountFromString(t *testing.T) {
	got, err := AmountFromString("5.00")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(AmountFromMinorUnits(500)) {
		t.Fatalf("expected 5.00, got %s", got)
	}

	if _, err := AmountFromString(""); err == nil {
		t.Fatalf("expected empty amount to error")
	}
	if _, err := AmountFromString("abc"); err == nil {
		t.Fatalf("expected junk amount to error")
	}
}

func TestNormalizeCurrency(t *testing.T) {
	if got := NormalizeCurrency("usd"); got != "USD" {
		t.Fatalf("NormalizeCurrency(usd) = %q", got)
	}
	if got := NormalizeCurrency(""); got != "USD" {
		t.Fatalf("expected empty currency to default to USD, got %q", got)
	}
	if got := NormalizeCurrency("NGN"); got != "NGN" {
		t.Fatalf("NormalizeCurrency(NGN) = %q", got)
	}
}
