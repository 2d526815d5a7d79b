package domain

import "testing"

func TestNormalizePair(t *testing.T) {
	if got := NormalizePair(" usd-eth "); got != "USD-ETH" {
		t.Errorf("NormalizePair = %q, want USD-ETH", got)
	}
}

func TestValidPair(t *testing.T) {
	valid := []string{"USD-ETH", "usd-btc", "USDT-ETH2"}
	invalid := []string{"", "USDETH", "USD-", "-ETH", "USD_ETH", "A-B", "USD-ETH-BTC"}
	for _, p := range valid {
		if !ValidPair(p) {
			t.Errorf("ValidPair(%q) = false, want true", p)
		}
	}
	for _, p := range invalid {
		if ValidPair(p) {
			t.Errorf("ValidPair(%q) = true, want false", p)
		}
	}
}
