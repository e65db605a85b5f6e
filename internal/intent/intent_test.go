package intent

import (
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Kind
	}{
		{"cashu token", "cashuAeyJ0b2tlbiI6W3si", KindCashuToken},
		{"cashu token with garbage tail", "cashuA!!!not-base64###", KindCashuToken},
		{"bolt11 lowercase", "lnbc100n1pja0w9pdqq", KindBolt11},
		{"bolt11 uppercase", "LNBC100N1PJA0W9PDQQ", KindBolt11},
		{"bolt11 mixed case", "LnBc1500n1p", KindBolt11},
		{"lightning address", "alice@example.com", KindLnurlAddress},
		{"address with lnurl subdomain", "bob@ln.tips", KindLnurlAddress},
		{"two at signs", "a@b@c", KindUnknown},
		{"empty", "", KindUnknown},
		{"whitespace only", "   ", KindUnknown},
		{"random text", "hello world", KindUnknown},
		{"lnurl bech32 blob", "LNURL1DP68GURN8GHJ7UM9WFMXJCM99E3K7MF0", KindUnknown},
		{"bare lnb prefix too short", "lnb", KindUnknown},
		{"lightning uri invoice", "lightning:lnbc100n1pja0w9pdqq", KindBolt11},
		{"lightning uri uppercase scheme", "LIGHTNING:lnbc100n1p", KindBolt11},
		{"lightning uri address", "lightning:carol@zap.me", KindLnurlAddress},
		{"surrounding whitespace", "  lnbc100n1p  ", KindBolt11},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.in)
			if got.Kind != tc.want {
				t.Errorf("Classify(%q).Kind = %q, want %q", tc.in, got.Kind, tc.want)
			}
		})
	}
}

func TestClassifyAddressSplit(t *testing.T) {
	got := Classify("alice@example.com")
	if got.User != "alice" {
		t.Errorf("User = %q, want %q", got.User, "alice")
	}
	if got.Domain != "example.com" {
		t.Errorf("Domain = %q, want %q", got.Domain, "example.com")
	}
}

func TestClassifyBolt11BeatsAddress(t *testing.T) {
	// An invoice that happens to contain an @ must still classify as
	// bolt11 since the prefix rule has priority.
	got := Classify("lnbc100n1p@odd")
	if got.Kind != KindBolt11 {
		t.Errorf("Kind = %q, want %q", got.Kind, KindBolt11)
	}
}

func TestClassifyStripsScheme(t *testing.T) {
	got := Classify("lightning:alice@example.com")
	if got.Raw != "alice@example.com" {
		t.Errorf("Raw = %q, want scheme stripped", got.Raw)
	}
}

func TestIsSendable(t *testing.T) {
	if Classify("").IsSendable() {
		t.Error("empty input must not be sendable")
	}
	if !Classify("some-raw-paste").IsSendable() {
		t.Error("unknown but non-empty input should still be attempted")
	}
}
