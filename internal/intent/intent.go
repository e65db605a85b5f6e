package intent

import (
	"strings"
)

// Kind identifies which wire format a recipient string represents.
type Kind string

const (
	KindCashuToken   Kind = "cashu_token"
	KindBolt11       Kind = "bolt11"
	KindLnurlAddress Kind = "lnurl_address"
	KindUnknown      Kind = "unknown"
)

// Intent is the classified form of a raw recipient string.
// For KindLnurlAddress, User and Domain hold the two halves of the
// address; for every other kind they are empty.
type Intent struct {
	Kind   Kind
	Raw    string
	User   string
	Domain string
}

// Classify maps a raw recipient string to a typed intent. It is a pure
// function: no network access, no side effects, and it never fails.
// Anything unrecognized (including the empty string) comes back as
// KindUnknown.
//
// Rules, in priority order:
//  1. "cashuA" prefix: Cashu bearer token.
//  2. "lnbc" prefix (case-insensitive): BOLT11 invoice.
//  3. Exactly one "@" and not bolt11: lightning address (user@domain).
//  4. Everything else: unknown.
//
// A leading "lightning:" URI scheme (case-insensitive) is stripped
// before the rules apply, as is surrounding whitespace.
func Classify(raw string) Intent {
	s := strings.TrimSpace(raw)
	if len(s) >= 10 && strings.EqualFold(s[:10], "lightning:") {
		s = s[10:]
	}
	s = strings.TrimSpace(s)

	switch {
	case strings.HasPrefix(s, "cashuA"):
		return Intent{Kind: KindCashuToken, Raw: s}
	case isBolt11(s):
		return Intent{Kind: KindBolt11, Raw: s}
	case strings.Count(s, "@") == 1:
		at := strings.Index(s, "@")
		return Intent{
			Kind:   KindLnurlAddress,
			Raw:    s,
			User:   s[:at],
			Domain: s[at+1:],
		}
	default:
		return Intent{Kind: KindUnknown, Raw: s}
	}
}

func isBolt11(s string) bool {
	return len(s) >= 4 && strings.EqualFold(s[:4], "lnbc")
}

// IsSendable reports whether the intent can be submitted as a send
// target at all. Empty input is the only thing rejected outright;
// unknown strings are still attempted downstream.
func (i Intent) IsSendable() bool {
	return i.Raw != ""
}
