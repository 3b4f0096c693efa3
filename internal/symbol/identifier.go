// Package symbol maps internal security identifiers to the symbols an
// external price source understands.
package symbol

import "strings"

// TokenKind says how the exchange token was attached to a ticker
type TokenKind int

const (
	TokenNone    TokenKind = iota // AAPL
	TokenCountry                  // AAPL:US
	TokenSuffix                   // BMW.DE
)

// Identifier is a parsed internal identifier
type Identifier struct {
	Raw    string
	Ticker string
	Token  string
	Kind   TokenKind
}

// Parse splits raw into ticker and exchange token. Input is trimmed and
// upper-cased. Only the first separator is significant: "BRK.B:US" is
// ticker "BRK.B" with country "US".
func Parse(raw string) Identifier {
	s := strings.ToUpper(strings.TrimSpace(raw))
	id := Identifier{Raw: s, Ticker: s}

	if base, tok, ok := strings.Cut(s, ":"); ok {
		id.Ticker, id.Token, id.Kind = base, tok, TokenCountry
		return id
	}
	if base, tok, ok := strings.Cut(s, "."); ok {
		id.Ticker, id.Token, id.Kind = base, tok, TokenSuffix
	}
	return id
}

// Key is the mapping key used for lookups and the missing-symbol log
func (id Identifier) Key() string {
	switch id.Kind {
	case TokenCountry:
		return ":" + id.Token
	case TokenSuffix:
		return "." + id.Token
	default:
		return "domestic"
	}
}
