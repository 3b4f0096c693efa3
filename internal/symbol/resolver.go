package symbol

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"go.uber.org/zap"
)

// Listing is one traded-company record from the listings table
type Listing struct {
	Ticker   string
	Symbol   string
	Exchange string
}

// ListingLookup supplies exchange metadata for an identifier
type ListingLookup interface {
	Listings(ctx context.Context, id Identifier) ([]Listing, error)
}

// Scheme describes how one price source names securities
type Scheme struct {
	Name string
	// Codes maps an exchange name to the source's exchange codes,
	// preferred first. An empty code means the bare ticker.
	Codes map[string][]string
	// BareDomestic tries the bare ticker before any coded form for
	// domestic listings.
	BareDomestic bool
}

// Format renders a source symbol
func (s Scheme) Format(ticker, code string) string {
	if code == "" {
		return ticker
	}
	return ticker + "." + code
}

// Resolution is the outcome of resolving one identifier
type Resolution struct {
	Identifier Identifier
	Key        string
	Exchange   string
	Candidates []string
	// Ambiguous is set when several listings matched and one was picked
	// by the tie-break rule. Alternatives lists the losers.
	Ambiguous    bool
	Alternatives []string
}

// Found reports whether at least one candidate was produced
func (r Resolution) Found() bool {
	return len(r.Candidates) > 0
}

// Resolve maps raw to ordered candidates for this scheme. listings is the
// external metadata for raw's ticker and may be empty.
//
// Tie-break: listings are ordered by (exchange, symbol, ticker) and the
// first one wins. The rule only guarantees a reproducible choice; it does
// not rank exchanges.
func (s Scheme) Resolve(raw string, listings []Listing) Resolution {
	id := Parse(raw)
	res := Resolution{Identifier: id, Key: id.Key()}

	expected, known := expectedExchanges(id)

	var exchanges []string
	if len(listings) > 0 {
		chosen, alts := chooseListing(id, listings, expected)
		exchanges = []string{chosen.Exchange}
		res.Exchange = chosen.Exchange
		if len(alts) > 0 {
			res.Ambiguous = true
			for _, l := range alts {
				res.Alternatives = append(res.Alternatives, l.Symbol+"@"+l.Exchange)
			}
		}
	} else if known {
		exchanges = expected
		if len(expected) == 1 {
			res.Exchange = expected[0]
		}
	}

	seen := make(map[string]struct{})
	add := func(c string) {
		if _, ok := seen[c]; ok {
			return
		}
		seen[c] = struct{}{}
		res.Candidates = append(res.Candidates, c)
	}

	if s.BareDomestic && slices.ContainsFunc(exchanges, isDomestic) {
		add(id.Ticker)
	}
	for _, exch := range exchanges {
		for _, code := range s.Codes[exch] {
			add(s.Format(id.Ticker, code))
		}
	}

	return res
}

func expectedExchanges(id Identifier) ([]string, bool) {
	switch id.Kind {
	case TokenCountry:
		ex, ok := CountryExchanges[id.Token]
		return ex, ok
	case TokenSuffix:
		ex, ok := SuffixExchanges[id.Token]
		return ex, ok
	default:
		return DomesticExchanges, true
	}
}

func isDomestic(exchange string) bool {
	return slices.Contains(DomesticExchanges, exchange)
}

// chooseListing picks one listing and returns the others that were
// equally plausible.
func chooseListing(id Identifier, listings []Listing, expected []string) (Listing, []Listing) {
	pool := sortedListings(listings)

	// an exact internal-symbol match beats ticker matches
	var exact []Listing
	for _, l := range pool {
		if l.Symbol == id.Raw {
			exact = append(exact, l)
		}
	}
	if len(exact) > 0 {
		pool = exact
	}

	if len(pool) == 1 {
		return pool[0], nil
	}

	var matches []Listing
	for _, l := range pool {
		if slices.Contains(expected, l.Exchange) {
			matches = append(matches, l)
		}
	}
	switch len(matches) {
	case 0:
		return pool[0], pool[1:]
	case 1:
		return matches[0], nil
	default:
		return matches[0], matches[1:]
	}
}

func sortedListings(in []Listing) []Listing {
	out := slices.Clone(in)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Exchange != b.Exchange {
			return a.Exchange < b.Exchange
		}
		if a.Symbol != b.Symbol {
			return a.Symbol < b.Symbol
		}
		return a.Ticker < b.Ticker
	})
	return out
}

// Resolver combines a scheme with a listings lookup
type Resolver struct {
	scheme   Scheme
	listings ListingLookup
	logger   *zap.Logger
}

// NewResolver creates a resolver. listings may be nil when no exchange
// metadata is available.
func NewResolver(scheme Scheme, listings ListingLookup, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{scheme: scheme, listings: listings, logger: logger}
}

// Scheme returns the resolver's naming scheme
func (r *Resolver) Scheme() Scheme {
	return r.scheme
}

// Resolve looks up listings for raw and maps it to candidates. Ambiguity
// is logged, never returned as an error.
func (r *Resolver) Resolve(ctx context.Context, raw string) (Resolution, error) {
	var listings []Listing
	if r.listings != nil {
		var err error
		listings, err = r.listings.Listings(ctx, Parse(raw))
		if err != nil {
			return Resolution{}, fmt.Errorf("looking up listings for %s: %w", raw, err)
		}
	}

	res := r.scheme.Resolve(raw, listings)
	if res.Ambiguous {
		r.logger.Warn("ambiguous listing match, using first sorted candidate",
			zap.String("symbol", raw),
			zap.String("source", r.scheme.Name),
			zap.String("chosen", res.Exchange),
			zap.Strings("alternatives", res.Alternatives),
		)
	}
	return res, nil
}

// StaticListings is an in-memory ListingLookup
type StaticListings []Listing

// Listings returns records whose ticker or internal symbol matches id
func (s StaticListings) Listings(ctx context.Context, id Identifier) ([]Listing, error) {
	var out []Listing
	for _, l := range s {
		if l.Symbol == id.Raw || l.Ticker == id.Ticker {
			out = append(out, l)
		}
	}
	return out, nil
}
