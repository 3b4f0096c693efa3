package symbol

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParse(t *testing.T) {
	tests := []struct {
		raw    string
		ticker string
		token  string
		kind   TokenKind
	}{
		{"AAPL:US", "AAPL", "US", TokenCountry},
		{"mult.de", "MULT", "DE", TokenSuffix},
		{" AAPL ", "AAPL", "", TokenNone},
		{"BRK.B:US", "BRK.B", "US", TokenCountry},
		{"SPN.V", "SPN", "V", TokenSuffix},
	}
	for _, tt := range tests {
		id := Parse(tt.raw)
		assert.Equal(t, tt.ticker, id.Ticker, tt.raw)
		assert.Equal(t, tt.token, id.Token, tt.raw)
		assert.Equal(t, tt.kind, id.Kind, tt.raw)
	}
}

func TestStooq_WithoutListings(t *testing.T) {
	tests := []struct {
		raw  string
		want []string
	}{
		{"AAPL:US", []string{"AAPL", "AAPL.US"}},
		{"AAPL", []string{"AAPL", "AAPL.US"}},
		{"MULT.DE", []string{"MULT.DE"}},
		{"VOD:LN", []string{"VOD.UK"}},
	}
	for _, tt := range tests {
		res := Stooq.Resolve(tt.raw, nil)
		assert.Equal(t, tt.want, res.Candidates, tt.raw)
		assert.False(t, res.Ambiguous, tt.raw)
	}
}

func TestResolve_UnknownTokenYieldsNoCandidates(t *testing.T) {
	res := EODHD.Resolve("XYZ.QQ", nil)
	assert.False(t, res.Found())
	assert.Equal(t, ".QQ", res.Key)
}

func TestResolve_ExchangeWithSeveralCodes(t *testing.T) {
	res := EODHD.Resolve("VOD.L", nil)
	assert.Equal(t, []string{"VOD.LSE", "VOD.IL"}, res.Candidates)

	res = EODHD.Resolve("SAP:DE", nil)
	// XETRA codes first, Frankfurt's F only once
	assert.Equal(t, []string{"SAP.XETRA", "SAP.F"}, res.Candidates)
}

func TestResolve_SuffixDisambiguatesListings(t *testing.T) {
	listings := []Listing{
		{Ticker: "SPN", Symbol: "SPN:US", Exchange: "NYSE"},
		{Ticker: "SPN", Symbol: "SPN:CA", Exchange: "TSX Venture"},
	}
	res := EODHD.Resolve("SPN.V", listings)
	assert.False(t, res.Ambiguous)
	assert.Equal(t, "TSX Venture", res.Exchange)
	assert.Equal(t, []string{"SPN.V"}, res.Candidates)
}

func TestResolve_BareTickerPrefersDomestic(t *testing.T) {
	listings := []Listing{
		{Ticker: "ZEN", Symbol: "ZEN:CA", Exchange: "Toronto"},
		{Ticker: "ZEN", Symbol: "ZEN:US", Exchange: "NYSE"},
	}
	res := Yahoo.Resolve("ZEN", listings)
	assert.False(t, res.Ambiguous)
	assert.Equal(t, "NYSE", res.Exchange)
	assert.Equal(t, []string{"ZEN"}, res.Candidates)
}

func TestResolve_ExactSymbolWins(t *testing.T) {
	listings := []Listing{
		{Ticker: "ABC", Symbol: "ABC:US", Exchange: "NASDAQ"},
		{Ticker: "ABC", Symbol: "ABC:CA", Exchange: "Toronto"},
	}
	res := EODHD.Resolve("ABC:CA", listings)
	assert.False(t, res.Ambiguous)
	assert.Equal(t, []string{"ABC.TO"}, res.Candidates)
}

func TestResolve_AmbiguousTieBreakIsStable(t *testing.T) {
	listings := []Listing{
		{Ticker: "DUP", Symbol: "DUP:US", Exchange: "NYSE"},
		{Ticker: "DUP", Symbol: "DUP2:US", Exchange: "NASDAQ"},
		{Ticker: "DUP", Symbol: "DUP3:US", Exchange: "OTC"},
	}
	first := Stooq.Resolve("DUP", listings)
	require.True(t, first.Ambiguous)
	// NASDAQ sorts first among the domestic matches
	assert.Equal(t, "NASDAQ", first.Exchange)
	assert.Equal(t, []string{"DUP", "DUP.US"}, first.Candidates)
	assert.Equal(t, []string{"DUP:US@NYSE", "DUP3:US@OTC"}, first.Alternatives)

	// input order must not matter
	reversed := []Listing{listings[2], listings[1], listings[0]}
	for i := 0; i < 5; i++ {
		again := Stooq.Resolve("DUP", reversed)
		assert.Equal(t, first, again)
	}
}

func TestResolve_NoExpectedMatchFallsBack(t *testing.T) {
	listings := []Listing{
		{Ticker: "FOO", Symbol: "FOO:CA", Exchange: "Toronto"},
		{Ticker: "FOO", Symbol: "FOO:AU", Exchange: "ASX"},
	}
	res := EODHD.Resolve("FOO.DE", listings)
	assert.True(t, res.Ambiguous)
	assert.Equal(t, "ASX", res.Exchange)
	assert.Equal(t, []string{"FOO.AU"}, res.Candidates)
}

func TestResolver_LogsAmbiguity(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	listings := StaticListings{
		{Ticker: "DUP", Symbol: "DUP:US", Exchange: "NYSE"},
		{Ticker: "DUP", Symbol: "DUP2:US", Exchange: "NASDAQ"},
		{Ticker: "OTHER", Symbol: "OTHER:US", Exchange: "NYSE"},
	}
	r := NewResolver(Stooq, listings, zap.New(core))

	res, err := r.Resolve(context.Background(), "DUP")
	require.NoError(t, err)
	assert.True(t, res.Found())
	assert.Equal(t, 1, logs.Len())
	assert.Equal(t, "DUP", logs.All()[0].ContextMap()["symbol"])
}

type failingLookup struct{}

func (failingLookup) Listings(ctx context.Context, id Identifier) ([]Listing, error) {
	return nil, errors.New("connection refused")
}

func TestResolver_LookupErrorPropagates(t *testing.T) {
	r := NewResolver(Stooq, failingLookup{}, nil)
	_, err := r.Resolve(context.Background(), "AAPL:US")
	assert.Error(t, err)
}

func TestSchemeByName(t *testing.T) {
	for _, name := range []string{"stooq", "stooq_local", "eodhd", "yahoo"} {
		_, ok := SchemeByName(name)
		assert.True(t, ok, name)
	}
	_, ok := SchemeByName("bloomberg")
	assert.False(t, ok)
}
