package stooq

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/newthinker/pitval/internal/config"
	"github.com/newthinker/pitval/internal/core"
	"github.com/newthinker/pitval/internal/pricesource"
	"github.com/newthinker/pitval/internal/storage/archive"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStooq_FetchDaily(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/q/d/l/", r.URL.Path)
		gotQuery = r.URL.RawQuery
		if r.URL.Query().Get("s") != "aapl.us" {
			w.Write([]byte("No data"))
			return
		}
		w.Write([]byte("Date,Open,High,Low,Close,Volume\n" +
			"2023-03-30,1,1,1,162.36,100\n" +
			"2023-03-31,1,1,1,164.90,100\n"))
	}))
	defer srv.Close()

	s := New(config.PricesConfig{BaseURL: srv.URL + "/"}, time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, "stooq", s.Name())

	series, err := s.FetchDaily(context.Background(), "AAPL.US")
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, 164.90, series[1].Close)
	assert.Equal(t, series[1].Close, series[1].AdjClose)
	assert.Contains(t, gotQuery, "d1=19900101")
	assert.Contains(t, gotQuery, "i=d")

	series, err = s.FetchDaily(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Empty(t, series)
}

func TestStooq_ServerErrorIsFetchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(config.PricesConfig{BaseURL: srv.URL}, time.Time{}).FetchDaily(context.Background(), "AAPL.US")
	assert.ErrorIs(t, err, core.ErrFetchFailed)
}

func TestStooq_QuotaPageIsFetchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Exceeded the daily hits limit"))
	}))
	defer srv.Close()

	_, err := New(config.PricesConfig{BaseURL: srv.URL}, time.Time{}).FetchDaily(context.Background(), "AAPL.US")
	assert.ErrorIs(t, err, core.ErrFetchFailed)
	assert.ErrorIs(t, err, pricesource.ErrUnexpectedBody)
}

func TestLocal_FetchDaily(t *testing.T) {
	fs, err := archive.NewLocalFS(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	content := "<TICKER>,<PER>,<DATE>,<TIME>,<OPEN>,<HIGH>,<LOW>,<CLOSE>,<VOL>,<OPENINT>\n" +
		"MULT.DE,D,19991230,000000,1,1,1,5.0,100,0\n" +
		"MULT.DE,D,20230330,000000,1,1,1,20.5,100,0\n" +
		"MULT.DE,D,20230331,000000,1,1,1,21.0,100,0\n"
	require.NoError(t, fs.Write(ctx, "stooq/daily/de/xetra stocks/mult.de.txt", []byte(content)))
	require.NoError(t, fs.Write(ctx, "stooq/daily/de/readme.md", []byte("ignored")))

	l := NewLocal(fs, "stooq/", time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, "stooq_local", l.Name())

	series, err := l.FetchDaily(ctx, "MULT.DE")
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, 21.0, series[1].Close)

	series, err = l.FetchDaily(ctx, "NOPE.DE")
	require.NoError(t, err)
	assert.Empty(t, series)
}

func TestLocal_FlatLayout(t *testing.T) {
	fs, err := archive.NewLocalFS(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	content := "<TICKER>,<PER>,<DATE>,<TIME>,<OPEN>,<HIGH>,<LOW>,<CLOSE>,<VOL>,<OPENINT>\n" +
		"AAPL.US,D,20230331,000000,1,1,1,164.9,100,0\n"
	require.NoError(t, fs.Write(ctx, "bulk/aapl.us.txt", []byte(content)))

	series, err := NewLocal(fs, "bulk", time.Time{}).FetchDaily(ctx, "AAPL.US")
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.Equal(t, 164.9, series[0].Close)
}
