package stooq

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/newthinker/pitval/internal/core"
	"github.com/newthinker/pitval/internal/pricesource"
	"github.com/newthinker/pitval/internal/storage/archive"
)

// bulk files look like
//
//	<TICKER>,<PER>,<DATE>,<TIME>,<OPEN>,<HIGH>,<LOW>,<CLOSE>,<VOL>,<OPENINT>
//	AAPL.US,D,19840907,000000,0.1,0.1,0.09,0.1,1.0e+08,0
var bulkColumns = pricesource.Columns{Date: "DATE", Close: "CLOSE", DateLayout: "20060102"}

// Local reads the Stooq bulk archive (one <symbol>.txt file per ticker,
// arbitrarily nested) from archive storage.
type Local struct {
	storage archive.Storage
	prefix  string
	start   time.Time

	once  sync.Once
	index map[string]string
	err   error
}

// NewLocal creates a reader over the files below prefix
func NewLocal(storage archive.Storage, prefix string, start time.Time) *Local {
	return &Local{storage: storage, prefix: strings.Trim(prefix, "/"), start: start}
}

func (l *Local) Name() string {
	return "stooq_local"
}

func (l *Local) buildIndex(ctx context.Context) {
	keys, err := l.storage.List(ctx, l.prefix)
	if err != nil {
		l.err = fmt.Errorf("indexing stooq files: %w", err)
		return
	}
	l.index = make(map[string]string, len(keys))
	for _, key := range keys {
		base := path.Base(key)
		if !strings.HasSuffix(strings.ToLower(base), ".txt") {
			continue
		}
		name := strings.ToLower(strings.TrimSuffix(base, path.Ext(base)))
		// first key in lexical order wins
		if _, ok := l.index[name]; !ok {
			l.index[name] = key
		}
	}
}

// locate finds the file for external: <prefix>/<symbol>.txt when the
// archive is flat, otherwise through the index of nested files.
func (l *Local) locate(ctx context.Context, external string) (string, bool, error) {
	name := strings.ToLower(external)
	direct := path.Join(l.prefix, name+".txt")
	ok, err := l.storage.Exists(ctx, direct)
	if err != nil {
		return "", false, err
	}
	if ok {
		return direct, true, nil
	}

	l.once.Do(func() { l.buildIndex(ctx) })
	if l.err != nil {
		return "", false, l.err
	}
	key, ok := l.index[name]
	return key, ok, nil
}

// FetchDaily reads the file for external. Symbols without a file yield
// an empty series.
func (l *Local) FetchDaily(ctx context.Context, external string) (core.PriceSeries, error) {
	key, ok, err := l.locate(ctx, external)
	if err != nil {
		return nil, err
	}
	if !ok {
		return core.PriceSeries{}, nil
	}
	data, err := l.storage.Read(ctx, key)
	if err != nil {
		return nil, err
	}
	series, err := pricesource.ParseCSV(bytes.NewReader(data), bulkColumns)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", key, err)
	}
	return pricesource.Since(series, l.start), nil
}
