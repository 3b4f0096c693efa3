package missing

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func readFile(t *testing.T, path string) string {
	t.Helper()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return string(raw)
}

func TestCSVLog_Append(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output", "missing_symbols.csv")
	ctx := context.Background()

	l, err := NewCSVLog(path)
	if err != nil {
		t.Fatalf("NewCSVLog failed: %v", err)
	}
	if err := l.Record(ctx, Entry{Symbol: "XYZ.QQ", Key: ".QQ", Source: "stooq"}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	l, err = NewCSVLog(path)
	if err != nil {
		t.Fatalf("reopening failed: %v", err)
	}
	if err := l.Record(ctx, Entry{Symbol: "VOD:LN", Key: ":LN", Source: "eodhd", Candidates: []string{"VOD.LSE", "VOD.IL"}}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	want := "symbol,mapping_key,source,candidates\n" +
		"XYZ.QQ,.QQ,stooq,\n" +
		"VOD:LN,:LN,eodhd,VOD.LSE;VOD.IL\n"
	if got := readFile(t, path); got != want {
		t.Errorf("unexpected file content:\n%s", got)
	}
}

func TestCSVLog_EmptyFileGetsHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing_symbols.csv")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatal(err)
	}

	l, err := NewCSVLog(path)
	if err != nil {
		t.Fatalf("NewCSVLog failed: %v", err)
	}
	if err := l.Record(context.Background(), Entry{Symbol: "XYZ.QQ", Key: ".QQ", Source: "stooq"}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	want := "symbol,mapping_key,source,candidates\nXYZ.QQ,.QQ,stooq,\n"
	if got := readFile(t, path); got != want {
		t.Errorf("unexpected file content:\n%s", got)
	}
}

func TestMemoryLog(t *testing.T) {
	var m MemoryLog
	if err := m.Record(context.Background(), Entry{Symbol: "A"}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	got := m.Entries()
	if len(got) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(got))
	}
	got[0].Symbol = "changed"
	if m.Entries()[0].Symbol != "A" {
		t.Error("Entries should return a copy")
	}
}

func TestLogImplementations(t *testing.T) {
	var _ Log = (*CSVLog)(nil)
	var _ Log = (*MemoryLog)(nil)
}
