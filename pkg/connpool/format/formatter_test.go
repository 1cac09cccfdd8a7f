package format

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/vpbank/connpool/internal/registry"
)

func TestFormatRowsCompact(t *testing.T) {
	f := New(Config{}, nil)
	rows := []registry.DumpRow{{Host: "10.0.0.1:80", State: "READY", Lookups: 3}}

	data, err := f.FormatRows(rows)
	if err != nil {
		t.Fatalf("FormatRows: %v", err)
	}

	var decoded record
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("round-trip unmarshal: %v", err)
	}
	if len(decoded.Rows) != 1 || decoded.Rows[0].Host != "10.0.0.1:80" {
		t.Fatalf("decoded = %+v", decoded)
	}
}

func TestFormatRowsPrettyPrintIndents(t *testing.T) {
	f := New(Config{PrettyPrint: true}, nil)
	data, err := f.FormatRows(nil)
	if err != nil {
		t.Fatalf("FormatRows: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty output even for zero rows")
	}
	if !strings.Contains(string(data), "\n  \"rows\"") {
		t.Fatalf("expected two-space indented output, got %q", data)
	}
}
