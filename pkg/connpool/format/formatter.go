// Package format implements JSON serialisation of registry dump rows for
// dumpsink.
package format

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/vpbank/connpool/internal/registry"
)

// Formatter serialises dump rows into a byte slice. Declared as an
// interface so alternative formats (e.g. a Prometheus text exposition
// formatter) can be added later without touching dumpsink.
type Formatter interface {
	FormatRows(rows []registry.DumpRow) ([]byte, error)
}

// Config controls JSONFormatter behaviour.
type Config struct {
	// PrettyPrint emits indented, human-readable JSON when true.
	PrettyPrint bool

	// Indent is the indent string used when PrettyPrint=true. Defaults
	// to two spaces when empty and PrettyPrint=true.
	Indent string
}

// JSONFormatter implements Formatter using encoding/json. It is safe for
// concurrent use; all fields are immutable after construction.
type JSONFormatter struct {
	cfg    Config
	logger *slog.Logger
}

// New constructs a JSONFormatter. If logger is nil, a discarding logger is
// substituted.
func New(cfg Config, logger *slog.Logger) *JSONFormatter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.PrettyPrint && cfg.Indent == "" {
		cfg.Indent = "  "
	}
	return &JSONFormatter{cfg: cfg, logger: logger}
}

// record is the wire shape of one dump emission: the per-node rows
// captured by one dump. It carries no timestamp.
type record struct {
	Rows []registry.DumpRow `json:"rows"`
}

// FormatRows serialises rows to JSON.
func (f *JSONFormatter) FormatRows(rows []registry.DumpRow) ([]byte, error) {
	rec := record{Rows: rows}

	var (
		data []byte
		err  error
	)
	if f.cfg.PrettyPrint {
		data, err = json.MarshalIndent(rec, "", f.cfg.Indent)
	} else {
		data, err = json.Marshal(rec)
	}
	if err != nil {
		f.logger.Error("format: marshal failed", "error", err.Error())
		return nil, fmt.Errorf("format: marshal: %w", err)
	}

	f.logger.Debug("format: formatted dump", "rows", len(rows), "bytes", len(data))
	return data, nil
}
