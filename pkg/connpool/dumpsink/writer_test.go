package dumpsink

import (
	"bytes"
	"testing"
)

func TestWriterSinkAppendsNewline(t *testing.T) {
	var buf bytes.Buffer
	s := New(Config{Writer: &buf}, nil)

	if err := s.Send([]byte(`{"a":1}`)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got := buf.String(); got != "{\"a\":1}\n" {
		t.Fatalf("buf = %q", got)
	}
}

func TestWriterSinkDefaultsToStdoutWithoutPanicking(t *testing.T) {
	s := New(Config{}, nil)
	if s == nil {
		t.Fatal("New returned nil")
	}
}

func TestWriterSinkCloseIsNoop(t *testing.T) {
	var buf bytes.Buffer
	s := New(Config{Writer: &buf}, nil)
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
