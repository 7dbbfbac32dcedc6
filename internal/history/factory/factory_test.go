package factory

import (
	"strings"
	"testing"
)

func TestNewSinkFromDSNEmpty(t *testing.T) {
	if _, err := NewSinkFromDSN(""); err == nil {
		t.Fatalf("empty DSN accepted")
	}
	if _, err := NewSinkFromDSN("   "); err == nil {
		t.Fatalf("blank DSN accepted")
	}
}

func TestNewSinkFromDSNUnsupported(t *testing.T) {
	_, err := NewSinkFromDSN("kafka://broker:9092/topic")
	if err == nil || !strings.Contains(err.Error(), "unsupported DSN") {
		t.Fatalf("want unsupported DSN error, got %v", err)
	}
}

func TestNewSinkFromDSNSQLite(t *testing.T) {
	for _, dsn := range []string{":memory:", "sqlite://:memory:"} {
		s, err := NewSinkFromDSN(dsn)
		if err != nil {
			t.Fatalf("NewSinkFromDSN(%q): %v", dsn, err)
		}
		if err := s.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}
}
