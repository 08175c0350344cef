package logger

import (
	"path/filepath"
	"testing"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		level   string
		wantErr bool
	}{
		{"", false},
		{"debug", false},
		{"INFO", false},
		{"warn", false},
		{"error", false},
		{"verbose", true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			_, err := New(Config{Level: tt.level})
			if (err != nil) != tt.wantErr {
				t.Errorf("New(level=%q) error = %v, wantErr %v", tt.level, err, tt.wantErr)
			}
		})
	}
}

func TestNewUnknownFormat(t *testing.T) {
	if _, err := New(Config{Format: "xml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flight.log")
	log, err := New(Config{Level: "debug", Format: "json", File: path, MaxSizeMB: 1})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	log.Named("test").Info("hello", String("k", "v"), Int("n", 1))
	_ = log.Sync()
}
