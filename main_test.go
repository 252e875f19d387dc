package main

import (
	"bytes"
	"strings"
	"testing"

	"landscout/models"
)

func TestMaskConnectionString(t *testing.T) {
	tests := []struct{ in, want string }{
		{"postgres://user:secret@db:5432/land", "postgres://user:****@db:5432/land"},
		{"redis://localhost:6379/0", "redis://localhost:6379/0"},
		{"landscout.db", "landscout.db"},
	}
	for _, tt := range tests {
		if got := maskConnectionString(tt.in); got != tt.want {
			t.Errorf("maskConnectionString(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPrintListings(t *testing.T) {
	var buf bytes.Buffer
	printListings(&buf, []models.Listing{{ID: "2412345678", BuildingName: "잠실엘스"}})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %q", lines)
	}
	if !strings.HasPrefix(lines[0], "매물ID") || !strings.HasPrefix(lines[1], "2412345678") {
		t.Fatalf("table = %q", buf.String())
	}
}
