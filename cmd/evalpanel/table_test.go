package main

import (
	"strings"
	"testing"
)

func TestRenderTableClipsAndFillsCells(t *testing.T) {
	out := renderTable(
		[]column{left("Key"), clipped("Name", 6), right("Score")},
		[][]string{
			{"modulo_1", "Consultor de vendas", "88"},
			{"modulo_2", "  "},
		},
	)
	lines := strings.Split(out, "\n")
	if len(lines) != 6 {
		t.Fatalf("rendered %d lines, want 6:\n%s", len(lines), out)
	}
	if !strings.Contains(lines[1], "KEY") || !strings.Contains(lines[1], "SCORE") {
		t.Fatalf("header = %q", lines[1])
	}
	if !strings.Contains(lines[3], "Consu…") || strings.Contains(lines[3], "vendas") {
		t.Fatalf("long name not clipped: %q", lines[3])
	}
	if fields := strings.Fields(strings.ReplaceAll(lines[4], "│", " ")); len(fields) != 3 || fields[1] != "-" || fields[2] != "-" {
		t.Fatalf("blank cells not dashed: %q", lines[4])
	}
}

func TestClip(t *testing.T) {
	tests := []struct {
		value string
		width int
		want  string
	}{
		{"curto", 10, "curto"},
		{"  aparado  ", 0, "aparado"},
		{"ação longa", 4, "açã…"},
		{"xy", 1, "…"},
	}
	for _, tt := range tests {
		if got := clip(tt.value, tt.width); got != tt.want {
			t.Fatalf("clip(%q, %d) = %q, want %q", tt.value, tt.width, got, tt.want)
		}
	}
}
