package reasoning

import (
	"strings"
	"testing"
)

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    int
		wantErr bool
	}{
		{"plain", `{"nota": 70}`, 70, false},
		{"fenced", "```json\n{\"nota\": 71}\n```", 71, false},
		{"fenced without tag", "```\n{\"nota\": 72}\n```", 72, false},
		{"prose before fence", "Aqui está:\n```json\n{\"nota\": 73}\n```\nObrigado", 73, false},
		{"prose around object", "Resultado: {\"nota\": 74} fim", 74, false},
		{"empty", "  ", 0, true},
		{"garbage", "sem json", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var payload struct {
				Nota int `json:"nota"`
			}
			err := DecodeJSON(tt.content, &payload)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeJSON returned error: %v", err)
			}
			if payload.Nota != tt.want {
				t.Fatalf("nota = %d, want %d", payload.Nota, tt.want)
			}
		})
	}
}

func TestSnippetTruncates(t *testing.T) {
	long := strings.Repeat("palavra ", 60)
	got := Snippet(long)
	if !strings.HasSuffix(got, "...") || len([]rune(got)) != 163 {
		t.Fatalf("unexpected snippet %q", got)
	}
	if Snippet("\n\t") != "<empty>" {
		t.Fatal("expected <empty> placeholder")
	}
}
