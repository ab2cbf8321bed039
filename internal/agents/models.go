package agents

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// CoordinatorKey is the key of the seeded coordinator template.
const CoordinatorKey = "coordenador"

// Agent is a reusable scoring-agent template.
type Agent struct {
	ID            string
	Key           string
	Name          string
	Icon          string
	Description   string
	SystemPrompt  string
	BusinessRules string
	OutputSchema  string
	IsCoordinator bool
	IsTemplate    bool
	Active        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Filter narrows List results.
type Filter struct {
	ActiveOnly         bool
	IncludeCoordinator bool
}

var (
	invalidKeyChars = regexp.MustCompile(`[^a-z0-9_]+`)
	repeatedScores  = regexp.MustCompile(`_+`)
)

// NormalizeKey folds accents, lowercases, and collapses everything outside
// [a-z0-9_] into single underscores, so "Pós Vendas" becomes "pos_vendas".
func NormalizeKey(raw string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), raw)
	if err != nil {
		folded = raw
	}
	key := strings.ToLower(strings.TrimSpace(folded))
	key = invalidKeyChars.ReplaceAllString(key, "_")
	key = repeatedScores.ReplaceAllString(key, "_")
	return strings.Trim(key, "_")
}

// CleanName strips role prefixes and parenthesised annotations from a human
// agent display name: "Atendente - Gabriel (Eventos)" becomes "Gabriel".
func CleanName(name string) string {
	cleaned := norm.NFC.String(strings.TrimSpace(name))
	if idx := strings.LastIndex(cleaned, " - "); idx >= 0 {
		cleaned = cleaned[idx+3:]
	}
	if idx := strings.Index(cleaned, "("); idx >= 0 {
		cleaned = cleaned[:idx]
	}
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return strings.TrimSpace(name)
	}
	return cleaned
}
