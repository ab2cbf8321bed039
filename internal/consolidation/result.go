package consolidation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"evalpanel/internal/aggregate"
)

// Level ranks a recommendation's priority or impact.
type Level string

const (
	LevelHigh   Level = "high"
	LevelMedium Level = "medium"
	LevelLow    Level = "low"
)

// ParseLevel normalizes English and Portuguese level labels.
func ParseLevel(value string) (Level, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "high", "alta", "alto":
		return LevelHigh, true
	case "medium", "media", "média", "medio", "médio":
		return LevelMedium, true
	case "low", "baixa", "baixo":
		return LevelLow, true
	default:
		return "", false
	}
}

func (l Level) rank() int {
	switch l {
	case LevelHigh:
		return 0
	case LevelMedium:
		return 1
	case LevelLow:
		return 2
	default:
		return 3
	}
}

// Recommendation is one prioritized improvement suggested by the coordinator.
type Recommendation struct {
	Title            string `json:"title"`
	Description      string `json:"description,omitempty"`
	Priority         Level  `json:"priority"`
	Impact           Level  `json:"impact,omitempty"`
	Category         string `json:"category,omitempty"`
	Diagnosis        string `json:"diagnostico,omitempty"`
	Cure             string `json:"cura,omitempty"`
	SuggestedScript  string `json:"script_sugerido,omitempty"`
	MissingTechnique string `json:"tecnica_faltante,omitempty"`
	ExpectedImpact   string `json:"expected_impact,omitempty"`
}

// Script is a suggested line for a specific moment of the meeting.
type Script struct {
	Moment string `json:"momento,omitempty"`
	Script string `json:"script,omitempty"`
}

// ClosingSuggestion is either free text or a structured diagnosis with
// scripts. Both shapes round-trip through JSON unchanged.
type ClosingSuggestion struct {
	Text      string
	Diagnosis string
	Cure      string
	Scripts   []Script
}

// Structured reports whether the suggestion uses the diagnosis/scripts shape.
func (c ClosingSuggestion) Structured() bool {
	return c.Diagnosis != "" || c.Cure != "" || len(c.Scripts) > 0
}

// Empty reports whether the suggestion carries no content.
func (c ClosingSuggestion) Empty() bool {
	return c.Text == "" && !c.Structured()
}

type structuredClosing struct {
	Diagnosis string   `json:"diagnostico_geral,omitempty"`
	Cure      string   `json:"cura_geral,omitempty"`
	Scripts   []Script `json:"scripts,omitempty"`
}

// MarshalJSON emits a string or an object depending on the shape.
func (c ClosingSuggestion) MarshalJSON() ([]byte, error) {
	if c.Structured() {
		return json.Marshal(structuredClosing{Diagnosis: c.Diagnosis, Cure: c.Cure, Scripts: c.Scripts})
	}
	return json.Marshal(c.Text)
}

// UnmarshalJSON accepts a string, an object, or null.
func (c *ClosingSuggestion) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*c = ClosingSuggestion{}
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		return nil
	case data[0] == '"':
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		c.Text = strings.TrimSpace(text)
		return nil
	case data[0] == '{':
		var structured structuredClosing
		if err := json.Unmarshal(data, &structured); err != nil {
			return err
		}
		c.Diagnosis = strings.TrimSpace(structured.Diagnosis)
		c.Cure = strings.TrimSpace(structured.Cure)
		c.Scripts = structured.Scripts
		return nil
	default:
		return fmt.Errorf("sugestao_fechamento: unsupported shape %s", data)
	}
}

// Metadata records how the coordinator response was produced.
type Metadata struct {
	ProcessingTime     float64 `json:"processing_time"`
	TokensUsed         int     `json:"tokens_used"`
	Model              string  `json:"model"`
	AgentsConsolidated int     `json:"agents_consolidated"`
}

// Result is the coordinator's consolidated opinion, or the fallback built
// from the mechanical aggregate when Fallback is set.
type Result struct {
	FinalScore        int                               `json:"final_score"`
	Classification    aggregate.Classification          `json:"classification"`
	AnalysisSummary   string                            `json:"analysis_summary,omitempty"`
	Summary           string                            `json:"resumo_estrategico"`
	ClosingSuggestion ClosingSuggestion                 `json:"sugestao_fechamento"`
	Modules           map[string]aggregate.ModuleResult `json:"modulos,omitempty"`
	Recommendations   []Recommendation                  `json:"recommendations"`
	Warnings          []string                          `json:"warnings,omitempty"`
	Metadata          *Metadata                         `json:"_coordinator_metadata,omitempty"`
	Fallback          bool                              `json:"_fallback,omitempty"`
}

// wireResult mirrors Result with the loosely typed fields models get wrong.
type wireResult struct {
	FinalScore        json.RawMessage                   `json:"final_score"`
	Classification    string                            `json:"classification"`
	AnalysisSummary   string                            `json:"analysis_summary"`
	Summary           string                            `json:"resumo_estrategico"`
	ClosingSuggestion ClosingSuggestion                 `json:"sugestao_fechamento"`
	Modules           map[string]aggregate.ModuleResult `json:"modulos"`
	Recommendations   []wireRecommendation              `json:"recommendations"`
	Warnings          []string                          `json:"warnings"`
	Metadata          *Metadata                         `json:"_coordinator_metadata"`
	Fallback          bool                              `json:"_fallback"`
}

type wireRecommendation struct {
	Recommendation
	Priority string `json:"priority"`
	Impact   string `json:"impact"`
}

func parseScore(raw json.RawMessage) (int, error) {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return 0, fmt.Errorf("missing final_score")
	}
	text = strings.TrimSpace(strings.Trim(text, `"`))
	value, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("invalid final_score %s", raw)
	}
	if value < 0 || value > 100 {
		return 0, fmt.Errorf("final_score %s out of range", raw)
	}
	return int(math.Round(value)), nil
}
