package aggregate

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ChecklistStatus classifies a single checklist item.
type ChecklistStatus string

const (
	ChecklistDone    ChecklistStatus = "done"
	ChecklistWarning ChecklistStatus = "warning"
	ChecklistNotDone ChecklistStatus = "not_done"
)

// ChecklistItem is one observable step an agent checked in the transcript.
type ChecklistItem struct {
	ItemName          string          `json:"item_name,omitempty"`
	TranscriptExcerpt string          `json:"transcript_excerpt,omitempty"`
	Objective         string          `json:"objective,omitempty"`
	Classification    ChecklistStatus `json:"classification,omitempty"`
	Suggestion        string          `json:"suggestion,omitempty"`
	Justification     string          `json:"justification,omitempty"`
	CorrectScript     string          `json:"correct_script,omitempty"`
}

// ModuleResult is the structured judgment one panel agent returns.
type ModuleResult struct {
	Score        int             `json:"nota"`
	Stars        string          `json:"estrelas"`
	Comment      string          `json:"comentario"`
	Strengths    []string        `json:"pontos_fortes"`
	Improvements []string        `json:"pontos_melhoria"`
	Checklist    []ChecklistItem `json:"checklist,omitempty"`
}

// UnmarshalJSON tolerates the shapes reasoning models actually produce:
// scores as numbers or numeric strings and checklists under "items".
func (m *ModuleResult) UnmarshalJSON(data []byte) error {
	var raw struct {
		Score        json.RawMessage `json:"nota"`
		Stars        string          `json:"estrelas"`
		Comment      string          `json:"comentario"`
		Strengths    []string        `json:"pontos_fortes"`
		Improvements []string        `json:"pontos_melhoria"`
		Checklist    []ChecklistItem `json:"checklist"`
		Items        []ChecklistItem `json:"items"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	score, err := parseScore(raw.Score)
	if err != nil {
		return err
	}
	*m = ModuleResult{
		Score:        clamp(score),
		Stars:        strings.TrimSpace(raw.Stars),
		Comment:      strings.TrimSpace(raw.Comment),
		Strengths:    raw.Strengths,
		Improvements: raw.Improvements,
		Checklist:    raw.Checklist,
	}
	if len(m.Checklist) == 0 {
		m.Checklist = raw.Items
	}
	if m.Stars == "" {
		m.Stars = Stars(m.Score)
	}
	return nil
}

func parseScore(raw json.RawMessage) (int, error) {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return 0, fmt.Errorf("module result: missing nota")
	}
	text = strings.Trim(text, `"`)
	value, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return 0, fmt.Errorf("module result: invalid nota %s", raw)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("module result: non-finite nota %s", raw)
	}
	return int(math.Round(value)), nil
}

// ChecklistCounts is the display rollup of a module's checklist.
type ChecklistCounts struct {
	Done    int `json:"done"`
	Warning int `json:"warning"`
	NotDone int `json:"not_done"`
	Total   int `json:"total"`
}

// RollupChecklist counts items by classification. Unclassified items only
// count toward Total.
func RollupChecklist(items []ChecklistItem) ChecklistCounts {
	counts := ChecklistCounts{Total: len(items)}
	for _, item := range items {
		switch ChecklistStatus(strings.ToLower(strings.TrimSpace(string(item.Classification)))) {
		case ChecklistDone:
			counts.Done++
		case ChecklistWarning:
			counts.Warning++
		case ChecklistNotDone:
			counts.NotDone++
		}
	}
	return counts
}
