package consolidation

import (
	"fmt"
	"sort"
	"strings"

	"evalpanel/internal/aggregate"
	"evalpanel/internal/reasoning"
)

// OutcomeKind tags how a coordinator response was interpreted.
type OutcomeKind string

const (
	OutcomeParsed    OutcomeKind = "parsed"
	OutcomeMalformed OutcomeKind = "malformed"
	OutcomeAbsent    OutcomeKind = "absent"
)

// Outcome is the total interpretation of a coordinator response. Parsed is
// set only for OutcomeParsed; Raw always holds the original text.
type Outcome struct {
	Kind   OutcomeKind
	Raw    string
	Parsed *Result
	Reason string
}

// Usable reports whether the coordinator's opinion can be used.
func (o Outcome) Usable() bool {
	return o.Kind == OutcomeParsed && o.Parsed != nil
}

// Absent builds the outcome for a coordinator that produced nothing, either
// because it failed or was never reached.
func Absent(reason string) Outcome {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "coordinator returned no response"
	}
	return Outcome{Kind: OutcomeAbsent, Reason: reason}
}

// Parse interprets a raw coordinator response. It never fails: payloads that
// cannot be decoded or lack a valid final_score come back as OutcomeMalformed.
func Parse(raw string) Outcome {
	if strings.TrimSpace(raw) == "" {
		return Outcome{Kind: OutcomeAbsent, Raw: raw, Reason: "coordinator returned an empty response"}
	}
	var wire wireResult
	if err := reasoning.DecodeJSON(raw, &wire); err != nil {
		return malformed(raw, fmt.Sprintf("decode coordinator response: %v", err))
	}
	score, err := parseScore(wire.FinalScore)
	if err != nil {
		return malformed(raw, err.Error())
	}

	result := &Result{
		FinalScore:        score,
		Classification:    aggregate.Classify(score),
		AnalysisSummary:   strings.TrimSpace(wire.AnalysisSummary),
		Summary:           strings.TrimSpace(wire.Summary),
		ClosingSuggestion: wire.ClosingSuggestion,
		Modules:           wire.Modules,
		Metadata:          wire.Metadata,
	}
	for _, warning := range wire.Warnings {
		if warning = strings.TrimSpace(warning); warning != "" {
			result.Warnings = append(result.Warnings, warning)
		}
	}
	if label := strings.TrimSpace(wire.Classification); label != "" {
		parsed, ok := aggregate.ParseClassification(label)
		if !ok || parsed != result.Classification {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("coordinator classification %q replaced by %s for score %d", label, result.Classification, score))
		}
	}
	result.Recommendations = normalizeRecommendations(wire.Recommendations)
	return Outcome{Kind: OutcomeParsed, Raw: raw, Parsed: result}
}

func malformed(raw, reason string) Outcome {
	return Outcome{Kind: OutcomeMalformed, Raw: raw, Reason: reason}
}

// normalizeRecommendations drops untitled entries, defaults unknown
// priorities to medium and orders by priority then impact.
func normalizeRecommendations(items []wireRecommendation) []Recommendation {
	out := make([]Recommendation, 0, len(items))
	for _, item := range items {
		rec := item.Recommendation
		rec.Title = strings.TrimSpace(rec.Title)
		if rec.Title == "" {
			continue
		}
		rec.Priority = LevelMedium
		if level, ok := ParseLevel(item.Priority); ok {
			rec.Priority = level
		}
		rec.Impact = ""
		if level, ok := ParseLevel(item.Impact); ok {
			rec.Impact = level
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority.rank() < out[j].Priority.rank()
		}
		return out[i].Impact.rank() < out[j].Impact.rank()
	})
	return out
}
