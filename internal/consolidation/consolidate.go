package consolidation

import (
	"fmt"
	"sort"
	"strings"

	"evalpanel/internal/aggregate"
	"evalpanel/internal/services"
)

// Source names where a report's final score came from.
type Source string

const (
	SourceCoordinator Source = "coordinator"
	SourceAggregate   Source = "aggregate"
)

// Report is the consolidated outcome of an evaluation. Mechanical always
// holds the raw aggregate; Result holds either the coordinator's opinion or
// the fallback built from the aggregate.
type Report struct {
	FinalScore     int                      `json:"finalScore"`
	Classification aggregate.Classification `json:"classification"`
	Source         Source                   `json:"source"`
	Fallback       bool                     `json:"fallback"`
	FallbackReason string                   `json:"fallbackReason,omitempty"`
	Mechanical     aggregate.Result         `json:"mechanical"`
	Result         Result                   `json:"result"`
	Raw            string                   `json:"raw,omitempty"`
}

// Consolidate combines the mechanical aggregation with the coordinator
// outcome. The aggregation must be complete; the coordinator never runs on a
// partial panel.
func Consolidate(mechanical aggregate.Result, outcome Outcome) (Report, error) {
	if !mechanical.Complete() {
		return Report{}, services.Validation(
			"consolidation",
			"consolidate",
			fmt.Sprintf("missing module results: %s", strings.Join(mechanical.Missing, ", ")),
		)
	}

	report := Report{Mechanical: mechanical}
	if outcome.Usable() {
		result := *outcome.Parsed
		result.Fallback = false
		if mechanical.WeightWarning {
			result.Warnings = append(result.Warnings, weightWarning(mechanical))
		}
		report.FinalScore = result.FinalScore
		report.Classification = result.Classification
		report.Source = SourceCoordinator
		report.Result = result
		return report, nil
	}

	reason := strings.TrimSpace(outcome.Reason)
	if reason == "" {
		reason = "coordinator response unusable"
	}
	report.FinalScore = mechanical.FinalScore
	report.Classification = mechanical.Classification
	report.Source = SourceAggregate
	report.Fallback = true
	report.FallbackReason = reason
	report.Raw = outcome.Raw
	report.Result = Fallback(mechanical, reason)
	return report, nil
}

// Fallback builds a coordinator-shaped result straight from the aggregate.
func Fallback(mechanical aggregate.Result, reason string) Result {
	result := Result{
		FinalScore:      mechanical.FinalScore,
		Classification:  mechanical.Classification,
		Summary:         fallbackSummary(mechanical),
		Recommendations: []Recommendation{},
		Warnings:        []string{"consolidação automática: " + reason},
		Fallback:        true,
	}
	if mechanical.WeightWarning {
		result.Warnings = append(result.Warnings, weightWarning(mechanical))
	}
	return result
}

func fallbackSummary(mechanical aggregate.Result) string {
	keys := make([]string, 0, len(mechanical.PerModule))
	for key := range mechanical.PerModule {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		module := mechanical.PerModule[key]
		label := module.Name
		if label == "" {
			label = key
		}
		parts = append(parts, fmt.Sprintf("%s %d (peso %d)", label, module.Score, module.Weight))
	}
	return fmt.Sprintf("Nota agregada %d (%s). %s.", mechanical.FinalScore, mechanical.Classification, strings.Join(parts, "; "))
}

func weightWarning(mechanical aggregate.Result) string {
	return fmt.Sprintf("module weights sum to %d, not 100", mechanical.WeightSum)
}
