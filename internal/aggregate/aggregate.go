package aggregate

import "sort"

// Member is one non-coordinator panel seat fed into the aggregation.
type Member struct {
	Key    string
	Name   string
	Weight int
	Result *ModuleResult
}

// ModuleSummary is the per-module view of an aggregation.
type ModuleSummary struct {
	Key          string          `json:"key"`
	Name         string          `json:"name,omitempty"`
	Weight       int             `json:"weight"`
	Present      bool            `json:"present"`
	Score        int             `json:"score"`
	Stars        string          `json:"stars,omitempty"`
	Contribution float64         `json:"contribution"`
	Checklist    ChecklistCounts `json:"checklist"`
}

// Result is the mechanical aggregation of a panel.
type Result struct {
	FinalScore     int                      `json:"finalScore"`
	Classification Classification           `json:"classification"`
	PerModule      map[string]ModuleSummary `json:"perModule"`
	WeightSum      int                      `json:"weightSum"`
	WeightWarning  bool                     `json:"weightWarning"`
	Missing        []string                 `json:"missing,omitempty"`
}

// Complete reports whether every expected module produced a result.
func (r Result) Complete() bool {
	return len(r.Missing) == 0
}

// Aggregate computes the weighted score over members in integer arithmetic so
// round(Σ w×s / 100) is exact.
func Aggregate(members []Member) Result {
	result := Result{PerModule: make(map[string]ModuleSummary, len(members))}
	weighted := 0
	for _, member := range members {
		summary := ModuleSummary{
			Key:    member.Key,
			Name:   member.Name,
			Weight: member.Weight,
		}
		result.WeightSum += member.Weight
		if member.Result == nil {
			result.Missing = append(result.Missing, member.Key)
		} else {
			score := clamp(member.Result.Score)
			summary.Present = true
			summary.Score = score
			summary.Stars = member.Result.Stars
			if summary.Stars == "" {
				summary.Stars = Stars(score)
			}
			summary.Contribution = float64(member.Weight*score) / 100
			summary.Checklist = RollupChecklist(member.Result.Checklist)
			weighted += member.Weight * score
		}
		result.PerModule[member.Key] = summary
	}
	sort.Strings(result.Missing)

	result.FinalScore = clamp(roundHundredths(weighted))
	result.Classification = Classify(result.FinalScore)
	result.WeightWarning = result.WeightSum != 100
	return result
}

// roundHundredths divides by 100 rounding half away from zero.
func roundHundredths(total int) int {
	if total < 0 {
		return -((-total + 50) / 100)
	}
	return (total + 50) / 100
}
