package aggregate

import "strings"

// Classification is the stored quality label derived from a 0-100 score.
type Classification string

const (
	Excelente Classification = "EXCELENTE"
	Bom       Classification = "BOM"
	Regular   Classification = "REGULAR"
	Fraco     Classification = "FRACO"
	Critico   Classification = "CRÍTICO"
)

var ladder = []struct {
	min   int
	label Classification
}{
	{85, Excelente},
	{70, Bom},
	{50, Regular},
	{30, Fraco},
}

// Classify maps a score onto the ladder using inclusive lower bounds.
func Classify(score int) Classification {
	for _, step := range ladder {
		if score >= step.min {
			return step.label
		}
	}
	return Critico
}

// ParseClassification accepts a label in any case, with or without the accent
// on CRÍTICO. Unknown labels report false.
func ParseClassification(value string) (Classification, bool) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case string(Excelente):
		return Excelente, true
	case string(Bom):
		return Bom, true
	case string(Regular):
		return Regular, true
	case string(Fraco):
		return Fraco, true
	case string(Critico), "CRITICO":
		return Critico, true
	default:
		return "", false
	}
}

// Stars renders a five-star label for a score, rounding to the nearest star.
func Stars(score int) string {
	score = clamp(score)
	filled := (score + 10) / 20
	return strings.Repeat("★", filled) + strings.Repeat("☆", 5-filled)
}

func clamp(score int) int {
	switch {
	case score < 0:
		return 0
	case score > 100:
		return 100
	default:
		return score
	}
}
