package consolidation

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"evalpanel/internal/aggregate"
)

// Meeting is the job metadata the coordinator sees.
type Meeting struct {
	Title          string   `json:"title"`
	TeamName       string   `json:"team"`
	MeetingType    string   `json:"meetingType"`
	ClientNames    []string `json:"clientNames,omitempty"`
	EventDate      string   `json:"eventDate,omitempty"`
	MeetingDate    string   `json:"meetingDate,omitempty"`
	MeetingTime    string   `json:"meetingTime,omitempty"`
	BudgetNumber   string   `json:"budgetNumber,omitempty"`
	ContractStatus string   `json:"contractStatus,omitempty"`
	ContractValue  *float64 `json:"contractValue,omitempty"`
	GuestCount     *int     `json:"guestCount,omitempty"`
}

// Input is everything handed to the coordinator.
type Input struct {
	Meeting     Meeting
	Transcript  string
	Aggregation aggregate.Result
	Modules     map[string]aggregate.ModuleResult
}

type promptModule struct {
	Key    string                 `json:"key"`
	Name   string                 `json:"name,omitempty"`
	Weight int                    `json:"peso"`
	Result aggregate.ModuleResult `json:"resultado"`
}

// BuildPrompt renders the user prompt for the coordinator. Modules appear in
// key order so identical inputs produce identical prompts.
func BuildPrompt(in Input) (string, error) {
	if !in.Aggregation.Complete() {
		return "", fmt.Errorf("build coordinator prompt: missing module results: %s", strings.Join(in.Aggregation.Missing, ", "))
	}
	if strings.TrimSpace(in.Transcript) == "" {
		return "", fmt.Errorf("build coordinator prompt: transcript required")
	}

	keys := make([]string, 0, len(in.Modules))
	for key := range in.Modules {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	modules := make([]promptModule, 0, len(keys))
	for _, key := range keys {
		summary := in.Aggregation.PerModule[key]
		modules = append(modules, promptModule{
			Key:    key,
			Name:   summary.Name,
			Weight: summary.Weight,
			Result: in.Modules[key],
		})
	}

	meeting, err := json.MarshalIndent(in.Meeting, "", "  ")
	if err != nil {
		return "", fmt.Errorf("build coordinator prompt: encode meeting: %w", err)
	}
	encoded, err := json.MarshalIndent(modules, "", "  ")
	if err != nil {
		return "", fmt.Errorf("build coordinator prompt: encode modules: %w", err)
	}

	var b strings.Builder
	b.WriteString("## DADOS DA REUNIÃO\n")
	b.Write(meeting)
	b.WriteString("\n\n## RESULTADOS DOS MÓDULOS\n")
	b.Write(encoded)
	fmt.Fprintf(&b, "\n\n## NOTA AGREGADA\nnota ponderada: %d (%s)\n", in.Aggregation.FinalScore, in.Aggregation.Classification)
	if in.Aggregation.WeightWarning {
		fmt.Fprintf(&b, "atenção: pesos somam %d\n", in.Aggregation.WeightSum)
	}
	b.WriteString("\n## TRANSCRIÇÃO\n")
	b.WriteString(strings.TrimSpace(in.Transcript))
	b.WriteString("\n\nResponda somente com o JSON no formato definido.")
	return b.String(), nil
}
