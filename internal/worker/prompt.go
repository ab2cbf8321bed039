package worker

import (
	"fmt"
	"strings"

	"evalpanel/internal/agents"
	"evalpanel/internal/consolidation"
	"evalpanel/internal/jobs"
	"evalpanel/internal/teams"
)

const moduleOutputContract = `Responda somente com JSON:
{"nota": 0-100, "estrelas": "★★★☆☆", "comentario": "...", "pontos_fortes": ["..."], "pontos_melhoria": ["..."],
 "checklist": [{"item_name": "...", "transcript_excerpt": "...", "classification": "done|warning|not_done", "suggestion": "..."}]}`

func moduleSystemPrompt(agent *agents.Agent, member teams.Member) string {
	rules := strings.TrimSpace(member.BusinessRulesOverride)
	if rules == "" {
		rules = strings.TrimSpace(agent.BusinessRules)
	}
	schema := strings.TrimSpace(agent.OutputSchema)
	if schema == "" {
		schema = moduleOutputContract
	}
	return joinSections(
		strings.TrimSpace(agent.SystemPrompt),
		section("REGRAS DE NEGÓCIO", rules),
		section("FORMATO DE SAÍDA", schema),
	)
}

func coordinatorSystemPrompt(agent *agents.Agent) string {
	return joinSections(
		strings.TrimSpace(agent.SystemPrompt),
		section("REGRAS DE NEGÓCIO", strings.TrimSpace(agent.BusinessRules)),
		section("FORMATO DE SAÍDA", strings.TrimSpace(agent.OutputSchema)),
	)
}

func moduleUserPrompt(job *jobs.Job, team *teams.Team) string {
	var b strings.Builder
	b.WriteString("## DADOS DA REUNIÃO\n")
	fmt.Fprintf(&b, "Título: %s\n", job.Title)
	fmt.Fprintf(&b, "Equipe: %s\n", team.Name)
	fmt.Fprintf(&b, "Tipo de evento: %s\n", job.MeetingType)
	if len(job.ClientNames) > 0 {
		fmt.Fprintf(&b, "Clientes: %s\n", strings.Join(job.ClientNames, ", "))
	}
	if job.EventDate != "" {
		fmt.Fprintf(&b, "Data do evento: %s\n", job.EventDate)
	}
	if job.GuestCount != nil {
		fmt.Fprintf(&b, "Convidados: %d\n", *job.GuestCount)
	}
	b.WriteString("\n## TRANSCRIÇÃO\n")
	b.WriteString(job.Transcript)
	return b.String()
}

func meetingOf(job *jobs.Job, team *teams.Team) consolidation.Meeting {
	return consolidation.Meeting{
		Title:          job.Title,
		TeamName:       team.Name,
		MeetingType:    job.MeetingType,
		ClientNames:    job.ClientNames,
		EventDate:      job.EventDate,
		MeetingDate:    job.MeetingDate,
		MeetingTime:    job.MeetingTime,
		BudgetNumber:   job.BudgetNumber,
		ContractStatus: string(job.ContractStatus),
		ContractValue:  job.ContractValue,
		GuestCount:     job.GuestCount,
	}
}

func section(title, body string) string {
	if body == "" {
		return ""
	}
	return "## " + title + "\n" + body
}

func joinSections(parts ...string) string {
	kept := parts[:0]
	for _, part := range parts {
		if part != "" {
			kept = append(kept, part)
		}
	}
	return strings.Join(kept, "\n\n")
}
