package transcript

import (
	"regexp"
	"strings"

	"evalpanel/internal/agents"
)

// SenderKind identifies who wrote a message.
type SenderKind string

const (
	SenderCustomer SenderKind = "customer"
	SenderAgent    SenderKind = "agent"
	SenderBot      SenderKind = "bot"
)

// Sender is the classified author of a message. Name is set for human
// agents when it is known.
type Sender struct {
	Kind SenderKind
	Name string
}

// Label is the display name used in rendered transcripts.
func (s Sender) Label() string {
	switch s.Kind {
	case SenderCustomer:
		return "Cliente"
	case SenderAgent:
		if s.Name != "" {
			return s.Name
		}
		return "Atendente"
	default:
		return "Bot"
	}
}

// Both "*Name*:" and "*Name:*" prefixes occur in exported chats.
var (
	prefixOutside = regexp.MustCompile(`^\*([^*]+)\*:[ \t]*\r?\n?`)
	prefixInside  = regexp.MustCompile(`^\*([^*:]+):\*[ \t]*\r?\n?`)
)

// splitAgentPrefix returns the agent name from a leading bold prefix and the
// content with the prefix removed. ok is false when there is no prefix.
func splitAgentPrefix(content string) (name, rest string, ok bool) {
	for _, re := range []*regexp.Regexp{prefixOutside, prefixInside} {
		match := re.FindStringSubmatchIndex(content)
		if match == nil {
			continue
		}
		name = strings.TrimSpace(content[match[2]:match[3]])
		if name == "" {
			continue
		}
		return agents.CleanName(name), strings.TrimSpace(content[match[1]:]), true
	}
	return "", content, false
}

// ClassifySender applies the sender precedence: customer flags first, then a
// linked agent record, then a bold name prefix, otherwise a bot.
func ClassifySender(msg Message) Sender {
	if !msg.FromMe || strings.EqualFold(strings.TrimSpace(msg.SenderType), "customer") {
		return Sender{Kind: SenderCustomer}
	}
	if strings.TrimSpace(msg.AgentID) != "" {
		return Sender{Kind: SenderAgent, Name: agents.CleanName(msg.AgentName)}
	}
	if name, _, ok := splitAgentPrefix(msg.Content); ok {
		return Sender{Kind: SenderAgent, Name: name}
	}
	return Sender{Kind: SenderBot}
}
