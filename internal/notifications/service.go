package notifications

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"evalpanel/internal/config"
)

// Event names a notification trigger.
type Event string

const (
	EventJobCompleted Event = "job_completed"
	EventJobFailed    Event = "job_failed"
	EventJobStuck     Event = "job_stuck"
	EventTest         Event = "test"
)

// Payload carries event fields such as jobId, title, score and error.
type Payload map[string]any

// Service defines the notification surface exposed to the worker and supervisor.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a Slack-backed notifier when a webhook is configured.
// Without one, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	webhook := strings.TrimSpace(cfg.Notifications.SlackWebhookURL)
	if webhook == "" {
		return noopService{}
	}
	timeout := time.Duration(cfg.Notifications.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &slackService{
		webhook: webhook,
		client:  &http.Client{Timeout: timeout},
		enabled: map[Event]bool{
			EventJobCompleted: cfg.Notifications.NotifyCompleted,
			EventJobFailed:    cfg.Notifications.NotifyFailures,
			EventJobStuck:     cfg.Notifications.NotifyStuck,
			EventTest:         true,
		},
	}
}

type message struct {
	title string
	body  string
	emoji string
}

type slackService struct {
	webhook string
	client  *http.Client
	enabled map[Event]bool
}

func (s *slackService) Publish(ctx context.Context, event Event, payload Payload) error {
	if s == nil || !s.enabled[event] {
		return nil
	}
	msg, ok := format(event, payload)
	if !ok {
		return nil
	}
	header := fmt.Sprintf("%s %s", msg.emoji, msg.title)
	webhookMsg := &slack.WebhookMessage{
		Text: header + "\n" + msg.body,
		Blocks: &slack.Blocks{BlockSet: []slack.Block{
			slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, header, true, false)),
			slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, msg.body, false, false), nil, nil),
		}},
	}
	if err := slack.PostWebhookCustomHTTPContext(ctx, s.webhook, s.client, webhookMsg); err != nil {
		return fmt.Errorf("post slack webhook: %w", err)
	}
	return nil
}

func format(event Event, payload Payload) (message, bool) {
	title := text(payload, "title")
	jobID := text(payload, "jobId")
	label := title
	if jobID != "" {
		label = fmt.Sprintf("%s (%s)", title, jobID)
	}
	switch event {
	case EventJobCompleted:
		body := fmt.Sprintf("*%s* avaliada", label)
		if score := text(payload, "score"); score != "" {
			body = fmt.Sprintf("%s: %s pontos", body, score)
			if classification := text(payload, "classification"); classification != "" {
				body = fmt.Sprintf("%s, %s", body, classification)
			}
		}
		if fallback, _ := payload["fallback"].(bool); fallback {
			body += "\n_Consolidação automática: o coordenador não respondeu._"
		}
		return message{title: "Avaliação concluída", body: body, emoji: "✅"}, true
	case EventJobFailed:
		body := fmt.Sprintf("*%s* falhou", label)
		if reason := text(payload, "error"); reason != "" {
			body = fmt.Sprintf("%s: %s", body, reason)
		}
		if attempts := text(payload, "retryLabel"); attempts != "" {
			body = fmt.Sprintf("%s\n%s", body, attempts)
		}
		return message{title: "Avaliação falhou", body: body, emoji: "❌"}, true
	case EventJobStuck:
		body := fmt.Sprintf("*%s* está em processamento sem atividade", label)
		if since := text(payload, "since"); since != "" {
			body = fmt.Sprintf("%s desde %s", body, since)
		}
		body += "\nCancele manualmente se o worker não retomar."
		return message{title: "Avaliação travada", body: body, emoji: "⏳"}, true
	case EventTest:
		return message{title: "evalpanel", body: "Teste de notificação", emoji: "🧪"}, true
	default:
		return message{}, false
	}
}

func text(payload Payload, key string) string {
	if payload == nil {
		return ""
	}
	value, ok := payload[key]
	if !ok || value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
