package notifications_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"evalpanel/internal/config"
	"evalpanel/internal/notifications"
)

type captured struct {
	Text   string           `json:"text"`
	Blocks []map[string]any `json:"blocks"`
}

func newWebhook(t *testing.T, status int) (*httptest.Server, *[]captured) {
	t.Helper()
	var received []captured
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %q", ct)
		}
		var msg captured
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			t.Errorf("decode webhook body: %v", err)
		}
		received = append(received, msg)
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, &received
}

func slackConfig(url string) *config.Config {
	cfg := config.Default()
	cfg.Notifications.SlackWebhookURL = url
	cfg.Notifications.NotifyFailures = true
	cfg.Notifications.NotifyStuck = true
	cfg.Notifications.NotifyCompleted = false
	return &cfg
}

func TestNewServiceReturnsNoopWithoutWebhook(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.SlackWebhookURL = ""
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventJobFailed, notifications.Payload{"jobId": "j1"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestSlackServiceFormatsEvents(t *testing.T) {
	tests := []struct {
		name        string
		event       notifications.Event
		payload     notifications.Payload
		expectTitle string
		expectBody  string
	}{
		{
			name:  "failed",
			event: notifications.EventJobFailed,
			payload: notifications.Payload{
				"jobId":      "j1",
				"title":      "Reunião Silva",
				"error":      "provider timeout",
				"retryLabel": "Tentativas: 3/3",
			},
			expectTitle: "❌ Avaliação falhou",
			expectBody:  "*Reunião Silva (j1)* falhou: provider timeout\nTentativas: 3/3",
		},
		{
			name:  "stuck",
			event: notifications.EventJobStuck,
			payload: notifications.Payload{
				"jobId": "j2",
				"title": "Reunião Souza",
				"since": "10:42",
			},
			expectTitle: "⏳ Avaliação travada",
			expectBody:  "*Reunião Souza (j2)* está em processamento sem atividade desde 10:42",
		},
		{
			name:        "test",
			event:       notifications.EventTest,
			expectTitle: "🧪 evalpanel",
			expectBody:  "Teste de notificação",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, received := newWebhook(t, http.StatusOK)
			svc := notifications.NewService(slackConfig(srv.URL))
			if err := svc.Publish(context.Background(), tt.event, tt.payload); err != nil {
				t.Fatalf("Publish: %v", err)
			}
			if len(*received) != 1 {
				t.Fatalf("expected one webhook call, got %d", len(*received))
			}
			msg := (*received)[0]
			if !strings.HasPrefix(msg.Text, tt.expectTitle+"\n") {
				t.Fatalf("text = %q, want prefix %q", msg.Text, tt.expectTitle)
			}
			if !strings.Contains(msg.Text, tt.expectBody) {
				t.Fatalf("text = %q, want body %q", msg.Text, tt.expectBody)
			}
			if len(msg.Blocks) != 2 || msg.Blocks[0]["type"] != "header" || msg.Blocks[1]["type"] != "section" {
				t.Fatalf("unexpected blocks %+v", msg.Blocks)
			}
		})
	}
}

func TestSlackServiceHonorsToggles(t *testing.T) {
	srv, received := newWebhook(t, http.StatusOK)
	svc := notifications.NewService(slackConfig(srv.URL))
	if err := svc.Publish(context.Background(), notifications.EventJobCompleted, notifications.Payload{"jobId": "j3"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(*received) != 0 {
		t.Fatalf("completed notifications are disabled, got %d calls", len(*received))
	}
}

func TestSlackServiceReportsHTTPErrors(t *testing.T) {
	srv, _ := newWebhook(t, http.StatusInternalServerError)
	svc := notifications.NewService(slackConfig(srv.URL))
	if err := svc.Publish(context.Background(), notifications.EventTest, nil); err == nil {
		t.Fatal("expected error for webhook failure")
	}
}
