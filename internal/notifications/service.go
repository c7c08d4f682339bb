package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"aurax/internal/config"
)

const userAgent = "Aurax-Go/0.1.0"

// Event identifies a notification type.
type Event string

const (
	EventRunCompleted   Event = "run_completed"
	EventRunBestEffort  Event = "run_best_effort"
	EventRunFailed      Event = "run_failed"
	EventQueueStarted   Event = "queue_started"
	EventQueueCompleted Event = "queue_completed"
	EventTest           Event = "test"
)

// Payload carries event fields keyed by name.
type Payload map[string]any

// Service publishes workflow events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		enabled: map[Event]bool{
			EventRunCompleted:   cfg.Notifications.Completed,
			EventRunBestEffort:  cfg.Notifications.BestEffort,
			EventRunFailed:      cfg.Notifications.Failed,
			EventQueueStarted:   true,
			EventQueueCompleted: true,
			EventTest:           true,
		},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if n == nil || !n.enabled[event] {
		return nil
	}
	msg, ok := format(event, payload)
	if !ok {
		return fmt.Errorf("unsupported notification event %q", event)
	}
	return n.send(ctx, msg)
}

func format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventRunCompleted:
		return message{
			title: "Aurax - Track Ready",
			body: fmt.Sprintf("✅ %s\nScore %.2f after %d attempt(s), cost $%.4f",
				promptLabel(payload), floatField(payload, "score"), intField(payload, "attempts"), floatField(payload, "cost")),
			tags: []string{"aurax", "run", "completed"},
		}, true
	case EventRunBestEffort:
		return message{
			title: "Aurax - Best Effort",
			body: fmt.Sprintf("⚠️ %s\nBest score %.2f below threshold %.2f after %d attempt(s)",
				promptLabel(payload), floatField(payload, "score"), floatField(payload, "threshold"), intField(payload, "attempts")),
			tags: []string{"aurax", "run", "best_effort"},
		}, true
	case EventRunFailed:
		body := fmt.Sprintf("❌ %s failed", promptLabel(payload))
		if kind := stringField(payload, "kind"); kind != "" {
			body += " (" + kind + ")"
		}
		if errText := stringField(payload, "error"); errText != "" {
			body += ": " + errText
		}
		return message{
			title:    "Aurax - Run Failed",
			body:     body,
			tags:     []string{"aurax", "run", "failed"},
			priority: "high",
		}, true
	case EventQueueStarted:
		return message{
			title: "Aurax - Queue Started",
			body:  fmt.Sprintf("Started processing queue with %d runs", intField(payload, "count")),
			tags:  []string{"aurax", "queue", "started"},
		}, true
	case EventQueueCompleted:
		return queueCompleted(payload), true
	case EventTest:
		return message{
			title:    "Aurax - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"aurax", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func queueCompleted(payload Payload) message {
	duration, _ := payload["duration"].(time.Duration)
	duration = duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}
	processed := intField(payload, "processed")
	failed := intField(payload, "failed")
	if failed == 0 {
		return message{
			title: "Aurax - Queue Complete",
			body:  fmt.Sprintf("Queue processing complete: %d runs finished in %s", processed, duration),
			tags:  []string{"aurax", "queue", "completed"},
		}
	}
	return message{
		title: "Aurax - Queue Complete (with errors)",
		body:  fmt.Sprintf("Queue processing complete: %d finished, %d failed in %s", processed, failed, duration),
		tags:  []string{"aurax", "queue", "completed"},
	}
}

func promptLabel(payload Payload) string {
	prompt := strings.TrimSpace(stringField(payload, "prompt"))
	if prompt == "" {
		prompt = "run " + stringField(payload, "run_id")
	}
	const limit = 80
	if runes := []rune(prompt); len(runes) > limit {
		prompt = string(runes[:limit-1]) + "…"
	}
	return prompt
}

func stringField(payload Payload, key string) string {
	switch v := payload[key].(type) {
	case string:
		return v
	case error:
		return strings.TrimSpace(v.Error())
	case fmt.Stringer:
		return v.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func floatField(payload Payload, key string) float64 {
	switch v := payload[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

func intField(payload Payload, key string) int {
	switch v := payload[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func (n *ntfyService) send(ctx context.Context, data message) error {
	if n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
