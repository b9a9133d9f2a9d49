package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"roost/internal/config"
)

const userAgent = "Roost/0.1.0"

// Event identifies a notable occurrence worth pushing to the operator.
type Event string

const (
	// EventEntityParked fires when the scheduler gives up on an entity
	// after repeated failed attempts.
	EventEntityParked Event = "entity_parked"
	// EventPostPublished fires when a local post finishes fanning out.
	EventPostPublished Event = "post_published"
	// EventDeliveryFailed fires when an inbox delivery is abandoned.
	EventDeliveryFailed Event = "delivery_failed"
	// EventError fires for operational errors surfaced by the daemon.
	EventError Event = "error"
	// EventTest verifies the notification pipeline end to end.
	EventTest Event = "test"
)

// Payload carries event-specific values used to format the message.
type Payload map[string]any

// Service defines the notification surface exposed to scheduler components.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:   topic,
		client:     &http.Client{Timeout: timeout},
		errors:     cfg.Notifications.Errors,
		milestones: cfg.Notifications.Milestones,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint   string
	client     *http.Client
	errors     bool
	milestones bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := n.format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventEntityParked:
		if !n.errors {
			return message{}, false
		}
		return message{
			title:    "Roost - Entity Parked",
			body:     fmt.Sprintf("Gave up on %s #%v after repeated failures: %v", payload["kind"], payload["id"], payload["reason"]),
			tags:     []string{"roost", "scheduler", "parked"},
			priority: "high",
		}, true
	case EventPostPublished:
		if !n.milestones {
			return message{}, false
		}
		return message{
			title: "Roost - Post Published",
			body:  fmt.Sprintf("Post by %v fanned out to %v recipients", payload["author"], payload["recipients"]),
			tags:  []string{"roost", "post", "published"},
		}, true
	case EventDeliveryFailed:
		if !n.errors {
			return message{}, false
		}
		return message{
			title:    "Roost - Delivery Failed",
			body:     fmt.Sprintf("Delivery to %v abandoned: %v", payload["recipient"], payload["reason"]),
			tags:     []string{"roost", "delivery", "failed"},
			priority: "high",
		}, true
	case EventError:
		if !n.errors {
			return message{}, false
		}
		body := "Error"
		if label, ok := payload["context"].(string); ok && strings.TrimSpace(label) != "" {
			body = fmt.Sprintf("Error with %s", strings.TrimSpace(label))
		}
		if err, ok := payload["error"].(error); ok && err != nil {
			body = fmt.Sprintf("%s: %s", body, strings.TrimSpace(err.Error()))
		}
		return message{
			title:    "Roost - Error",
			body:     body,
			tags:     []string{"roost", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "Roost - Test",
			body:     "Notification system test",
			tags:     []string{"roost", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
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
