package notifications

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"fission/internal/config"
)

const userAgent = "Fission/0.1.0"

// Event names a lifecycle milestone.
type Event string

const (
	EventProjectStarted   Event = "project_started"
	EventProjectCompleted Event = "project_completed"
	EventProjectFailed    Event = "project_failed"
	EventStagePartial     Event = "stage_partial"
	EventTest             Event = "test"
)

// Payload carries event fields. Well-known keys: projectID, source, stage,
// reason, completed, failed, duration.
type Payload map[string]any

func (p Payload) str(key string) string {
	if p == nil {
		return ""
	}
	switch v := p[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// Service publishes lifecycle events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds the notifiers enabled in cfg. When none is configured a
// noop implementation is returned.
func NewService(cfg *config.Config) Service {
	var services []Service
	if topic := strings.TrimSpace(cfg.Notifications.NtfyTopic); topic != "" {
		timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		services = append(services, &ntfyService{
			endpoint: topic,
			client:   &http.Client{Timeout: timeout},
		})
	}
	if url := strings.TrimSpace(cfg.Notifications.AMQPURL); url != "" {
		services = append(services, newAMQPService(url, cfg.Notifications.AMQPQueue))
	}

	var svc Service
	switch len(services) {
	case 0:
		return noopService{}
	case 1:
		svc = services[0]
	default:
		svc = multiService(services)
	}
	return &filteredService{
		next:      svc,
		completed: cfg.Notifications.Completed,
		failed:    cfg.Notifications.Failed,
	}
}

// Close releases transport resources held by svc, if any.
func Close(svc Service) error {
	if closer, ok := svc.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

type filteredService struct {
	next      Service
	completed bool
	failed    bool
}

func (f *filteredService) Publish(ctx context.Context, event Event, payload Payload) error {
	switch event {
	case EventProjectCompleted:
		if !f.completed {
			return nil
		}
	case EventProjectFailed, EventStagePartial:
		if !f.failed {
			return nil
		}
	}
	return f.next.Publish(ctx, event, payload)
}

func (f *filteredService) Close() error {
	return Close(f.next)
}

type multiService []Service

func (m multiService) Publish(ctx context.Context, event Event, payload Payload) error {
	var errs []error
	for _, svc := range m {
		if err := svc.Publish(ctx, event, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m multiService) Close() error {
	var errs []error
	for _, svc := range m {
		if err := Close(svc); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) Publish(ctx context.Context, event Event, data Payload) error {
	msg, ok := formatNtfy(event, data)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func formatNtfy(event Event, data Payload) (payload, bool) {
	label := data.str("source")
	if label == "" {
		label = data.str("projectID")
	}
	switch event {
	case EventProjectStarted:
		return payload{
			title:   "Fission - Processing",
			message: fmt.Sprintf("Processing started: %s", label),
			tags:    []string{"fission", "project", "started"},
		}, true
	case EventProjectCompleted:
		message := fmt.Sprintf("Assets ready: %s", label)
		if completed := data.str("completed"); completed != "" {
			message = fmt.Sprintf("%s\n%s assets completed", message, completed)
			if failed := data.str("failed"); failed != "" && failed != "0" {
				message = fmt.Sprintf("%s, %s failed", message, failed)
			}
		}
		return payload{
			title:    "Fission - Complete",
			message:  message,
			tags:     []string{"fission", "project", "completed"},
			priority: "high",
		}, true
	case EventProjectFailed:
		message := fmt.Sprintf("Processing failed: %s", label)
		if stage := data.str("stage"); stage != "" {
			message = fmt.Sprintf("%s\nStage: %s", message, stage)
		}
		if reason := data.str("reason"); reason != "" {
			message = fmt.Sprintf("%s\nReason: %s", message, reason)
		}
		return payload{
			title:    "Fission - Failed",
			message:  message,
			tags:     []string{"fission", "error", "alert"},
			priority: "high",
		}, true
	case EventStagePartial:
		return payload{
			title:   "Fission - Partial Assets",
			message: fmt.Sprintf("%s: %s of %s units failed in %s", label, data.str("failed"), data.str("total"), data.str("stage")),
			tags:    []string{"fission", "assets", "warning"},
		}, true
	case EventTest:
		return payload{
			title:    "Fission - Test",
			message:  "Notification system test",
			tags:     []string{"fission", "test"},
			priority: "low",
		}, true
	default:
		return payload{}, false
	}
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
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
