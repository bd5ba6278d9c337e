package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"murmur/internal/config"
)

const userAgent = "Murmur/0.1.0"

// Event enumerates the pipeline milestones that can produce a notification.
type Event string

const (
	EventPipelineStarted Event = "pipeline_started"
	EventPipelineStopped Event = "pipeline_stopped"
	EventDeviceDetected  Event = "device_detected"
	EventDeviceLost      Event = "device_lost"
	EventImageReady      Event = "image_ready"
	EventReviewRequired  Event = "review_required"
	EventError           Event = "error"
	EventTest            Event = "test"
)

// Payload carries event-specific values consumed by the message formatters.
type Payload map[string]any

// Service defines the notification surface exposed to pipeline components.
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
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		gates:    cfg.Notifications,
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
	gates    config.Notifications
}

// Publish formats and delivers an event. Events whose config gate is off are
// dropped silently so callers never need to consult the config themselves.
func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	data, ok := n.format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, data)
}

func (n *ntfyService) format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventPipelineStarted:
		if !n.gates.Lifecycle {
			return message{}, false
		}
		device := payload.text("device")
		if device == "" {
			device = "default device"
		}
		return message{
			title: "Murmur - Listening",
			body:  fmt.Sprintf("🎙️ Capturing ambient audio on %s", device),
			tags:  []string{"murmur", "pipeline", "started"},
		}, true
	case EventPipelineStopped:
		if !n.gates.Lifecycle {
			return message{}, false
		}
		return message{
			title: "Murmur - Stopped",
			body: fmt.Sprintf("Pipeline stopped: %s processed, %s failed in %s",
				payload.count("processed", "clip"), payload.count("failed", "clip"),
				payload.duration("duration")),
			tags: []string{"murmur", "pipeline", "stopped"},
		}, true
	case EventDeviceDetected:
		if !n.gates.Devices {
			return message{}, false
		}
		return message{
			title: "Murmur - Device Found",
			body:  fmt.Sprintf("🔌 Audio device connected: %s", payload.text("device")),
			tags:  []string{"murmur", "device", "detected"},
		}, true
	case EventDeviceLost:
		if !n.gates.Devices {
			return message{}, false
		}
		return message{
			title: "Murmur - Device Lost",
			body:  fmt.Sprintf("Audio device disconnected: %s", payload.text("device")),
			tags:  []string{"murmur", "device", "lost"},
		}, true
	case EventImageReady:
		if !n.gates.ImageReady {
			return message{}, false
		}
		body := fmt.Sprintf("🖼️ New image rendered: %s", payload.text("image"))
		if prompt := payload.text("prompt"); prompt != "" {
			body = fmt.Sprintf("%s\nPrompt: %s", body, prompt)
		}
		return message{
			title:    "Murmur - Image Ready",
			body:     body,
			tags:     []string{"murmur", "image", "ready"},
			priority: "high",
		}, true
	case EventReviewRequired:
		if !n.gates.Errors {
			return message{}, false
		}
		return message{
			title: "Murmur - Review Required",
			body: fmt.Sprintf("Manual review needed for %s: %s",
				payload.text("context"), payload.text("reason")),
			tags: []string{"murmur", "review"},
		}, true
	case EventError:
		if !n.gates.Errors {
			return message{}, false
		}
		var builder strings.Builder
		builder.WriteString("❌ Error")
		if contextLabel := payload.text("context"); contextLabel != "" {
			builder.WriteString(" with ")
			builder.WriteString(contextLabel)
		}
		builder.WriteString(": ")
		if errText := payload.text("error"); errText != "" {
			builder.WriteString(errText)
		} else {
			builder.WriteString("unknown")
		}
		return message{
			title:    "Murmur - Error",
			body:     builder.String(),
			tags:     []string{"murmur", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "Murmur - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"murmur", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (p Payload) text(key string) string {
	if p == nil {
		return ""
	}
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case error:
		return strings.TrimSpace(val.Error())
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}

func (p Payload) count(key, noun string) string {
	n := 0
	if p != nil {
		switch val := p[key].(type) {
		case int:
			n = val
		case int64:
			n = int(val)
		}
	}
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

func (p Payload) duration(key string) string {
	var d time.Duration
	if p != nil {
		if val, ok := p[key].(time.Duration); ok {
			d = val
		}
	}
	d = d.Round(time.Second)
	if d <= 0 {
		return "0s"
	}
	return d.String()
}

func (n *ntfyService) send(ctx context.Context, data message) error {
	if n == nil || n.client == nil {
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
