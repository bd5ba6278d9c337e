package deps

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"murmur/internal/config"
	"murmur/internal/services/whisper"
)

const endpointDialTimeout = 2 * time.Second

// Endpoint defines a network service Murmur talks to.
type Endpoint struct {
	Name        string
	Address     string
	Description string
	Optional    bool
}

// HostPort reduces a configured endpoint value to a dialable host:port
// pair. Values may be bare pairs ("127.0.0.1:8188") or URLs
// ("ws://127.0.0.1:1234"); URL schemes without an explicit port fall back
// to the scheme's default.
func HostPort(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("endpoint address is empty")
	}
	if !strings.Contains(trimmed, "://") {
		if _, _, err := net.SplitHostPort(trimmed); err != nil {
			return "", fmt.Errorf("endpoint %q is not a host:port pair", raw)
		}
		return trimmed, nil
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("parse endpoint %q: %w", raw, err)
	}
	host := parsed.Hostname()
	if host == "" {
		return "", fmt.Errorf("endpoint %q has no host", raw)
	}
	port := parsed.Port()
	if port == "" {
		switch parsed.Scheme {
		case "ws", "http":
			port = "80"
		case "wss", "https":
			port = "443"
		default:
			return "", fmt.Errorf("endpoint %q has no port", raw)
		}
	}
	return net.JoinHostPort(host, port), nil
}

// CheckEndpoints dials each endpoint over TCP and reports reachability.
// An unreachable endpoint is not an error: the stage retry machinery deals
// with outages, this snapshot only tells operators what is up right now.
func CheckEndpoints(ctx context.Context, endpoints []Endpoint) []Status {
	results := make([]Status, 0, len(endpoints))
	for _, endpoint := range endpoints {
		status := Status{
			Name:        endpoint.Name,
			Command:     strings.TrimSpace(endpoint.Address),
			Description: strings.TrimSpace(endpoint.Description),
			Optional:    endpoint.Optional,
		}
		addr, err := HostPort(endpoint.Address)
		if err != nil {
			status.Detail = err.Error()
			results = append(results, status)
			continue
		}
		status.Command = addr

		dialer := net.Dialer{Timeout: endpointDialTimeout}
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			status.Detail = fmt.Sprintf("endpoint %s unreachable", addr)
			results = append(results, status)
			continue
		}
		_ = conn.Close()
		status.Available = true
		results = append(results, status)
	}
	return results
}

// Snapshot evaluates every external dependency for the given
// configuration: the uvx launcher that runs the transcription model, the
// language model endpoint, and the image generation server. Both the
// daemon startup log and the CLI status view consume this.
func Snapshot(ctx context.Context, cfg *config.Config) []Status {
	if cfg == nil {
		return nil
	}

	statuses := CheckBinaries([]Requirement{
		{
			Name:        "uvx",
			Command:     whisper.UVXCommand,
			Description: "Runs the whisper transcription model",
		},
	})
	statuses = append(statuses, CheckEndpoints(ctx, []Endpoint{
		{
			Name:        "Language model",
			Address:     cfg.Prompt.BaseURL,
			Description: "Prompt generation websocket endpoint",
		},
		{
			Name:        "Image server",
			Address:     cfg.Render.ServerAddress,
			Description: "Image generation job endpoint",
		},
	})...)
	return statuses
}
