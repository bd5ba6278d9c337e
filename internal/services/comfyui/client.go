package comfyui

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/google/uuid"

	"murmur/internal/config"
	"murmur/internal/logging"
	"murmur/internal/services"
)

// Client issues the HTTP side-channel calls of a render job and opens the
// websocket event channel. Timeouts are the caller's responsibility: every
// method honors its context and nothing else bounds it.
type Client struct {
	serverAddress string
	clientID      string
	httpClient    *http.Client
	logger        *slog.Logger
}

// Option customizes the client.
type Option func(*Client)

// WithLogger overrides the default no-op logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHTTPClient overrides the HTTP client used for side-channel calls.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// NewClient creates a client for the render server named in cfg. A missing
// client id gets a fresh UUID so concurrent murmur instances never share an
// event stream.
func NewClient(cfg config.Render, opts ...Option) *Client {
	clientID := strings.TrimSpace(cfg.ClientID)
	if clientID == "" {
		clientID = uuid.NewString()
	}
	client := &Client{
		serverAddress: normalizeServerAddress(cfg.ServerAddress),
		clientID:      clientID,
		httpClient:    &http.Client{},
		logger:        logging.NewNop(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// ClientID returns the id this client announces on the event channel.
func (c *Client) ClientID() string {
	return c.clientID
}

func normalizeServerAddress(address string) string {
	trimmed := strings.TrimSpace(address)
	trimmed = strings.TrimPrefix(trimmed, "http://")
	trimmed = strings.TrimPrefix(trimmed, "https://")
	trimmed = strings.TrimPrefix(trimmed, "ws://")
	return strings.TrimSuffix(trimmed, "/")
}

func (c *Client) httpURL(path string) string {
	return "http://" + c.serverAddress + path
}

func (c *Client) wsURL() string {
	return "ws://" + c.serverAddress + "/ws?clientId=" + url.QueryEscape(c.clientID)
}

type queueRequest struct {
	Prompt   Workflow `json:"prompt"`
	ClientID string   `json:"client_id"`
}

type queueResponse struct {
	PromptID string `json:"prompt_id"`
}

// QueuePrompt submits the workflow graph and returns the job id the server
// assigned. A failed submission leaves any open event channel untouched.
func (c *Client) QueuePrompt(ctx context.Context, workflow Workflow) (string, error) {
	payload, err := json.Marshal(queueRequest{Prompt: workflow, ClientID: c.clientID})
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "render", "queue", "encode workflow", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.httpURL("/prompt"), bytes.NewReader(payload))
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "render", "queue", "build request", err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return "", services.Wrap(services.ErrConnectionReset, "render", "queue", "submit workflow", err)
	}
	defer drainBody(response.Body)

	if response.StatusCode >= http.StatusMultipleChoices {
		return "", services.Wrap(services.ErrTransient, "render", "queue",
			fmt.Sprintf("server returned %d: %s", response.StatusCode, errorExcerpt(response.Body)), nil)
	}

	var decoded queueResponse
	if err := json.NewDecoder(response.Body).Decode(&decoded); err != nil {
		return "", services.Wrap(services.ErrProtocol, "render", "queue", "decode response", err)
	}
	if strings.TrimSpace(decoded.PromptID) == "" {
		return "", services.Wrap(services.ErrProtocol, "render", "queue", "response carries no prompt id", nil)
	}

	c.logger.Debug("render job queued", logging.String(logging.FieldJobID, decoded.PromptID))
	return decoded.PromptID, nil
}

// ImageRef locates one stored artifact on the render server.
type ImageRef struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

// NodeOutput is the per-node output record in a history entry.
type NodeOutput struct {
	Images []ImageRef `json:"images"`
}

// HistoryEntry is the server's record of one finished job.
type HistoryEntry struct {
	Outputs map[string]NodeOutput `json:"outputs"`
}

// History fetches the job record for promptID.
func (c *Client) History(ctx context.Context, promptID string) (HistoryEntry, error) {
	var entry HistoryEntry

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.httpURL("/history/"+url.PathEscape(promptID)), nil)
	if err != nil {
		return entry, services.Wrap(services.ErrValidation, "render", "history", "build request", err)
	}
	response, err := c.httpClient.Do(request)
	if err != nil {
		return entry, services.Wrap(services.ErrConnectionReset, "render", "history", "fetch job record", err)
	}
	defer drainBody(response.Body)

	if response.StatusCode >= http.StatusMultipleChoices {
		return entry, services.Wrap(services.ErrTransient, "render", "history",
			fmt.Sprintf("server returned %d: %s", response.StatusCode, errorExcerpt(response.Body)), nil)
	}

	var records map[string]HistoryEntry
	if err := json.NewDecoder(response.Body).Decode(&records); err != nil {
		return entry, services.Wrap(services.ErrProtocol, "render", "history", "decode response", err)
	}
	entry, ok := records[promptID]
	if !ok {
		return entry, services.Wrap(services.ErrProtocol, "render", "history",
			fmt.Sprintf("record for job %s missing", promptID), nil)
	}
	return entry, nil
}

// FetchImage downloads the raw bytes of one stored artifact.
func (c *Client) FetchImage(ctx context.Context, ref ImageRef) ([]byte, error) {
	values := url.Values{}
	values.Set("filename", ref.Filename)
	values.Set("subfolder", ref.Subfolder)
	values.Set("type", ref.Type)

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.httpURL("/view?"+values.Encode()), nil)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "render", "view", "build request", err)
	}
	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, services.Wrap(services.ErrConnectionReset, "render", "view", "fetch artifact", err)
	}
	defer drainBody(response.Body)

	if response.StatusCode >= http.StatusMultipleChoices {
		return nil, services.Wrap(services.ErrTransient, "render", "view",
			fmt.Sprintf("server returned %d: %s", response.StatusCode, errorExcerpt(response.Body)), nil)
	}

	data, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrConnectionReset, "render", "view", "read artifact bytes", err)
	}
	if len(data) == 0 {
		return nil, services.Wrap(services.ErrEmptyResult, "render", "view",
			fmt.Sprintf("artifact %s is empty", ref.Filename), nil)
	}
	return data, nil
}

// ImageResult is one rendered artifact plus its discovered metadata.
type ImageResult struct {
	Data      []byte
	Filename  string
	Subfolder string
	PromptID  string
	Progress  Progress
}

// GenerateImage runs the whole job conversation: inject the prompt text,
// open the event channel, submit the graph, stream until the server signals
// completion, then locate and download the first output image. Failures at
// any phase close the channel and propagate; nothing is retried here.
func (c *Client) GenerateImage(ctx context.Context, workflow Workflow, prompt string) (*ImageResult, error) {
	if workflow == nil {
		return nil, services.Wrap(services.ErrValidation, "render", "generate", "workflow required", nil)
	}
	if err := workflow.SetPositivePrompt(prompt); err != nil {
		return nil, err
	}

	socket, err := c.Connect(ctx)
	if err != nil {
		return nil, err
	}
	defer socket.Close()

	promptID, err := c.QueuePrompt(ctx, workflow)
	if err != nil {
		return nil, err
	}

	progress, err := socket.TrackJob(ctx, promptID)
	if err != nil {
		return nil, err
	}
	// The event channel is done once the completion signal arrived; close it
	// before the history and artifact fetches.
	socket.Close()

	entry, err := c.History(ctx, promptID)
	if err != nil {
		return nil, err
	}
	ref, ok := findOutputImage(entry)
	if !ok {
		return nil, services.Wrap(services.ErrEmptyResult, "render", "history",
			fmt.Sprintf("job %s produced no output image", promptID), nil)
	}

	data, err := c.FetchImage(ctx, ref)
	if err != nil {
		return nil, err
	}

	return &ImageResult{
		Data:      data,
		Filename:  ref.Filename,
		Subfolder: ref.Subfolder,
		PromptID:  promptID,
		Progress:  progress,
	}, nil
}

// findOutputImage scans the history outputs in stable node order and
// returns the first image stored in the server's output area.
func findOutputImage(entry HistoryEntry) (ImageRef, bool) {
	nodeIDs := make([]string, 0, len(entry.Outputs))
	for id := range entry.Outputs {
		nodeIDs = append(nodeIDs, id)
	}
	sort.Strings(nodeIDs)

	for _, id := range nodeIDs {
		for _, image := range entry.Outputs[id].Images {
			if image.Type == "output" {
				return image, true
			}
		}
	}
	return ImageRef{}, false
}

func errorExcerpt(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 2048))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func drainBody(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}
