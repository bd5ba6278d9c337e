package comfyui

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"murmur/internal/logging"
	"murmur/internal/services"
)

const dialHandshakeTimeout = 10 * time.Second

// Event kinds the tracker understands. Everything else is skipped so new
// server versions cannot abort a stream by adding kinds.
const (
	eventProgress        = "progress"
	eventExecutionCached = "execution_cached"
	eventExecuting       = "executing"
)

type messageOrError struct {
	message []byte
	err     error
}

// Socket is the duplex event channel for one render conversation.
type Socket struct {
	conn      *websocket.Conn
	logger    *slog.Logger
	frames    chan messageOrError
	closeCh   chan struct{}
	closeOnce sync.Once
}

// Connect opens the event channel, announcing the client id so the server
// routes this client's job events here.
func (c *Client) Connect(ctx context.Context) (*Socket, error) {
	dialer := websocket.Dialer{HandshakeTimeout: dialHandshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, c.wsURL(), nil)
	if err != nil {
		if resp != nil {
			return nil, services.Wrap(services.ErrConnectionReset, "render", "connect",
				fmt.Sprintf("dial %s (status %d)", c.wsURL(), resp.StatusCode), err)
		}
		return nil, services.Wrap(services.ErrConnectionReset, "render", "connect",
			fmt.Sprintf("dial %s", c.wsURL()), err)
	}

	socket := &Socket{
		conn:    conn,
		logger:  c.logger,
		frames:  make(chan messageOrError, 32),
		closeCh: make(chan struct{}),
	}
	go socket.readLoop()
	return socket, nil
}

// Close shuts the event channel down. Safe to call repeatedly.
func (s *Socket) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closeCh)
		err = s.conn.Close()
	})
	return err
}

// readLoop forwards text frames until the connection drops or the socket is
// closed. Binary frames are tolerated and simply cause another read.
func (s *Socket) readLoop() {
	defer close(s.frames)

	for {
		select {
		case <-s.closeCh:
			return
		default:
		}

		messageType, message, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.closeCh:
			case s.frames <- messageOrError{err: services.Wrap(services.ErrConnectionReset, "render", "stream", "event channel lost", err)}:
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		select {
		case <-s.closeCh:
			return
		case s.frames <- messageOrError{message: message}:
		}
	}
}

// Progress accumulates what the event stream revealed about a job.
type Progress struct {
	// Completed holds the node ids the server reported as finished, either
	// via cache hits or explicit execution. Duplicates collapse.
	Completed map[string]bool
	// LastStep and MaxSteps mirror the most recent sampler progress event.
	LastStep int
	MaxSteps int
}

// CompletedCount returns how many distinct nodes finished.
func (p Progress) CompletedCount() int {
	return len(p.Completed)
}

type eventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type progressData struct {
	Value int `json:"value"`
	Max   int `json:"max"`
}

type executingData struct {
	Node     *string `json:"node"`
	PromptID string  `json:"prompt_id"`
}

type cachedData struct {
	Nodes    []string `json:"nodes"`
	PromptID string   `json:"prompt_id"`
}

// TrackJob consumes events until the server signals that promptID finished:
// an executing event with a null node and a matching job id. Nothing else
// ends the stream. Nodes named by executing and execution_cached events join
// the completed set along the way; sampler progress is logged only. The read
// itself has no deadline, so callers needing bounded latency must cancel the
// context.
func (s *Socket) TrackJob(ctx context.Context, promptID string) (Progress, error) {
	progress := Progress{Completed: make(map[string]bool)}

	for {
		select {
		case <-ctx.Done():
			s.Close()
			return progress, ctx.Err()
		case item, ok := <-s.frames:
			if !ok {
				return progress, services.Wrap(services.ErrConnectionReset, "render", "stream", "event channel closed mid-job", nil)
			}
			if item.err != nil {
				return progress, item.err
			}

			var envelope eventEnvelope
			if err := json.Unmarshal(item.message, &envelope); err != nil {
				return progress, services.Wrap(services.ErrProtocol, "render", "stream", "decode event", err)
			}

			switch envelope.Type {
			case eventProgress:
				var data progressData
				if err := json.Unmarshal(envelope.Data, &data); err == nil {
					progress.LastStep = data.Value
					progress.MaxSteps = data.Max
					s.logger.Debug("sampler progress",
						logging.String(logging.FieldJobID, promptID),
						logging.Int("step", data.Value),
						logging.Int("max_steps", data.Max),
					)
				}
			case eventExecutionCached:
				var data cachedData
				if err := json.Unmarshal(envelope.Data, &data); err != nil {
					return progress, services.Wrap(services.ErrProtocol, "render", "stream", "decode execution_cached event", err)
				}
				for _, node := range data.Nodes {
					progress.Completed[node] = true
				}
			case eventExecuting:
				var data executingData
				if err := json.Unmarshal(envelope.Data, &data); err != nil {
					return progress, services.Wrap(services.ErrProtocol, "render", "stream", "decode executing event", err)
				}
				if data.Node != nil {
					progress.Completed[*data.Node] = true
					continue
				}
				if data.PromptID == promptID {
					s.logger.Debug("render job complete",
						logging.String(logging.FieldJobID, promptID),
						logging.Int("completed_nodes", progress.CompletedCount()),
					)
					return progress, nil
				}
			}
		}
	}
}
