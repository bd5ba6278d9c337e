package lmstudio

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"murmur/internal/services"
)

const handshakeTimeout = 10 * time.Second

// Frame types exchanged with the model server.
const (
	frameHello    = "hello"
	frameReady    = "ready"
	frameComplete = "complete"
	frameFragment = "fragment"
	frameResult   = "result"
	frameError    = "error"
)

type clientFrame struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
	Client    string `json:"client,omitempty"`
	Model     string `json:"model,omitempty"`
	Prompt    string `json:"prompt,omitempty"`
}

type serverFrame struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
	Content   string `json:"content,omitempty"`
	Message   string `json:"message,omitempty"`
}

type frameOrError struct {
	frame serverFrame
	err   error
}

// Session is one live websocket connection to the model server.
type Session struct {
	conn      *websocket.Conn
	model     string
	frames    chan frameOrError
	closeCh   chan struct{}
	closeOnce sync.Once
	writeMu   sync.Mutex
}

// Dial opens a connection to the model server at baseURL and performs the
// opening handshake. A non-empty model is announced so the server can reject
// the session up front when that model is not loaded.
func Dial(ctx context.Context, baseURL, model string) (*Session, error) {
	endpoint, err := endpointURL(baseURL)
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil {
			return nil, services.Wrap(services.ErrConnectionReset, "prompt", "connect",
				fmt.Sprintf("dial %s (status %d)", endpoint, resp.StatusCode), err)
		}
		return nil, services.Wrap(services.ErrConnectionReset, "prompt", "connect",
			fmt.Sprintf("dial %s", endpoint), err)
	}

	if err := handshake(conn, model); err != nil {
		conn.Close()
		return nil, err
	}

	session := &Session{
		conn:    conn,
		model:   model,
		frames:  make(chan frameOrError, 16),
		closeCh: make(chan struct{}),
	}
	go session.readLoop()
	return session, nil
}

// handshake announces the client and waits for the server to accept.
func handshake(conn *websocket.Conn, model string) error {
	deadline := time.Now().Add(handshakeTimeout)
	_ = conn.SetWriteDeadline(deadline)
	if err := conn.WriteJSON(clientFrame{Type: frameHello, Client: "murmur", Model: model}); err != nil {
		return services.Wrap(services.ErrConnectionReset, "prompt", "connect", "send hello", err)
	}
	_ = conn.SetReadDeadline(deadline)

	var reply serverFrame
	if err := conn.ReadJSON(&reply); err != nil {
		return services.Wrap(services.ErrConnectionReset, "prompt", "connect", "read handshake reply", err)
	}
	_ = conn.SetWriteDeadline(time.Time{})
	_ = conn.SetReadDeadline(time.Time{})

	switch reply.Type {
	case frameReady:
		return nil
	case frameError:
		message := strings.TrimSpace(reply.Message)
		if message == "" {
			message = "server rejected session"
		}
		return services.Wrap(services.ErrTransient, "prompt", "connect", message, nil)
	default:
		return services.Wrap(services.ErrProtocol, "prompt", "connect",
			fmt.Sprintf("unexpected handshake frame %q", reply.Type), nil)
	}
}

// Complete sends one completion request and blocks until the server finishes
// the reply. Streamed fragment frames are accumulated; a result frame ends
// the request, preferring its own content over the accumulated fragments.
// Frames for other request ids and unknown frame types are skipped.
func (s *Session) Complete(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", services.Wrap(services.ErrValidation, "prompt", "complete", "prompt text required", nil)
	}

	requestID := uuid.NewString()
	request := clientFrame{Type: frameComplete, RequestID: requestID, Model: s.model, Prompt: prompt}
	if err := s.writeJSON(request); err != nil {
		return "", services.Wrap(services.ErrConnectionReset, "prompt", "complete", "send completion request", err)
	}

	var builder strings.Builder
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-s.closeCh:
			return "", services.Wrap(services.ErrConnectionReset, "prompt", "complete", "session closed mid-request", nil)
		case item, ok := <-s.frames:
			if !ok {
				return "", services.Wrap(services.ErrConnectionReset, "prompt", "complete", "connection closed mid-request", nil)
			}
			if item.err != nil {
				return "", item.err
			}
			frame := item.frame
			if frame.RequestID != "" && frame.RequestID != requestID {
				continue
			}
			switch frame.Type {
			case frameFragment:
				builder.WriteString(frame.Content)
			case frameResult:
				if frame.Content != "" {
					return frame.Content, nil
				}
				return builder.String(), nil
			case frameError:
				message := strings.TrimSpace(frame.Message)
				if message == "" {
					message = "model reported an error"
				}
				return "", services.Wrap(services.ErrTransient, "prompt", "complete", message, nil)
			}
		}
	}
}

// Close shuts the connection down. Safe to call more than once and on a
// session whose backend already dropped.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closeCh)
		err = s.conn.Close()
	})
	return err
}

func (s *Session) writeJSON(frame clientFrame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(frame)
}

// readLoop forwards server frames to the frames channel until the
// connection drops or the session is closed. Binary frames are skipped;
// malformed text frames surface a protocol error but keep the loop alive.
func (s *Session) readLoop() {
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
			case s.frames <- frameOrError{err: services.Wrap(services.ErrConnectionReset, "prompt", "read", "connection lost", err)}:
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var frame serverFrame
		if err := parseFrame(message, &frame); err != nil {
			select {
			case <-s.closeCh:
				return
			case s.frames <- frameOrError{err: err}:
			}
			continue
		}

		select {
		case <-s.closeCh:
			return
		case s.frames <- frameOrError{frame: frame}:
		}
	}
}

func parseFrame(message []byte, frame *serverFrame) error {
	if err := json.Unmarshal(message, frame); err != nil {
		return services.Wrap(services.ErrProtocol, "prompt", "read", "decode frame", err)
	}
	return nil
}

// endpointURL normalizes the configured base URL into a websocket endpoint.
// http(s) schemes are mapped to their websocket counterparts and a bare
// host gets the default completion path.
func endpointURL(baseURL string) (string, error) {
	trimmed := strings.TrimSpace(baseURL)
	if trimmed == "" {
		return "", services.Wrap(services.ErrConfiguration, "prompt", "connect", "base URL required", nil)
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "ws://" + trimmed
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "prompt", "connect",
			fmt.Sprintf("parse base URL %q", baseURL), err)
	}
	switch parsed.Scheme {
	case "ws", "wss":
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	default:
		return "", services.Wrap(services.ErrConfiguration, "prompt", "connect",
			fmt.Sprintf("unsupported scheme %q", parsed.Scheme), nil)
	}
	if parsed.Path == "" || parsed.Path == "/" {
		parsed.Path = "/llm"
	}
	return parsed.String(), nil
}
