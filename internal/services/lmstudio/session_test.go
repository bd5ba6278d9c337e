package lmstudio

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"murmur/internal/services"
)

var testUpgrader = websocket.Upgrader{}

// startBackend serves one fake model server; handler runs per connection.
func startBackend(t *testing.T, handler func(*websocket.Conn)) string {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func acceptHello(t *testing.T, conn *websocket.Conn) clientFrame {
	t.Helper()
	var hello clientFrame
	if err := conn.ReadJSON(&hello); err != nil {
		t.Errorf("read hello: %v", err)
		return hello
	}
	if err := conn.WriteJSON(serverFrame{Type: frameReady}); err != nil {
		t.Errorf("write ready: %v", err)
	}
	return hello
}

func TestDialPerformsHandshake(t *testing.T) {
	hellos := make(chan clientFrame, 1)
	baseURL := startBackend(t, func(conn *websocket.Conn) {
		hellos <- acceptHello(t, conn)
		conn.ReadMessage() // hold the connection until the client closes
	})

	session, err := Dial(context.Background(), baseURL, "qwen")
	if err != nil {
		t.Fatalf("Dial returned error: %v", err)
	}
	defer session.Close()

	hello := <-hellos
	if hello.Type != frameHello {
		t.Fatalf("expected hello frame, got %q", hello.Type)
	}
	if hello.Client != "murmur" {
		t.Fatalf("unexpected client identifier: %q", hello.Client)
	}
	if hello.Model != "qwen" {
		t.Fatalf("unexpected model announcement: %q", hello.Model)
	}
}

func TestDialSurfacesBackendRejection(t *testing.T) {
	baseURL := startBackend(t, func(conn *websocket.Conn) {
		var hello clientFrame
		if err := conn.ReadJSON(&hello); err != nil {
			t.Errorf("read hello: %v", err)
			return
		}
		if err := conn.WriteJSON(serverFrame{Type: frameError, Message: "model not loaded"}); err != nil {
			t.Errorf("write error frame: %v", err)
		}
	})

	_, err := Dial(context.Background(), baseURL, "qwen")
	if err == nil {
		t.Fatal("expected dial to fail")
	}
	if !strings.Contains(err.Error(), "model not loaded") {
		t.Fatalf("expected rejection message, got %v", err)
	}
}

func TestCompleteAccumulatesFragments(t *testing.T) {
	baseURL := startBackend(t, func(conn *websocket.Conn) {
		acceptHello(t, conn)
		var request clientFrame
		if err := conn.ReadJSON(&request); err != nil {
			t.Errorf("read request: %v", err)
			return
		}
		if request.Type != frameComplete {
			t.Errorf("expected completion request, got %q", request.Type)
		}
		if request.Prompt != "describe the harbor" {
			t.Errorf("unexpected prompt: %q", request.Prompt)
		}
		frames := []serverFrame{
			{Type: frameFragment, RequestID: request.RequestID, Content: "A misty"},
			{Type: "status", Message: "thinking"},
			{Type: frameFragment, RequestID: request.RequestID, Content: " harbor at dawn"},
			{Type: frameResult, RequestID: request.RequestID},
		}
		for _, frame := range frames {
			if err := conn.WriteJSON(frame); err != nil {
				t.Errorf("write frame: %v", err)
				return
			}
		}
		conn.ReadMessage()
	})

	session, err := Dial(context.Background(), baseURL, "")
	if err != nil {
		t.Fatalf("Dial returned error: %v", err)
	}
	defer session.Close()

	text, err := session.Complete(context.Background(), "describe the harbor")
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if text != "A misty harbor at dawn" {
		t.Fatalf("unexpected completion: %q", text)
	}
}

func TestCompletePrefersResultContent(t *testing.T) {
	baseURL := startBackend(t, func(conn *websocket.Conn) {
		acceptHello(t, conn)
		var request clientFrame
		if err := conn.ReadJSON(&request); err != nil {
			return
		}
		_ = conn.WriteJSON(serverFrame{Type: frameFragment, RequestID: request.RequestID, Content: "partial"})
		_ = conn.WriteJSON(serverFrame{Type: frameResult, RequestID: request.RequestID, Content: "the final text"})
		conn.ReadMessage()
	})

	session, err := Dial(context.Background(), baseURL, "")
	if err != nil {
		t.Fatalf("Dial returned error: %v", err)
	}
	defer session.Close()

	text, err := session.Complete(context.Background(), "anything")
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if text != "the final text" {
		t.Fatalf("unexpected completion: %q", text)
	}
}

func TestCompleteSkipsFramesForOtherRequests(t *testing.T) {
	baseURL := startBackend(t, func(conn *websocket.Conn) {
		acceptHello(t, conn)
		var request clientFrame
		if err := conn.ReadJSON(&request); err != nil {
			return
		}
		_ = conn.WriteJSON(serverFrame{Type: frameResult, RequestID: "someone-else", Content: "wrong"})
		_ = conn.WriteJSON(serverFrame{Type: frameResult, RequestID: request.RequestID, Content: "right"})
		conn.ReadMessage()
	})

	session, err := Dial(context.Background(), baseURL, "")
	if err != nil {
		t.Fatalf("Dial returned error: %v", err)
	}
	defer session.Close()

	text, err := session.Complete(context.Background(), "anything")
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if text != "right" {
		t.Fatalf("unexpected completion: %q", text)
	}
}

func TestCompleteSurfacesServerError(t *testing.T) {
	baseURL := startBackend(t, func(conn *websocket.Conn) {
		acceptHello(t, conn)
		var request clientFrame
		if err := conn.ReadJSON(&request); err != nil {
			return
		}
		_ = conn.WriteJSON(serverFrame{Type: frameError, RequestID: request.RequestID, Message: "backend busy"})
		conn.ReadMessage()
	})

	session, err := Dial(context.Background(), baseURL, "")
	if err != nil {
		t.Fatalf("Dial returned error: %v", err)
	}
	defer session.Close()

	_, err = session.Complete(context.Background(), "anything")
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if !strings.Contains(err.Error(), "backend busy") {
		t.Fatalf("expected server message, got %v", err)
	}
}

func TestCompleteReportsConnectionDrop(t *testing.T) {
	baseURL := startBackend(t, func(conn *websocket.Conn) {
		acceptHello(t, conn)
		var request clientFrame
		if err := conn.ReadJSON(&request); err != nil {
			return
		}
		conn.Close()
	})

	session, err := Dial(context.Background(), baseURL, "")
	if err != nil {
		t.Fatalf("Dial returned error: %v", err)
	}
	defer session.Close()

	_, err = session.Complete(context.Background(), "anything")
	if err == nil {
		t.Fatal("expected completion to fail")
	}
	if !services.ConnectionRelated(err) {
		t.Fatalf("expected connection-class error, got %v", err)
	}
}

func TestCompleteRequiresPrompt(t *testing.T) {
	session := &Session{}
	if _, err := session.Complete(context.Background(), "   "); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestEndpointURL(t *testing.T) {
	cases := []struct {
		name    string
		baseURL string
		want    string
		wantErr bool
	}{
		{name: "bare host", baseURL: "127.0.0.1:1234", want: "ws://127.0.0.1:1234/llm"},
		{name: "http scheme", baseURL: "http://127.0.0.1:1234", want: "ws://127.0.0.1:1234/llm"},
		{name: "https scheme", baseURL: "https://models.local", want: "wss://models.local/llm"},
		{name: "explicit path", baseURL: "ws://127.0.0.1:1234/custom", want: "ws://127.0.0.1:1234/custom"},
		{name: "empty", baseURL: "  ", wantErr: true},
		{name: "unsupported scheme", baseURL: "ftp://127.0.0.1", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := endpointURL(tc.baseURL)
			if tc.wantErr {
				if !errors.Is(err, services.ErrConfiguration) {
					t.Fatalf("expected configuration error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("endpointURL returned error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("endpointURL(%q) = %q, want %q", tc.baseURL, got, tc.want)
			}
		})
	}
}
