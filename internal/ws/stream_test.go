package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/careassist/hospital-assistant/internal/api/middleware"
	"github.com/careassist/hospital-assistant/internal/chat"
	"github.com/careassist/hospital-assistant/internal/knowledge"
	"github.com/careassist/hospital-assistant/internal/sentiment"
	"github.com/careassist/hospital-assistant/internal/session"
	"github.com/careassist/hospital-assistant/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func newServer(t *testing.T, origins []string, perMinute int) *httptest.Server {
	t.Helper()
	engine := chat.NewDefaultEngine(knowledge.MustDefault(), sentiment.DefaultConfig(), nil)
	sessions := session.NewManager(store.NewMemory(), engine, nil, session.WithDelay(session.NoDelay{}))
	handler := NewStreamHandler(sessions, origins, perMinute, nil)

	r := gin.New()
	r.GET("/stream", middleware.UserContext(), handler.HandleStream)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, header http.Header) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream?user=patient-1"
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// next reads events until one of the wanted type arrives.
func next(t *testing.T, conn *websocket.Conn, want string) event {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var ev event
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("waiting for %q: %v", want, err)
		}
		if ev.Type == want {
			return ev
		}
	}
}

func messagesOf(t *testing.T, ev event) []session.ChatMessage {
	t.Helper()
	var messages []session.ChatMessage
	if err := json.Unmarshal(ev.Data, &messages); err != nil {
		t.Fatalf("decode messages: %v", err)
	}
	return messages
}

func TestStream_Conversation(t *testing.T) {
	conn := dial(t, newServer(t, []string{"*"}, 0), nil)

	var snap session.Session
	if err := json.Unmarshal(next(t, conn, "session").Data, &snap); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if snap.IsOpen || len(snap.Messages) != 0 {
		t.Fatalf("initial session = %+v", snap)
	}

	if err := conn.WriteJSON(IncomingMessage{Type: "open"}); err != nil {
		t.Fatal(err)
	}
	if got := messagesOf(t, next(t, conn, "messages")); len(got) != 1 {
		t.Fatalf("after open: %d messages, want 1", len(got))
	}

	if err := conn.WriteJSON(IncomingMessage{Content: "what are the visiting hours?"}); err != nil {
		t.Fatal(err)
	}
	if got := messagesOf(t, next(t, conn, "messages")); len(got) != 2 || got[1].Role != session.RoleUser {
		t.Fatalf("after send: %+v, want the user message appended", got)
	}

	var typing bool
	if err := json.Unmarshal(next(t, conn, "typing").Data, &typing); err != nil || !typing {
		t.Fatalf("typing = %v (%v), want true", typing, err)
	}

	got := messagesOf(t, next(t, conn, "messages"))
	if len(got) != 3 || got[2].Role != session.RoleAssistant {
		t.Fatalf("after reply: %+v, want the assistant reply appended", got)
	}
	if err := json.Unmarshal(next(t, conn, "typing").Data, &typing); err != nil || typing {
		t.Fatalf("typing = %v (%v), want false", typing, err)
	}
}

func TestStream_UnknownType(t *testing.T) {
	conn := dial(t, newServer(t, []string{"*"}, 0), nil)
	next(t, conn, "session")

	if err := conn.WriteJSON(IncomingMessage{Type: "dance"}); err != nil {
		t.Fatal(err)
	}
	var msg string
	_ = json.Unmarshal(next(t, conn, "error").Data, &msg)
	if !strings.Contains(msg, "dance") {
		t.Errorf("error = %q", msg)
	}
}

func TestStream_RateLimited(t *testing.T) {
	// 6 per minute gives a burst of one.
	conn := dial(t, newServer(t, []string{"*"}, 6), nil)
	next(t, conn, "session")

	for range 2 {
		if err := conn.WriteJSON(IncomingMessage{Type: "close"}); err != nil {
			t.Fatal(err)
		}
	}
	var msg string
	_ = json.Unmarshal(next(t, conn, "error").Data, &msg)
	if !strings.Contains(msg, "Rate limit") {
		t.Errorf("error = %q, want a rate limit message", msg)
	}
}

func TestStream_OriginCheck(t *testing.T) {
	srv := newServer(t, []string{"https://portal.example"}, 0)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream?user=patient-1"

	tests := []struct {
		name    string
		origin  string
		wantErr bool
	}{
		{name: "listed origin", origin: "https://portal.example"},
		{name: "no origin", origin: ""},
		{name: "foreign origin", origin: "https://evil.example", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.origin != "" {
				header.Set("Origin", tt.origin)
			}
			conn, resp, err := websocket.DefaultDialer.Dial(url, header)
			if conn != nil {
				conn.Close()
			}
			if (err != nil) != tt.wantErr {
				t.Fatalf("Dial error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && resp != nil && resp.StatusCode != http.StatusForbidden {
				t.Errorf("status = %d, want 403", resp.StatusCode)
			}
		})
	}
}
