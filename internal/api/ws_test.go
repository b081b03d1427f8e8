package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/agentdesk/internal/domain"
	"github.com/ashureev/agentdesk/internal/identity"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

type rawFrame struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

func dialChat(t *testing.T, f *fixture, userID string, auth bool) (*websocket.Conn, context.Context) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.handler.HandleChatSocket(w, r.WithContext(identity.WithIdentity(r.Context(), userID, auth)))
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn, ctx
}

func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, stop string) []rawFrame {
	t.Helper()
	var frames []rawFrame
	for {
		var fr rawFrame
		if err := wsjson.Read(ctx, conn, &fr); err != nil {
			t.Fatalf("read frame: %v (got %+v)", err, frames)
		}
		frames = append(frames, fr)
		if fr.Type == stop {
			return frames
		}
	}
}

func chatFrame(agentID string) map[string]any {
	return map[string]any{
		"type":            frameChat,
		"messages":        []domain.Message{{Role: domain.RoleUser, Content: "hi"}},
		"isAuthenticated": true,
		"agentId":         agentID,
	}
}

func TestChatSocketStreamsTurn(t *testing.T) {
	f := newFixture(t, fakeModels{client: textClient{chunks: []string{"a", "b"}}}, testConfig())
	conn, ctx := dialChat(t, f, "alice", true)

	if err := wsjson.Write(ctx, conn, chatFrame("document-analyst")); err != nil {
		t.Fatalf("write: %v", err)
	}
	frames := readUntil(t, ctx, conn, "done")

	if len(frames) != 3 {
		t.Fatalf("got %d frames, want 3: %+v", len(frames), frames)
	}
	if frames[0].Type != "content-delta" || frames[0].Data["delta"] != "a" {
		t.Errorf("first frame = %+v", frames[0])
	}
	if frames[2].Data["agentId"] != "document-analyst" {
		t.Errorf("done frame = %+v", frames[2])
	}
}

func TestChatSocketCancel(t *testing.T) {
	f := newFixture(t, fakeModels{client: textClient{chunks: []string{"partial"}, hang: true}}, testConfig())
	conn, ctx := dialChat(t, f, "alice", true)

	if err := wsjson.Write(ctx, conn, chatFrame("")); err != nil {
		t.Fatalf("write: %v", err)
	}
	readUntil(t, ctx, conn, "content-delta")

	if err := wsjson.Write(ctx, conn, map[string]string{"type": frameCancel}); err != nil {
		t.Fatalf("write cancel: %v", err)
	}
	readUntil(t, ctx, conn, "aborted")

	if n := len(f.history.recorded()); n != 0 {
		t.Errorf("cancelled turn recorded %d turns", n)
	}
}

func TestChatSocketRejectsUnknownFrame(t *testing.T) {
	f := newFixture(t, fakeModels{client: textClient{}}, testConfig())
	conn, ctx := dialChat(t, f, "alice", false)

	if err := wsjson.Write(ctx, conn, map[string]string{"type": "bogus"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	frames := readUntil(t, ctx, conn, "error")
	if frames[0].Data["code"] != "unknown_frame" {
		t.Errorf("error frame = %+v", frames[0])
	}
}
