package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/coursechat/coursechat-server/internal/proto"
)

type outboundEnvelope struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func dialWS(t *testing.T, ctx context.Context, env *testEnv, token string) *websocket.Conn {
	t.Helper()

	wsURL := strings.Replace(env.ts.URL, "http", "ws", 1) + "/ws?token=" + token
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("ws dial failed: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

func sendInbound(t *testing.T, ctx context.Context, conn *websocket.Conn, msgType string, data any) {
	t.Helper()

	payload, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: msgType, Data: payload}); err != nil {
		t.Fatalf("failed to write inbound: %v", err)
	}
}

// readEvent reads envelopes until one carries the wanted event name.
// Presence broadcasts can interleave with replies, so tests skip past
// events they did not ask for.
func readEvent(t *testing.T, ctx context.Context, conn *websocket.Conn, event string) outboundEnvelope {
	t.Helper()

	for {
		var env outboundEnvelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			t.Fatalf("read while waiting for %q: %v", event, err)
		}
		if env.Type == "error" {
			t.Fatalf("got error envelope while waiting for %q: %+v", event, env.Error)
		}
		if env.Event == event {
			return env
		}
	}
}

func TestWS_RejectsUnauthenticated(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := strings.Replace(env.ts.URL, "http", "ws", 1) + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("ws dial failed: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	// The server closes the connection before serving any event.
	var envlp outboundEnvelope
	err = wsjson.Read(ctx, conn, &envlp)
	if err == nil {
		t.Fatal("expected connection to be closed")
	}
	if status := websocket.CloseStatus(err); status != websocket.StatusPolicyViolation {
		t.Fatalf("close status = %v, want policy violation", status)
	}
}

func TestWS_JoinChatAndSendMessage(t *testing.T) {
	env := newTestEnv(t)
	chatID := env.createChat(t, env.aliceToken, []int64{2}, "direct")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connA := dialWS(t, ctx, env, env.aliceToken)
	connB := dialWS(t, ctx, env, env.bobToken)

	sendInbound(t, ctx, connA, proto.InboundJoinChat, proto.ChatRef{ChatID: chatID})
	joined := readEvent(t, ctx, connA, proto.EventChatJoined)

	var joinData proto.ChatJoinedData
	if err := json.Unmarshal(joined.Data, &joinData); err != nil {
		t.Fatalf("failed to decode chat_joined: %v", err)
	}
	if joinData.ChatID != chatID || len(joinData.Participants) != 2 {
		t.Fatalf("unexpected chat_joined payload: %+v", joinData)
	}

	sendInbound(t, ctx, connA, proto.InboundSendMessage, proto.SendMessageData{
		ChatID:  chatID,
		Content: "hello over the socket",
	})

	// The sender gets a confirmation echo; the online recipient gets the
	// live event. Both carry the persisted message.
	for _, conn := range []*websocket.Conn{connA, connB} {
		envlp := readEvent(t, ctx, conn, proto.EventNewMessage)
		var data proto.NewMessageData
		if err := json.Unmarshal(envlp.Data, &data); err != nil {
			t.Fatalf("failed to decode new_message: %v", err)
		}
		if data.ChatID != chatID || data.Message.Content != "hello over the socket" {
			t.Fatalf("unexpected new_message payload: %+v", data)
		}
		if data.Message.ID != 1 {
			t.Fatalf("message id = %d, want 1", data.Message.ID)
		}
	}

	// Online delivery means no notification for bob.
	if reqs := env.sink.ForRecipient(2); len(reqs) != 0 {
		t.Fatalf("bob got %d notifications while online, want 0", len(reqs))
	}
}

func TestWS_ErrorsGoOnlyToOriginatingConnection(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialWS(t, ctx, env, env.carolToken)

	sendInbound(t, ctx, conn, proto.InboundJoinChat, proto.ChatRef{ChatID: "not-a-chat"})

	var envlp outboundEnvelope
	if err := wsjson.Read(ctx, conn, &envlp); err != nil {
		t.Fatalf("read error envelope: %v", err)
	}
	if envlp.Type != "error" || envlp.Error == nil {
		t.Fatalf("expected error envelope, got %+v", envlp)
	}
	if envlp.Error.Code != "chat_not_found" {
		t.Fatalf("error code = %q, want chat_not_found", envlp.Error.Code)
	}

	// The connection survives the protocol error.
	sendInbound(t, ctx, conn, proto.InboundGetUnreadCount, struct{}{})
	count := readEvent(t, ctx, conn, proto.EventUnreadCount)
	var data proto.UnreadCountData
	if err := json.Unmarshal(count.Data, &data); err != nil {
		t.Fatalf("failed to decode unread count: %v", err)
	}
	if data.Count != 0 {
		t.Fatalf("unread count = %d, want 0", data.Count)
	}
}

func TestWS_TypingReachesOnlyOtherRoomMembers(t *testing.T) {
	env := newTestEnv(t)
	chatID := env.createChat(t, env.aliceToken, []int64{2}, "direct")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connA := dialWS(t, ctx, env, env.aliceToken)
	connB := dialWS(t, ctx, env, env.bobToken)

	sendInbound(t, ctx, connA, proto.InboundJoinChat, proto.ChatRef{ChatID: chatID})
	readEvent(t, ctx, connA, proto.EventChatJoined)
	sendInbound(t, ctx, connB, proto.InboundJoinChat, proto.ChatRef{ChatID: chatID})
	readEvent(t, ctx, connB, proto.EventChatJoined)

	sendInbound(t, ctx, connA, proto.InboundTypingStart, proto.ChatRef{ChatID: chatID})

	typing := readEvent(t, ctx, connB, proto.EventUserTyping)
	var data proto.UserTypingData
	if err := json.Unmarshal(typing.Data, &data); err != nil {
		t.Fatalf("failed to decode user_typing: %v", err)
	}
	if data.UserID != 1 || !data.IsTyping {
		t.Fatalf("unexpected typing payload: %+v", data)
	}
}

func TestWS_LiveSessionJoin(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connA := dialWS(t, ctx, env, env.aliceToken)
	connB := dialWS(t, ctx, env, env.bobToken)

	sendInbound(t, ctx, connA, proto.InboundJoinLiveSession, proto.SessionRef{SessionID: "sess-1"})
	own := readEvent(t, ctx, connA, proto.EventParticipantJoined)
	var ownData proto.SessionParticipantData
	if err := json.Unmarshal(own.Data, &ownData); err != nil {
		t.Fatalf("failed to decode own join: %v", err)
	}
	if ownData.SessionID != "sess-1" || ownData.UserID != 1 {
		t.Fatalf("unexpected own join payload: %+v", ownData)
	}

	sendInbound(t, ctx, connB, proto.InboundJoinLiveSession, proto.SessionRef{SessionID: "sess-1"})

	// Alice, already in the room, sees bob's arrival.
	announce := readEvent(t, ctx, connA, proto.EventParticipantJoined)
	var announceData proto.SessionParticipantData
	if err := json.Unmarshal(announce.Data, &announceData); err != nil {
		t.Fatalf("failed to decode announcement: %v", err)
	}
	if announceData.UserID != 2 {
		t.Fatalf("announced user = %d, want 2", announceData.UserID)
	}
}

func TestWS_BearerHeaderAlsoAccepted(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := strings.Replace(env.ts.URL, "http", "ws", 1) + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + env.aliceToken}},
	})
	if err != nil {
		t.Fatalf("ws dial failed: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	sendInbound(t, ctx, conn, proto.InboundGetUnreadCount, struct{}{})
	readEvent(t, ctx, conn, proto.EventUnreadCount)
}
