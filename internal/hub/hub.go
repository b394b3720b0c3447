package hub

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/coursechat/coursechat-server/internal/chat"
	"github.com/coursechat/coursechat-server/internal/live"
	"github.com/coursechat/coursechat-server/internal/notify"
	"github.com/coursechat/coursechat-server/internal/presence"
	"github.com/coursechat/coursechat-server/internal/proto"
	"github.com/coursechat/coursechat-server/internal/store"
)

// Room id namespaces. Chat rooms map 1:1 to a persisted chat; video and
// live rooms are ephemeral, identified by an external id.
func ChatRoomID(chatID string) string    { return "chat:" + chatID }
func VideoRoomID(videoID string) string  { return "video:" + videoID }
func LiveRoomID(sessionID string) string { return "live:" + sessionID }

// Hub tracks which connections are subscribed to which rooms and fans
// events out to them. It is also the integration point between message
// appends, live delivery and the notification sink: for every appended
// message each non-sender participant receives exactly one live event or
// exactly one notification request, decided by their presence at send
// time.
type Hub struct {
	chats    *chat.Service
	registry presence.Registry
	sink     notify.Sink
	liveTok  live.TokenProvider
	log      *zerolog.Logger

	mu sync.RWMutex
	// clients is keyed by conn id; byUser holds the canonical connection
	// per user (last connect wins).
	clients map[string]*Client
	byUser  map[int64]*Client
	rooms   map[string]map[*Client]struct{}
}

// NewHub creates a hub. liveTok may be nil when no media backend is
// configured.
func NewHub(chats *chat.Service, registry presence.Registry, sink notify.Sink, liveTok live.TokenProvider, logger *zerolog.Logger) *Hub {
	return &Hub{
		chats:    chats,
		registry: registry,
		sink:     sink,
		liveTok:  liveTok,
		log:      logger,
		clients:  make(map[string]*Client),
		byUser:   make(map[int64]*Client),
		rooms:    make(map[string]map[*Client]struct{}),
	}
}

// Register binds an authenticated connection to the hub and marks the
// user online. A previous connection from the same user is retired
// (last-connect-wins) without an offline broadcast.
func (h *Hub) Register(ctx context.Context, c *Client) {
	userID := c.Identity.UserID

	wasOnline, err := h.registry.IsOnline(ctx, userID)
	if err != nil {
		h.log.Warn().Err(err).Int64("user_id", userID).Msg("presence lookup failed")
	}
	if _, err := h.registry.MarkOnline(ctx, userID, c.ConnID); err != nil {
		h.log.Warn().Err(err).Int64("user_id", userID).Msg("presence mark online failed")
	}

	h.mu.Lock()
	prev := h.byUser[userID]
	h.clients[c.ConnID] = c
	h.byUser[userID] = c
	if prev != nil {
		h.detachLocked(prev)
		delete(h.clients, prev.ConnID)
	}
	h.mu.Unlock()

	if prev != nil {
		prev.close()
	}

	if !wasOnline {
		h.broadcastPresence(c, proto.EventUserOnline, presence.StatusOnline, nil)
	}

	h.log.Debug().
		Str("conn_id", c.ConnID).
		Int64("user_id", userID).
		Msg("connection registered")
}

// Unregister tears a connection down: all room subscriptions are removed,
// a dangling typing indicator in the most recently active chat room is
// cleared, and, if this was the canonical connection, the user is marked
// offline and an offline presence change is broadcast.
func (h *Hub) Unregister(ctx context.Context, c *Client) {
	h.mu.Lock()
	lastChatRoom := c.lastChatRoom
	h.detachLocked(c)
	delete(h.clients, c.ConnID)
	canonical := h.byUser[c.Identity.UserID] == c
	if canonical {
		delete(h.byUser, c.Identity.UserID)
	}
	h.mu.Unlock()

	c.close()

	if lastChatRoom != "" {
		h.ToRoom(lastChatRoom, &Event{
			Name: proto.EventUserTyping,
			Data: proto.UserTypingData{
				ChatID:   roomExternalID(lastChatRoom),
				UserID:   c.Identity.UserID,
				UserName: c.Identity.Name,
				IsTyping: false,
			},
		}, c)
	}

	if canonical {
		if err := h.registry.MarkOffline(ctx, c.Identity.UserID, c.ConnID); err != nil {
			h.log.Warn().Err(err).Int64("user_id", c.Identity.UserID).Msg("presence mark offline failed")
		}
		now := time.Now()
		h.broadcastPresence(c, proto.EventUserOffline, presence.StatusOffline, &now)
	}

	h.log.Debug().
		Str("conn_id", c.ConnID).
		Int64("user_id", c.Identity.UserID).
		Msg("connection unregistered")
}

// detachLocked removes the client from every room. Caller holds h.mu.
func (h *Hub) detachLocked(c *Client) {
	for roomID := range c.rooms {
		if members, ok := h.rooms[roomID]; ok {
			delete(members, c)
			if len(members) == 0 {
				delete(h.rooms, roomID)
			}
		}
	}
	c.rooms = make(map[string]struct{})
}

// JoinChat admits the connection to a chat room after verifying the user
// is a participant. Joining implicitly clears the user's unread counter
// ("viewing" semantics) and returns the chat plus recent history for the
// chat_joined reply.
func (h *Hub) JoinChat(ctx context.Context, c *Client, chatID string) (*store.Chat, []*store.Message, error) {
	chatRec, err := h.chats.Get(ctx, chatID, c.Identity.UserID)
	if err != nil {
		return nil, nil, err
	}

	h.subscribe(c, ChatRoomID(chatID), true)

	if err := h.chats.MarkRead(ctx, chatID, c.Identity.UserID); err != nil {
		h.log.Warn().Err(err).Str("chat_id", chatID).Msg("implicit mark-read failed")
	}

	history, err := h.chats.History(ctx, chatID, c.Identity.UserID)
	if err != nil {
		return nil, nil, err
	}

	return chatRec, history, nil
}

// JoinVideo admits the connection to an ephemeral video-comment room. Any
// authenticated user may join.
func (h *Hub) JoinVideo(c *Client, videoID string) {
	h.subscribe(c, VideoRoomID(videoID), false)
}

// JoinLive admits the connection to a live-session room and announces the
// new participant to existing members. The joiner's own reply carries
// media join credentials when a media backend is configured.
func (h *Hub) JoinLive(ctx context.Context, c *Client, sessionID string) *proto.SessionParticipantData {
	roomID := LiveRoomID(sessionID)

	announce := proto.SessionParticipantData{
		SessionID: sessionID,
		UserID:    c.Identity.UserID,
		UserName:  c.Identity.Name,
		Role:      string(c.Identity.Role),
	}
	h.ToRoom(roomID, &Event{Name: proto.EventParticipantJoined, Data: announce}, nil)

	h.subscribe(c, roomID, false)

	own := announce
	if h.liveTok != nil {
		info, err := h.liveTok.JoinToken(ctx, sessionID, c.Identity)
		if err != nil {
			h.log.Warn().Err(err).Str("session_id", sessionID).Msg("live join token failed")
		} else {
			own.Media = info
		}
	}
	return &own
}

// LeaveLive removes the connection from a live-session room and announces
// the departure to remaining members.
func (h *Hub) LeaveLive(c *Client, sessionID string) {
	roomID := LiveRoomID(sessionID)
	h.LeaveRoom(c, roomID)
	h.ToRoom(roomID, &Event{
		Name: proto.EventParticipantLeft,
		Data: proto.SessionParticipantData{
			SessionID: sessionID,
			UserID:    c.Identity.UserID,
			UserName:  c.Identity.Name,
			Role:      string(c.Identity.Role),
		},
	}, nil)
}

// LeaveRoom removes the subscription. Idempotent if already absent.
func (h *Hub) LeaveRoom(c *Client, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(c.rooms, roomID)
	if members, ok := h.rooms[roomID]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

func (h *Hub) subscribe(c *Client, roomID string, isChat bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[roomID]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[roomID] = members
	}
	members[c] = struct{}{}
	c.rooms[roomID] = struct{}{}
	if isChat {
		c.lastChatRoom = roomID
	}
}

// Typing broadcasts a typing indicator change to the chat room, excluding
// the typist.
func (h *Hub) Typing(c *Client, chatID string, isTyping bool) {
	h.ToRoom(ChatRoomID(chatID), &Event{
		Name: proto.EventUserTyping,
		Data: proto.UserTypingData{
			ChatID:   chatID,
			UserID:   c.Identity.UserID,
			UserName: c.Identity.Name,
			IsTyping: isTyping,
		},
	}, c)
}

// VideoComment broadcasts a timeline comment to the video room.
func (h *Hub) VideoComment(c *Client, data proto.VideoCommentData) {
	h.ToRoom(VideoRoomID(data.VideoID), &Event{
		Name: proto.EventNewVideoComment,
		Data: proto.NewVideoCommentData{
			VideoID:   data.VideoID,
			LessonID:  data.LessonID,
			Timestamp: data.Timestamp,
			Comment:   data.Comment,
			UserID:    c.Identity.UserID,
			UserName:  c.Identity.Name,
			SentAt:    time.Now(),
		},
	}, nil)
}

// FanOutMessage delivers an appended message: each participant other than
// the sender gets exactly one new_message event if online, or exactly one
// notification request if not. Sink failures are logged and swallowed —
// notification delivery is best-effort and must never fail the send.
func (h *Hub) FanOutMessage(ctx context.Context, chatRec *store.Chat, msg *store.Message) {
	ev := &Event{
		Name: proto.EventNewMessage,
		Data: proto.NewMessageData{
			ChatID:  chatRec.ID,
			Message: proto.MessageFromStore(msg),
		},
	}

	for _, p := range chatRec.Participants {
		if p.UserID == msg.SenderID {
			continue
		}

		online, err := h.registry.IsOnline(ctx, p.UserID)
		if err != nil {
			h.log.Warn().Err(err).Int64("user_id", p.UserID).Msg("presence lookup failed")
		}
		if online {
			h.ToIdentity(p.UserID, ev)
			continue
		}

		senderID := msg.SenderID
		req := notify.Request{
			RecipientID: p.UserID,
			SenderID:    &senderID,
			Type:        notify.TypeMessageReceived,
			Title:       "New message from " + msg.SenderName,
			Body:        previewContent(msg),
			Payload: map[string]any{
				"chatId":    chatRec.ID,
				"messageId": msg.Seq,
			},
			Channels: []notify.Channel{notify.ChannelInApp, notify.ChannelEmail, notify.ChannelPush},
		}
		if err := h.sink.Send(ctx, req); err != nil {
			h.log.Warn().Err(err).Int64("recipient_id", p.UserID).Msg("notification sink rejected request")
		}
	}
}

// ToRoom delivers an event to every connection subscribed to the room.
// Connections that can no longer keep up are silently dropped from
// delivery; there is no retry or queueing.
func (h *Hub) ToRoom(roomID string, ev *Event, except *Client) {
	h.mu.RLock()
	members := make([]*Client, 0, len(h.rooms[roomID]))
	for c := range h.rooms[roomID] {
		if c != except {
			members = append(members, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range members {
		c.send(ev)
	}
}

// ToIdentity delivers an event to the user's canonical connection, if any
// is attached to this process.
func (h *Hub) ToIdentity(userID int64, ev *Event) {
	h.mu.RLock()
	c := h.byUser[userID]
	h.mu.RUnlock()

	if c != nil {
		c.send(ev)
	}
}

// broadcastPresence announces a presence change to all other connections.
func (h *Hub) broadcastPresence(c *Client, event string, status presence.Status, lastSeen *time.Time) {
	data := proto.PresenceData{
		UserID:   c.Identity.UserID,
		UserName: c.Identity.Name,
		Status:   string(status),
		LastSeen: lastSeen,
	}

	h.mu.RLock()
	others := make([]*Client, 0, len(h.clients))
	for _, other := range h.clients {
		if other != c {
			others = append(others, other)
		}
	}
	h.mu.RUnlock()

	ev := &Event{Name: event, Data: data}
	for _, other := range others {
		other.send(ev)
	}
}

func previewContent(msg *store.Message) string {
	if msg.Content != "" {
		const max = 120
		if len(msg.Content) > max {
			return msg.Content[:max]
		}
		return msg.Content
	}
	return "sent a " + string(msg.Kind)
}

func roomExternalID(roomID string) string {
	for i := 0; i < len(roomID); i++ {
		if roomID[i] == ':' {
			return roomID[i+1:]
		}
	}
	return roomID
}
