package proto

import (
	"encoding/json"
	"time"

	"github.com/coursechat/coursechat-server/internal/store"
)

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Inbound socket event types.
const (
	InboundJoinChat         = "join_chat"
	InboundLeaveChat        = "leave_chat"
	InboundSendMessage      = "send_message"
	InboundTypingStart      = "typing_start"
	InboundTypingStop       = "typing_stop"
	InboundJoinVideoRoom    = "join_video_room"
	InboundLeaveVideoRoom   = "leave_video_room"
	InboundVideoComment     = "video_comment"
	InboundJoinLiveSession  = "join_live_session"
	InboundLeaveLiveSession = "leave_live_session"
	InboundGetUnreadCount   = "get_unread_notifications"
)

// Outbound socket event types.
const (
	EventChatJoined        = "chat_joined"
	EventNewMessage        = "new_message"
	EventUserTyping        = "user_typing"
	EventNewVideoComment   = "new_video_comment"
	EventParticipantJoined = "participant_joined"
	EventParticipantLeft   = "participant_left"
	EventUnreadCount       = "unread_notifications_count"
	EventUserOnline        = "user_online"
	EventUserOffline       = "user_offline"
)

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

// ChatRef carries just a chat id.
type ChatRef struct {
	ChatID string `json:"chatId"`
}

// SendMessageData is a chat message from the client.
type SendMessageData struct {
	ChatID      string           `json:"chatId"`
	Content     string           `json:"content"`
	MessageType string           `json:"messageType,omitempty"`
	Attachments []AttachmentView `json:"attachments,omitempty"`
}

// VideoRef carries a video room id.
type VideoRef struct {
	VideoID string `json:"videoId"`
}

// VideoCommentData is a timeline comment on a course video.
type VideoCommentData struct {
	VideoID   string  `json:"videoId"`
	LessonID  string  `json:"lessonId,omitempty"`
	Timestamp float64 `json:"timestamp"`
	Comment   string  `json:"comment"`
}

// SessionRef carries a live session id.
type SessionRef struct {
	SessionID string `json:"sessionId"`
}

// AttachmentView is an attachment on the wire.
type AttachmentView struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
}

// ReadReceiptView is a read receipt on the wire.
type ReadReceiptView struct {
	UserID int64     `json:"userId"`
	ReadAt time.Time `json:"readAt"`
}

// MessageView is a chat message on the wire.
type MessageView struct {
	ID          int64             `json:"id"`
	ChatID      string            `json:"chatId"`
	SenderID    int64             `json:"senderId"`
	SenderName  string            `json:"senderName"`
	SenderRole  string            `json:"senderRole"`
	Content     string            `json:"content"`
	MessageType string            `json:"messageType"`
	Attachments []AttachmentView  `json:"attachments,omitempty"`
	SentAt      time.Time         `json:"sentAt"`
	Edited      bool              `json:"edited"`
	EditedAt    *time.Time        `json:"editedAt,omitempty"`
	ReadBy      []ReadReceiptView `json:"readBy,omitempty"`
}

// ParticipantView is a chat participant on the wire.
type ParticipantView struct {
	UserID   int64     `json:"userId"`
	Name     string    `json:"name"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joinedAt"`
}

// ChatView is a chat on the wire, annotated with the viewer's own unread
// count.
type ChatView struct {
	ID             string            `json:"id"`
	Kind           string            `json:"chatType"`
	CourseID       *int64            `json:"courseId,omitempty"`
	Title          string            `json:"title,omitempty"`
	Description    string            `json:"description,omitempty"`
	Participants   []ParticipantView `json:"participants"`
	Active         bool              `json:"active"`
	CreatedAt      time.Time         `json:"createdAt"`
	LastActivityAt time.Time         `json:"lastActivityAt"`
	UnreadCount    int               `json:"unreadCount"`
}

// ChatJoinedData confirms a chat room join with recent history.
type ChatJoinedData struct {
	ChatID       string            `json:"chatId"`
	Messages     []MessageView     `json:"messages"`
	Participants []ParticipantView `json:"participants"`
}

// NewMessageData broadcasts a freshly appended message.
type NewMessageData struct {
	ChatID  string      `json:"chatId"`
	Message MessageView `json:"message"`
}

// UserTypingData signals a typing indicator change, excluding the sender.
type UserTypingData struct {
	ChatID   string `json:"chatId"`
	UserID   int64  `json:"userId"`
	UserName string `json:"userName"`
	IsTyping bool   `json:"isTyping"`
}

// NewVideoCommentData broadcasts a video timeline comment.
type NewVideoCommentData struct {
	VideoID   string    `json:"videoId"`
	LessonID  string    `json:"lessonId,omitempty"`
	Timestamp float64   `json:"timestamp"`
	Comment   string    `json:"comment"`
	UserID    int64     `json:"userId"`
	UserName  string    `json:"userName"`
	SentAt    time.Time `json:"sentAt"`
}

// SessionParticipantData announces a live-session join or leave.
type SessionParticipantData struct {
	SessionID string `json:"sessionId"`
	UserID    int64  `json:"userId"`
	UserName  string `json:"userName"`
	Role      string `json:"role"`

	// Media join credentials; only present on the joiner's own
	// participant_joined event when a media backend is configured.
	Media any `json:"media,omitempty"`
}

// UnreadCountData reports the caller's total unread messages.
type UnreadCountData struct {
	Count int `json:"count"`
}

// PresenceData announces a presence change.
type PresenceData struct {
	UserID   int64      `json:"userId"`
	UserName string     `json:"userName"`
	Status   string     `json:"status"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

// MessageFromStore converts a persisted message to its wire form.
func MessageFromStore(msg *store.Message) MessageView {
	view := MessageView{
		ID:          msg.Seq,
		ChatID:      msg.ChatID,
		SenderID:    msg.SenderID,
		SenderName:  msg.SenderName,
		SenderRole:  string(msg.SenderRole),
		Content:     msg.Content,
		MessageType: string(msg.Kind),
		SentAt:      msg.SentAt,
		Edited:      msg.Edited,
		EditedAt:    msg.EditedAt,
	}
	for _, a := range msg.Attachments {
		view.Attachments = append(view.Attachments, AttachmentView{
			Filename: a.Filename,
			URL:      a.URL,
			Size:     a.Size,
			MimeType: a.MimeType,
		})
	}
	for _, r := range msg.ReadBy {
		view.ReadBy = append(view.ReadBy, ReadReceiptView{UserID: r.UserID, ReadAt: r.ReadAt})
	}
	return view
}

// MessagesFromStore converts a message slice to wire form.
func MessagesFromStore(msgs []*store.Message) []MessageView {
	views := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, MessageFromStore(m))
	}
	return views
}

// ParticipantsFromStore converts a participant list to wire form.
func ParticipantsFromStore(participants []store.Participant) []ParticipantView {
	views := make([]ParticipantView, 0, len(participants))
	for _, p := range participants {
		views = append(views, ParticipantView{
			UserID:   p.UserID,
			Name:     p.Name,
			Role:     string(p.Role),
			JoinedAt: p.JoinedAt,
		})
	}
	return views
}

// ChatFromStore converts a chat to wire form for one viewer.
func ChatFromStore(chat *store.Chat, viewer int64) ChatView {
	return ChatView{
		ID:             chat.ID,
		Kind:           string(chat.Kind),
		CourseID:       chat.CourseID,
		Title:          chat.Title,
		Description:    chat.Description,
		Participants:   ParticipantsFromStore(chat.Participants),
		Active:         chat.Active,
		CreatedAt:      chat.CreatedAt,
		LastActivityAt: chat.LastActivityAt,
		UnreadCount:    chat.UnreadCounts[viewer],
	}
}

// AttachmentsToStore converts wire attachments to their persisted form.
func AttachmentsToStore(views []AttachmentView) []store.Attachment {
	if len(views) == 0 {
		return nil
	}
	attachments := make([]store.Attachment, 0, len(views))
	for _, v := range views {
		attachments = append(attachments, store.Attachment{
			Filename: v.Filename,
			URL:      v.URL,
			Size:     v.Size,
			MimeType: v.MimeType,
		})
	}
	return attachments
}
