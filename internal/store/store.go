package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by stores when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Role is a user's global role on the platform.
type Role string

const (
	RoleStudent    Role = "student"
	RoleInstructor Role = "instructor"
	RoleAdmin      Role = "admin"
)

// User is a row from the platform user directory. The chat core only
// reads it; registration and profile management live elsewhere.
type User struct {
	ID        int64
	Name      string
	Role      Role
	CreatedAt time.Time
}

// ChatKind defines different kinds of conversations.
type ChatKind string

const (
	ChatKindDirect  ChatKind = "direct"
	ChatKindGroup   ChatKind = "group"
	ChatKindCourse  ChatKind = "course"
	ChatKindSupport ChatKind = "support"
)

// Participant is a member of a chat with the role they held when added.
type Participant struct {
	UserID   int64
	Name     string
	Role     Role
	JoinedAt time.Time
}

// Chat is a persisted conversation with a fixed participant list and an
// append-only message log. Deletion is always soft (Active=false) so the
// message history survives for moderation.
type Chat struct {
	ID             string
	Kind           ChatKind
	CourseID       *int64
	Title          string
	Description    string
	Participants   []Participant
	Active         bool
	CreatedAt      time.Time
	LastActivityAt time.Time

	// UnreadCounts maps participant user ID to the number of messages
	// appended since that participant's last read-mark.
	UnreadCounts map[int64]int
}

// Participant returns the chat participant entry for userID, or nil.
func (c *Chat) Participant(userID int64) *Participant {
	for i := range c.Participants {
		if c.Participants[i].UserID == userID {
			return &c.Participants[i]
		}
	}
	return nil
}

// MessageKind defines the content type of a message.
type MessageKind string

const (
	MessageKindText  MessageKind = "text"
	MessageKindImage MessageKind = "image"
	MessageKindFile  MessageKind = "file"
	MessageKindVideo MessageKind = "video"
	MessageKindAudio MessageKind = "audio"
)

// Attachment is a file attached to a message.
type Attachment struct {
	Filename string
	URL      string
	Size     int64
	MimeType string
}

// ReadReceipt records that a participant has read a message.
type ReadReceipt struct {
	UserID int64
	ReadAt time.Time
}

// Message is a persisted chat message. Seq is assigned by the store in
// append order and is the ordering authority within a chat; SentAt is
// display metadata only.
type Message struct {
	Seq         int64
	ChatID      string
	SenderID    int64
	SenderName  string
	SenderRole  Role
	Content     string
	Kind        MessageKind
	Attachments []Attachment
	SentAt      time.Time
	Edited      bool
	EditedAt    *time.Time
	ReadBy      []ReadReceipt
}

// MessageFilter narrows a message search. Zero values mean "no filter".
type MessageFilter struct {
	Query    string
	Kind     MessageKind
	DateFrom *time.Time
	DateTo   *time.Time
}

// ChatSummary is a chat as it appears in a user's chat list: the chat
// itself plus that user's own unread count.
type ChatSummary struct {
	Chat   *Chat
	Unread int
}

// DirectoryStore reads the platform user directory.
type DirectoryStore interface {
	// GetUser retrieves a directory user by ID.
	GetUser(ctx context.Context, id int64) (*User, error)

	// GetUsers retrieves directory users for all given IDs. Missing IDs
	// are simply absent from the result; the caller decides whether that
	// is an error.
	GetUsers(ctx context.Context, ids []int64) ([]*User, error)
}

// ChatStore handles chat persistence.
type ChatStore interface {
	// CreateChat persists a new chat together with its participant list
	// and zeroed unread counters.
	CreateChat(ctx context.Context, chat *Chat) error

	// GetChat retrieves a chat with participants and unread counters.
	GetChat(ctx context.Context, id string) (*Chat, error)

	// ListChatsForUser lists chats the user participates in, ordered by
	// last activity descending, each annotated with the user's unread count.
	ListChatsForUser(ctx context.Context, userID int64) ([]*ChatSummary, error)

	// IsParticipant checks whether the user belongs to the chat.
	IsParticipant(ctx context.Context, chatID string, userID int64) (bool, error)

	// SetChatActive flips the soft-delete flag.
	SetChatActive(ctx context.Context, chatID string, active bool) error
}

// MessageStore handles message persistence.
type MessageStore interface {
	// AppendMessage assigns the next sequence number in the chat, persists
	// the message with its attachments, updates the chat's last-activity
	// timestamp and increments unread counters for every participant other
	// than the sender, all in one transaction. The caller must hold the
	// per-chat append lock. The assigned Seq is written back into msg.
	AppendMessage(ctx context.Context, msg *Message) error

	// ListMessagesPage returns one page of messages. Page 1 holds the most
	// recent pageSize messages; higher pages walk backward in time. Within
	// a page messages are in chronological order.
	ListMessagesPage(ctx context.Context, chatID string, page, pageSize int) ([]*Message, error)

	// SearchMessages returns up to limit messages matching the filter, in
	// chronological order.
	SearchMessages(ctx context.Context, chatID string, filter MessageFilter, limit int) ([]*Message, error)

	// MarkRead zeroes the user's unread counter for the chat and inserts a
	// read receipt for every message still lacking one from that user.
	// Idempotent.
	MarkRead(ctx context.Context, chatID string, userID int64, at time.Time) error

	// UnreadTotal sums the user's unread counters across all active chats.
	UnreadTotal(ctx context.Context, userID int64) (int, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	DirectoryStore
	ChatStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
