package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/coursechat/coursechat-server/internal/auth"
	"github.com/coursechat/coursechat-server/internal/store"
)

const (
	// SearchLimit caps search results to protect against unbounded scans.
	SearchLimit = 100

	// HistoryPageSize is how many recent messages a client receives when
	// joining a chat room, and the default REST page size.
	HistoryPageSize = 50
)

// Service is the sole legitimate mutator of chat state. Message appends
// and read-marks for one chat are serialized through a per-chat lock so
// sequence assignment and unread-counter updates stay atomic as a unit;
// different chats proceed fully in parallel.
type Service struct {
	store store.Store
	log   *zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService creates a chat service over the given store.
func NewService(st store.Store, logger *zerolog.Logger) *Service {
	return &Service{
		store: st,
		log:   logger,
		locks: make(map[string]*sync.Mutex),
	}
}

// chatLock returns the append lock for one chat id.
func (s *Service) chatLock(chatID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[chatID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[chatID] = l
	}
	return l
}

// Create constructs a chat with the initiator as the first participant.
// Participant roles come from the platform user directory; any
// unresolvable participant ID fails the whole creation.
func (s *Service) Create(ctx context.Context, initiator auth.Identity, participantIDs []int64, kind store.ChatKind, courseID *int64, title, description string) (*store.Chat, error) {
	switch kind {
	case store.ChatKindDirect, store.ChatKindGroup, store.ChatKindCourse, store.ChatKindSupport:
	default:
		return nil, fmt.Errorf("%w: unknown chat kind %q", ErrBadRequest, kind)
	}

	ids := make([]int64, 0, len(participantIDs))
	for _, id := range participantIDs {
		if id != initiator.UserID {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: chat needs at least one other participant", ErrBadRequest)
	}

	users, err := s.store.GetUsers(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve participants: %w", err)
	}
	if len(users) != len(ids) {
		return nil, ErrParticipantsNotFound
	}

	now := time.Now()
	participants := make([]store.Participant, 0, len(users)+1)
	participants = append(participants, store.Participant{
		UserID:   initiator.UserID,
		Name:     initiator.Name,
		Role:     initiator.Role,
		JoinedAt: now,
	})
	for _, u := range users {
		participants = append(participants, store.Participant{
			UserID:   u.ID,
			Name:     u.Name,
			Role:     u.Role,
			JoinedAt: now,
		})
	}

	chat := &store.Chat{
		ID:             uuid.NewString(),
		Kind:           kind,
		CourseID:       courseID,
		Title:          title,
		Description:    description,
		Participants:   participants,
		Active:         true,
		CreatedAt:      now,
		LastActivityAt: now,
		UnreadCounts:   make(map[int64]int),
	}
	for _, p := range participants {
		chat.UnreadCounts[p.UserID] = 0
	}

	if err := s.store.CreateChat(ctx, chat); err != nil {
		return nil, fmt.Errorf("create chat: %w", err)
	}

	s.log.Info().
		Str("chat_id", chat.ID).
		Str("kind", string(kind)).
		Int("participants", len(participants)).
		Msg("chat created")

	return chat, nil
}

// Get returns a chat the caller participates in.
func (s *Service) Get(ctx context.Context, chatID string, caller int64) (*store.Chat, error) {
	chat, err := s.loadChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if chat.Participant(caller) == nil {
		return nil, ErrNotAuthorized
	}
	return chat, nil
}

// IsParticipant reports whether the user belongs to the chat. Used by the
// room membership manager before admitting a connection to a chat room.
func (s *Service) IsParticipant(ctx context.Context, chatID string, userID int64) (bool, error) {
	return s.store.IsParticipant(ctx, chatID, userID)
}

// Append validates the sender, assigns the next sequence number and
// persists the message; unread counters for every other participant are
// incremented in the same transaction. Returns the updated chat and the
// persisted message.
func (s *Service) Append(ctx context.Context, chatID string, sender auth.Identity, content string, kind store.MessageKind, attachments []store.Attachment) (*store.Chat, *store.Message, error) {
	if content == "" && len(attachments) == 0 {
		return nil, nil, fmt.Errorf("%w: empty message", ErrBadRequest)
	}
	if kind == "" {
		kind = store.MessageKindText
	}
	switch kind {
	case store.MessageKindText, store.MessageKindImage, store.MessageKindFile,
		store.MessageKindVideo, store.MessageKindAudio:
	default:
		return nil, nil, fmt.Errorf("%w: unknown message kind %q", ErrBadRequest, kind)
	}

	lock := s.chatLock(chatID)
	lock.Lock()
	defer lock.Unlock()

	chat, err := s.loadChat(ctx, chatID)
	if err != nil {
		return nil, nil, err
	}
	if !chat.Active {
		return nil, nil, ErrChatInactive
	}
	p := chat.Participant(sender.UserID)
	if p == nil {
		return nil, nil, ErrNotAuthorized
	}

	msg := &store.Message{
		ChatID:      chatID,
		SenderID:    sender.UserID,
		SenderName:  sender.Name,
		SenderRole:  p.Role,
		Content:     content,
		Kind:        kind,
		Attachments: attachments,
		SentAt:      time.Now(),
	}

	if err := s.store.AppendMessage(ctx, msg); err != nil {
		return nil, nil, fmt.Errorf("append message: %w", err)
	}

	chat.LastActivityAt = msg.SentAt
	for id := range chat.UnreadCounts {
		if id != sender.UserID {
			chat.UnreadCounts[id]++
		}
	}

	return chat, msg, nil
}

// MarkRead zeroes the caller's unread counter and backfills read receipts.
// Idempotent: calling it twice leaves the counter at zero and adds no
// duplicate receipts.
func (s *Service) MarkRead(ctx context.Context, chatID string, userID int64) error {
	ok, err := s.store.IsParticipant(ctx, chatID, userID)
	if err != nil {
		return fmt.Errorf("check participant: %w", err)
	}
	if !ok {
		return ErrNotAuthorized
	}

	lock := s.chatLock(chatID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.store.MarkRead(ctx, chatID, userID, time.Now()); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

// ListForUser lists the caller's chats ordered by last activity, each
// annotated with the caller's own unread count.
func (s *Service) ListForUser(ctx context.Context, userID int64) ([]*store.ChatSummary, error) {
	summaries, err := s.store.ListChatsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	return summaries, nil
}

// Page returns one backward page of messages in chronological order.
func (s *Service) Page(ctx context.Context, chatID string, caller int64, page, pageSize int) ([]*store.Message, error) {
	if _, err := s.Get(ctx, chatID, caller); err != nil {
		return nil, err
	}
	if pageSize <= 0 || pageSize > 200 {
		pageSize = HistoryPageSize
	}
	msgs, err := s.store.ListMessagesPage(ctx, chatID, page, pageSize)
	if err != nil {
		return nil, fmt.Errorf("page messages: %w", err)
	}
	return msgs, nil
}

// History returns the most recent HistoryPageSize messages, oldest first.
func (s *Service) History(ctx context.Context, chatID string, caller int64) ([]*store.Message, error) {
	return s.Page(ctx, chatID, caller, 1, HistoryPageSize)
}

// Search finds up to SearchLimit messages matching the filter, preserving
// chronological order among the matches.
func (s *Service) Search(ctx context.Context, chatID string, caller int64, filter store.MessageFilter) ([]*store.Message, error) {
	if _, err := s.Get(ctx, chatID, caller); err != nil {
		return nil, err
	}
	msgs, err := s.store.SearchMessages(ctx, chatID, filter, SearchLimit)
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	return msgs, nil
}

// UnreadTotal sums the user's unread counters across active chats.
func (s *Service) UnreadTotal(ctx context.Context, userID int64) (int, error) {
	return s.store.UnreadTotal(ctx, userID)
}

// SoftDelete deactivates a chat. Only a participant holding the
// instructor or admin role in the chat may do this; history is never
// purged.
func (s *Service) SoftDelete(ctx context.Context, chatID string, acting auth.Identity) error {
	chat, err := s.loadChat(ctx, chatID)
	if err != nil {
		return err
	}

	p := chat.Participant(acting.UserID)
	if p == nil || (p.Role != store.RoleInstructor && p.Role != store.RoleAdmin) {
		return ErrNotAuthorized
	}

	if err := s.store.SetChatActive(ctx, chatID, false); err != nil {
		return fmt.Errorf("deactivate chat: %w", err)
	}

	s.log.Info().
		Str("chat_id", chatID).
		Int64("acting_user", acting.UserID).
		Msg("chat soft-deleted")

	return nil
}

func (s *Service) loadChat(ctx context.Context, chatID string) (*store.Chat, error) {
	chat, err := s.store.GetChat(ctx, chatID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrChatNotFound
		}
		return nil, fmt.Errorf("load chat: %w", err)
	}
	return chat, nil
}
