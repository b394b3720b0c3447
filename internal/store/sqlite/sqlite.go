package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/coursechat/coursechat-server/internal/store"
)

// Schema bootstraps the chat tables. The users table mirrors the platform
// user directory; the chat core only ever reads from it.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL,
	role       TEXT NOT NULL DEFAULT 'student',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS chats (
	id               TEXT PRIMARY KEY,
	kind             TEXT NOT NULL,
	course_id        INTEGER,
	title            TEXT NOT NULL DEFAULT '',
	description      TEXT NOT NULL DEFAULT '',
	active           BOOLEAN NOT NULL DEFAULT 1,
	created_at       DATETIME NOT NULL,
	last_activity_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS chat_participants (
	chat_id   TEXT NOT NULL,
	user_id   INTEGER NOT NULL,
	name      TEXT NOT NULL,
	role      TEXT NOT NULL,
	joined_at DATETIME NOT NULL,
	position  INTEGER NOT NULL,
	PRIMARY KEY (chat_id, user_id),
	FOREIGN KEY (chat_id) REFERENCES chats(id)
);

CREATE TABLE IF NOT EXISTS messages (
	chat_id     TEXT NOT NULL,
	seq         INTEGER NOT NULL,
	sender_id   INTEGER NOT NULL,
	sender_name TEXT NOT NULL,
	sender_role TEXT NOT NULL,
	content     TEXT NOT NULL,
	kind        TEXT NOT NULL DEFAULT 'text',
	sent_at     DATETIME NOT NULL,
	edited      BOOLEAN NOT NULL DEFAULT 0,
	edited_at   DATETIME,
	PRIMARY KEY (chat_id, seq),
	FOREIGN KEY (chat_id) REFERENCES chats(id)
);

CREATE TABLE IF NOT EXISTS message_attachments (
	chat_id   TEXT NOT NULL,
	seq       INTEGER NOT NULL,
	filename  TEXT NOT NULL,
	url       TEXT NOT NULL,
	size      INTEGER NOT NULL DEFAULT 0,
	mime_type TEXT NOT NULL DEFAULT '',
	FOREIGN KEY (chat_id, seq) REFERENCES messages(chat_id, seq)
);

CREATE TABLE IF NOT EXISTS message_reads (
	chat_id TEXT NOT NULL,
	seq     INTEGER NOT NULL,
	user_id INTEGER NOT NULL,
	read_at DATETIME NOT NULL,
	PRIMARY KEY (chat_id, seq, user_id),
	FOREIGN KEY (chat_id, seq) REFERENCES messages(chat_id, seq)
);

CREATE TABLE IF NOT EXISTS unread_counts (
	chat_id TEXT NOT NULL,
	user_id INTEGER NOT NULL,
	count   INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (chat_id, user_id),
	FOREIGN KEY (chat_id) REFERENCES chats(id)
);

CREATE INDEX IF NOT EXISTS idx_participants_user ON chat_participants(user_id);
CREATE INDEX IF NOT EXISTS idx_chats_activity ON chats(last_activity_at DESC);
CREATE INDEX IF NOT EXISTS idx_messages_sent ON messages(chat_id, sent_at);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, func(db *sql.DB) error {
		_, err := db.Exec(Schema)
		return err
	})
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply schema plus fixtures in one step.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== DirectoryStore implementation ====

// GetUser retrieves a directory user by ID.
func (s *SQLiteStore) GetUser(ctx context.Context, id int64) (*store.User, error) {
	query := `
		SELECT id, name, role, created_at
		FROM users
		WHERE id = ?
	`
	var user store.User
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.Name,
		&user.Role,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}

	return &user, nil
}

// GetUsers retrieves directory users for the given IDs. Missing IDs are
// absent from the result.
func (s *SQLiteStore) GetUsers(ctx context.Context, ids []int64) ([]*store.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}

	query := `
		SELECT id, name, role, created_at
		FROM users
		WHERE id IN (` + placeholders + `)`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []*store.User
	for rows.Next() {
		var user store.User
		if err := rows.Scan(&user.ID, &user.Name, &user.Role, &user.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, &user)
	}

	return users, rows.Err()
}

// ==== ChatStore implementation ====

// CreateChat persists a chat with its participants and zeroed unread rows.
func (s *SQLiteStore) CreateChat(ctx context.Context, chat *store.Chat) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO chats (id, kind, course_id, title, description, active, created_at, last_activity_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		chat.ID, chat.Kind, chat.CourseID, chat.Title, chat.Description,
		chat.Active, chat.CreatedAt, chat.LastActivityAt,
	)
	if err != nil {
		return fmt.Errorf("insert chat: %w", err)
	}

	for i, p := range chat.Participants {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO chat_participants (chat_id, user_id, name, role, joined_at, position)
			VALUES (?, ?, ?, ?, ?, ?)`,
			chat.ID, p.UserID, p.Name, p.Role, p.JoinedAt, i,
		)
		if err != nil {
			return fmt.Errorf("insert participant: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO unread_counts (chat_id, user_id, count)
			VALUES (?, ?, 0)`,
			chat.ID, p.UserID,
		)
		if err != nil {
			return fmt.Errorf("insert unread counter: %w", err)
		}
	}

	return tx.Commit()
}

// GetChat retrieves a chat with participants and unread counters.
func (s *SQLiteStore) GetChat(ctx context.Context, id string) (*store.Chat, error) {
	query := `
		SELECT id, kind, course_id, title, description, active, created_at, last_activity_at
		FROM chats
		WHERE id = ?
	`
	var chat store.Chat
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&chat.ID,
		&chat.Kind,
		&chat.CourseID,
		&chat.Title,
		&chat.Description,
		&chat.Active,
		&chat.CreatedAt,
		&chat.LastActivityAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("chat %s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query chat: %w", err)
	}

	if err := s.loadParticipants(ctx, &chat); err != nil {
		return nil, err
	}

	return &chat, nil
}

func (s *SQLiteStore) loadParticipants(ctx context.Context, chat *store.Chat) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.user_id, p.name, p.role, p.joined_at, COALESCE(u.count, 0)
		FROM chat_participants p
		LEFT JOIN unread_counts u ON u.chat_id = p.chat_id AND u.user_id = p.user_id
		WHERE p.chat_id = ?
		ORDER BY p.position`,
		chat.ID,
	)
	if err != nil {
		return fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()

	chat.UnreadCounts = make(map[int64]int)
	for rows.Next() {
		var p store.Participant
		var unread int
		if err := rows.Scan(&p.UserID, &p.Name, &p.Role, &p.JoinedAt, &unread); err != nil {
			return fmt.Errorf("scan participant: %w", err)
		}
		chat.Participants = append(chat.Participants, p)
		chat.UnreadCounts[p.UserID] = unread
	}

	return rows.Err()
}

// ListChatsForUser lists chats for a user, most recent activity first.
func (s *SQLiteStore) ListChatsForUser(ctx context.Context, userID int64) ([]*store.ChatSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id
		FROM chats c
		JOIN chat_participants p ON p.chat_id = c.id
		WHERE p.user_id = ? AND c.active = 1
		ORDER BY c.last_activity_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query chats: %w", err)
	}

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan chat id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	summaries := make([]*store.ChatSummary, 0, len(ids))
	for _, id := range ids {
		chat, err := s.GetChat(ctx, id)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, &store.ChatSummary{
			Chat:   chat,
			Unread: chat.UnreadCounts[userID],
		})
	}

	return summaries, nil
}

// IsParticipant checks whether a user belongs to a chat.
func (s *SQLiteStore) IsParticipant(ctx context.Context, chatID string, userID int64) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM chat_participants
		WHERE chat_id = ? AND user_id = ?`,
		chatID, userID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("query participant: %w", err)
	}
	return count > 0, nil
}

// SetChatActive flips the soft-delete flag.
func (s *SQLiteStore) SetChatActive(ctx context.Context, chatID string, active bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE chats SET active = ? WHERE id = ?`, active, chatID)
	if err != nil {
		return fmt.Errorf("update chat: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("chat %s: %w", chatID, store.ErrNotFound)
	}
	return nil
}

// ==== MessageStore implementation ====

// AppendMessage persists a message at the next sequence number and bumps
// unread counters for everyone but the sender in one transaction.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *store.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE chat_id = ?`,
		msg.ChatID,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("next seq: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (chat_id, seq, sender_id, sender_name, sender_role, content, kind, sent_at, edited)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		msg.ChatID, seq, msg.SenderID, msg.SenderName, msg.SenderRole,
		msg.Content, msg.Kind, msg.SentAt,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	for _, a := range msg.Attachments {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO message_attachments (chat_id, seq, filename, url, size, mime_type)
			VALUES (?, ?, ?, ?, ?, ?)`,
			msg.ChatID, seq, a.Filename, a.URL, a.Size, a.MimeType,
		)
		if err != nil {
			return fmt.Errorf("insert attachment: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE unread_counts SET count = count + 1
		WHERE chat_id = ? AND user_id != ?`,
		msg.ChatID, msg.SenderID,
	)
	if err != nil {
		return fmt.Errorf("bump unread counters: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE chats SET last_activity_at = ? WHERE id = ?`,
		msg.SentAt, msg.ChatID,
	)
	if err != nil {
		return fmt.Errorf("touch chat: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	msg.Seq = seq
	return nil
}

// ListMessagesPage returns one backward page of messages in chronological
// order. Page 1 is the most recent pageSize messages.
func (s *SQLiteStore) ListMessagesPage(ctx context.Context, chatID string, page, pageSize int) ([]*store.Message, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT chat_id, seq, sender_id, sender_name, sender_role, content, kind, sent_at, edited, edited_at
		FROM messages
		WHERE chat_id = ?
		ORDER BY seq DESC
		LIMIT ? OFFSET ?`,
		chatID, pageSize, (page-1)*pageSize,
	)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}

	messages, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}

	// The query walks newest-first; flip the page back to reading order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	if err := s.loadMessageDetails(ctx, chatID, messages); err != nil {
		return nil, err
	}

	return messages, nil
}

// SearchMessages returns up to limit matches in chronological order.
// Content matching is a case-insensitive substring test; all filters are
// conjunctive.
func (s *SQLiteStore) SearchMessages(ctx context.Context, chatID string, filter store.MessageFilter, limit int) ([]*store.Message, error) {
	query := `
		SELECT chat_id, seq, sender_id, sender_name, sender_role, content, kind, sent_at, edited, edited_at
		FROM messages
		WHERE chat_id = ?`
	args := []any{chatID}

	if filter.Query != "" {
		query += ` AND content LIKE ? ESCAPE '\'`
		args = append(args, "%"+escapeLike(filter.Query)+"%")
	}
	if filter.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, filter.Kind)
	}
	if filter.DateFrom != nil {
		query += ` AND sent_at >= ?`
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		query += ` AND sent_at <= ?`
		args = append(args, *filter.DateTo)
	}

	query += ` ORDER BY seq LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}

	messages, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}

	if err := s.loadMessageDetails(ctx, chatID, messages); err != nil {
		return nil, err
	}

	return messages, nil
}

// MarkRead zeroes the unread counter and backfills read receipts for every
// message the user has not read yet. Idempotent.
func (s *SQLiteStore) MarkRead(ctx context.Context, chatID string, userID int64, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE unread_counts SET count = 0
		WHERE chat_id = ? AND user_id = ?`,
		chatID, userID,
	)
	if err != nil {
		return fmt.Errorf("reset unread counter: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO message_reads (chat_id, seq, user_id, read_at)
		SELECT m.chat_id, m.seq, ?, ?
		FROM messages m
		WHERE m.chat_id = ?
		  AND NOT EXISTS (
			SELECT 1 FROM message_reads r
			WHERE r.chat_id = m.chat_id AND r.seq = m.seq AND r.user_id = ?
		  )`,
		userID, at, chatID, userID,
	)
	if err != nil {
		return fmt.Errorf("insert read receipts: %w", err)
	}

	return tx.Commit()
}

// UnreadTotal sums unread counters across the user's active chats.
func (s *SQLiteStore) UnreadTotal(ctx context.Context, userID int64) (int, error) {
	var total int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(u.count), 0)
		FROM unread_counts u
		JOIN chats c ON c.id = u.chat_id
		WHERE u.user_id = ? AND c.active = 1`,
		userID,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum unread counters: %w", err)
	}
	return total, nil
}

func scanMessages(rows *sql.Rows) ([]*store.Message, error) {
	defer rows.Close()

	var messages []*store.Message
	for rows.Next() {
		var msg store.Message
		var editedAt sql.NullTime
		err := rows.Scan(
			&msg.ChatID,
			&msg.Seq,
			&msg.SenderID,
			&msg.SenderName,
			&msg.SenderRole,
			&msg.Content,
			&msg.Kind,
			&msg.SentAt,
			&msg.Edited,
			&editedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if editedAt.Valid {
			msg.EditedAt = &editedAt.Time
		}
		messages = append(messages, &msg)
	}

	return messages, rows.Err()
}

// loadMessageDetails attaches attachments and read receipts to the given
// messages. The slices are small (page sized), so per-message queries keep
// the code simple.
func (s *SQLiteStore) loadMessageDetails(ctx context.Context, chatID string, messages []*store.Message) error {
	for _, msg := range messages {
		rows, err := s.db.QueryContext(ctx, `
			SELECT filename, url, size, mime_type
			FROM message_attachments
			WHERE chat_id = ? AND seq = ?`,
			chatID, msg.Seq,
		)
		if err != nil {
			return fmt.Errorf("query attachments: %w", err)
		}
		for rows.Next() {
			var a store.Attachment
			if err := rows.Scan(&a.Filename, &a.URL, &a.Size, &a.MimeType); err != nil {
				rows.Close()
				return fmt.Errorf("scan attachment: %w", err)
			}
			msg.Attachments = append(msg.Attachments, a)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		rows, err = s.db.QueryContext(ctx, `
			SELECT user_id, read_at
			FROM message_reads
			WHERE chat_id = ? AND seq = ?
			ORDER BY read_at`,
			chatID, msg.Seq,
		)
		if err != nil {
			return fmt.Errorf("query read receipts: %w", err)
		}
		for rows.Next() {
			var r store.ReadReceipt
			if err := rows.Scan(&r.UserID, &r.ReadAt); err != nil {
				rows.Close()
				return fmt.Errorf("scan read receipt: %w", err)
			}
			msg.ReadBy = append(msg.ReadBy, r)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()
	}

	return nil
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

// Ensure SQLiteStore implements store.Store.
var _ store.Store = (*SQLiteStore)(nil)
