package proto

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/coursechat/coursechat-server/internal/store"
)

func TestMessageFromStore(t *testing.T) {
	editedAt := time.Now()
	msg := &store.Message{
		Seq:        7,
		ChatID:     "c1",
		SenderID:   2,
		SenderName: "bob",
		SenderRole: store.RoleInstructor,
		Content:    "check the slides",
		Kind:       store.MessageKindFile,
		Attachments: []store.Attachment{
			{Filename: "slides.pdf", URL: "https://files/slides.pdf", Size: 2048, MimeType: "application/pdf"},
		},
		SentAt:   time.Now(),
		Edited:   true,
		EditedAt: &editedAt,
		ReadBy:   []store.ReadReceipt{{UserID: 1, ReadAt: time.Now()}},
	}

	view := MessageFromStore(msg)
	if view.ID != 7 || view.ChatID != "c1" || view.SenderRole != "instructor" {
		t.Fatalf("unexpected view: %+v", view)
	}
	if view.MessageType != "file" {
		t.Errorf("messageType = %q", view.MessageType)
	}
	if len(view.Attachments) != 1 || view.Attachments[0].Filename != "slides.pdf" {
		t.Errorf("attachments = %+v", view.Attachments)
	}
	if len(view.ReadBy) != 1 || view.ReadBy[0].UserID != 1 {
		t.Errorf("readBy = %+v", view.ReadBy)
	}
	if !view.Edited || view.EditedAt == nil {
		t.Errorf("edited flags lost: %+v", view)
	}
}

func TestChatFromStore_ViewerSeesOwnUnread(t *testing.T) {
	chat := &store.Chat{
		ID:   "c1",
		Kind: store.ChatKindCourse,
		Participants: []store.Participant{
			{UserID: 1, Name: "alice", Role: store.RoleStudent},
			{UserID: 2, Name: "bob", Role: store.RoleInstructor},
		},
		Active:       true,
		UnreadCounts: map[int64]int{1: 3, 2: 0},
	}

	forAlice := ChatFromStore(chat, 1)
	if forAlice.UnreadCount != 3 {
		t.Errorf("alice unread = %d, want 3", forAlice.UnreadCount)
	}
	forBob := ChatFromStore(chat, 2)
	if forBob.UnreadCount != 0 {
		t.Errorf("bob unread = %d, want 0", forBob.UnreadCount)
	}
	if forAlice.Kind != "course" || len(forAlice.Participants) != 2 {
		t.Errorf("unexpected view: %+v", forAlice)
	}
}

func TestOutboundEnvelope_OmitsEmptyFields(t *testing.T) {
	data, err := json.Marshal(Outbound{Type: "event", Event: EventUserOnline, Data: PresenceData{UserID: 1, Status: "online"}})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if _, ok := decoded["error"]; ok {
		t.Error("error field present on success envelope")
	}
	if string(decoded["event"]) != `"user_online"` {
		t.Errorf("event = %s", decoded["event"])
	}
}

func TestAttachmentsToStore_EmptyIsNil(t *testing.T) {
	if got := AttachmentsToStore(nil); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
	got := AttachmentsToStore([]AttachmentView{{Filename: "a.png", URL: "u", Size: 1, MimeType: "image/png"}})
	if len(got) != 1 || got[0].Filename != "a.png" {
		t.Fatalf("unexpected conversion: %+v", got)
	}
}
