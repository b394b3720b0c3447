package live

import (
	"context"

	"github.com/coursechat/coursechat-server/internal/auth"
)

// JoinInfo contains the credentials a client needs to join the media room
// backing a live session.
type JoinInfo struct {
	URL      string `json:"url"`       // WebSocket URL of the media server
	Token    string `json:"token"`     // access token for the media room
	RoomName string `json:"room_name"` // media room name
	Identity string `json:"identity"`  // user identity inside the room
}

// TokenProvider abstracts the media backend for live sessions. When no
// provider is configured, live-session rooms still work for chat-style
// broadcasts; clients simply receive no media credentials.
type TokenProvider interface {
	// JoinToken creates join credentials for one user in one session.
	JoinToken(ctx context.Context, sessionID string, identity auth.Identity) (*JoinInfo, error)
}
