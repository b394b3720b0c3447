package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/coursechat/coursechat-server/internal/auth"
	"github.com/coursechat/coursechat-server/internal/chat"
	"github.com/coursechat/coursechat-server/internal/hub"
	"github.com/coursechat/coursechat-server/internal/proto"
	"github.com/coursechat/coursechat-server/internal/utils"
)

// WSHandler upgrades HTTP connections, authenticates them and bridges
// them to hub clients.
type WSHandler struct {
	hub           *hub.Hub
	chats         *chat.Service
	authenticator *auth.Authenticator
	log           *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(h *hub.Hub, chats *chat.Service, authenticator *auth.Authenticator, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{hub: h, chats: chats, authenticator: authenticator, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	// Authentication must complete before any other operation is
	// accepted; failure terminates the handshake.
	identity, err := h.authenticator.Authenticate(bearerToken(r))
	if err != nil {
		h.log.Debug().Err(err).Msg("ws authentication failed")
		conn.Close(websocket.StatusPolicyViolation, "unauthenticated")
		return
	}

	client := hub.NewClient(utils.NewID(), identity)
	h.hub.Register(ctx, client)
	defer h.hub.Unregister(context.Background(), client)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

// bearerToken extracts the credential from the Authorization header or,
// for browser clients that cannot set headers on WebSocket upgrades, the
// token query parameter.
func bearerToken(r *stdhttp.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
	}
	return r.URL.Query().Get("token")
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *hub.Client) error {
	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			return err
		}

		reply, protoErr := h.handleInbound(ctx, client, inbound)
		if protoErr != nil {
			// Errors go back to the originating connection only.
			if writeErr := wsjson.Write(ctx, conn, proto.Outbound{
				Type:  "error",
				Error: protoErr,
			}); writeErr != nil {
				return writeErr
			}
			continue
		}
		if reply != nil {
			if writeErr := wsjson.Write(ctx, conn, reply.Outbound()); writeErr != nil {
				return writeErr
			}
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *hub.Client) error {
	for {
		select {
		case event, ok := <-client.Events:
			if !ok {
				return nil
			}
			if err := wsjson.Write(ctx, conn, event.Outbound()); err != nil {
				h.log.Error().Err(err).Str("conn_id", client.ConnID).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
