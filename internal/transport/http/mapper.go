package http

import (
	"context"
	"encoding/json"

	"github.com/coursechat/coursechat-server/internal/chat"
	"github.com/coursechat/coursechat-server/internal/hub"
	"github.com/coursechat/coursechat-server/internal/proto"
	"github.com/coursechat/coursechat-server/internal/store"
)

// handleInbound dispatches one client event. The returned reply, if any,
// goes only to the originating connection; broadcasts happen inside the
// hub.
func (h *WSHandler) handleInbound(ctx context.Context, client *hub.Client, inbound proto.Inbound) (*hub.Event, *proto.Error) {
	switch inbound.Type {
	case proto.InboundJoinChat:
		var ref proto.ChatRef
		if err := json.Unmarshal(inbound.Data, &ref); err != nil || ref.ChatID == "" {
			return nil, badRequest("chatId is required")
		}

		chatRec, history, err := h.hub.JoinChat(ctx, client, ref.ChatID)
		if err != nil {
			return nil, wireError(err)
		}

		return &hub.Event{
			Name: proto.EventChatJoined,
			Data: proto.ChatJoinedData{
				ChatID:       chatRec.ID,
				Messages:     proto.MessagesFromStore(history),
				Participants: proto.ParticipantsFromStore(chatRec.Participants),
			},
		}, nil

	case proto.InboundLeaveChat:
		var ref proto.ChatRef
		if err := json.Unmarshal(inbound.Data, &ref); err != nil || ref.ChatID == "" {
			return nil, badRequest("chatId is required")
		}
		h.hub.LeaveRoom(client, hub.ChatRoomID(ref.ChatID))
		return nil, nil

	case proto.InboundSendMessage:
		var data proto.SendMessageData
		if err := json.Unmarshal(inbound.Data, &data); err != nil || data.ChatID == "" {
			return nil, badRequest("chatId is required")
		}

		chatRec, msg, err := h.chats.Append(
			ctx,
			data.ChatID,
			client.Identity,
			data.Content,
			store.MessageKind(data.MessageType),
			proto.AttachmentsToStore(data.Attachments),
		)
		if err != nil {
			return nil, wireError(err)
		}

		h.hub.FanOutMessage(ctx, chatRec, msg)

		// The sender gets the persisted message back as confirmation.
		return &hub.Event{
			Name: proto.EventNewMessage,
			Data: proto.NewMessageData{ChatID: chatRec.ID, Message: proto.MessageFromStore(msg)},
		}, nil

	case proto.InboundTypingStart, proto.InboundTypingStop:
		var ref proto.ChatRef
		if err := json.Unmarshal(inbound.Data, &ref); err != nil || ref.ChatID == "" {
			return nil, badRequest("chatId is required")
		}
		h.hub.Typing(client, ref.ChatID, inbound.Type == proto.InboundTypingStart)
		return nil, nil

	case proto.InboundJoinVideoRoom:
		var ref proto.VideoRef
		if err := json.Unmarshal(inbound.Data, &ref); err != nil || ref.VideoID == "" {
			return nil, badRequest("videoId is required")
		}
		h.hub.JoinVideo(client, ref.VideoID)
		return nil, nil

	case proto.InboundLeaveVideoRoom:
		var ref proto.VideoRef
		if err := json.Unmarshal(inbound.Data, &ref); err != nil || ref.VideoID == "" {
			return nil, badRequest("videoId is required")
		}
		h.hub.LeaveRoom(client, hub.VideoRoomID(ref.VideoID))
		return nil, nil

	case proto.InboundVideoComment:
		var data proto.VideoCommentData
		if err := json.Unmarshal(inbound.Data, &data); err != nil || data.VideoID == "" {
			return nil, badRequest("videoId is required")
		}
		h.hub.VideoComment(client, data)
		return nil, nil

	case proto.InboundJoinLiveSession:
		var ref proto.SessionRef
		if err := json.Unmarshal(inbound.Data, &ref); err != nil || ref.SessionID == "" {
			return nil, badRequest("sessionId is required")
		}
		own := h.hub.JoinLive(ctx, client, ref.SessionID)
		return &hub.Event{Name: proto.EventParticipantJoined, Data: *own}, nil

	case proto.InboundLeaveLiveSession:
		var ref proto.SessionRef
		if err := json.Unmarshal(inbound.Data, &ref); err != nil || ref.SessionID == "" {
			return nil, badRequest("sessionId is required")
		}
		h.hub.LeaveLive(client, ref.SessionID)
		return nil, nil

	case proto.InboundGetUnreadCount:
		count, err := h.chats.UnreadTotal(ctx, client.Identity.UserID)
		if err != nil {
			return nil, wireError(err)
		}
		return &hub.Event{
			Name: proto.EventUnreadCount,
			Data: proto.UnreadCountData{Count: count},
		}, nil

	default:
		return nil, &proto.Error{Code: "invalid_message", Msg: "unknown message type"}
	}
}

func badRequest(msg string) *proto.Error {
	return &proto.Error{Code: chat.ErrCodeBadRequest, Msg: msg}
}

func wireError(err error) *proto.Error {
	we := chat.WireError(err)
	return &proto.Error{Code: we.Code, Msg: we.Message}
}
