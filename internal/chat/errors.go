package chat

import "errors"

// Error codes for domain errors, as they appear on the wire.
const (
	ErrCodeUnauthenticated      = "unauthenticated"
	ErrCodeNotAuthorized        = "not_authorized"
	ErrCodeChatNotFound         = "chat_not_found"
	ErrCodeChatInactive         = "chat_inactive"
	ErrCodeParticipantsNotFound = "participants_not_found"
	ErrCodeBadRequest           = "bad_request"
)

// All chat operations are local validations; every failure here is
// synchronous and non-retryable.
var (
	ErrNotAuthorized        = errors.New("not a participant or insufficient role")
	ErrChatNotFound         = errors.New("chat not found")
	ErrChatInactive         = errors.New("chat is inactive")
	ErrParticipantsNotFound = errors.New("one or more participants not found")
	ErrBadRequest           = errors.New("bad request")
)

// Error wraps a code and human-readable message for the wire.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// WireError maps a domain error onto its wire code.
func WireError(err error) *Error {
	switch {
	case errors.Is(err, ErrNotAuthorized):
		return &Error{Code: ErrCodeNotAuthorized, Message: "not authorized"}
	case errors.Is(err, ErrChatNotFound):
		return &Error{Code: ErrCodeChatNotFound, Message: "chat not found"}
	case errors.Is(err, ErrChatInactive):
		return &Error{Code: ErrCodeChatInactive, Message: "chat is inactive"}
	case errors.Is(err, ErrParticipantsNotFound):
		return &Error{Code: ErrCodeParticipantsNotFound, Message: "participants not found"}
	case errors.Is(err, ErrBadRequest):
		return &Error{Code: ErrCodeBadRequest, Message: err.Error()}
	default:
		return &Error{Code: "internal", Message: "internal error"}
	}
}
