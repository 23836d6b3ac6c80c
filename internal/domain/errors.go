package domain

import "errors"

var (
	ErrInvalidRoomName     = errors.New("invalid room name")
	ErrInvalidMessage      = errors.New("invalid message")
	ErrInvalidDisplayName  = errors.New("invalid display name")
	ErrUnknownConnection   = errors.New("unknown connection")
	ErrDuplicateConnection = errors.New("duplicate connection")
	ErrUnknownEvent        = errors.New("unknown event")
	ErrMalformedPayload    = errors.New("malformed payload")
)

// PublicMessage возвращает текст для события error, отправляемого клиенту.
func PublicMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidRoomName):
		return "Room name is required"
	case errors.Is(err, ErrInvalidMessage):
		return "Message is required"
	case errors.Is(err, ErrInvalidDisplayName):
		return "Username is too long"
	case errors.Is(err, ErrUnknownEvent):
		return "Unknown event"
	case errors.Is(err, ErrMalformedPayload):
		return "Invalid message format"
	case errors.Is(err, ErrUnknownConnection):
		return "Connection is not registered"
	default:
		return "Internal error"
	}
}
