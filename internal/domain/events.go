package domain

import (
	"encoding/json"
	"time"
)

// Теги входящих событий
const (
	TagJoin        = "join"
	TagLeave       = "leave"
	TagMessage     = "message"
	TagTestMessage = "test_message"
)

// Теги исходящих событий
const (
	TagConnected    = "connected"
	TagJoined       = "joined"
	TagUserJoined   = "user_joined"
	TagUserLeft     = "user_left"
	TagLeft         = "left"
	TagTestResponse = "test_response"
	TagError        = "error"
	TagAck          = "ack"
)

// Event — исходящее событие, которое транспорт сериализует как {type, payload}.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Inbound — входящее событие от клиента.
type Inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Ack     string          `json:"ack,omitempty"`
}

type JoinRequest struct {
	Room     string `json:"room"`
	Username string `json:"username,omitempty"`
}

type LeaveRequest struct {
	Room string `json:"room"`
}

type MessageRequest struct {
	Room     string `json:"room"`
	Message  string `json:"message"`
	Username string `json:"username,omitempty"`
}

type ConnectedPayload struct {
	SID       string    `json:"sid"`
	Message   string    `json:"message"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type JoinedPayload struct {
	Room         string    `json:"room"`
	SID          string    `json:"sid"`
	Participants []string  `json:"participants"`
	Count        int       `json:"count"`
	Timestamp    time.Time `json:"timestamp"`
}

// PresencePayload используется для user_joined и user_left.
type PresencePayload struct {
	Room         string    `json:"room"`
	SID          string    `json:"sid"`
	Participants []string  `json:"participants"`
	Count        int       `json:"count"`
	Timestamp    time.Time `json:"timestamp"`
}

type LeftPayload struct {
	Room      string    `json:"room"`
	SID       string    `json:"sid"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type MessagePayload struct {
	Room      string    `json:"room"`
	SID       string    `json:"sid"`
	Username  string    `json:"username"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type TestResponsePayload struct {
	Message      string          `json:"message"`
	OriginalData json.RawMessage `json:"original_data,omitempty"`
	SID          string          `json:"sid"`
	Status       string          `json:"status"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type AckPayload struct {
	ID    string `json:"id"`
	Error string `json:"error,omitempty"`
}

func ErrorEvent(err error) Event {
	return Event{Type: TagError, Payload: ErrorPayload{Message: PublicMessage(err)}}
}
