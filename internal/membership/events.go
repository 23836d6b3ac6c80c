package membership

import (
	"time"

	"github.com/cwrk-planet/roomcast/internal/domain"
)

func joinedEvent(room, sid string, members []string, at time.Time) domain.Event {
	return domain.Event{Type: domain.TagJoined, Payload: domain.JoinedPayload{
		Room:         room,
		SID:          sid,
		Participants: members,
		Count:        len(members),
		Timestamp:    at,
	}}
}

func presenceEvent(tag, room, sid string, members []string, at time.Time) domain.Event {
	return domain.Event{Type: tag, Payload: domain.PresencePayload{
		Room:         room,
		SID:          sid,
		Participants: members,
		Count:        len(members),
		Timestamp:    at,
	}}
}

func leftEvent(room, sid string, at time.Time) domain.Event {
	return domain.Event{Type: domain.TagLeft, Payload: domain.LeftPayload{
		Room:      room,
		SID:       sid,
		Status:    "success",
		Timestamp: at,
	}}
}

func messageEvent(room, sid, username, text string, at time.Time) domain.Event {
	return domain.Event{Type: domain.TagMessage, Payload: domain.MessagePayload{
		Room:      room,
		SID:       sid,
		Username:  username,
		Message:   text,
		Timestamp: at,
	}}
}
