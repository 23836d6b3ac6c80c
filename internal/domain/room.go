package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	MaxRoomNameLength    = 50
	MaxMessageLength     = 500
	MaxDisplayNameLength = 20
)

type RoomSummary struct {
	Name    string   `json:"name"`
	Count   int      `json:"count"`
	Members []string `json:"members"`
}

// NormalizeRoomName обрезает пробелы и проверяет длину имени комнаты.
// Имена чувствительны к регистру.
func NormalizeRoomName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidRoomName)
	}
	if utf8.RuneCountInString(trimmed) > MaxRoomNameLength {
		return "", fmt.Errorf("%w: longer than %d characters", ErrInvalidRoomName, MaxRoomNameLength)
	}
	return trimmed, nil
}

// ValidateMessage проверяет текст сообщения; сам текст доставляется как есть.
func ValidateMessage(text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return fmt.Errorf("%w: empty", ErrInvalidMessage)
	}
	if utf8.RuneCountInString(trimmed) > MaxMessageLength {
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidMessage, MaxMessageLength)
	}
	return nil
}

// JoinResult — итог перехода join для вызывающего.
type JoinResult struct {
	Room         string
	Participants []string
	PreviousRoom string // комната, из которой соединение ушло при переключении
	Changed      bool   // false, если соединение уже было в этой комнате
}

// LeaveResult — итог перехода leave.
type LeaveResult struct {
	Room         string // "" если соединение не было ни в одной комнате
	Participants []string
}
