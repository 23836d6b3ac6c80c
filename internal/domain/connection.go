package domain

// Connection — метаданные одной живой транспортной сессии.
type Connection struct {
	ID          string
	Room        string // "" пока не было join
	DisplayName string
}

// Joined сообщает, состоит ли соединение в какой-либо комнате.
func (c Connection) Joined() bool { return c.Room != "" }
