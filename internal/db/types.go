package db

import "time"

type ItemStatus string

const (
	StatusPending     ItemStatus = "Pending"
	StatusFetchMeta   ItemStatus = "FetchingMeta"
	StatusDownloading ItemStatus = "Downloading"
	StatusAvailable   ItemStatus = "Available"
	StatusError       ItemStatus = "Error"
)

// Terminal reports whether no worker will touch the item again.
func (s ItemStatus) Terminal() bool {
	return s == StatusAvailable || s == StatusError
}

type Item struct {
	ID        string
	URL       string
	Title     string
	Status    ItemStatus
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type ItemEvent struct {
	ID        int64
	ItemID    string
	Ts        time.Time
	EventType string
	Detail    string
}
