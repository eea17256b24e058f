package events

import "encoding/json"

// Event names on the /events stream.
const (
	Ping         = "ping"
	NewVideo     = "newVideo"
	StatusUpdate = "statusUpdate"
	DeleteVideo  = "deleteVideo"
)

// InitialStatus is the label a list item shows until its first statusUpdate.
const InitialStatus = "Pending"

// Item is the payload of the item events. Status is only set on statusUpdate.
type Item struct {
	AudioID string `json:"audioID"`
	Status  string `json:"status,omitempty"`
	Title   string `json:"title,omitempty"`
}

// Event is a real-time update pushed to stream clients.
type Event struct {
	Name string
	Data any
}

// Payload returns the wire form of the event data. Strings are sent
// verbatim, everything else as JSON.
func (e Event) Payload() (string, error) {
	if s, ok := e.Data.(string); ok {
		return s, nil
	}
	b, err := json.Marshal(e.Data)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func NewVideoEvent(id, title string) Event {
	return Event{Name: NewVideo, Data: Item{AudioID: id, Title: title}}
}

func StatusUpdateEvent(id, status string) Event {
	return Event{Name: StatusUpdate, Data: Item{AudioID: id, Status: status}}
}

func DeleteVideoEvent(id string) Event {
	return Event{Name: DeleteVideo, Data: Item{AudioID: id}}
}

// Broadcaster sends events to connected stream clients.
// A nil Broadcaster is safe to use -- Broadcast becomes a no-op.
type Broadcaster interface {
	Broadcast(e Event)
}
