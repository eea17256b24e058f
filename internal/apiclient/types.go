package apiclient

import (
	"strconv"
	"time"
)

type Item struct {
	AudioID   string    `json:"audioID"`
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return "server returned " + strconv.Itoa(e.StatusCode) + ": " + e.Message
}
