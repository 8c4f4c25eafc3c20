package model

import "time"

type (
	// QueuedMessage is a wire frame the station holds for an offline receiver.
	QueuedMessage struct {
		Receiver string    `json:"receiver"`
		Payload  []byte    `json:"payload"`
		QueuedAt time.Time `json:"queued_at"`
	}
)
