package worker

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// JobType identifies what a Message asks the worker to do.
type JobType = string

const (
	JobDigestBuild JobType = "digest.build"
	JobDigestSweep JobType = "digest.sweep"
)

// Message is a unit of work handed to the pool.
type Message struct {
	ID        string         `json:"id"`
	Type      JobType        `json:"type"`
	Payload   map[string]any `json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
	Retries   int            `json:"retries"`

	// done is set for stream-delivered jobs; the consumer waits on it and
	// owns redelivery, so the pool reports instead of retrying.
	done chan error
}

func NewMessage(jobType JobType, payload map[string]any) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      jobType,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
}

// ParsePayload decodes msg.Payload into T.
func ParsePayload[T any](msg *Message) (*T, error) {
	data, err := json.Marshal(msg.Payload)
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// toPayload converts a job struct to a generic payload map.
func toPayload(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}
