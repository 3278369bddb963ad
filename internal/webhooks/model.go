package webhooks

import (
	"time"

	"github.com/jmerrifield20/WavePortal/internal/events"
)

// EventNewWave is the only event type delivered to endpoints.
const EventNewWave = "wave.created"

// Event is the JSON body POSTed to every endpoint.
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Wave      events.NewWave `json:"wave"`
}

// Delivery records the outcome of a single delivery attempt.
type Delivery struct {
	EventID    string
	URL        string
	StatusCode int
	Attempt    int
	Success    bool
	Error      string
}
