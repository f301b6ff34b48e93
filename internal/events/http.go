package events

import (
	"net/http"
	"time"
)

// HTTPStart is emitted when the inspector begins handling a request.
type HTTPStart struct {
	Request *http.Request
}

// HTTPFinish is emitted when the inspector finishes handling a request.
type HTTPFinish struct {
	Request  *http.Request
	Status   int
	Duration time.Duration
}
