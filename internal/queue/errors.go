package queue

import "github.com/rotisserie/eris"

var (
	ErrQueueClosed = eris.New("queue is closed")

	// ErrItemNotFound is returned for an unknown dead-letter id
	ErrItemNotFound = eris.New("dead-letter item not found")

	// ErrMaxRetriesExceeded is the reason recorded on records a worker gave up on
	ErrMaxRetriesExceeded = eris.New("max retries exceeded")
)
