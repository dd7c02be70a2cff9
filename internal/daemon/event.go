package daemon

import "github.com/arlert/devmon/internal/watcher"

// EventType tags one lifecycle event on the daemon's stream.
type EventType string

const (
	// EventStart is emitted once, before the first chain execution.
	EventStart EventType = "start"
	// EventReload is emitted once per qualifying change batch, before the
	// reload procedure runs.
	EventReload EventType = "reload"
	// EventExit is emitted once, when the stream terminates.
	EventExit EventType = "exit"
)

// Event is one entry of the daemon's lifecycle stream. Change is set only
// for reload events and carries the batch that triggered the restart.
type Event struct {
	Type   EventType     `json:"type"`
	Change watcher.Batch `json:"change,omitempty"`
}
