package workspace

import "time"

// State is a step of the per-request lifecycle.
type State string

const (
	StateValidating State = "validating"
	StateAllocating State = "allocating"
	StateExtracting State = "extracting"
	StateResolving  State = "resolving"
	StateDelivering State = "delivering"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// WorkItem correlates one request with its staging file(s). The ID is the
// only link between the request, the files on disk and the response.
type WorkItem struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"createdAt"`
	StagingPath string    `json:"-"`
	State       State     `json:"state"`
}
