package loop

// State is the position of a loop in its poll/process/submit cycle.
type State int32

const (
	StateIdle State = iota
	StatePolling
	StateNoTask
	StateTaskReceived
	StateProcessing
	StateSubmitting
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StateNoTask:
		return "no_task"
	case StateTaskReceived:
		return "task_received"
	case StateProcessing:
		return "processing"
	case StateSubmitting:
		return "submitting"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}
