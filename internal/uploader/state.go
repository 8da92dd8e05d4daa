package uploader

// State is the step a job reached in the draft lifecycle.
type State int

const (
	StateIdle State = iota
	StateClearingStaleDraft
	StateDraftOpen
	StateUploadingBatch
	StateCommitting
	StateCommitted
	StateRolledBack
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateClearingStaleDraft:
		return "ClearingStaleDraft"
	case StateDraftOpen:
		return "DraftOpen"
	case StateUploadingBatch:
		return "UploadingBatch"
	case StateCommitting:
		return "Committing"
	case StateCommitted:
		return "Committed"
	case StateRolledBack:
		return "RolledBack"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}
