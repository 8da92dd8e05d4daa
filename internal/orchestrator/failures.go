package orchestrator

import "sync"

// Failure is one archive that could not be uploaded.
type Failure struct {
	Archive string
	Err     error
}

// FailureLog collects failed archives. Each archive is recorded at most once.
type FailureLog struct {
	mu      sync.Mutex
	entries []Failure
	seen    map[string]bool
}

// Record adds archive unless it is already present and reports whether it was added.
func (l *FailureLog) Record(archive string, err error) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.seen == nil {
		l.seen = make(map[string]bool)
	}
	if l.seen[archive] {
		return false
	}
	l.seen[archive] = true
	l.entries = append(l.entries, Failure{Archive: archive, Err: err})
	return true
}

// Entries returns the failures in the order they were recorded.
func (l *FailureLog) Entries() []Failure {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Failure, len(l.entries))
	copy(out, l.entries)
	return out
}
